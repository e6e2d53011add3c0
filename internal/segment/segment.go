// Package segment splits seed water masks into individual pond polygons.
//
// Adjacent ponds usually fuse into one seed component because the dykes
// between them are narrower than a pixel. Segment repeatedly erodes the
// guide index with a growing minimum filter, detects edges in the result, and
// accumulates every edge ever found. Each round cuts the seed mask along the
// accumulated edges, traces the remaining components and keeps the polygons
// whose shape is pond-like. Survivors of all rounds are pooled.
package segment

import (
	"context"
	"fmt"

	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/shape"
	"github.com/ironsheep/tambak-detect/internal/smooth"
)

// Options configures a segmentation run.
type Options struct {
	// Radii is the kernel radius schedule in pixels, one round per entry,
	// applied in order. An empty schedule traces the seed mask once without
	// cutting.
	Radii []float64
	// Threshold is the Canny strong-edge threshold in guide units.
	Threshold float64
	// Sigma is the Canny Gaussian pre-smoothing in pixels.
	Sigma float64
	// Connectivity used to trace the cut mask.
	Connectivity raster.Connectivity
	// Limits is the geometric acceptance predicate.
	Limits shape.Limits
	// Smooth, when set, closes and simplifies every traced polygon before it
	// is measured. The final buffer is not applied here.
	Smooth *smooth.Options
}

// DefaultOptions returns the three-round schedule used with 10 m imagery.
func DefaultOptions() Options {
	return Options{
		Radii:        []float64{1.5, 2.0, 2.5},
		Threshold:    0.1,
		Sigma:        1,
		Connectivity: raster.FourConnected,
		Limits:       shape.Limits{MaxLSI: 3.0, MaxRPOC: 1.8},
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if err := o.Connectivity.Validate(); err != nil {
		return err
	}
	if o.Smooth != nil {
		if err := o.Smooth.Validate(); err != nil {
			return fmt.Errorf("smoothing: %w", err)
		}
	}
	for i, r := range o.Radii {
		if r < 1 {
			return fmt.Errorf("radius %d is %g, must be >= 1 pixel", i, r)
		}
	}
	if len(o.Radii) > 0 {
		if o.Threshold <= 0 {
			return fmt.Errorf("edge threshold must be positive, got %g", o.Threshold)
		}
		if o.Sigma <= 0 {
			return fmt.Errorf("edge sigma must be positive, got %g", o.Sigma)
		}
	}
	return nil
}

// RoundResult describes one segmentation round.
type RoundResult struct {
	Round  int
	Radius float64
	// Edges is the accumulated edge map after this round.
	Edges EdgeMap
	// Cut is the seed mask with accumulated edges removed.
	Cut *raster.Mask
	// Traced is the number of polygons vectorized from Cut.
	Traced int
	// Accepted holds the polygons that passed the shape limits.
	Accepted []pond.Candidate
	// Rejected holds the polygons that failed them.
	Rejected []pond.Candidate
}

// Result is the pooled output of all rounds.
type Result struct {
	Candidates []pond.Candidate
	Rounds     []RoundResult
	Edges      EdgeMap
}

// RunRound executes one round against the accumulated edge state and returns
// the round result, whose Edges field is the next edge state.
//
// Parameters:
//   - seed: Candidate water mask.
//   - guide: Grid whose edges separate ponds, aligned with seed.
//   - edges: Accumulated edge state from the previous round.
//   - round: 1-based round number, used in candidate ids.
//   - radius: Minimum filter radius in pixels.
//   - opts: Edge detection and acceptance parameters.
//
// Returns:
//   - RoundResult: Accepted and rejected candidates plus the new edge state.
//   - error: When the inputs are misaligned.
func RunRound(seed *raster.Mask, guide *raster.Grid, edges EdgeMap, round int, radius float64, opts Options) (RoundResult, error) {
	if guide.Width != seed.Width || guide.Height != seed.Height || guide.Transform != seed.Transform {
		return RoundResult{}, fmt.Errorf("guide grid %dx%d is not aligned with seed mask %dx%d",
			guide.Width, guide.Height, seed.Width, seed.Height)
	}

	sharpened := raster.FocalMin(guide, radius)
	found := raster.Canny(sharpened, opts.Threshold, opts.Sigma)
	next, err := edges.Union(found)
	if err != nil {
		return RoundResult{}, err
	}
	cut, err := next.Cut(seed)
	if err != nil {
		return RoundResult{}, fmt.Errorf("cut seed mask: %w", err)
	}

	res := classify(cut, round, opts)
	res.Radius = radius
	res.Edges = next
	return res, nil
}

// classify traces mask and splits the polygons by the shape limits.
func classify(mask *raster.Mask, round int, opts Options) RoundResult {
	res := RoundResult{Round: round, Cut: mask}
	regions := raster.Vectorize(mask, opts.Connectivity)
	res.Traced = len(regions)
	seq := 0
	for _, r := range regions {
		if len(r.Polygon) == 0 {
			continue
		}
		seq++
		poly := r.Polygon
		if opts.Smooth != nil {
			// closing only grows a non-empty outline, so failure leaves the
			// pixel outline in place
			if sm, err := smooth.Smooth(poly, *opts.Smooth); err == nil {
				poly = sm
			}
		}
		c := pond.NewCandidate(round, seq, poly)
		if opts.Limits.Accept(c.Metrics) {
			res.Accepted = append(res.Accepted, c)
		} else {
			res.Rejected = append(res.Rejected, c)
		}
	}
	return res
}

// Segment runs every round of the schedule and pools the accepted candidates
// in round order. observe, when non-nil, is called after each round.
//
// Rounds run strictly in schedule order because each one cuts with the edge
// state left by its predecessor. The context is checked before each round.
func Segment(ctx context.Context, seed *raster.Mask, guide *raster.Grid, opts Options, observe func(RoundResult)) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	edges := NewEdgeMap(seed)
	var out Result

	if len(opts.Radii) == 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rr := classify(seed.Clone(), 1, opts)
		rr.Edges = edges
		if observe != nil {
			observe(rr)
		}
		out.Rounds = append(out.Rounds, rr)
		out.Candidates = append(out.Candidates, rr.Accepted...)
		out.Edges = edges
		return out, nil
	}

	if guide == nil {
		return Result{}, fmt.Errorf("segmentation with %d rounds needs a guide grid", len(opts.Radii))
	}
	for i, radius := range opts.Radii {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rr, err := RunRound(seed, guide, edges, i+1, radius, opts)
		if err != nil {
			return Result{}, fmt.Errorf("round %d: %w", i+1, err)
		}
		edges = rr.Edges
		if observe != nil {
			observe(rr)
		}
		out.Rounds = append(out.Rounds, rr)
		out.Candidates = append(out.Candidates, rr.Accepted...)
	}
	out.Edges = edges
	return out, nil
}
