// Package neighbor keeps candidates that belong to a cluster.
//
// Pond complexes are dense: a candidate with no other candidate nearby is far
// more likely an isolated wet field than a pond. The filter is a minimum
// degree test over the proximity graph whose edges join candidates whose
// polygons are within a fixed distance of each other.
package neighbor

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

// Options configures the density filter.
type Options struct {
	// DistanceM is the maximum polygon-to-polygon distance for two
	// candidates to be neighbours. Touching or overlapping polygons are at
	// distance 0.
	DistanceM float64
	// MinNeighbors is the minimum count a candidate needs to survive.
	MinNeighbors int
	// CountSelf includes the candidate itself in its own count, as a
	// self-join does. With CountSelf the usual threshold is 2.
	CountSelf bool
}

// DefaultOptions keeps candidates with at least one other candidate within
// 100 m.
func DefaultOptions() Options {
	return Options{DistanceM: 100, MinNeighbors: 1}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.DistanceM < 0 || math.IsNaN(o.DistanceM) {
		return fmt.Errorf("neighbour distance must be >= 0, got %g", o.DistanceM)
	}
	if o.MinNeighbors < 0 {
		return fmt.Errorf("minimum neighbour count must be >= 0, got %d", o.MinNeighbors)
	}
	return nil
}

// Result splits candidates by the density test. Both slices carry the
// neighbour count.
type Result struct {
	Accepted []pond.Candidate
	Rejected []pond.Candidate
}

// indexed is the R-tree entry of one candidate: its bounding box and its
// position in the input slice.
type indexed struct {
	geom.Polygonal
	idx int
}

func toBounds(b orb.Bound, pad float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.Min[0] - pad, Y: b.Min[1] - pad},
		Max: geom.Point{X: b.Max[0] + pad, Y: b.Max[1] + pad},
	}
}

// Count returns, for each candidate, the number of other candidates within
// distance (plus one when countSelf is set).
func Count(ctx context.Context, cands []pond.Candidate, distance float64, countSelf bool) ([]int, error) {
	tree := rtree.NewTree(25, 50)
	for i, c := range cands {
		tree.Insert(&indexed{Polygonal: toBounds(c.Geometry.Bound(), 0), idx: i})
	}

	// widen the query so boxes exactly distance apart are not lost to
	// boundary handling in the index
	pad := distance + 1e-6*math.Max(1, distance)
	counts := make([]int, len(cands))
	for i, c := range cands {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if countSelf {
			counts[i]++
		}
		for _, s := range tree.SearchIntersect(toBounds(c.Geometry.Bound(), pad)) {
			j := s.(*indexed).idx
			if j == i {
				continue
			}
			if Distance(c.Geometry, cands[j].Geometry) <= distance {
				counts[i]++
			}
		}
	}
	return counts, nil
}

// Filter sets NeighborCount on every candidate and keeps those meeting
// opts.MinNeighbors. Input order is preserved.
func Filter(ctx context.Context, cands []pond.Candidate, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	counts, err := Count(ctx, cands, opts.DistanceM, opts.CountSelf)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for i, c := range cands {
		n := counts[i]
		c.NeighborCount = &n
		if n >= opts.MinNeighbors {
			res.Accepted = append(res.Accepted, c)
		} else {
			res.Rejected = append(res.Rejected, c)
		}
	}
	return res, nil
}

// Distance is the minimum planar distance between two polygons, 0 when they
// touch or overlap.
func Distance(a, b orb.Polygon) float64 {
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1)
	}
	if len(a[0]) > 0 && planar.PolygonContains(b, a[0][0]) {
		return 0
	}
	if len(b[0]) > 0 && planar.PolygonContains(a, b[0][0]) {
		return 0
	}
	best := math.Inf(1)
	for _, ra := range a {
		for _, rb := range b {
			if d := ringDistance(ra, rb); d < best {
				best = d
				if best == 0 {
					return 0
				}
			}
		}
	}
	return best
}

func ringDistance(a, b orb.Ring) float64 {
	best := math.Inf(1)
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			d := segmentDistance(a[i], a[i+1], b[j], b[j+1])
			if d < best {
				best = d
			}
		}
	}
	return best
}

func segmentDistance(p1, p2, q1, q2 orb.Point) float64 {
	if segmentsCross(p1, p2, q1, q2) {
		return 0
	}
	return math.Min(
		math.Min(planar.DistanceFromSegment(q1, q2, p1), planar.DistanceFromSegment(q1, q2, p2)),
		math.Min(planar.DistanceFromSegment(p1, p2, q1), planar.DistanceFromSegment(p1, p2, q2)),
	)
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// segmentsCross reports a proper crossing; touching endpoints are caught by
// the point-to-segment distances.
func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
