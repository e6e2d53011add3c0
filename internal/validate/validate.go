// Package validate confirms candidate ponds against independent evidence.
//
// Tests run in a fixed order and the first failure rejects the candidate:
//
//  1. Area gate: min_area <= area <= max_area.
//  2. Water persistence, by mode:
//     - dry_season: median dry-season VV <= ceiling (paddies dry out and turn
//     radar-bright, ponds stay dark).
//     - median_or: median NDWI >= floor OR median VV <= ceiling.
//     - median_and: both.
//     - none: skipped.
//  3. Cropland: mean cropland indicator < ceiling. Skipped without a
//     land-cover layer.
//
// A reduction that reports source.ErrMissingData fails the test it belongs
// to. source.ErrResourceCeiling and any other collaborator error abort the
// run; the validator never retries.
package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/tambak-detect/internal/logger"
	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/source"
)

// Mode selects the water persistence test.
type Mode string

const (
	ModeDrySeason Mode = "dry_season"
	ModeMedianOr  Mode = "median_or"
	ModeMedianAnd Mode = "median_and"
	ModeNone      Mode = "none"
)

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeDrySeason, ModeMedianOr, ModeMedianAnd, ModeNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown validation mode %q (valid: dry_season, median_or, median_and, none)", s)
}

// Options holds the validation thresholds.
type Options struct {
	MinArea       float64
	MaxArea       float64
	Mode          Mode
	DryVVMax      float64
	MedianNDWIMin float64
	MedianVVMax   float64
	CropMax       float64
}

// DefaultOptions returns the dry-season thresholds for 10 m imagery.
func DefaultOptions() Options {
	return Options{
		MinArea:       300,
		MaxArea:       500000,
		Mode:          ModeDrySeason,
		DryVVMax:      -13,
		MedianNDWIMin: 0.05,
		MedianVVMax:   -13,
		CropMax:       0.5,
	}
}

// Layers are the grids sampled under each candidate. Only the layers the
// mode needs must be set; a nil Cropland skips the cropland test.
type Layers struct {
	DryVV      *raster.Grid
	MedianNDWI *raster.Grid
	MedianVV   *raster.Grid
	Cropland   *raster.Grid
}

// Reason names the test a candidate failed.
type Reason string

const (
	ReasonArea        Reason = "area"
	ReasonDryVV       Reason = "dry_vv"
	ReasonMedian      Reason = "median"
	ReasonCropland    Reason = "cropland"
	ReasonMissingData Reason = "missing_data"
)

// Rejection records why a candidate was dropped.
type Rejection struct {
	Candidate pond.Candidate
	Reason    Reason
	Detail    string
}

// Result splits the input into accepted candidates, with their sampled
// attributes filled in, and rejections.
type Result struct {
	Accepted []pond.Candidate
	Rejected []Rejection
}

// Counts tallies rejections by reason.
func (r Result) Counts() map[Reason]int {
	out := make(map[Reason]int)
	for _, rej := range r.Rejected {
		out[rej.Reason]++
	}
	return out
}

// Validator applies the tests to candidates.
type Validator struct {
	opts    Options
	layers  Layers
	reducer source.Reducer
	log     logger.Logger
}

// New checks that the layers required by opts.Mode are present.
func New(reducer source.Reducer, layers Layers, opts Options, log logger.Logger) (*Validator, error) {
	if reducer == nil && opts.Mode != ModeNone {
		return nil, errors.New("validator needs a reducer")
	}
	switch opts.Mode {
	case ModeDrySeason:
		if layers.DryVV == nil {
			return nil, errors.New("dry_season validation needs a dry-season VV layer")
		}
	case ModeMedianOr, ModeMedianAnd:
		if layers.MedianNDWI == nil || layers.MedianVV == nil {
			return nil, fmt.Errorf("%s validation needs median NDWI and VV layers", opts.Mode)
		}
	case ModeNone:
	default:
		return nil, fmt.Errorf("unknown validation mode %q", opts.Mode)
	}
	if layers.Cropland != nil && reducer == nil {
		return nil, errors.New("cropland validation needs a reducer")
	}
	if opts.MinArea > opts.MaxArea {
		return nil, fmt.Errorf("min area %g exceeds max area %g", opts.MinArea, opts.MaxArea)
	}
	return &Validator{opts: opts, layers: layers, reducer: reducer, log: logger.OrNop(log)}, nil
}

// AreaGate reports whether area lies in [MinArea, MaxArea].
func (v *Validator) AreaGate(area float64) bool {
	return area >= v.opts.MinArea && area <= v.opts.MaxArea
}

// Validate runs every test over cands in order. The returned error is
// non-nil only for failures that must stop the run.
func (v *Validator) Validate(ctx context.Context, cands []pond.Candidate) (Result, error) {
	var res Result
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, rej, err := v.check(ctx, c)
		if err != nil {
			return res, &pond.Error{ID: c.ID, Err: err}
		}
		if rej != nil {
			v.log.Debug("validate", "candidate rejected", map[string]interface{}{
				"id": c.ID, "reason": string(rej.Reason), "detail": rej.Detail,
			})
			res.Rejected = append(res.Rejected, *rej)
			continue
		}
		res.Accepted = append(res.Accepted, out)
	}
	return res, nil
}

func (v *Validator) check(ctx context.Context, c pond.Candidate) (pond.Candidate, *Rejection, error) {
	reject := func(r Reason, format string, args ...interface{}) (pond.Candidate, *Rejection, error) {
		return c, &Rejection{Candidate: c, Reason: r, Detail: fmt.Sprintf(format, args...)}, nil
	}

	if !v.AreaGate(c.AreaM2) {
		return reject(ReasonArea, "area %.1f outside [%g, %g]", c.AreaM2, v.opts.MinArea, v.opts.MaxArea)
	}

	switch v.opts.Mode {
	case ModeDrySeason:
		vv, ok, err := v.sample(ctx, v.layers.DryVV, c, source.Median)
		if err != nil {
			return c, nil, err
		}
		if !ok {
			return reject(ReasonMissingData, "no dry-season VV pixels")
		}
		c.DryVV = pond.Float(vv)
		if vv > v.opts.DryVVMax {
			return reject(ReasonDryVV, "dry VV %.2f > %g", vv, v.opts.DryVVMax)
		}

	case ModeMedianOr, ModeMedianAnd:
		ndwi, okNDWI, err := v.sample(ctx, v.layers.MedianNDWI, c, source.Median)
		if err != nil {
			return c, nil, err
		}
		vv, okVV, err := v.sample(ctx, v.layers.MedianVV, c, source.Median)
		if err != nil {
			return c, nil, err
		}
		if okNDWI {
			c.MedianNDWI = pond.Float(ndwi)
		}
		if okVV {
			c.MedianVV = pond.Float(vv)
		}
		if !okNDWI && !okVV {
			return reject(ReasonMissingData, "no median NDWI or VV pixels")
		}
		optical := okNDWI && ndwi >= v.opts.MedianNDWIMin
		radar := okVV && vv <= v.opts.MedianVVMax
		if v.opts.Mode == ModeMedianAnd {
			if !okNDWI || !okVV {
				return reject(ReasonMissingData, "median_and needs both NDWI and VV pixels")
			}
			if !optical || !radar {
				return reject(ReasonMedian, "median NDWI %.3f, VV %.2f fail both-required test", ndwi, vv)
			}
		} else if !optical && !radar {
			return reject(ReasonMedian, "neither median NDWI nor VV confirms water")
		}
	}

	if v.layers.Cropland != nil {
		frac, ok, err := v.sample(ctx, v.layers.Cropland, c, source.Mean)
		if err != nil {
			return c, nil, err
		}
		if !ok {
			return reject(ReasonMissingData, "no land-cover pixels")
		}
		c.CropFraction = pond.Float(frac)
		if frac >= v.opts.CropMax {
			return reject(ReasonCropland, "cropland fraction %.2f >= %g", frac, v.opts.CropMax)
		}
	}
	return c, nil, nil
}

// sample reduces g under c. ok is false when the reducer reported missing data.
func (v *Validator) sample(ctx context.Context, g *raster.Grid, c pond.Candidate, agg source.Aggregator) (float64, bool, error) {
	val, err := v.reducer.Reduce(ctx, g, c.Geometry, agg)
	if errors.Is(err, source.ErrMissingData) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}
