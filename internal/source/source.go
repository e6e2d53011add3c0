// Package source defines the contracts the detector uses to reach its data
// collaborators, and the errors those collaborators report.
//
// The detector core never loads imagery or reduces pixels itself; it asks a
// BandSource for composited grids and a Reducer for per-polygon statistics.
// Package scene provides in-process implementations of both.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

var (
	// ErrMissingData means a request matched no valid pixels or scenes.
	// Validators treat it as a failed test, never as a pass.
	ErrMissingData = errors.New("no valid data")

	// ErrResourceCeiling means a reduction covered more pixels than the
	// configured ceiling. It is terminal and not retried; callers should
	// shrink the area or coarsen the scale.
	ErrResourceCeiling = errors.New("pixel ceiling exceeded")
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseRange parses two ISO-8601 dates (YYYY-MM-DD) into a TimeRange.
func ParseRange(start, end string) (TimeRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if !e.After(s) {
		return TimeRange{}, fmt.Errorf("end date %s must be after start date %s", end, start)
	}
	return TimeRange{Start: s, End: e}, nil
}

// Contains reports whether t lies in the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r TimeRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// Composite selects how a time series of scenes is collapsed into one grid.
type Composite string

const (
	CompositeMedian     Composite = "median"
	CompositeMean       Composite = "mean"
	CompositeMax        Composite = "max"
	CompositeClippedMax Composite = "clipped-max"
)

// ParseComposite accepts the composite names case-insensitively. The empty
// string selects the median.
func ParseComposite(s string) (Composite, error) {
	switch c := Composite(strings.ToLower(s)); c {
	case "":
		return CompositeMedian, nil
	case CompositeMedian, CompositeMean, CompositeMax, CompositeClippedMax:
		return c, nil
	}
	return "", fmt.Errorf("unknown composite %q (valid: median, mean, max, clipped-max)", s)
}

// Aggregator selects how a reduction collapses the pixels under a polygon.
type Aggregator string

const (
	// Median suits continuous values such as backscatter or NDWI.
	Median Aggregator = "median"
	// Mean over a 0/1 indicator yields a fraction.
	Mean Aggregator = "mean"
)

// BandSource produces composited band grids for an area and time window.
type BandSource interface {
	// BandGrid composites every scene of band whose time lies in tr,
	// clipped to aoi. An empty aoi selects the full scene extent.
	BandGrid(ctx context.Context, band string, tr TimeRange, aoi orb.Bound, c Composite) (*raster.Grid, error)

	// BandStack returns the uncomposited time series.
	BandStack(ctx context.Context, band string, tr TimeRange, aoi orb.Bound) (*raster.Stack, error)

	// HasBand reports whether the band is available at all.
	HasBand(band string) bool
}

// Reducer collapses the pixels of a grid under a polygon into one value.
type Reducer interface {
	// Reduce returns ErrMissingData when no valid pixel lies inside the
	// polygon, and ErrResourceCeiling when the polygon covers too many pixels.
	Reduce(ctx context.Context, g *raster.Grid, p orb.Polygon, agg Aggregator) (float64, error)
}
