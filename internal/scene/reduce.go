package scene

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/source"
)

// DefaultMaxPixels is the reduction ceiling used when none is configured.
const DefaultMaxPixels = 1e8

// Reducer reduces grids over polygons at the grid's native resolution.
type Reducer struct {
	// MaxPixels is the largest pixel footprint a single reduction may cover.
	// Zero means DefaultMaxPixels.
	MaxPixels int
}

// NewReducer returns a reducer with the given ceiling.
func NewReducer(maxPixels int) *Reducer {
	return &Reducer{MaxPixels: maxPixels}
}

func (r *Reducer) ceiling() int {
	if r.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return r.MaxPixels
}

// Reduce implements source.Reducer. A pixel belongs to the polygon when at
// least half of it is covered; NaN pixels are skipped.
func (r *Reducer) Reduce(ctx context.Context, g *raster.Grid, p orb.Polygon, agg source.Aggregator) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx := raster.Cover(p, g.Width, g.Height, g.Transform)
	if len(idx) > r.ceiling() {
		return 0, fmt.Errorf("polygon covers %d pixels, ceiling %d: %w", len(idx), r.ceiling(), source.ErrResourceCeiling)
	}
	vals := make([]float64, 0, len(idx))
	for _, i := range idx {
		if v := g.Data[i]; !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("polygon covers %d pixels, none valid: %w", len(idx), source.ErrMissingData)
	}
	switch agg {
	case source.Median:
		return raster.Median(vals), nil
	case source.Mean:
		return stat.Mean(vals, nil), nil
	}
	return 0, fmt.Errorf("unknown aggregator %q", agg)
}

var (
	_ source.Reducer    = (*Reducer)(nil)
	_ source.BandSource = (*Scene)(nil)
)
