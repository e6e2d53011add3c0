// Package indices derives normalized-difference spectral indices from band grids.
package indices

import (
	"github.com/ironsheep/tambak-detect/internal/raster"
)

// Epsilon replaces a denominator of exactly zero so that dark pixels produce a
// defined value instead of NaN or Inf.
const Epsilon = 0.001

// NormalizedDifference returns (a - b) / (a + b) pixel-wise.
//
// A zero denominator is replaced by Epsilon. No clipping is applied; with
// negative band values the result may fall outside [-1, 1]. NaN inputs
// propagate to NaN.
func NormalizedDifference(a, b *raster.Grid) (*raster.Grid, error) {
	return raster.Combine(a, b, func(x, y float64) float64 {
		denom := x + y
		if denom == 0 {
			denom = Epsilon
		}
		return (x - y) / denom
	})
}

// NDWI is the McFeeters water index (green - nir) / (green + nir).
func NDWI(green, nir *raster.Grid) (*raster.Grid, error) {
	return NormalizedDifference(green, nir)
}

// NDVI is the vegetation index (nir - red) / (nir + red).
func NDVI(nir, red *raster.Grid) (*raster.Grid, error) {
	return NormalizedDifference(nir, red)
}
