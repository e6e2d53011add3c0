package seed

import (
	"fmt"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// Options configures the hybrid optical/radar seed mask.
type Options struct {
	// NDWIThreshold flags optical water where NDWI >= NDWIThreshold.
	NDWIThreshold float64
	// RadarThreshold flags radar water where VV backscatter (dB) < RadarThreshold.
	RadarThreshold float64
	// MinPixels removes components smaller than this many pixels.
	MinPixels int
	// Connectivity used when counting component pixels.
	Connectivity raster.Connectivity
}

// DefaultOptions returns the thresholds of the hybrid detector.
func DefaultOptions() Options {
	return Options{
		NDWIThreshold:  0,
		RadarThreshold: -13.5,
		MinPixels:      10,
		Connectivity:   raster.EightConnected,
	}
}

// Build fuses optical and radar water evidence into the candidate mask.
//
// A pixel is a seed when either sensor flags it as water: turbid ponds fail
// the optical test but stay radar-dark, small or bright ponds do the reverse.
// vv may be nil, in which case only the optical test is used. Components
// smaller than opts.MinPixels are removed afterwards.
func Build(ndwi, vv *raster.Grid, opts Options) (*raster.Mask, error) {
	if err := opts.Connectivity.Validate(); err != nil {
		return nil, err
	}
	mask := ndwi.GreaterEqual(opts.NDWIThreshold)
	if vv != nil {
		radar := vv.Less(opts.RadarThreshold)
		var err error
		if mask, err = mask.Or(radar); err != nil {
			return nil, fmt.Errorf("fuse radar mask: %w", err)
		}
	}
	return raster.RemoveSmallComponents(mask, opts.MinPixels, opts.Connectivity), nil
}

// CleanOutliers builds an annual NDWI composite from a time series, taking the
// per-pixel maximum clipped to mean + k standard deviations so a single
// glint or badly corrected scene cannot dominate the composite.
func CleanOutliers(stack *raster.Stack, k float64) (*raster.Grid, error) {
	if stack.Len() == 0 {
		return nil, fmt.Errorf("no observations to clean")
	}
	return stack.ClippedMax(k)
}

// SmoothRadar applies the circular median low-pass filter used before radar
// thresholding. A radius of zero returns vv unchanged.
func SmoothRadar(vv *raster.Grid, radiusMetres float64) *raster.Grid {
	if radiusMetres <= 0 {
		return vv
	}
	return raster.FocalMedian(vv, radiusMetres)
}
