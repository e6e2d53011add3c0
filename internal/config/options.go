package config

import (
	"github.com/ironsheep/tambak-detect/internal/neighbor"
	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/seed"
	"github.com/ironsheep/tambak-detect/internal/segment"
	"github.com/ironsheep/tambak-detect/internal/shape"
	"github.com/ironsheep/tambak-detect/internal/smooth"
	"github.com/ironsheep/tambak-detect/internal/source"
	"github.com/ironsheep/tambak-detect/internal/validate"
)

// defaultMaxPixels is the reduction ceiling when max_pixels is unset.
const defaultMaxPixels = 100_000_000

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func getString(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

// GetPreset returns the preset name.
func (c *Config) GetPreset() string { return getString(c.Preset, PresetHybridDrySeason) }

// GetSeedVariant returns "hybrid" or "optical".
func (c *Config) GetSeedVariant() string { return getString(c.SeedVariant, VariantHybrid) }

// GetNDWIComposite returns the composite used for the NDWI guide grid.
func (c *Config) GetNDWIComposite() string { return getString(c.NDWIComposite, "clipped-max") }

func (c *Config) GetNDWIThreshold() float64  { return getFloat(c.NDWIThreshold, 0) }
func (c *Config) GetRadarThreshold() float64 { return getFloat(c.RadarThreshold, -13.5) }
func (c *Config) GetRadarSmoothM() float64   { return getFloat(c.RadarSmoothM, 15) }
func (c *Config) GetMinPixels() int          { return getInt(c.MinPixels, 10) }

func (c *Config) GetNDWIMin() float64           { return getFloat(c.NDWIMin, -0.10) }
func (c *Config) GetNDVIMax() float64           { return getFloat(c.NDVIMax, 0.35) }
func (c *Config) GetNIRMaxDN() float64          { return getFloat(c.NIRMaxDN, 3500) }
func (c *Config) GetNIRMaxReflectance() float64 { return getFloat(c.NIRMaxReflectance, 0.35) }
func (c *Config) GetMorphRadius() float64       { return getFloat(c.MorphRadius, 1) }

// GetKernelRadii returns the segmentation schedule. An explicitly empty
// list means a single pass without cutting.
func (c *Config) GetKernelRadii() []float64 {
	if c.KernelRadii == nil {
		return []float64{1.5, 2.0, 2.5}
	}
	return append([]float64{}, c.KernelRadii...)
}

func (c *Config) GetEdgeThreshold() float64 { return getFloat(c.EdgeThreshold, 0.1) }
func (c *Config) GetEdgeSigma() float64     { return getFloat(c.EdgeSigma, 1) }
func (c *Config) GetConnectivity() int      { return getInt(c.Connectivity, 4) }
func (c *Config) GetMaxLSI() float64        { return getFloat(c.MaxLSI, 3.0) }
func (c *Config) GetMaxRPOC() float64       { return getFloat(c.MaxRPOC, 1.8) }
func (c *Config) GetDedupeRounds() bool     { return getBool(c.DedupeRounds, true) }

func (c *Config) GetMinArea() float64         { return getFloat(c.MinArea, 300) }
func (c *Config) GetMaxArea() float64         { return getFloat(c.MaxArea, 500000) }
func (c *Config) GetValidationMode() string   { return getString(c.ValidationMode, "dry_season") }
func (c *Config) GetDryVVMax() float64        { return getFloat(c.DryVVMax, -13) }
func (c *Config) GetDrySmoothM() float64      { return getFloat(c.DrySmoothM, 10) }
func (c *Config) GetMedianNDWIMin() float64   { return getFloat(c.MedianNDWIMin, 0.05) }
func (c *Config) GetMedianVVMax() float64     { return getFloat(c.MedianVVMax, -13) }
func (c *Config) GetCropMax() float64         { return getFloat(c.CropMax, 0.5) }
func (c *Config) GetCroplandClass() int       { return getInt(c.CroplandClass, 40) }
func (c *Config) GetMaxPixels() int           { return getInt(c.MaxPixels, defaultMaxPixels) }

func (c *Config) GetNeighborDistanceM() float64 { return getFloat(c.NeighborDistanceM, 100) }
func (c *Config) GetMinNeighbors() int          { return getInt(c.MinNeighbors, 1) }
func (c *Config) GetCountSelf() bool            { return getBool(c.CountSelf, false) }

func (c *Config) GetSmoothMarginM() float64 { return getFloat(c.SmoothMarginM, 2) }
func (c *Config) GetSimplifyM() float64     { return getFloat(c.SimplifyM, 0.5) }
func (c *Config) GetFinalBufferM() float64  { return getFloat(c.FinalBufferM, 2) }
func (c *Config) GetSmoothCellM() float64   { return getFloat(c.SmoothCellM, 0.5) }

// GetMeasureSmoothed reports whether outlines are smoothed before the shape
// limits and the area gate.
func (c *Config) GetMeasureSmoothed() bool { return getBool(c.MeasureSmoothed, false) }

// GetAttributes returns the exported attribute columns, defaulting to
// every candidate attribute.
func (c *Config) GetAttributes() []string {
	if len(c.Attributes) == 0 {
		return pond.AttributeNames()
	}
	return append([]string{}, c.Attributes...)
}

// Composite returns the parsed NDWI composite. Validate has already
// rejected unknown names.
func (c *Config) Composite() source.Composite {
	comp, err := source.ParseComposite(c.GetNDWIComposite())
	if err != nil {
		return source.CompositeMedian
	}
	return comp
}

// SeedOptions converts the hybrid seed settings.
func (c *Config) SeedOptions() seed.Options {
	return seed.Options{
		NDWIThreshold:  c.GetNDWIThreshold(),
		RadarThreshold: c.GetRadarThreshold(),
		MinPixels:      c.GetMinPixels(),
		Connectivity:   raster.EightConnected,
	}
}

// OpticalOptions converts the optical seed settings.
func (c *Config) OpticalOptions() seed.OpticalOptions {
	return seed.OpticalOptions{
		NDWIMin:           c.GetNDWIMin(),
		NDVIMax:           c.GetNDVIMax(),
		NIRMaxDN:          c.GetNIRMaxDN(),
		NIRMaxReflectance: c.GetNIRMaxReflectance(),
		MorphRadius:       c.GetMorphRadius(),
		MinPixels:         c.GetMinPixels(),
		Connectivity:      raster.EightConnected,
	}
}

// Limits returns the geometric acceptance predicate.
func (c *Config) Limits() shape.Limits {
	return shape.Limits{MaxLSI: c.GetMaxLSI(), MaxRPOC: c.GetMaxRPOC()}
}

// SegmentOptions converts the segmentation settings.
func (c *Config) SegmentOptions() segment.Options {
	opts := segment.Options{
		Radii:        c.GetKernelRadii(),
		Threshold:    c.GetEdgeThreshold(),
		Sigma:        c.GetEdgeSigma(),
		Connectivity: raster.Connectivity(c.GetConnectivity()),
		Limits:       c.Limits(),
	}
	if c.GetMeasureSmoothed() {
		so := c.SmoothOptions()
		opts.Smooth = &so
	}
	return opts
}

// ValidateOptions converts the cross-source validation settings.
func (c *Config) ValidateOptions() validate.Options {
	mode, err := validate.ParseMode(c.GetValidationMode())
	if err != nil {
		mode = validate.ModeDrySeason
	}
	return validate.Options{
		MinArea:       c.GetMinArea(),
		MaxArea:       c.GetMaxArea(),
		Mode:          mode,
		DryVVMax:      c.GetDryVVMax(),
		MedianNDWIMin: c.GetMedianNDWIMin(),
		MedianVVMax:   c.GetMedianVVMax(),
		CropMax:       c.GetCropMax(),
	}
}

// NeighborOptions converts the density filter settings.
func (c *Config) NeighborOptions() neighbor.Options {
	return neighbor.Options{
		DistanceM:    c.GetNeighborDistanceM(),
		MinNeighbors: c.GetMinNeighbors(),
		CountSelf:    c.GetCountSelf(),
	}
}

// SmoothOptions converts the post-processing settings.
func (c *Config) SmoothOptions() smooth.Options {
	return smooth.Options{
		MarginM:      c.GetSmoothMarginM(),
		SimplifyM:    c.GetSimplifyM(),
		FinalBufferM: c.GetFinalBufferM(),
		CellM:        c.GetSmoothCellM(),
	}
}
