package config

import (
	"fmt"
	"sort"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

// Preset names.
const (
	PresetHybridDrySeason = "hybrid-dryseason"
	PresetHybridMedian    = "hybrid-median"
	PresetOpticalHighRes  = "optical-highres"
)

var presets = map[string]func() *Config{
	PresetHybridDrySeason: hybridDrySeason,
	PresetHybridMedian:    hybridMedian,
	PresetOpticalHighRes:  opticalHighRes,
}

// Presets lists the preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Preset returns a fresh copy of the named preset. The empty name selects
// hybrid-dryseason.
func Preset(name string) (*Config, error) {
	if name == "" {
		name = PresetHybridDrySeason
	}
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (valid: %v)", name, Presets())
	}
	return build(), nil
}

// hybridDrySeason fuses optical and radar seeds and rejects candidates that
// turn radar-bright in the dry season.
func hybridDrySeason() *Config {
	return &Config{
		Preset:         ptrString(PresetHybridDrySeason),
		SeedVariant:    ptrString(VariantHybrid),
		NDWIComposite:  ptrString("clipped-max"),
		NDWIThreshold:  ptrFloat64(0),
		RadarThreshold: ptrFloat64(-13.5),
		RadarSmoothM:   ptrFloat64(15),
		MinPixels:      ptrInt(10),

		KernelRadii:   []float64{1.5, 2.0, 2.5},
		EdgeThreshold: ptrFloat64(0.1),
		EdgeSigma:     ptrFloat64(1),
		Connectivity:  ptrInt(4),
		MaxLSI:        ptrFloat64(3.0),
		MaxRPOC:       ptrFloat64(1.8),
		DedupeRounds:  ptrBool(true),

		MinArea:        ptrFloat64(300),
		MaxArea:        ptrFloat64(500000),
		ValidationMode: ptrString("dry_season"),
		DryVVMax:       ptrFloat64(-13),
		DrySmoothM:     ptrFloat64(10),
		CropMax:        ptrFloat64(0.5),
		CroplandClass:  ptrInt(40),

		NeighborDistanceM: ptrFloat64(100),
		MinNeighbors:      ptrInt(1),
		CountSelf:         ptrBool(false),

		SmoothMarginM: ptrFloat64(2),
		SimplifyM:     ptrFloat64(0.5),
		FinalBufferM:  ptrFloat64(2),
		SmoothCellM:   ptrFloat64(0.5),

		Attributes: []string{pond.AttrArea, pond.AttrLSI, pond.AttrRPOC, pond.AttrDryVV,
			pond.AttrCropFraction, pond.AttrNeighborCount},
	}
}

// hybridMedian replaces the dry-season test with the median NDWI or radar
// test over the whole analysis window.
func hybridMedian() *Config {
	c := hybridDrySeason()
	c.Preset = ptrString(PresetHybridMedian)
	c.ValidationMode = ptrString("median_or")
	c.MedianNDWIMin = ptrFloat64(0.05)
	c.MedianVVMax = ptrFloat64(-13)
	c.Attributes = []string{pond.AttrArea, pond.AttrLSI, pond.AttrRPOC, pond.AttrMedianNDWI,
		pond.AttrMedianVV, pond.AttrNeighborCount}
	return c
}

// opticalHighRes detects ponds on a single high-resolution optical image
// without radar: one tracing pass, no cross-source or density tests. Pixel
// staircases dominate the perimeter at this resolution, so outlines are
// smoothed before they are measured.
func opticalHighRes() *Config {
	return &Config{
		Preset:        ptrString(PresetOpticalHighRes),
		SeedVariant:   ptrString(VariantOptical),
		NDWIComposite: ptrString("median"),

		NDWIMin:           ptrFloat64(-0.10),
		NDVIMax:           ptrFloat64(0.35),
		NIRMaxDN:          ptrFloat64(3500),
		NIRMaxReflectance: ptrFloat64(0.35),
		MorphRadius:       ptrFloat64(1),
		MinPixels:         ptrInt(0),

		KernelRadii:  []float64{},
		Connectivity: ptrInt(8),
		MaxLSI:       ptrFloat64(2.5),
		MaxRPOC:      ptrFloat64(1.8),
		DedupeRounds: ptrBool(false),

		MinArea:        ptrFloat64(300),
		MaxArea:        ptrFloat64(150000),
		ValidationMode: ptrString("none"),

		NeighborDistanceM: ptrFloat64(100),
		MinNeighbors:      ptrInt(0),

		SmoothMarginM: ptrFloat64(2),
		SimplifyM:     ptrFloat64(0.5),
		FinalBufferM:  ptrFloat64(0),
		SmoothCellM:   ptrFloat64(0.5),

		MeasureSmoothed: ptrBool(true),

		Attributes: []string{pond.AttrArea, pond.AttrLSI, pond.AttrRPOC},
	}
}
