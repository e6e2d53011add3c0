// Package config loads the run configuration of the detector.
//
// A configuration is a flat JSON object of named thresholds. Every field is
// optional: a file names a preset (hybrid-dryseason when omitted) and any
// field it sets overrides the preset's value. Get* accessors return the
// effective value, falling back to the built-in default when a field is
// absent from both.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/source"
	"github.com/ironsheep/tambak-detect/internal/validate"
)

// maxFileSize bounds configuration files.
const maxFileSize = 1 << 20

// Seed variants.
const (
	VariantHybrid  = "hybrid"
	VariantOptical = "optical"
)

// Config is the complete run configuration.
type Config struct {
	Preset *string `json:"preset,omitempty"`

	// Analysis window and dry-season sub-window, YYYY-MM-DD, end exclusive.
	WindowStart *string `json:"window_start,omitempty"`
	WindowEnd   *string `json:"window_end,omitempty"`
	DryStart    *string `json:"dry_start,omitempty"`
	DryEnd      *string `json:"dry_end,omitempty"`
	// AOI is [minX, minY, maxX, maxY] in scene coordinates.
	AOI []float64 `json:"aoi,omitempty"`

	// Seed mask
	SeedVariant    *string  `json:"seed_variant,omitempty"`
	NDWIComposite  *string  `json:"ndwi_composite,omitempty"`
	NDWIThreshold  *float64 `json:"ndwi_threshold,omitempty"`
	RadarThreshold *float64 `json:"radar_threshold,omitempty"`
	RadarSmoothM   *float64 `json:"radar_smooth_m,omitempty"`
	MinPixels      *int     `json:"min_pixels,omitempty"`

	// Optical seed variant
	NDWIMin           *float64 `json:"ndwi_min,omitempty"`
	NDVIMax           *float64 `json:"ndvi_max,omitempty"`
	NIRMaxDN          *float64 `json:"nir_max_dn,omitempty"`
	NIRMaxReflectance *float64 `json:"nir_max_reflectance,omitempty"`
	MorphRadius       *float64 `json:"morph_radius,omitempty"`

	// Segmentation
	KernelRadii   []float64 `json:"kernel_radii,omitempty"`
	EdgeThreshold *float64  `json:"edge_threshold,omitempty"`
	EdgeSigma     *float64  `json:"edge_sigma,omitempty"`
	Connectivity  *int      `json:"connectivity,omitempty"`
	MaxLSI        *float64  `json:"max_lsi,omitempty"`
	MaxRPOC       *float64  `json:"max_rpoc,omitempty"`
	DedupeRounds  *bool     `json:"dedupe_rounds,omitempty"`

	// Validation
	MinArea        *float64 `json:"min_area,omitempty"`
	MaxArea        *float64 `json:"max_area,omitempty"`
	ValidationMode *string  `json:"validation_mode,omitempty"`
	DryVVMax       *float64 `json:"dry_vv_max,omitempty"`
	DrySmoothM     *float64 `json:"dry_smooth_m,omitempty"`
	MedianNDWIMin  *float64 `json:"median_ndwi_min,omitempty"`
	MedianVVMax    *float64 `json:"median_vv_max,omitempty"`
	CropMax        *float64 `json:"crop_max,omitempty"`
	CroplandClass  *int     `json:"cropland_class,omitempty"`
	MaxPixels      *int     `json:"max_pixels,omitempty"`

	// Neighbourhood
	NeighborDistanceM *float64 `json:"neighbor_distance_m,omitempty"`
	MinNeighbors      *int     `json:"min_neighbors,omitempty"`
	CountSelf         *bool    `json:"count_self,omitempty"`

	// Post-processing
	SmoothMarginM *float64 `json:"smooth_margin_m,omitempty"`
	SimplifyM     *float64 `json:"simplify_m,omitempty"`
	FinalBufferM  *float64 `json:"final_buffer_m,omitempty"`
	SmoothCellM   *float64 `json:"smooth_cell_m,omitempty"`

	// MeasureSmoothed closes and simplifies each traced polygon before the
	// shape limits and the area gate see it.
	MeasureSmoothed *bool `json:"measure_smoothed,omitempty"`

	// Attributes lists the exported attribute columns in order.
	Attributes []string `json:"attributes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Load reads a configuration file and resolves it against its preset.
// The file must have a .json extension and be under 1 MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON configuration, overlays it on its preset and
// validates the result. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Preset string `json:"preset"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg, err := Preset(head.Preset)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the default preset.
func Default() *Config {
	cfg, _ := Preset(PresetHybridDrySeason)
	return cfg
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, err := c.Window(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DryWindow(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.AOIBound(); err != nil {
		errs = append(errs, err)
	}

	v := c.GetSeedVariant()
	check(v == VariantHybrid || v == VariantOptical, "seed_variant must be %q or %q, got %q", VariantHybrid, VariantOptical, v)
	if _, err := source.ParseComposite(c.GetNDWIComposite()); err != nil {
		errs = append(errs, err)
	}
	check(c.GetMinPixels() >= 0, "min_pixels must be non-negative, got %d", c.GetMinPixels())
	check(c.GetRadarSmoothM() >= 0, "radar_smooth_m must be non-negative, got %g", c.GetRadarSmoothM())
	check(c.GetMorphRadius() >= 0, "morph_radius must be non-negative, got %g", c.GetMorphRadius())

	for i, r := range c.GetKernelRadii() {
		check(r >= 1, "kernel_radii[%d] must be >= 1 pixel, got %g", i, r)
	}
	check(c.GetEdgeThreshold() > 0, "edge_threshold must be positive, got %g", c.GetEdgeThreshold())
	check(c.GetEdgeSigma() > 0, "edge_sigma must be positive, got %g", c.GetEdgeSigma())
	conn := c.GetConnectivity()
	check(conn == 4 || conn == 8, "connectivity must be 4 or 8, got %d", conn)
	check(c.GetMaxLSI() > 0, "max_lsi must be positive, got %g", c.GetMaxLSI())
	check(c.GetMaxRPOC() >= 1, "max_rpoc must be >= 1, got %g", c.GetMaxRPOC())

	check(c.GetMinArea() >= 0, "min_area must be non-negative, got %g", c.GetMinArea())
	check(c.GetMaxArea() >= c.GetMinArea(), "max_area %g is below min_area %g", c.GetMaxArea(), c.GetMinArea())
	if _, err := validate.ParseMode(c.GetValidationMode()); err != nil {
		errs = append(errs, err)
	}
	check(c.GetCropMax() >= 0 && c.GetCropMax() <= 1, "crop_max must be between 0 and 1, got %g", c.GetCropMax())
	check(c.GetMaxPixels() > 0, "max_pixels must be positive, got %d", c.GetMaxPixels())

	check(c.GetNeighborDistanceM() >= 0, "neighbor_distance_m must be non-negative, got %g", c.GetNeighborDistanceM())
	check(c.GetMinNeighbors() >= 0, "min_neighbors must be non-negative, got %d", c.GetMinNeighbors())

	check(c.GetSmoothMarginM() >= 0, "smooth_margin_m must be non-negative, got %g", c.GetSmoothMarginM())
	check(c.GetSimplifyM() >= 0, "simplify_m must be non-negative, got %g", c.GetSimplifyM())
	check(c.GetFinalBufferM() >= 0, "final_buffer_m must be non-negative, got %g", c.GetFinalBufferM())
	check(c.GetSmoothCellM() > 0, "smooth_cell_m must be positive, got %g", c.GetSmoothCellM())

	if err := pond.ValidateAttributes(c.GetAttributes()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Window returns the analysis window. Both ends unset selects every scene.
func (c *Config) Window() (source.TimeRange, error) {
	return dateRange("window", c.WindowStart, c.WindowEnd)
}

// DryWindow returns the dry-season window. When unset it defaults to
// August 1 through October 31 of the analysis window's start year, and to
// the whole series when the analysis window is unset too.
func (c *Config) DryWindow() (source.TimeRange, error) {
	tr, err := dateRange("dry season", c.DryStart, c.DryEnd)
	if err != nil || !tr.IsZero() {
		return tr, err
	}
	w, err := c.Window()
	if err != nil || w.IsZero() {
		return source.TimeRange{}, nil
	}
	y := w.Start.Year()
	return source.TimeRange{
		Start: time.Date(y, time.August, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y, time.October, 31, 0, 0, 0, 0, time.UTC),
	}, nil
}

func dateRange(name string, start, end *string) (source.TimeRange, error) {
	s, e := deref(start), deref(end)
	if s == "" && e == "" {
		return source.TimeRange{}, nil
	}
	if s == "" || e == "" {
		return source.TimeRange{}, fmt.Errorf("%s needs both a start and an end date", name)
	}
	tr, err := source.ParseRange(s, e)
	if err != nil {
		return source.TimeRange{}, fmt.Errorf("%s: %w", name, err)
	}
	return tr, nil
}

// AOIBound returns the area of interest; the zero bound selects the whole
// scene.
func (c *Config) AOIBound() (orb.Bound, error) {
	if len(c.AOI) == 0 {
		return orb.Bound{}, nil
	}
	if len(c.AOI) != 4 {
		return orb.Bound{}, fmt.Errorf("aoi must have 4 values [minX, minY, maxX, maxY], got %d", len(c.AOI))
	}
	for _, v := range c.AOI {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return orb.Bound{}, fmt.Errorf("aoi values must be finite, got %v", c.AOI)
		}
	}
	if c.AOI[2] <= c.AOI[0] || c.AOI[3] <= c.AOI[1] {
		return orb.Bound{}, fmt.Errorf("aoi max must exceed min, got %v", c.AOI)
	}
	return orb.Bound{Min: orb.Point{c.AOI[0], c.AOI[1]}, Max: orb.Point{c.AOI[2], c.AOI[3]}}, nil
}

// String renders the effective configuration as indented JSON.
func (c *Config) String() string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return strings.TrimSpace(b.String())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
