package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/config"
	"github.com/ironsheep/tambak-detect/internal/indices"
	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/scene"
	"github.com/ironsheep/tambak-detect/internal/seed"
	"github.com/ironsheep/tambak-detect/internal/source"
	"github.com/ironsheep/tambak-detect/internal/validate"
)

// Inputs are the rasters derived from the scene before segmentation.
type Inputs struct {
	Window source.TimeRange
	AOI    orb.Bound
	// NDWIStack is the per-acquisition NDWI series.
	NDWIStack *raster.Stack
	// NDWI is the composited guide grid.
	NDWI *raster.Grid
	// VV is the smoothed annual backscatter; nil without a radar band.
	VV   *raster.Grid
	Seed *raster.Mask
}

// Prepare loads the bands named by cfg and builds the guide grid and the
// seed mask.
func Prepare(ctx context.Context, src source.BandSource, cfg *config.Config) (*Inputs, error) {
	window, err := cfg.Window()
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}
	aoi, err := cfg.AOIBound()
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}
	in := &Inputs{Window: window, AOI: aoi}

	green, err := src.BandStack(ctx, scene.BandGreen, window, aoi)
	if err != nil {
		return nil, stageErr(StageLoad, err)
	}
	nir, err := src.BandStack(ctx, scene.BandNIR, window, aoi)
	if err != nil {
		return nil, stageErr(StageLoad, err)
	}
	if in.NDWIStack, err = ndwiStack(green, nir); err != nil {
		return nil, stageErr(StageLoad, err)
	}
	if in.NDWI, err = scene.Composite(in.NDWIStack, cfg.Composite()); err != nil {
		return nil, stageErr(StageLoad, fmt.Errorf("ndwi composite: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageSeed, err)
	}
	switch cfg.GetSeedVariant() {
	case config.VariantOptical:
		in.Seed, err = opticalSeed(ctx, src, cfg, in, nir)
	default:
		in.Seed, err = hybridSeed(ctx, src, cfg, in)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

func hybridSeed(ctx context.Context, src source.BandSource, cfg *config.Config, in *Inputs) (*raster.Mask, error) {
	if src.HasBand(scene.BandVV) {
		vv, err := src.BandGrid(ctx, scene.BandVV, in.Window, in.AOI, source.CompositeMedian)
		if err != nil {
			return nil, stageErr(StageLoad, err)
		}
		in.VV = seed.SmoothRadar(vv, cfg.GetRadarSmoothM())
	}
	mask, err := seed.Build(in.NDWI, in.VV, cfg.SeedOptions())
	if err != nil {
		return nil, stageErr(StageSeed, err)
	}
	return mask, nil
}

func opticalSeed(ctx context.Context, src source.BandSource, cfg *config.Config, in *Inputs, nirStack *raster.Stack) (*raster.Mask, error) {
	red, err := src.BandGrid(ctx, scene.BandRed, in.Window, in.AOI, cfg.Composite())
	if err != nil {
		return nil, stageErr(StageLoad, err)
	}
	nir, err := scene.Composite(nirStack, cfg.Composite())
	if err != nil {
		return nil, stageErr(StageLoad, err)
	}
	ndvi, err := indices.NDVI(nir, red)
	if err != nil {
		return nil, stageErr(StageSeed, err)
	}
	mask, err := seed.BuildOptical(in.NDWI, ndvi, nir, cfg.OpticalOptions())
	if err != nil {
		return nil, stageErr(StageSeed, err)
	}
	return mask, nil
}

// ndwiStack computes NDWI per acquisition. Green and NIR must come from the
// same acquisitions.
func ndwiStack(green, nir *raster.Stack) (*raster.Stack, error) {
	if green.Len() != nir.Len() {
		return nil, fmt.Errorf("green has %d acquisitions, nir has %d", green.Len(), nir.Len())
	}
	out := &raster.Stack{}
	for i, g := range green.Layers {
		if !green.Times[i].Equal(nir.Times[i]) {
			return nil, fmt.Errorf("acquisition %d: green at %s, nir at %s", i,
				green.Times[i].Format(time.DateOnly), nir.Times[i].Format(time.DateOnly))
		}
		ndwi, err := indices.NDWI(g, nir.Layers[i])
		if err != nil {
			return nil, fmt.Errorf("ndwi %s: %w", green.Times[i].Format(time.DateOnly), err)
		}
		if err := out.Add(green.Times[i], ndwi); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// validationLayers loads the grids the configured validation mode samples.
// With validation disabled only the area gate runs, so nothing is loaded.
func validationLayers(ctx context.Context, src source.BandSource, cfg *config.Config, in *Inputs) (validate.Layers, error) {
	var layers validate.Layers
	switch cfg.ValidateOptions().Mode {
	case validate.ModeNone:
		return layers, nil
	case validate.ModeDrySeason:
		dry, err := cfg.DryWindow()
		if err != nil {
			return layers, err
		}
		vv, err := src.BandGrid(ctx, scene.BandVV, dry, in.AOI, source.CompositeMedian)
		if err != nil {
			return layers, fmt.Errorf("dry-season backscatter %s: %w", dry, err)
		}
		layers.DryVV = seed.SmoothRadar(vv, cfg.GetDrySmoothM())
	case validate.ModeMedianOr, validate.ModeMedianAnd:
		// the composite guide grid and the smoothed backscatter the seed saw
		layers.MedianNDWI, layers.MedianVV = in.NDWI, in.VV
		if layers.MedianVV == nil {
			vv, err := src.BandGrid(ctx, scene.BandVV, in.Window, in.AOI, source.CompositeMedian)
			if err != nil {
				return layers, fmt.Errorf("median backscatter: %w", err)
			}
			layers.MedianVV = seed.SmoothRadar(vv, cfg.GetRadarSmoothM())
		}
	}
	if src.HasBand(scene.BandLandCover) {
		lc, err := src.BandGrid(ctx, scene.BandLandCover, source.TimeRange{}, in.AOI, source.CompositeMedian)
		if err != nil {
			return layers, fmt.Errorf("land cover: %w", err)
		}
		layers.Cropland = scene.Cropland(lc, cfg.GetCroplandClass())
	}
	return layers, nil
}
