package seed

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// OpticalOptions configures the optical-only seed used on high-resolution
// imagery without a radar companion.
type OpticalOptions struct {
	// NDWIMin flags water where NDWI > NDWIMin.
	NDWIMin float64
	// NDVIMax rejects vegetated pixels (NDVI >= NDVIMax).
	NDVIMax float64
	// NIRMaxDN and NIRMaxReflectance reject bright pixels. The reflectance
	// ceiling applies when the NIR band's maximum is at most 1.
	NIRMaxDN          float64
	NIRMaxReflectance float64
	// MorphRadius is the radius in pixels of the opening and closing
	// structuring element; 0 disables the morphological cleanup.
	MorphRadius  float64
	MinPixels    int
	Connectivity raster.Connectivity
}

// DefaultOpticalOptions returns the loose thresholds tuned for turbid and
// algae-rich ponds.
func DefaultOpticalOptions() OpticalOptions {
	return OpticalOptions{
		NDWIMin:           -0.10,
		NDVIMax:           0.35,
		NIRMaxDN:          3500,
		NIRMaxReflectance: 0.35,
		MorphRadius:       1,
		MinPixels:         0,
		Connectivity:      raster.EightConnected,
	}
}

// NIRCeiling chooses the brightness ceiling matching the band's encoding.
func (o OpticalOptions) NIRCeiling(nir *raster.Grid) float64 {
	if _, hi := nir.MinMax(); hi <= 1 {
		return o.NIRMaxReflectance
	}
	return o.NIRMaxDN
}

// BuildOptical combines water, non-vegetation and non-bright tests, then
// cleans the mask with a morphological opening followed by a closing.
func BuildOptical(ndwi, ndvi, nir *raster.Grid, opts OpticalOptions) (*raster.Mask, error) {
	if err := opts.Connectivity.Validate(); err != nil {
		return nil, err
	}
	mask := ndwi.Greater(opts.NDWIMin)
	nonVeg := ndvi.Less(opts.NDVIMax)
	nonBright := nir.Less(opts.NIRCeiling(nir))

	var err error
	if mask, err = mask.And(nonVeg); err != nil {
		return nil, fmt.Errorf("combine vegetation test: %w", err)
	}
	if mask, err = mask.And(nonBright); err != nil {
		return nil, fmt.Errorf("combine brightness test: %w", err)
	}

	if opts.MorphRadius > 0 {
		mask = Close(Open(mask, opts.MorphRadius), opts.MorphRadius)
	}
	return raster.RemoveSmallComponents(mask, opts.MinPixels, opts.Connectivity), nil
}

// Open removes foreground features narrower than the structuring element.
func Open(m *raster.Mask, radius float64) *raster.Mask {
	img := effect.Dilate(effect.Erode(maskImage(m), radius), radius)
	return imageMask(img, m)
}

// Close fills background gaps narrower than the structuring element.
func Close(m *raster.Mask, radius float64) *raster.Mask {
	img := effect.Erode(effect.Dilate(maskImage(m), radius), radius)
	return imageMask(img, m)
}

func maskImage(m *raster.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Data {
		if v {
			img.Pix[(i/m.Width)*img.Stride+i%m.Width] = 255
		}
	}
	return img
}

func imageMask(img image.Image, like *raster.Mask) *raster.Mask {
	out := raster.NewMask(like.Width, like.Height, like.Transform, like.CRS)
	for y := 0; y < like.Height; y++ {
		for x := 0; x < like.Width; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			out.Set(x, y, g.Y >= 128)
		}
	}
	return out
}
