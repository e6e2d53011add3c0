package seed

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/tambak-detect/internal/indices"
	"github.com/ironsheep/tambak-detect/internal/raster"
)

var tr = raster.NorthUp(500000, 9100000, 10)

// squareScene returns green and nir bands of a size x size scene with a dark
// water square of side n at (x0, y0) on bright land.
func squareScene(size, x0, y0, n int) (green, nir *raster.Grid) {
	green = raster.NewGridFilled(size, size, tr, "", 0.05)
	nir = raster.NewGridFilled(size, size, tr, "", 0.35)
	for y := y0; y < y0+n; y++ {
		for x := x0; x < x0+n; x++ {
			green.Set(x, y, 0.08)
			nir.Set(x, y, 0.02)
		}
	}
	return green, nir
}

func TestBuild_SingleSquareScene(t *testing.T) {
	green, nir := squareScene(100, 40, 30, 20)
	ndwi, err := indices.NDWI(green, nir)
	require.NoError(t, err)

	mask, err := Build(ndwi, nil, DefaultOptions())
	require.NoError(t, err)

	labels := raster.Label(mask, raster.EightConnected)
	assert.Equal(t, 1, labels.Count, "one connected component")
	assert.Equal(t, 400, mask.Count(), "component matches the square footprint")
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			inside := x >= 40 && x < 60 && y >= 30 && y < 50
			if mask.At(x, y) != inside {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, mask.At(x, y), inside)
			}
		}
	}
}

func TestBuild_RadarRescuesTurbidPond(t *testing.T) {
	ndwi := raster.NewGridFilled(30, 30, tr, "", -0.4)
	vv := raster.NewGridFilled(30, 30, tr, "", -8)
	// turbid pond: optically land-like, radar-dark
	for y := 5; y < 10; y++ {
		for x := 5; x < 10; x++ {
			vv.Set(x, y, -18)
		}
	}
	// single speckle pixel
	vv.Set(20, 20, -20)

	mask, err := Build(ndwi, vv, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 25, mask.Count())
	assert.True(t, mask.At(7, 7))
	assert.False(t, mask.At(20, 20), "speckle below the minimum pixel count is removed")
}

func TestBuild_ThresholdBoundaries(t *testing.T) {
	ndwi := raster.NewGridFilled(4, 4, tr, "", 0)
	vv := raster.NewGridFilled(4, 4, tr, "", -13.5)
	opts := DefaultOptions()
	opts.MinPixels = 0

	mask, err := Build(ndwi, vv, opts)
	require.NoError(t, err)
	assert.Equal(t, 16, mask.Count(), "NDWI equal to the threshold counts as water")

	ndwi = raster.NewGridFilled(4, 4, tr, "", -0.01)
	mask, err = Build(ndwi, vv, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, mask.Count(), "VV equal to the threshold is not radar water")
}

func TestBuild_InvalidConnectivity(t *testing.T) {
	opts := DefaultOptions()
	opts.Connectivity = 6
	_, err := Build(raster.NewGrid(2, 2, tr, ""), nil, opts)
	assert.Error(t, err)
}

func TestCleanOutliers(t *testing.T) {
	s := &raster.Stack{}
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := []float64{-0.2, -0.1, -0.15, -0.2, -0.1, -0.15, -0.2, -0.1, 0.9}
	for i, v := range series {
		require.NoError(t, s.Add(day.AddDate(0, 0, 5*i), raster.NewGridFilled(1, 1, tr, "", v)))
	}
	clean, err := CleanOutliers(s, 2)
	require.NoError(t, err)
	assert.Less(t, clean.Data[0], 0.9, "glint scene is clipped")
	assert.Greater(t, clean.Data[0], -0.1)

	_, err = CleanOutliers(&raster.Stack{}, 2)
	assert.Error(t, err)
}

func TestSmoothRadar(t *testing.T) {
	vv := raster.NewGridFilled(5, 5, tr, "", -20)
	vv.Set(2, 2, math.NaN())
	out := SmoothRadar(vv, 15)
	assert.Equal(t, -20.0, out.At(2, 2), "NaN pixel filled from its neighbourhood")
	assert.Same(t, vv, SmoothRadar(vv, 0))
}

func TestBuildOptical(t *testing.T) {
	size := 20
	ndwi := raster.NewGridFilled(size, size, tr, "", -0.5)
	ndvi := raster.NewGridFilled(size, size, tr, "", 0.1)
	nir := raster.NewGridFilled(size, size, tr, "", 2000)
	// 7x7 pond with a one-pixel hole
	for y := 5; y < 12; y++ {
		for x := 5; x < 12; x++ {
			ndwi.Set(x, y, 0.2)
		}
	}
	ndwi.Set(8, 8, -0.5)
	// isolated pixel removed by the opening
	ndwi.Set(16, 16, 0.3)
	// vegetated water-like pixel
	ndwi.Set(16, 3, 0.3)
	ndvi.Set(16, 3, 0.6)

	mask, err := BuildOptical(ndwi, ndvi, nir, DefaultOpticalOptions())
	require.NoError(t, err)
	assert.True(t, mask.At(8, 8), "closing fills the one-pixel hole")
	assert.False(t, mask.At(16, 16), "opening removes the isolated pixel")
	assert.False(t, mask.At(16, 3))
	// the block keeps its extent up to the corner pixels of the structuring element
	assert.InDelta(t, 49, mask.Count(), 4)
	assert.True(t, mask.At(6, 6) && mask.At(10, 10))
}

func TestNIRCeiling(t *testing.T) {
	opts := DefaultOpticalOptions()
	refl := raster.NewGridFilled(2, 2, tr, "", 0.3)
	dn := raster.NewGridFilled(2, 2, tr, "", 2500)
	assert.Equal(t, 0.35, opts.NIRCeiling(refl))
	assert.Equal(t, 3500.0, opts.NIRCeiling(dn))
}
