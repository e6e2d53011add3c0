package scene

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/source"
)

var testTransform = raster.NorthUp(500000, 9100000, 10)

func ptr(v float64) *float64 { return &v }

func filled(w, h int, v float64) *raster.Grid {
	return raster.NewGridFilled(w, h, testTransform, "EPSG:32749", v)
}

// writeManifestScene writes three acquisitions of green and vv plus a static
// land-cover band into dir.
func writeManifestScene(t *testing.T, dir string) {
	t.Helper()
	encodings := map[string]BandEncoding{
		"green":     {Scale: ptr(0.0001)},
		"vv":        {Scale: ptr(0.01), Offset: -50, NoData: ptr(0)},
		"landcover": {},
	}
	m := Manifest{
		Name:      "demak",
		CRS:       "EPSG:32749",
		Transform: testTransform,
		Bands:     encodings,
		Static:    map[string]string{"landcover": "lc.tif"},
	}
	dates := []string{"2021-03-01", "2021-08-15", "2021-06-10"}
	greens := []float64{0.10, 0.30, 0.20}
	vvs := []float64{-20, -10, -15}
	for i, d := range dates {
		gf := "green_" + d + ".tif"
		vf := "vv_" + d + ".tif"
		vv := filled(4, 3, vvs[i])
		if i == 0 {
			vv.Set(0, 0, math.NaN())
		}
		require.NoError(t, WriteTIFFBand(filepath.Join(dir, gf), filled(4, 3, greens[i]), encodings["green"]))
		require.NoError(t, WriteTIFFBand(filepath.Join(dir, vf), vv, encodings["vv"]))
		m.Scenes = append(m.Scenes, ManifestScene{Date: d, Files: map[string]string{"green": gf, "vv": vf}})
	}
	lc := filled(4, 3, 80)
	lc.Set(3, 2, 40)
	require.NoError(t, WriteTIFFBand(filepath.Join(dir, "lc.tif"), lc, encodings["landcover"]))

	raw, err := json.MarshalIndent(m, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), raw, 0o644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifestScene(t, dir)

	sc, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "demak", sc.Name)
	assert.Equal(t, "EPSG:32749", sc.CRS)
	assert.Equal(t, 4, sc.Width)
	assert.Equal(t, 3, sc.Height)
	assert.Equal(t, []string{"green", "landcover", "vv"}, sc.Bands())

	info := sc.Info()
	require.Len(t, info.Bands, 3)
	assert.Equal(t, []string{"2021-03-01", "2021-06-10", "2021-08-15"}, info.Bands[0].Dates, "dates sorted")
	assert.True(t, info.Bands[1].Static)
	assert.Equal(t, [4]float64{500000, 9099970, 500040, 9100000}, info.Bound)

	ctx := context.Background()
	year, _ := source.ParseRange("2021-01-01", "2022-01-01")
	green, err := sc.BandGrid(ctx, "green", year, orb.Bound{}, source.CompositeMedian)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, green.At(1, 1), 1e-9)

	maxGreen, err := sc.BandGrid(ctx, "green", year, orb.Bound{}, source.CompositeMax)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, maxGreen.At(2, 2), 1e-9)

	dry, _ := source.ParseRange("2021-08-01", "2021-11-01")
	vv, err := sc.BandGrid(ctx, "vv", dry, orb.Bound{}, source.CompositeMedian)
	require.NoError(t, err)
	assert.InDelta(t, -10, vv.At(0, 0), 1e-9)

	early, _ := source.ParseRange("2021-01-01", "2021-04-01")
	vvEarly, err := sc.BandGrid(ctx, "vv", early, orb.Bound{}, source.CompositeMedian)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(vvEarly.At(0, 0)), "nodata sample decodes to NaN")
	assert.InDelta(t, -20, vvEarly.At(1, 0), 1e-9)

	lc, err := sc.BandGrid(ctx, BandLandCover, early, orb.Bound{}, source.CompositeMedian)
	require.NoError(t, err, "static bands ignore the time range")
	assert.Equal(t, 40.0, lc.At(3, 2))
}

func TestBandStackErrors(t *testing.T) {
	dir := t.TempDir()
	writeManifestScene(t, dir)
	sc, err := LoadManifest(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	ctx := context.Background()

	none, _ := source.ParseRange("2019-01-01", "2019-02-01")
	_, err = sc.BandStack(ctx, "green", none, orb.Bound{})
	assert.ErrorIs(t, err, source.ErrMissingData)

	_, err = sc.BandStack(ctx, "swir", none, orb.Bound{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, source.ErrMissingData)
	assert.False(t, sc.HasBand("swir"))
	assert.True(t, sc.HasBand("landcover"))
}

func TestBandStackClipsToAOI(t *testing.T) {
	dir := t.TempDir()
	writeManifestScene(t, dir)
	sc, err := LoadManifest(dir)
	require.NoError(t, err)

	aoi := orb.Bound{Min: orb.Point{500010, 9099980}, Max: orb.Point{500030, 9100000}}
	st, err := sc.BandStack(context.Background(), "green", source.TimeRange{}, aoi)
	require.NoError(t, err)
	require.Equal(t, 3, st.Len())
	g := st.Layers[0]
	assert.Equal(t, 2, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, 500010.0, g.Transform.OriginX)
}

func TestManifestErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadManifest(dir)
	assert.Error(t, err, "no manifest")

	bad := filepath.Join(dir, ManifestName)
	require.NoError(t, os.WriteFile(bad, []byte(`{"transform":{"pixel_width":10,"pixel_height":-10}}`), 0o644))
	_, err = LoadManifest(bad)
	assert.Error(t, err, "no bands")

	require.NoError(t, os.WriteFile(bad, []byte(`{"transform":{"pixel_width":10,"pixel_height":-10},
		"scenes":[{"date":"2021-13-01","files":{"green":"x.tif"}}]}`), 0o644))
	_, err = LoadManifest(bad)
	assert.Error(t, err, "bad date")
}

func TestLoadNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	addVar := func(name string, values interface{}, dims []string, attrs map[string]interface{}) {
		if attrs == nil {
			attrs = map[string]interface{}{}
		}
		keys := []string{}
		for k := range attrs {
			keys = append(keys, k)
		}
		am, err := util.NewOrderedMap(keys, attrs)
		require.NoError(t, err)
		require.NoError(t, cw.AddVar(name, api.Variable{Values: values, Dimensions: dims, Attributes: am}))
	}
	// 3 columns, 2 rows of 10 m pixels; coordinates are pixel centres.
	addVar("x", []float64{500005, 500015, 500025}, []string{"x"}, nil)
	addVar("y", []float64{9099995, 9099985}, []string{"y"}, nil)
	addVar("time", []float64{18628, 18840}, []string{"time"}, nil) // 2021-01-01, 2021-08-01
	addVar("vv", [][][]float32{
		{{-20, -21, -22}, {-23, -24, -9999}},
		{{-10, -11, -12}, {-13, -14, -15}},
	}, []string{"time", "y", "x"}, map[string]interface{}{"_FillValue": float32(-9999)})
	addVar("landcover", [][]int16{{40, 40, 80}, {80, 80, 80}}, []string{"y", "x"}, nil)
	require.NoError(t, cw.Close())

	sc, err := LoadNetCDF(path)
	require.NoError(t, err)
	assert.Equal(t, "cube", sc.Name)
	assert.Equal(t, raster.NorthUp(500000, 9100000, 10), sc.Transform)
	assert.Equal(t, 3, sc.Width)
	assert.Equal(t, 2, sc.Height)

	st, err := sc.BandStack(context.Background(), "vv", source.TimeRange{}, orb.Bound{})
	require.NoError(t, err)
	require.Equal(t, 2, st.Len())
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), st.Times[0])
	assert.Equal(t, time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC), st.Times[1])
	assert.Equal(t, -21.0, st.Layers[0].At(1, 0))
	assert.True(t, math.IsNaN(st.Layers[0].At(2, 1)))
	assert.Equal(t, -15.0, st.Layers[1].At(2, 1))

	crop := Cropland(sc.static["landcover"], 40)
	assert.Equal(t, []float64{1, 1, 0, 0, 0, 0}, crop.Data)
}

func TestCacheReusesScenes(t *testing.T) {
	dir := t.TempDir()
	writeManifestScene(t, dir)
	cache := NewCache()

	a, err := cache.Load(dir)
	require.NoError(t, err)
	b, err := cache.Load(dir)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, cache.Len())

	cache.Evict(dir)
	c, err := cache.Load(dir)
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Load(filepath.Join(dir, "lc.tif"))
	assert.Error(t, err, "bare TIFF is not a scene")
}

func TestReducer(t *testing.T) {
	g := raster.NewGrid(4, 4, testTransform, "")
	for i := range g.Data {
		g.Data[i] = float64(i)
	}
	g.Data[5] = math.NaN()
	// pixels (0..1, 0..1): values 0, 1, 4, NaN
	p := orb.Polygon{{{500000, 9099980}, {500020, 9099980}, {500020, 9100000}, {500000, 9100000}, {500000, 9099980}}}
	ctx := context.Background()
	r := NewReducer(0)

	med, err := r.Reduce(ctx, g, p, source.Median)
	require.NoError(t, err)
	assert.Equal(t, 1.0, med)

	mean, err := r.Reduce(ctx, g, p, source.Mean)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/3, mean, 1e-12)

	_, err = NewReducer(3).Reduce(ctx, g, p, source.Median)
	assert.ErrorIs(t, err, source.ErrResourceCeiling)

	nan := raster.NewGridFilled(4, 4, testTransform, "", math.NaN())
	_, err = r.Reduce(ctx, nan, p, source.Median)
	assert.ErrorIs(t, err, source.ErrMissingData)

	outside := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	_, err = r.Reduce(ctx, g, outside, source.Mean)
	assert.ErrorIs(t, err, source.ErrMissingData)
}

func TestCroplandKeepsNoData(t *testing.T) {
	lc := raster.NewGrid(3, 1, testTransform, "")
	lc.Data = []float64{40, 30, math.NaN()}
	crop := Cropland(lc, 40)
	assert.Equal(t, 1.0, crop.Data[0])
	assert.Equal(t, 0.0, crop.Data[1])
	assert.True(t, math.IsNaN(crop.Data[2]))
}
