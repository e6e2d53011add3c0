package scene

import (
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// Reserved variable names of a NetCDF cube.
const (
	varTime = "time"
	varX    = "x"
	varY    = "y"
)

// LoadNetCDF reads a band cube.
func LoadNetCDF(path string) (*Scene, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF %s: %w", path, err)
	}
	defer nc.Close()

	xs, err := floatVariable(nc, varX)
	if err != nil {
		return nil, err
	}
	ys, err := floatVariable(nc, varY)
	if err != nil {
		return nil, err
	}
	t, err := centresTransform(xs, ys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sc := newScene(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), path)
	if crs, ok := stringAttribute(nc.Attributes(), "crs"); ok {
		sc.CRS = crs
	}

	var times []time.Time
	if days, err := floatVariable(nc, varTime); err == nil {
		epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		for _, d := range days {
			times = append(times, epoch.Add(time.Duration(d*24*float64(time.Hour))))
		}
	}

	w, h := len(xs), len(ys)
	for _, name := range nc.ListVariables() {
		if name == varTime || name == varX || name == varY {
			continue
		}
		v, err := nc.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		enc := cfEncoding(v.Attributes)
		data, err := flatten(v.Values)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		switch len(v.Dimensions) {
		case 2:
			if len(data) != w*h {
				return nil, fmt.Errorf("variable %s has %d values, want %d", name, len(data), w*h)
			}
			if err := sc.addStatic(name, cubeLayer(data, w, h, enc, t, sc.CRS)); err != nil {
				return nil, err
			}
		case 3:
			if len(times) == 0 {
				return nil, fmt.Errorf("variable %s is time-dependent but the cube has no %s variable", name, varTime)
			}
			if len(data) != len(times)*w*h {
				return nil, fmt.Errorf("variable %s has %d values, want %d", name, len(data), len(times)*w*h)
			}
			for i, ti := range times {
				layer := cubeLayer(data[i*w*h:(i+1)*w*h], w, h, enc, t, sc.CRS)
				if err := sc.addLayer(name, ti, layer); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(sc.series) == 0 && len(sc.static) == 0 {
		return nil, fmt.Errorf("%s contains no [time][y][x] or [y][x] band variables", path)
	}
	sc.sortSeries()
	return sc, nil
}

func cubeLayer(data []float64, w, h int, enc BandEncoding, t raster.GeoTransform, crs string) *raster.Grid {
	g := raster.NewGrid(w, h, t, crs)
	for i, v := range data {
		if math.IsNaN(v) {
			g.Data[i] = v
			continue
		}
		g.Data[i] = enc.Decode(v)
	}
	return g
}

// centresTransform derives the transform from pixel-centre coordinates.
func centresTransform(xs, ys []float64) (raster.GeoTransform, error) {
	if len(xs) < 2 || len(ys) < 2 {
		return raster.GeoTransform{}, fmt.Errorf("need at least 2 x and y coordinates, got %d and %d", len(xs), len(ys))
	}
	pw := xs[1] - xs[0]
	ph := ys[1] - ys[0]
	if pw == 0 || ph == 0 {
		return raster.GeoTransform{}, fmt.Errorf("coordinate vectors are not strictly monotonic")
	}
	return raster.GeoTransform{
		OriginX:     xs[0] - pw/2,
		OriginY:     ys[0] - ph/2,
		PixelWidth:  pw,
		PixelHeight: ph,
	}, nil
}

func floatVariable(nc api.Group, name string) ([]float64, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return flatten(v.Values)
}

// cfEncoding reads the CF packing attributes of a variable.
func cfEncoding(attrs api.AttributeMap) BandEncoding {
	var enc BandEncoding
	if attrs == nil {
		return enc
	}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := toFloat(v); ok {
			enc.Scale = &f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := toFloat(v); ok {
			enc.Offset = f
		}
	}
	if v, ok := attrs.Get("_FillValue"); ok {
		if f, ok := toFloat(v); ok {
			enc.NoData = &f
		}
	}
	return enc
}

func stringAttribute(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// toFloat accepts a numeric scalar or a one-element numeric slice.
func toFloat(v interface{}) (float64, bool) {
	vals, err := flatten(v)
	if err != nil || len(vals) != 1 {
		return 0, false
	}
	return vals[0], true
}

// flatten converts a numeric scalar or (nested) slice to float64 values in
// row-major order.
func flatten(v interface{}) ([]float64, error) {
	var out []float64
	var walk func(rv reflect.Value) error
	walk = func(rv reflect.Value) error {
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, rv.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(rv.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(rv.Uint()))
		case reflect.Interface:
			return walk(rv.Elem())
		default:
			return fmt.Errorf("unsupported value type %s", rv.Type())
		}
		return nil
	}
	if v == nil {
		return nil, fmt.Errorf("no values")
	}
	if err := walk(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return out, nil
}
