package scene

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/source"
)

// Band names used by the detector.
const (
	BandGreen     = "green"
	BandRed       = "red"
	BandNIR       = "nir"
	BandVV        = "vv"
	BandLandCover = "landcover"
)

// clipSigma is the outlier clipping factor of the clipped-max composite.
const clipSigma = 2.0

// Scene is a loaded set of bands on a common pixel grid.
type Scene struct {
	Name      string
	Path      string
	CRS       string
	Transform raster.GeoTransform
	Width     int
	Height    int

	series map[string]*raster.Stack
	static map[string]*raster.Grid
}

func newScene(name, path string) *Scene {
	return &Scene{
		Name:   name,
		Path:   path,
		series: make(map[string]*raster.Stack),
		static: make(map[string]*raster.Grid),
	}
}

// addLayer registers one acquisition of a band, fixing the scene grid on the
// first call.
func (s *Scene) addLayer(band string, t time.Time, g *raster.Grid) error {
	if err := s.adopt(band, g); err != nil {
		return err
	}
	st, ok := s.series[band]
	if !ok {
		st = &raster.Stack{}
		s.series[band] = st
	}
	return st.Add(t, g)
}

func (s *Scene) addStatic(band string, g *raster.Grid) error {
	if err := s.adopt(band, g); err != nil {
		return err
	}
	s.static[band] = g
	return nil
}

func (s *Scene) adopt(band string, g *raster.Grid) error {
	if s.Width == 0 && s.Height == 0 {
		s.Width, s.Height, s.Transform = g.Width, g.Height, g.Transform
		if s.CRS == "" {
			s.CRS = g.CRS
		}
		return nil
	}
	if g.Width != s.Width || g.Height != s.Height || g.Transform != s.Transform {
		return fmt.Errorf("band %s grid %dx%d does not match scene grid %dx%d",
			band, g.Width, g.Height, s.Width, s.Height)
	}
	return nil
}

// sortSeries orders every band's layers by acquisition time.
func (s *Scene) sortSeries() {
	for _, st := range s.series {
		idx := make([]int, st.Len())
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return st.Times[idx[a]].Before(st.Times[idx[b]]) })
		sorted := &raster.Stack{}
		for _, i := range idx {
			sorted.Times = append(sorted.Times, st.Times[i])
			sorted.Layers = append(sorted.Layers, st.Layers[i])
		}
		*st = *sorted
	}
}

// Bands lists the available band names, sorted.
func (s *Scene) Bands() []string {
	var out []string
	for b := range s.series {
		out = append(out, b)
	}
	for b := range s.static {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// HasBand reports whether band is present, time series or static.
func (s *Scene) HasBand(band string) bool {
	_, ok := s.series[band]
	if !ok {
		_, ok = s.static[band]
	}
	return ok
}

// Bound returns the scene extent in world coordinates.
func (s *Scene) Bound() orb.Bound {
	g := raster.Grid{Width: s.Width, Height: s.Height, Transform: s.Transform}
	return g.Bound()
}

// BandStack returns the layers of band acquired in tr, clipped to aoi. A
// zero aoi selects the whole scene. A static band yields a one-layer stack
// regardless of tr.
func (s *Scene) BandStack(ctx context.Context, band string, tr source.TimeRange, aoi orb.Bound) (*raster.Stack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var st *raster.Stack
	if g, ok := s.static[band]; ok {
		st = &raster.Stack{Times: []time.Time{{}}, Layers: []*raster.Grid{g}}
	} else if series, ok := s.series[band]; ok {
		st = series
		if !tr.IsZero() {
			st = series.Between(tr.Start, tr.End)
		}
	} else {
		return nil, fmt.Errorf("band %q not in scene %s (have %v)", band, s.Name, s.Bands())
	}
	if st.Len() == 0 {
		return nil, fmt.Errorf("band %s in %s: %w", band, tr, source.ErrMissingData)
	}
	if aoi == (orb.Bound{}) {
		return st, nil
	}
	return st.Map(func(g *raster.Grid) (*raster.Grid, error) { return g.Clip(aoi) })
}

// BandGrid composites BandStack into one grid.
func (s *Scene) BandGrid(ctx context.Context, band string, tr source.TimeRange, aoi orb.Bound, c source.Composite) (*raster.Grid, error) {
	st, err := s.BandStack(ctx, band, tr, aoi)
	if err != nil {
		return nil, err
	}
	return Composite(st, c)
}

// Composite collapses a stack with the named reducer.
func Composite(st *raster.Stack, c source.Composite) (*raster.Grid, error) {
	switch c {
	case source.CompositeMedian, "":
		return st.Median()
	case source.CompositeMean:
		return st.Mean()
	case source.CompositeMax:
		return st.Max()
	case source.CompositeClippedMax:
		return st.ClippedMax(clipSigma)
	}
	return nil, fmt.Errorf("unknown composite %q", c)
}

// BandSummary describes one band for scene listings.
type BandSummary struct {
	Name   string   `json:"name"`
	Static bool     `json:"static"`
	Dates  []string `json:"dates,omitempty"`
}

// Info is a JSON-friendly description of a scene.
type Info struct {
	Name      string              `json:"name"`
	Path      string              `json:"path"`
	CRS       string              `json:"crs"`
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	Transform raster.GeoTransform `json:"transform"`
	Bound     [4]float64          `json:"bound"`
	Bands     []BandSummary       `json:"bands"`
}

// Info summarises the scene.
func (s *Scene) Info() Info {
	b := s.Bound()
	info := Info{
		Name:      s.Name,
		Path:      s.Path,
		CRS:       s.CRS,
		Width:     s.Width,
		Height:    s.Height,
		Transform: s.Transform,
		Bound:     [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
	}
	for _, name := range s.Bands() {
		sum := BandSummary{Name: name}
		if st, ok := s.series[name]; ok {
			for _, t := range st.Times {
				sum.Dates = append(sum.Dates, t.Format(time.DateOnly))
			}
		} else {
			sum.Static = true
		}
		info.Bands = append(info.Bands, sum)
	}
	return info
}

// Cropland converts a land-cover class grid to a 0/1 cropland indicator,
// keeping nodata as NaN. The mean of the indicator under a polygon is the
// cropland fraction.
func Cropland(landcover *raster.Grid, class int) *raster.Grid {
	return landcover.Map(func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		if v == float64(class) {
			return 1
		}
		return 0
	})
}
