package quicklook

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// Ramp is a sequence of color stops spread evenly over [0, 1].
type Ramp []colorful.Color

// Built-in ramps.
var (
	// WaterRamp runs from dry (brown) to wet (teal), for NDWI.
	WaterRamp = MustRamp("#8c510a", "#d8b365", "#f6e8c3", "#c7eae5", "#5ab4ac", "#01665e")
	// GrayRamp is a linear black to white ramp, for backscatter.
	GrayRamp = MustRamp("#000000", "#ffffff")
	// HeatRamp is used for edge strength and counts.
	HeatRamp = MustRamp("#000004", "#781c6d", "#ed6925", "#fcffa4")
)

// Named colors used for masks and outlines.
var (
	SeedColor    = color.NRGBA{R: 0x1f, G: 0x78, B: 0xb4, A: 0xc0}
	EdgeColor    = color.NRGBA{R: 0xe3, G: 0x1a, B: 0x1c, A: 0xff}
	OutlineColor = color.NRGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}
)

// NewRamp parses hex color stops ("#RRGGBB"). At least two are required.
func NewRamp(hexes ...string) (Ramp, error) {
	if len(hexes) < 2 {
		return nil, fmt.Errorf("a ramp needs at least 2 colors, got %d", len(hexes))
	}
	r := make(Ramp, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("ramp stop %d: %w", i, err)
		}
		r[i] = c
	}
	return r, nil
}

// MustRamp is NewRamp for package-level ramps.
func MustRamp(hexes ...string) Ramp {
	r, err := NewRamp(hexes...)
	if err != nil {
		panic(err)
	}
	return r
}

// RampByName resolves "water", "gray" or "heat".
func RampByName(name string) (Ramp, error) {
	switch name {
	case "", "water":
		return WaterRamp, nil
	case "gray", "grey":
		return GrayRamp, nil
	case "heat":
		return HeatRamp, nil
	}
	return nil, fmt.Errorf("unknown ramp %q (valid: water, gray, heat)", name)
}

// At returns the color at position t, clamped to [0, 1].
func (r Ramp) At(t float64) colorful.Color {
	if math.IsNaN(t) || t <= 0 {
		return r[0]
	}
	if t >= 1 {
		return r[len(r)-1]
	}
	pos := t * float64(len(r)-1)
	i := int(pos)
	return r[i].BlendLab(r[i+1], pos-float64(i)).Clamped()
}

// Stretch returns the lo and hi percentiles (0..1) of the valid pixels of g,
// suitable as the value range of RenderGrid. Both are NaN for an empty grid.
func Stretch(g *raster.Grid, lo, hi float64) (float64, float64) {
	vals := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(vals)
	return stat.Quantile(lo, stat.Empirical, vals, nil), stat.Quantile(hi, stat.Empirical, vals, nil)
}

// RenderGrid maps each pixel value linearly from [lo, hi] onto the ramp.
// NaN pixels are transparent. If lo >= hi every valid pixel takes the first
// ramp color.
func RenderGrid(g *raster.Grid, ramp Ramp, lo, hi float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	span := hi - lo
	for i, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		t := 0.0
		if span > 0 {
			t = (v - lo) / span
		}
		r, gg, b := ramp.At(t).RGB255()
		o := (i/g.Width)*img.Stride + (i%g.Width)*4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, gg, b, 0xff
	}
	return img
}

// RenderMask paints set pixels with c and leaves the rest transparent.
func RenderMask(m *raster.Mask, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	for i, set := range m.Data {
		if !set {
			continue
		}
		o := (i/m.Width)*img.Stride + (i%m.Width)*4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = nc.R, nc.G, nc.B, nc.A
	}
	return img
}

// Overlay composites layers over base in order. Layers must not be larger
// than base; they are anchored at the top-left corner.
func Overlay(base image.Image, layers ...image.Image) *image.NRGBA {
	b := base.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), base, b.Min, draw.Src)
	for _, l := range layers {
		draw.Draw(out, out.Bounds(), l, l.Bounds().Min, draw.Over)
	}
	return out
}

// DrawPolygons outlines every ring of polys on img, mapping world
// coordinates to pixels through t.
func DrawPolygons(img *image.NRGBA, t raster.GeoTransform, polys []orb.Polygon, c color.Color) {
	for _, p := range polys {
		for _, ring := range p {
			for i := 1; i < len(ring); i++ {
				x0, y0 := t.ToPixel(ring[i-1][0], ring[i-1][1])
				x1, y1 := t.ToPixel(ring[i][0], ring[i][1])
				drawLine(img, int(math.Floor(x0)), int(math.Floor(y0)), int(math.Floor(x1)), int(math.Floor(y1)), c)
			}
		}
	}
}

// drawLine is Bresenham's algorithm, clipped to the image bounds.
func drawLine(img *image.NRGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	bounds := img.Bounds()
	errAcc := dx + dy
	for {
		if image.Pt(x0, y0).In(bounds) {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x0 += sx
		}
		if e2 <= dx {
			errAcc += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
