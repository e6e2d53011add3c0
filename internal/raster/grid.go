package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform maps pixel corner coordinates to projected (metric) coordinates.
//
// Pixel (col, row) has its top-left corner at
//
//	X = OriginX + col*PixelWidth
//	Y = OriginY + row*PixelHeight
//
// PixelHeight is negative for the usual north-up rasters.
type GeoTransform struct {
	OriginX     float64 `json:"origin_x"`
	OriginY     float64 `json:"origin_y"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// NorthUp returns a north-up transform with square pixels of the given size.
func NorthUp(originX, originY, pixelSize float64) GeoTransform {
	return GeoTransform{OriginX: originX, OriginY: originY, PixelWidth: pixelSize, PixelHeight: -pixelSize}
}

// ToWorld converts fractional pixel coordinates to world coordinates.
func (t GeoTransform) ToWorld(col, row float64) (x, y float64) {
	return t.OriginX + col*t.PixelWidth, t.OriginY + row*t.PixelHeight
}

// ToPixel converts world coordinates to fractional pixel coordinates.
func (t GeoTransform) ToPixel(x, y float64) (col, row float64) {
	return (x - t.OriginX) / t.PixelWidth, (y - t.OriginY) / t.PixelHeight
}

// Scale is the nominal pixel size in metres.
func (t GeoTransform) Scale() float64 {
	return math.Abs(t.PixelWidth)
}

// PixelArea is the area of one pixel in square metres.
func (t GeoTransform) PixelArea() float64 {
	return math.Abs(t.PixelWidth * t.PixelHeight)
}

// Shift returns the transform of a window whose top-left pixel is (col, row).
func (t GeoTransform) Shift(col, row int) GeoTransform {
	x, y := t.ToWorld(float64(col), float64(row))
	return GeoTransform{OriginX: x, OriginY: y, PixelWidth: t.PixelWidth, PixelHeight: t.PixelHeight}
}

// Grid is a single band of georeferenced pixel values stored row-major.
//
// NaN marks nodata (masked) pixels. A Grid is treated as immutable once it has
// been returned from a processing function: every operation in this package
// allocates a new Grid for its result.
type Grid struct {
	Width     int
	Height    int
	Data      []float64
	Transform GeoTransform
	CRS       string
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int, t GeoTransform, crs string) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		Data:      make([]float64, width*height),
		Transform: t,
		CRS:       crs,
	}
}

// NewGridFilled allocates a grid with every pixel set to v.
func NewGridFilled(width, height int, t GeoTransform, crs string, v float64) *Grid {
	g := NewGrid(width, height, t, crs)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// Index returns the offset of (col, row) in Data.
func (g *Grid) Index(col, row int) int {
	return row*g.Width + col
}

// At returns the value at (col, row), or NaN outside the grid.
func (g *Grid) At(col, row int) float64 {
	if col < 0 || row < 0 || col >= g.Width || row >= g.Height {
		return math.NaN()
	}
	return g.Data[row*g.Width+col]
}

// Set writes v at (col, row). Only producers call Set, before publishing the grid.
func (g *Grid) Set(col, row int, v float64) {
	g.Data[row*g.Width+col] = v
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	out := &Grid{Width: g.Width, Height: g.Height, Transform: g.Transform, CRS: g.CRS}
	out.Data = append([]float64(nil), g.Data...)
	return out
}

// Aligned reports whether o has the same dimensions and transform as g.
func (g *Grid) Aligned(o *Grid) bool {
	return o != nil && g.Width == o.Width && g.Height == o.Height && g.Transform == o.Transform
}

// Map applies fn to every pixel and returns the result as a new grid.
func (g *Grid) Map(fn func(v float64) float64) *Grid {
	out := NewGrid(g.Width, g.Height, g.Transform, g.CRS)
	for i, v := range g.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Combine applies fn pixel-wise over two aligned grids.
func Combine(a, b *Grid, fn func(x, y float64) float64) (*Grid, error) {
	if !a.Aligned(b) {
		return nil, fmt.Errorf("grids not aligned: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	out := NewGrid(a.Width, a.Height, a.Transform, a.CRS)
	for i := range a.Data {
		out.Data[i] = fn(a.Data[i], b.Data[i])
	}
	return out, nil
}

// Bound returns the world-coordinate extent of the grid.
func (g *Grid) Bound() orb.Bound {
	x0, y0 := g.Transform.ToWorld(0, 0)
	x1, y1 := g.Transform.ToWorld(float64(g.Width), float64(g.Height))
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// Window returns the pixel rectangle of g covered by the world bound b,
// clamped to the grid. ok is false when b does not intersect the grid.
func (g *Grid) Window(b orb.Bound) (col0, row0, width, height int, ok bool) {
	c0, r0 := g.Transform.ToPixel(b.Min[0], b.Max[1])
	c1, r1 := g.Transform.ToPixel(b.Max[0], b.Min[1])
	minC := int(math.Floor(math.Min(c0, c1)))
	maxC := int(math.Ceil(math.Max(c0, c1)))
	minR := int(math.Floor(math.Min(r0, r1)))
	maxR := int(math.Ceil(math.Max(r0, r1)))
	if minC < 0 {
		minC = 0
	}
	if minR < 0 {
		minR = 0
	}
	if maxC > g.Width {
		maxC = g.Width
	}
	if maxR > g.Height {
		maxR = g.Height
	}
	if minC >= maxC || minR >= maxR {
		return 0, 0, 0, 0, false
	}
	return minC, minR, maxC - minC, maxR - minR, true
}

// Clip returns the sub-grid covering the world bound b.
func (g *Grid) Clip(b orb.Bound) (*Grid, error) {
	col0, row0, w, h, ok := g.Window(b)
	if !ok {
		return nil, fmt.Errorf("bound %v does not intersect grid extent %v", b, g.Bound())
	}
	out := NewGrid(w, h, g.Transform.Shift(col0, row0), g.CRS)
	for r := 0; r < h; r++ {
		copy(out.Data[r*w:(r+1)*w], g.Data[(row0+r)*g.Width+col0:(row0+r)*g.Width+col0+w])
	}
	return out, nil
}

// ValidCount returns the number of non-NaN pixels.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// MinMax returns the smallest and largest valid values. Both are NaN when the
// grid has no valid pixel.
func (g *Grid) MinMax() (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	return lo, hi
}

// GreaterEqual returns the mask of pixels with value >= t. NaN pixels are excluded.
func (g *Grid) GreaterEqual(t float64) *Mask {
	return g.threshold(func(v float64) bool { return v >= t })
}

// Greater returns the mask of pixels with value > t.
func (g *Grid) Greater(t float64) *Mask {
	return g.threshold(func(v float64) bool { return v > t })
}

// Less returns the mask of pixels with value < t.
func (g *Grid) Less(t float64) *Mask {
	return g.threshold(func(v float64) bool { return v < t })
}

// Equal returns the mask of pixels whose value equals t.
func (g *Grid) Equal(t float64) *Mask {
	return g.threshold(func(v float64) bool { return v == t })
}

func (g *Grid) threshold(pred func(v float64) bool) *Mask {
	m := NewMask(g.Width, g.Height, g.Transform, g.CRS)
	for i, v := range g.Data {
		m.Data[i] = !math.IsNaN(v) && pred(v)
	}
	return m
}
