package raster

import (
	"math"
)

// Offset is a relative pixel position inside a neighbourhood kernel.
type Offset struct {
	DX, DY int
}

// SquareKernel returns the offsets of a square kernel of the given radius in
// pixels. A pixel belongs to the kernel when its centre lies within radius of
// the kernel centre along both axes, so radii 1.5 and 2.5 give 3x3 and 5x5
// windows.
func SquareKernel(radius float64) []Offset {
	half := int(math.Floor(radius))
	if half < 0 {
		half = 0
	}
	offs := make([]Offset, 0, (2*half+1)*(2*half+1))
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			offs = append(offs, Offset{dx, dy})
		}
	}
	return offs
}

// CircleKernel returns the offsets whose centres lie within radius pixels of
// the kernel centre.
func CircleKernel(radius float64) []Offset {
	half := int(math.Floor(radius))
	if half < 0 {
		half = 0
	}
	r2 := radius * radius
	var offs []Offset
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			if float64(dx*dx+dy*dy) <= r2 {
				offs = append(offs, Offset{dx, dy})
			}
		}
	}
	if len(offs) == 0 {
		offs = append(offs, Offset{0, 0})
	}
	return offs
}

// Focal applies fn over the valid values in each pixel's neighbourhood.
//
// The neighbourhood is clipped at the grid border; NaN pixels are skipped.
// A pixel whose whole neighbourhood is NaN stays NaN.
func Focal(g *Grid, kernel []Offset, fn func(vals []float64) float64) *Grid {
	out := NewGrid(g.Width, g.Height, g.Transform, g.CRS)
	vals := make([]float64, 0, len(kernel))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			vals = vals[:0]
			for _, o := range kernel {
				c, r := col+o.DX, row+o.DY
				if c < 0 || r < 0 || c >= g.Width || r >= g.Height {
					continue
				}
				if v := g.Data[r*g.Width+c]; !math.IsNaN(v) {
					vals = append(vals, v)
				}
			}
			if len(vals) == 0 {
				out.Data[row*g.Width+col] = math.NaN()
				continue
			}
			out.Data[row*g.Width+col] = fn(vals)
		}
	}
	return out
}

// FocalMin replaces each pixel with the minimum over a square kernel of the
// given radius in pixels. It widens low-valued regions and sharpens the
// transition between water and its darker surroundings.
func FocalMin(g *Grid, radius float64) *Grid {
	return Focal(g, SquareKernel(radius), func(vals []float64) float64 {
		lo := vals[0]
		for _, v := range vals[1:] {
			if v < lo {
				lo = v
			}
		}
		return lo
	})
}

// FocalMedian is a circular median low-pass filter. radiusMetres is converted
// to pixels using the grid's scale.
func FocalMedian(g *Grid, radiusMetres float64) *Grid {
	r := radiusMetres / g.Transform.Scale()
	return Focal(g, CircleKernel(r), Median)
}
