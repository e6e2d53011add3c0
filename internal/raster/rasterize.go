package raster

import (
	"image"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// Cover returns the indices of the pixels of a width x height grid with
// transform t that are at least half covered by p.
//
// Only the pixel window spanned by the polygon's bound is rasterized, so the
// cost depends on the polygon size rather than the grid size. Holes must be
// wound opposite to the shell, which is the case for every polygon produced
// by Vectorize.
func Cover(p orb.Polygon, width, height int, t GeoTransform) []int {
	if len(p) == 0 || len(p[0]) < 4 {
		return nil
	}
	b := p.Bound()
	c0, r0 := t.ToPixel(b.Min[0], b.Max[1])
	c1, r1 := t.ToPixel(b.Max[0], b.Min[1])
	minC := clamp(int(math.Floor(math.Min(c0, c1))), 0, width)
	maxC := clamp(int(math.Ceil(math.Max(c0, c1))), 0, width)
	minR := clamp(int(math.Floor(math.Min(r0, r1))), 0, height)
	maxR := clamp(int(math.Ceil(math.Max(r0, r1))), 0, height)
	w, h := maxC-minC, maxR-minR
	if w <= 0 || h <= 0 {
		return nil
	}

	z := vector.NewRasterizer(w, h)
	for _, ring := range p {
		for i, pt := range ring {
			c, r := t.ToPixel(pt[0], pt[1])
			x, y := float32(c-float64(minC)), float32(r-float64(minR))
			if i == 0 {
				z.MoveTo(x, y)
			} else {
				z.LineTo(x, y)
			}
		}
		z.ClosePath()
	}
	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})

	var idx []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if dst.Pix[y*dst.Stride+x] >= 128 {
				idx = append(idx, (minR+y)*width+minC+x)
			}
		}
	}
	return idx
}

// Rasterize burns p into a new mask of the given shape.
func Rasterize(p orb.Polygon, width, height int, t GeoTransform, crs string) *Mask {
	m := NewMask(width, height, t, crs)
	for _, i := range Cover(p, width, height, t) {
		m.Data[i] = true
	}
	return m
}
