package raster

import (
	"fmt"
	"math"
)

// Mask is a binary raster aligned to a Grid. It represents candidate water,
// edge membership, or any other per-pixel predicate.
type Mask struct {
	Width     int
	Height    int
	Data      []bool
	Transform GeoTransform
	CRS       string
}

// NewMask allocates an all-false mask.
func NewMask(width, height int, t GeoTransform, crs string) *Mask {
	return &Mask{
		Width:     width,
		Height:    height,
		Data:      make([]bool, width*height),
		Transform: t,
		CRS:       crs,
	}
}

// At reports membership of (col, row); pixels outside the mask are false.
func (m *Mask) At(col, row int) bool {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return false
	}
	return m.Data[row*m.Width+col]
}

// Set writes membership of (col, row).
func (m *Mask) Set(col, row int, v bool) {
	m.Data[row*m.Width+col] = v
}

// Clone returns a deep copy of m.
func (m *Mask) Clone() *Mask {
	out := &Mask{Width: m.Width, Height: m.Height, Transform: m.Transform, CRS: m.CRS}
	out.Data = append([]bool(nil), m.Data...)
	return out
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Aligned reports whether o has the same dimensions and transform as m.
func (m *Mask) Aligned(o *Mask) bool {
	return o != nil && m.Width == o.Width && m.Height == o.Height && m.Transform == o.Transform
}

// Or returns the pixel-wise union of two aligned masks.
func (m *Mask) Or(o *Mask) (*Mask, error) {
	return m.combine(o, func(a, b bool) bool { return a || b })
}

// And returns the pixel-wise intersection of two aligned masks.
func (m *Mask) And(o *Mask) (*Mask, error) {
	return m.combine(o, func(a, b bool) bool { return a && b })
}

// AndNot returns the pixels of m that are not set in o.
func (m *Mask) AndNot(o *Mask) (*Mask, error) {
	return m.combine(o, func(a, b bool) bool { return a && !b })
}

func (m *Mask) combine(o *Mask, fn func(a, b bool) bool) (*Mask, error) {
	if !m.Aligned(o) {
		return nil, fmt.Errorf("masks not aligned: %dx%d vs %dx%d", m.Width, m.Height, o.Width, o.Height)
	}
	out := NewMask(m.Width, m.Height, m.Transform, m.CRS)
	for i := range m.Data {
		out.Data[i] = fn(m.Data[i], o.Data[i])
	}
	return out, nil
}

// Contains reports whether every pixel set in o is also set in m.
func (m *Mask) Contains(o *Mask) bool {
	if !m.Aligned(o) {
		return false
	}
	for i, v := range o.Data {
		if v && !m.Data[i] {
			return false
		}
	}
	return true
}

// Grid converts the mask to a grid of 1 (set) and 0 (unset).
func (m *Mask) Grid() *Grid {
	g := NewGrid(m.Width, m.Height, m.Transform, m.CRS)
	for i, v := range m.Data {
		if v {
			g.Data[i] = 1
		}
	}
	return g
}

// Indicator converts the mask to a grid of 1 (set) and NaN (unset), the
// "self-masked" form used when a mask is sampled as a layer.
func (m *Mask) Indicator() *Grid {
	g := NewGrid(m.Width, m.Height, m.Transform, m.CRS)
	for i, v := range m.Data {
		if v {
			g.Data[i] = 1
		} else {
			g.Data[i] = math.NaN()
		}
	}
	return g
}
