package raster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stack is a time series of aligned grids, one per acquisition.
type Stack struct {
	Times  []time.Time
	Layers []*Grid
}

// Add appends a layer acquired at t. Layers must share the first layer's
// dimensions and transform.
func (s *Stack) Add(t time.Time, g *Grid) error {
	if len(s.Layers) > 0 && !s.Layers[0].Aligned(g) {
		return fmt.Errorf("layer %s not aligned with stack", t.Format(time.DateOnly))
	}
	s.Times = append(s.Times, t)
	s.Layers = append(s.Layers, g)
	return nil
}

// Len returns the number of layers.
func (s *Stack) Len() int {
	return len(s.Layers)
}

// Between returns the layers acquired in [start, end). A zero end means no
// upper limit.
func (s *Stack) Between(start, end time.Time) *Stack {
	out := &Stack{}
	for i, t := range s.Times {
		if t.Before(start) {
			continue
		}
		if !end.IsZero() && !t.Before(end) {
			continue
		}
		out.Times = append(out.Times, t)
		out.Layers = append(out.Layers, s.Layers[i])
	}
	return out
}

// Map applies fn to every layer, keeping acquisition times.
func (s *Stack) Map(fn func(g *Grid) (*Grid, error)) (*Stack, error) {
	out := &Stack{Times: append([]time.Time(nil), s.Times...)}
	for i, g := range s.Layers {
		m, err := fn(g)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		out.Layers = append(out.Layers, m)
	}
	return out, nil
}

// Reduce collapses the stack pixel by pixel. fn receives the valid (non-NaN)
// values of one pixel in acquisition order and is never called with an empty
// slice; pixels without any valid value become NaN.
func (s *Stack) Reduce(fn func(vals []float64) float64) (*Grid, error) {
	if len(s.Layers) == 0 {
		return nil, fmt.Errorf("empty stack")
	}
	first := s.Layers[0]
	out := NewGrid(first.Width, first.Height, first.Transform, first.CRS)
	vals := make([]float64, 0, len(s.Layers))
	for i := range out.Data {
		vals = vals[:0]
		for _, g := range s.Layers {
			if v := g.Data[i]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			out.Data[i] = math.NaN()
			continue
		}
		out.Data[i] = fn(vals)
	}
	return out, nil
}

// Median returns the per-pixel temporal median.
func (s *Stack) Median() (*Grid, error) {
	return s.Reduce(Median)
}

// Mean returns the per-pixel temporal mean.
func (s *Stack) Mean() (*Grid, error) {
	return s.Reduce(func(vals []float64) float64 { return stat.Mean(vals, nil) })
}

// Max returns the per-pixel temporal maximum.
func (s *Stack) Max() (*Grid, error) {
	return s.Reduce(floats.Max)
}

// StdDev returns the per-pixel population standard deviation.
func (s *Stack) StdDev() (*Grid, error) {
	return s.Reduce(func(vals []float64) float64 {
		_, std := stat.PopMeanStdDev(vals, nil)
		return std
	})
}

// ClippedMax returns the per-pixel maximum, clipped to mean + k*stddev of the
// same pixel's series.
func (s *Stack) ClippedMax(k float64) (*Grid, error) {
	return s.Reduce(func(vals []float64) float64 {
		mean, std := stat.PopMeanStdDev(vals, nil)
		upper := mean + k*std
		if hi := floats.Max(vals); hi <= upper {
			return hi
		}
		return upper
	})
}

// Median returns the median of vals. For an even count it returns the lower
// of the two middle values. vals is sorted in place.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}
