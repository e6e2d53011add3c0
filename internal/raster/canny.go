package raster

import (
	"math"
)

// Canny performs Canny edge detection on a grid and returns the binary edge map.
//
// Parameters:
//   - g: Source grid, typically a water index in the range [-1, 1]. NaN pixels
//     never become edges.
//   - threshold: Gradient magnitude above which a pixel is a strong edge. Weak
//     edges (between threshold/2 and threshold) are kept only when connected
//     to a strong edge.
//   - sigma: Standard deviation of the Gaussian pre-smoothing, in pixels.
//
// Returns:
//   - *Mask: Edge pixels, aligned with g.
//
// # Algorithm
//
//  1. Gaussian blur: separable kernel of radius ceil(3*sigma), borders
//     replicated. NaN pixels are left out of the weighted sum.
//
//  2. Gradient computation: Sobel operators scaled by 1/8 so that the
//     magnitude is expressed in grid units per pixel.
//     magnitude = sqrt(Gx² + Gy²)
//     direction = atan2(Gy, Gx)
//
//  3. Non-maximum suppression: keep only local maxima along the gradient
//     direction, quantised to four orientations.
//
//  4. Hysteresis: strong pixels seed a flood over 8-connected weak pixels.
//
// A constant grid has zero gradient everywhere and yields no edges.
func Canny(g *Grid, threshold, sigma float64) *Mask {
	width, height := g.Width, g.Height
	edges := NewMask(width, height, g.Transform, g.CRS)
	if width < 3 || height < 3 {
		return edges
	}

	blurred := gaussianBlur(g, sigma)

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)
	at := func(x, y int) float64 {
		return blurred[clamp(y, 0, height-1)*width+clamp(x, 0, width-1)]
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := (-at(x-1, y-1) + at(x+1, y-1) - 2*at(x-1, y) + 2*at(x+1, y) - at(x-1, y+1) + at(x+1, y+1)) / 8
			gy := (-at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) / 8
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			if math.IsNaN(g.Data[i]) {
				continue
			}
			angle := direction[i]
			mag := magnitude[i]

			var n1, n2 float64
			if (angle >= -math.Pi/8 && angle < math.Pi/8) || (angle >= 7*math.Pi/8 || angle < -7*math.Pi/8) {
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			} else if (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8) {
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			} else if (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8) {
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			} else {
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			}

			if mag > 0 && mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}

	// Double threshold and edge tracking by hysteresis
	low := threshold / 2
	var stack []int
	for i, v := range suppressed {
		if v >= threshold {
			edges.Data[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if !edges.Data[j] && suppressed[j] >= low && suppressed[j] > 0 {
					edges.Data[j] = true
					stack = append(stack, j)
				}
			}
		}
	}

	return edges
}

// gaussianBlur smooths g with a separable Gaussian of the given sigma.
//
// The kernel radius is ceil(3*sigma) and the weights are normalised to sum to
// one. Border pixels use clamped (replicated) values. When NaN pixels fall in
// the window the remaining weights are renormalised; a window with no valid
// pixel produces 0.
func gaussianBlur(g *Grid, sigma float64) []float64 {
	width, height := g.Width, g.Height
	if sigma <= 0 {
		out := make([]float64, len(g.Data))
		for i, v := range g.Data {
			if !math.IsNaN(v) {
				out[i] = v
			}
		}
		return out
	}

	r := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		kernel[i+r] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
		sum += kernel[i+r]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	pass := func(src []float64, sample func(src []float64, x, y, k int) float64) []float64 {
		dst := make([]float64, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var acc, wsum float64
				skipped := false
				for k := -r; k <= r; k++ {
					v := sample(src, x, y, k)
					if math.IsNaN(v) {
						skipped = true
						continue
					}
					acc += v * kernel[k+r]
					wsum += kernel[k+r]
				}
				switch {
				case wsum == 0:
					acc = math.NaN()
				case skipped:
					acc /= wsum
				}
				dst[y*width+x] = acc
			}
		}
		return dst
	}

	horizontal := pass(g.Data, func(src []float64, x, y, k int) float64 {
		return src[y*width+clamp(x+k, 0, width-1)]
	})
	vertical := pass(horizontal, func(src []float64, x, y, k int) float64 {
		return src[clamp(y+k, 0, height-1)*width+x]
	})
	for i, v := range vertical {
		if math.IsNaN(v) {
			vertical[i] = 0
		}
	}
	return vertical
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
