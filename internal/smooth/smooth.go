// Package smooth post-processes pond polygons.
//
// Vectorized ponds follow pixel edges and carry stair steps one pixel high.
// Smooth closes the outline (buffer out, then in, by the same margin), which
// removes notches narrower than twice the margin without moving straight
// edges, and then simplifies it. Buffer grows the result to compensate for
// the systematic underestimate of pond extent at mixed edge pixels.
//
// Buffers are computed on a fine raster: the polygon is burned into a grid
// of CellM cells, grown or shrunk with an exact Euclidean distance
// transform, and traced back to a polygon. Corners are therefore rounded,
// matching a round-join vector buffer to within one cell.
package smooth

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// ErrEmpty is returned when a negative buffer erodes the polygon away.
var ErrEmpty = errors.New("polygon vanished")

// maxCells bounds the working raster; larger polygons get coarser cells.
const maxCells = 16 << 20

// Options configures post-processing.
type Options struct {
	// MarginM is the closing distance. 0 disables closing.
	MarginM float64
	// SimplifyM is the Douglas-Peucker tolerance after closing. Diagonal
	// stair steps of the working raster are always removed.
	SimplifyM float64
	// FinalBufferM is the outward buffer applied last. 0 disables it.
	FinalBufferM float64
	// CellM is the working raster resolution.
	CellM float64
}

// DefaultOptions closes by 2 m, simplifies by 0.5 m and grows by 2 m.
func DefaultOptions() Options {
	return Options{MarginM: 2, SimplifyM: 0.5, FinalBufferM: 2, CellM: 0.5}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.CellM <= 0 {
		return fmt.Errorf("cell size must be positive, got %g", o.CellM)
	}
	if o.MarginM < 0 || o.SimplifyM < 0 || o.FinalBufferM < 0 {
		return fmt.Errorf("margin, simplify and final buffer must be >= 0 (got %g, %g, %g)",
			o.MarginM, o.SimplifyM, o.FinalBufferM)
	}
	return nil
}

// Process applies Smooth then the final buffer.
func Process(p orb.Polygon, opts Options) (orb.Polygon, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out, err := Smooth(p, opts)
	if err != nil {
		return nil, err
	}
	if opts.FinalBufferM > 0 {
		out, err = Buffer(out, opts.FinalBufferM, opts.CellM)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Smooth closes p by opts.MarginM and simplifies it.
func Smooth(p orb.Polygon, opts Options) (orb.Polygon, error) {
	if len(p) == 0 || len(p[0]) < 4 {
		return nil, ErrEmpty
	}
	out := p
	if opts.MarginM > 0 {
		w, err := newWorkspace(p, opts.MarginM, opts.CellM)
		if err != nil {
			return nil, err
		}
		r := opts.MarginM / w.cell
		w.mask = erode(dilate(w.mask, r), r)
		if out, err = w.trace(); err != nil {
			return nil, err
		}
	}
	return simplifyPolygon(out, math.Max(opts.SimplifyM, 0)), nil
}

// Buffer grows p by dist metres, or shrinks it when dist is negative. When
// shrinking splits the polygon, the largest piece is kept.
func Buffer(p orb.Polygon, dist, cell float64) (orb.Polygon, error) {
	if len(p) == 0 || len(p[0]) < 4 {
		return nil, ErrEmpty
	}
	if dist == 0 {
		return p, nil
	}
	w, err := newWorkspace(p, math.Abs(dist), cell)
	if err != nil {
		return nil, err
	}
	r := math.Abs(dist) / w.cell
	if dist > 0 {
		w.mask = dilate(w.mask, r)
	} else {
		w.mask = erode(w.mask, r)
	}
	return w.trace()
}

type workspace struct {
	cell float64
	mask *raster.Mask
}

func newWorkspace(p orb.Polygon, reach, cell float64) (*workspace, error) {
	if cell <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %g", cell)
	}
	b := p.Bound()
	for {
		pad := math.Ceil(reach/cell) + 3
		x0 := math.Floor(b.Min[0]/cell)*cell - pad*cell
		y1 := math.Ceil(b.Max[1]/cell)*cell + pad*cell
		w := int(math.Ceil((b.Max[0]-x0)/cell) + pad)
		h := int(math.Ceil((y1-b.Min[1])/cell) + pad)
		if w*h > maxCells {
			cell *= 2
			continue
		}
		t := raster.NorthUp(x0, y1, cell)
		return &workspace{cell: cell, mask: raster.Rasterize(p, w, h, t, "")}, nil
	}
}

// trace returns the outline of the largest component. One-cell diagonal
// stair steps are removed; runs along the grid axes and their corners stay.
func (w *workspace) trace() (orb.Polygon, error) {
	regions := raster.Vectorize(w.mask, raster.FourConnected)
	best := -1
	for i, r := range regions {
		if len(r.Polygon) > 0 && (best < 0 || r.Pixels > regions[best].Pixels) {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrEmpty
	}
	return simplifyPolygon(regions[best].Polygon, w.cell/2), nil
}

// simplifyPolygon runs Douglas-Peucker over every ring, each started at its
// lowest-leftmost vertex. Holes that collapse are dropped; a collapsing
// shell leaves the polygon unsimplified.
func simplifyPolygon(p orb.Polygon, tolerance float64) orb.Polygon {
	if tolerance <= 0 {
		return p
	}
	s := simplify.DouglasPeucker(tolerance)
	out := make(orb.Polygon, 0, len(p))
	for i, ring := range p {
		r := s.Ring(fromCorner(ring))
		if len(r) < 4 {
			if i == 0 {
				return p
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// fromCorner returns a copy of the closed ring r rotated to start at its
// lowest-leftmost vertex, which is always a convex corner. Douglas-Peucker
// never drops the first vertex, so anchoring there keeps it from splitting a
// straight run.
func fromCorner(r orb.Ring) orb.Ring {
	if len(r) < 4 || !r.Closed() {
		return r.Clone()
	}
	open := r[:len(r)-1]
	k := 0
	for i, pt := range open {
		if pt[0] < open[k][0] || (pt[0] == open[k][0] && pt[1] < open[k][1]) {
			k = i
		}
	}
	out := make(orb.Ring, 0, len(r))
	out = append(out, open[k:]...)
	out = append(out, open[:k]...)
	return append(out, out[0])
}

// dilate sets every pixel whose centre lies within r cells of a set pixel.
func dilate(m *raster.Mask, r float64) *raster.Mask {
	d := squaredDistance(m, true)
	out := raster.NewMask(m.Width, m.Height, m.Transform, m.CRS)
	r2 := r * r
	for i, v := range d {
		out.Data[i] = v <= r2+1e-9
	}
	return out
}

// erode keeps every set pixel farther than r cells from any unset pixel.
func erode(m *raster.Mask, r float64) *raster.Mask {
	d := squaredDistance(m, false)
	out := raster.NewMask(m.Width, m.Height, m.Transform, m.CRS)
	r2 := r * r
	for i, v := range d {
		out.Data[i] = m.Data[i] && v > r2+1e-9
	}
	return out
}

// far stands in for infinity; it keeps the parabola intersections finite.
const far = 1e20

// squaredDistance returns, per pixel, the squared distance in cells to the
// nearest pixel whose value equals target.
//
// # Algorithm
//
// Felzenszwalb and Huttenlocher's separable transform: a 1-D lower envelope
// of parabolas along every column, then along every row of the column
// result. Linear in the pixel count.
func squaredDistance(m *raster.Mask, target bool) []float64 {
	w, h := m.Width, m.Height
	n := w
	if h > n {
		n = h
	}
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	grid := make([]float64, w*h)
	for i, val := range m.Data {
		if val == target {
			grid[i] = 0
		} else {
			grid[i] = far
		}
	}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = grid[y*w+x]
		}
		envelope(f[:h], d[:h], v, z)
		for y := 0; y < h; y++ {
			grid[y*w+x] = d[y]
		}
	}
	for y := 0; y < h; y++ {
		copy(f[:w], grid[y*w:(y+1)*w])
		envelope(f[:w], d[:w], v, z)
		copy(grid[y*w:(y+1)*w], d[:w])
	}
	return grid
}

// envelope computes the 1-D squared distance transform of f into d.
func envelope(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

// intersect returns the abscissa where the parabolas rooted at q and p cross.
func intersect(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}
