package raster

import (
	"github.com/paulmach/orb"
)

// Region is one connected component of a mask traced into a polygon.
type Region struct {
	// ID is the component label (1-based, raster order of first pixel).
	ID int
	// Pixels is the component's pixel count.
	Pixels int
	// Polygon follows the pixel edges of the component in world coordinates.
	// The shell is counter-clockwise and holes are clockwise.
	Polygon orb.Polygon
}

// edge directions in pixel space (x right, y down)
const (
	dirEast = iota
	dirSouth
	dirWest
	dirNorth
)

var dirStep = [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// Vectorize traces every connected component of m into a polygon.
//
// Parameters:
//   - m: Binary mask; set pixels are foreground.
//   - conn: Pixel connectivity for both labelling and boundary following.
//
// Returns:
//   - []Region: One region per component, ordered by label.
//
// # Boundary Following
//
// Boundaries run along pixel edges, so the polygon area is exactly the pixel
// count times the pixel area. Each foreground pixel contributes the sides it
// does not share with a pixel of the same component, oriented so the
// component lies to the right when walking in pixel space. Rings are closed
// by following those directed sides. Where two pixels of a component touch
// only at a corner, 4-connectivity turns right and keeps them apart while
// 8-connectivity turns left and joins them. Intermediate collinear vertices
// are dropped.
func Vectorize(m *Mask, conn Connectivity) []Region {
	labels := Label(m, conn)
	if labels.Count == 0 {
		return nil
	}

	pixels := make([][]int, labels.Count+1)
	for i, id := range labels.IDs {
		if id != 0 {
			pixels[id] = append(pixels[id], i)
		}
	}

	regions := make([]Region, 0, labels.Count)
	for id := 1; id <= labels.Count; id++ {
		rings := traceComponent(labels, id, pixels[id], conn)
		regions = append(regions, Region{
			ID:      id,
			Pixels:  labels.Sizes[id],
			Polygon: toWorld(rings, m.Transform),
		})
	}
	return regions
}

// pixelRing is a closed ring of corner coordinates in pixel space, without the
// repeated closing vertex.
type pixelRing [][2]int

func traceComponent(labels *Labels, id int, pix []int, conn Connectivity) []pixelRing {
	w := labels.Width
	stride := w + 1
	same := func(x, y int) bool {
		if x < 0 || y < 0 || x >= labels.Width || y >= labels.Height {
			return false
		}
		return labels.IDs[y*w+x] == id
	}

	// out[v] holds a bit per direction for the boundary edges leaving vertex v.
	out := make(map[int]uint8)
	type start struct{ v, d int }
	var starts []start
	addEdge := func(vx, vy, d int) {
		v := vy*stride + vx
		out[v] |= 1 << d
		starts = append(starts, start{v, d})
	}
	for _, i := range pix {
		x, y := i%w, i/w
		if !same(x, y-1) {
			addEdge(x, y, dirEast)
		}
		if !same(x+1, y) {
			addEdge(x+1, y, dirSouth)
		}
		if !same(x, y+1) {
			addEdge(x+1, y+1, dirWest)
		}
		if !same(x-1, y) {
			addEdge(x, y+1, dirNorth)
		}
	}

	var prefer [3]int // turn offsets added to the incoming direction
	if conn == EightConnected {
		prefer = [3]int{3, 0, 1} // left, straight, right
	} else {
		prefer = [3]int{1, 0, 3} // right, straight, left
	}

	visited := make(map[int]uint8)
	var rings []pixelRing
	for _, s := range starts {
		if visited[s.v]&(1<<s.d) != 0 {
			continue
		}
		var dirs []int
		var verts [][2]int
		v, d := s.v, s.d
		for {
			visited[v] |= 1 << d
			verts = append(verts, [2]int{v % stride, v / stride})
			dirs = append(dirs, d)
			nx := v%stride + dirStep[d][0]
			ny := v/stride + dirStep[d][1]
			v = ny*stride + nx
			bits := out[v]
			next := -1
			for _, turn := range prefer {
				c := (d + turn) % 4
				if bits&(1<<c) != 0 {
					next = c
					break
				}
			}
			if next < 0 {
				break // open chain; cannot happen for a well-formed component
			}
			d = next
			if v == s.v && d == s.d {
				break
			}
		}
		rings = append(rings, dropCollinear(verts, dirs))
	}
	return rings
}

// dropCollinear keeps only the vertices where the walking direction changes.
func dropCollinear(verts [][2]int, dirs []int) pixelRing {
	n := len(verts)
	ring := make(pixelRing, 0, n)
	for i := 0; i < n; i++ {
		prev := dirs[(i+n-1)%n]
		if dirs[i] != prev {
			ring = append(ring, verts[i])
		}
	}
	return ring
}

// shoelace returns twice the signed area of a pixel-space ring. Positive
// values mean clockwise on screen (y down), the orientation of outer boundaries.
func (r pixelRing) shoelace() int {
	sum := 0
	for i := range r {
		j := (i + 1) % len(r)
		sum += r[i][0]*r[j][1] - r[j][0]*r[i][1]
	}
	return sum
}

func toWorld(rings []pixelRing, t GeoTransform) orb.Polygon {
	shell := -1
	for i, r := range rings {
		if a := r.shoelace(); a > 0 && (shell < 0 || a > rings[shell].shoelace()) {
			shell = i
		}
	}
	if shell < 0 {
		return nil
	}

	convert := func(r pixelRing, orientation orb.Orientation) orb.Ring {
		ring := make(orb.Ring, 0, len(r)+1)
		for _, p := range r {
			x, y := t.ToWorld(float64(p[0]), float64(p[1]))
			ring = append(ring, orb.Point{x, y})
		}
		ring = append(ring, ring[0])
		if ring.Orientation() != orientation {
			ring.Reverse()
		}
		return ring
	}

	poly := orb.Polygon{convert(rings[shell], orb.CCW)}
	for i, r := range rings {
		if i == shell || r.shoelace() >= 0 {
			continue
		}
		poly = append(poly, convert(r, orb.CW))
	}
	return poly
}
