package raster

import (
	"fmt"

	"github.com/theodesp/unionfind"
)

// Connectivity selects the pixel neighbourhood used to join pixels into regions.
type Connectivity int

const (
	// FourConnected joins pixels sharing an edge.
	FourConnected Connectivity = 4
	// EightConnected also joins pixels touching at a corner.
	EightConnected Connectivity = 8
)

// Validate rejects connectivities other than 4 and 8.
func (c Connectivity) Validate() error {
	if c != FourConnected && c != EightConnected {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", int(c))
	}
	return nil
}

// Labels is the result of connected-component labelling.
//
// Label 0 is background. Components are numbered 1..Count in raster order of
// their first (top-most, then left-most) pixel, which makes labelling
// deterministic for a given mask.
type Labels struct {
	Width  int
	Height int
	IDs    []int
	Sizes  []int // Sizes[id] is the pixel count of component id; Sizes[0] is unused
	Count  int
}

// Label runs two-pass connected-component labelling over m.
//
// The first pass assigns provisional labels from already visited neighbours
// (left and up, plus the two upper diagonals for 8-connectivity) and records
// label equivalences in a union-find forest. The second pass resolves every
// provisional label to its root and renumbers the roots densely.
func Label(m *Mask, conn Connectivity) *Labels {
	w, h := m.Width, m.Height
	provisional := make([]int, w*h)
	uf := unionfind.NewThreadSafeUnionFind(w*h/2 + 2)

	var back []Offset
	if conn == EightConnected {
		back = []Offset{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	} else {
		back = []Offset{{-1, 0}, {0, -1}}
	}

	next := 1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !m.Data[i] {
				continue
			}
			label := 0
			for _, o := range back {
				nx, ny := x+o.DX, y+o.DY
				if nx < 0 || ny < 0 || nx >= w {
					continue
				}
				nl := provisional[ny*w+nx]
				if nl == 0 {
					continue
				}
				if label == 0 {
					label = nl
				} else if nl != label {
					uf.Union(label, nl)
				}
			}
			if label == 0 {
				label = next
				next++
			}
			provisional[i] = label
		}
	}

	out := &Labels{Width: w, Height: h, IDs: make([]int, w*h), Sizes: []int{0}}
	dense := make(map[int]int)
	for i, p := range provisional {
		if p == 0 {
			continue
		}
		root := uf.Root(p)
		id, ok := dense[root]
		if !ok {
			out.Count++
			id = out.Count
			dense[root] = id
			out.Sizes = append(out.Sizes, 0)
		}
		out.IDs[i] = id
		out.Sizes[id]++
	}
	return out
}

// RemoveSmallComponents clears every component with fewer than minPixels pixels.
func RemoveSmallComponents(m *Mask, minPixels int, conn Connectivity) *Mask {
	out := m.Clone()
	if minPixels <= 1 {
		return out
	}
	labels := Label(m, conn)
	for i, id := range labels.IDs {
		if id != 0 && labels.Sizes[id] < minPixels {
			out.Data[i] = false
		}
	}
	return out
}
