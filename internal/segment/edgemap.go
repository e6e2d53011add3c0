package segment

import (
	"fmt"

	"github.com/ironsheep/tambak-detect/internal/raster"
)

// EdgeMap is the accumulated edge state of a segmentation run.
//
// An EdgeMap is a value: Union returns a new version and leaves the receiver
// untouched, so a round can only extend the state it was handed and earlier
// versions stay valid for inspection.
type EdgeMap struct {
	// Version counts the edge grids unioned in so far; 0 is the empty map.
	Version int
	mask    *raster.Mask
}

// NewEdgeMap returns an empty edge map aligned with like.
func NewEdgeMap(like *raster.Mask) EdgeMap {
	return EdgeMap{mask: raster.NewMask(like.Width, like.Height, like.Transform, like.CRS)}
}

// Union returns the next version with edges added.
func (e EdgeMap) Union(edges *raster.Mask) (EdgeMap, error) {
	m, err := e.mask.Or(edges)
	if err != nil {
		return EdgeMap{}, fmt.Errorf("union edges into version %d: %w", e.Version, err)
	}
	return EdgeMap{Version: e.Version + 1, mask: m}, nil
}

// Mask returns a copy of the accumulated edge pixels.
func (e EdgeMap) Mask() *raster.Mask {
	return e.mask.Clone()
}

// Count returns the number of edge pixels.
func (e EdgeMap) Count() int {
	return e.mask.Count()
}

// Contains reports whether every edge of o is also an edge of e.
func (e EdgeMap) Contains(o EdgeMap) bool {
	return e.mask.Contains(o.mask)
}

// Cut removes the accumulated edge pixels from seed.
func (e EdgeMap) Cut(seed *raster.Mask) (*raster.Mask, error) {
	return seed.AndNot(e.mask)
}
