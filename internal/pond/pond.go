// Package pond defines the per-candidate attribute record that flows through
// the filtering stages.
//
// Attributes are fixed fields rather than a dynamic property bag. Values that
// are only known after a given stage has run are pointers: nil means the stage
// has not produced the value (or the collaborator reported no data), which is
// distinct from a measured zero.
package pond

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/ironsheep/tambak-detect/internal/shape"
)

// Candidate is one polygon under evaluation.
type Candidate struct {
	// ID is unique within a run, formatted "r<round>-<seq>".
	ID string `json:"id"`
	// Round is the segmentation round that produced the polygon (1-based).
	Round int `json:"round"`
	// Geometry is in the scene's metric projection.
	Geometry orb.Polygon `json:"-"`

	shape.Metrics

	DryVV         *float64 `json:"dry_vv,omitempty"`
	MedianNDWI    *float64 `json:"median_ndwi,omitempty"`
	MedianVV      *float64 `json:"median_vv,omitempty"`
	CropFraction  *float64 `json:"crop_fraction,omitempty"`
	NeighborCount *int     `json:"neighbor_count,omitempty"`
}

// Error attributes a failure to one candidate.
type Error struct {
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("candidate %s: %v", e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewCandidate measures geometry and returns a candidate for the given round.
func NewCandidate(round, seq int, geometry orb.Polygon) Candidate {
	return Candidate{
		ID:       FormatID(round, seq),
		Round:    round,
		Geometry: geometry,
		Metrics:  shape.Compute(geometry),
	}
}

// FormatID builds a candidate identifier.
func FormatID(round, seq int) string {
	return fmt.Sprintf("r%d-%d", round, seq)
}

// Remeasure replaces the geometry and recomputes the shape metrics, keeping
// every sampled attribute.
func (c Candidate) Remeasure(geometry orb.Polygon) Candidate {
	c.Geometry = geometry
	c.Metrics = shape.Compute(geometry)
	return c
}

// Footprint is a canonical text form of the geometry, used to detect the same
// polygon emitted by several rounds.
func (c Candidate) Footprint() string {
	return wkt.MarshalString(c.Geometry)
}

// WKT returns the geometry as well-known text.
func (c Candidate) WKT() string {
	return wkt.MarshalString(c.Geometry)
}

// ParsePolygon reads a POLYGON, or a MULTIPOLYGON holding exactly one
// polygon, from well-known text.
func ParsePolygon(text string) (orb.Polygon, error) {
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("invalid WKT: %w", err)
	}
	switch v := g.(type) {
	case orb.Polygon:
		return v, nil
	case orb.MultiPolygon:
		if len(v) == 1 {
			return v[0], nil
		}
		return nil, fmt.Errorf("multipolygon has %d parts, want 1", len(v))
	}
	return nil, fmt.Errorf("WKT is a %s, want a polygon", g.GeoJSONType())
}

// Attribute names accepted by Value and by the exporters.
const (
	AttrArea          = "area_m2"
	AttrPerimeter     = "perimeter_m"
	AttrLSI           = "LSI"
	AttrRPOC          = "RPOC"
	AttrDryVV         = "dry_vv"
	AttrMedianNDWI    = "median_ndwi"
	AttrMedianVV      = "median_vv"
	AttrCropFraction  = "crop_pct"
	AttrNeighborCount = "near_num"
	AttrRound         = "round"
)

var attributeNames = []string{
	AttrArea, AttrPerimeter, AttrLSI, AttrRPOC, AttrDryVV,
	AttrMedianNDWI, AttrMedianVV, AttrCropFraction, AttrNeighborCount, AttrRound,
}

// AttributeNames lists every exportable attribute in canonical order.
func AttributeNames() []string {
	return append([]string(nil), attributeNames...)
}

// ValidateAttributes rejects names that are not candidate attributes.
func ValidateAttributes(names []string) error {
	known := make(map[string]bool, len(attributeNames))
	for _, n := range attributeNames {
		known[n] = true
	}
	var unknown []string
	for _, n := range names {
		if !known[n] {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown attributes %v (known: %v)", unknown, attributeNames)
	}
	return nil
}

// Value returns the named attribute. ok is false when the attribute is unknown
// or has not been populated.
func (c Candidate) Value(name string) (v float64, ok bool) {
	deref := func(p *float64) (float64, bool) {
		if p == nil {
			return 0, false
		}
		return *p, true
	}
	switch name {
	case AttrArea:
		return c.AreaM2, true
	case AttrPerimeter:
		return c.PerimeterM, true
	case AttrLSI:
		return c.LSI, true
	case AttrRPOC:
		return c.RPOC, true
	case AttrDryVV:
		return deref(c.DryVV)
	case AttrMedianNDWI:
		return deref(c.MedianNDWI)
	case AttrMedianVV:
		return deref(c.MedianVV)
	case AttrCropFraction:
		return deref(c.CropFraction)
	case AttrNeighborCount:
		if c.NeighborCount == nil {
			return 0, false
		}
		return float64(*c.NeighborCount), true
	case AttrRound:
		return float64(c.Round), true
	}
	return 0, false
}

// Float returns a pointer to v, for populating optional attributes.
func Float(v float64) *float64 {
	return &v
}

// Dedupe drops candidates whose footprint equals an earlier candidate's,
// keeping the first occurrence and the input order.
func Dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]bool, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		key := c.Footprint()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
