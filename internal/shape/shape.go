// Package shape computes the geometric discriminants used to tell compact
// pond outlines from elongated or dendritic false positives.
//
// All measures are planar and assume polygons in a metric projection.
package shape

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Sentinel is assigned to LSI and RPOC when the geometry is degenerate. It is
// larger than any sensible threshold, so degenerate polygons always fail.
const Sentinel = 999.0

// Metrics are the shape measures of one polygon.
type Metrics struct {
	AreaM2         float64 `json:"area_m2"`
	PerimeterM     float64 `json:"perimeter_m"`
	HullPerimeterM float64 `json:"hull_perimeter_m"`
	LSI            float64 `json:"lsi"`
	RPOC           float64 `json:"rpoc"`
}

// Degenerate reports whether either ratio carries the sentinel.
func (m Metrics) Degenerate() bool {
	return m.LSI == Sentinel || m.RPOC == Sentinel
}

// Compute measures p. The perimeter includes hole boundaries; the convex hull
// is taken over the shell.
func Compute(p orb.Polygon) Metrics {
	var m Metrics
	if len(p) == 0 {
		m.LSI, m.RPOC = Sentinel, Sentinel
		return m
	}
	m.AreaM2 = math.Abs(planar.Area(p))
	for _, ring := range p {
		m.PerimeterM += planar.Length(ring)
	}
	m.HullPerimeterM = planar.Length(ConvexHull(p[0]))
	m.LSI = LSI(m.PerimeterM, m.AreaM2)
	m.RPOC = RPOC(m.PerimeterM, m.HullPerimeterM)
	return m
}

// LSI is the landscape shape index perimeter * 0.25 / sqrt(area). It is 1 for
// a square and grows with elongation and boundary irregularity.
func LSI(perimeter, area float64) float64 {
	if area <= 0 || perimeter <= 0 || math.IsNaN(area) || math.IsNaN(perimeter) {
		return Sentinel
	}
	return perimeter * 0.25 / math.Sqrt(area)
}

// RPOC is the ratio of the polygon perimeter to its convex hull perimeter.
func RPOC(perimeter, hullPerimeter float64) float64 {
	if hullPerimeter <= 0 || perimeter <= 0 || math.IsNaN(hullPerimeter) || math.IsNaN(perimeter) {
		return Sentinel
	}
	return perimeter / hullPerimeter
}

// Limits are the geometric acceptance thresholds.
type Limits struct {
	MaxLSI  float64 `json:"max_lsi"`
	MaxRPOC float64 `json:"max_rpoc"`
}

// Accept reports whether m satisfies LSI <= MaxLSI and RPOC <= MaxRPOC.
func (l Limits) Accept(m Metrics) bool {
	return m.LSI <= l.MaxLSI && m.RPOC <= l.MaxRPOC
}

// ConvexHull returns the convex hull of the points as a closed
// counter-clockwise ring, using Andrew's monotone chain. Collinear points on
// the hull boundary are dropped. Fewer than three distinct points yield a
// degenerate ring whose perimeter still measures their extent.
func ConvexHull(points []orb.Point) orb.Ring {
	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})
	uniq := pts[:0]
	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	if len(pts) < 3 {
		ring := orb.Ring(append([]orb.Point(nil), pts...))
		if len(pts) > 0 {
			ring = append(ring, pts[0])
		}
		return ring
	}

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}
	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// the last point repeats the first, closing the ring
	return orb.Ring(hull)
}
