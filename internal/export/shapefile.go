package export

import (
	"context"
	"fmt"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

// dbfNames shortens attribute names that exceed the 10-character DBF limit.
var dbfNames = map[string]string{
	pond.AttrPerimeter:  "perim_m",
	pond.AttrMedianNDWI: "med_ndwi",
	pond.AttrMedianVV:   "med_vv",
}

// DBFName returns the column name used for an attribute in the .dbf file.
func DBFName(attr string) string {
	if n, ok := dbfNames[attr]; ok {
		return n
	}
	return attr
}

// Shapefile writes ESRI shapefiles (.shp, .shx, .dbf). The first column is
// the candidate id; the requested attributes follow as numeric columns.
// Missing values are left blank.
type Shapefile struct{}

func (Shapefile) Export(ctx context.Context, path string, cands []pond.Candidate, attributes []string) error {
	if err := precheck(cands, attributes); err != nil {
		return err
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer w.Close()

	fields := []shp.Field{shp.StringField("id", 24)}
	for _, a := range attributes {
		fields = append(fields, shp.FloatField(DBFName(a), 16, 4))
	}
	w.SetFields(fields)

	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := int(w.Write(shpPolygon(c.Geometry)))
		if err := w.WriteAttribute(row, 0, c.ID); err != nil {
			return &WriteError{Path: path, Err: fmt.Errorf("candidate %s: %w", c.ID, err)}
		}
		for i, a := range attributes {
			var val interface{} = ""
			if v, ok := c.Value(a); ok {
				val = v
			}
			if err := w.WriteAttribute(row, i+1, val); err != nil {
				return &WriteError{Path: path, Err: fmt.Errorf("candidate %s attribute %s: %w", c.ID, a, err)}
			}
		}
	}
	return nil
}

// shpPolygon converts to shapefile ring order: outer rings clockwise, holes
// counter-clockwise.
func shpPolygon(p orb.Polygon) *shp.Polygon {
	var parts []int32
	var points []shp.Point
	for i, ring := range p {
		r := ring.Clone()
		want := orb.CW
		if i > 0 {
			want = orb.CCW
		}
		if r.Orientation() != want {
			r.Reverse()
		}
		parts = append(parts, int32(len(points)))
		for _, pt := range r {
			points = append(points, shp.Point{X: pt[0], Y: pt[1]})
		}
	}
	b := p.Bound()
	return &shp.Polygon{
		Box:       shp.Box{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]},
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}
