package export

import (
	"context"
	"encoding/json"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

// GeoJSON writes a FeatureCollection. Missing values are null.
type GeoJSON struct{}

func (GeoJSON) Export(ctx context.Context, path string, cands []pond.Candidate, attributes []string) error {
	if err := precheck(cands, attributes); err != nil {
		return err
	}
	fc, err := FeatureCollection(ctx, cands, attributes)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(fc, "", " ")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// FeatureCollection builds the GeoJSON features without writing them.
func FeatureCollection(ctx context.Context, cands []pond.Candidate, attributes []string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := geojson.NewFeature(c.Geometry)
		f.ID = c.ID
		f.Properties["id"] = c.ID
		for _, a := range attributes {
			if v, ok := c.Value(a); ok {
				f.Properties[a] = v
			} else {
				f.Properties[a] = nil
			}
		}
		fc.Append(f)
	}
	return fc, nil
}
