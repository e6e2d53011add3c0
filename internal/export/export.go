// Package export persists the final pond collection as a vector file.
//
// An empty collection is not written and is reported as ErrNoOutput, so a
// caller can tell "nothing survived" apart from a failed write (*WriteError).
package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

// ErrNoOutput means there were no polygons to write. No file is created.
var ErrNoOutput = errors.New("no polygons to export")

// WriteError wraps a failure to create or write the output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Exporter writes candidates with the named attributes.
type Exporter interface {
	Export(ctx context.Context, path string, cands []pond.Candidate, attributes []string) error
}

// Format names an output format.
type Format string

const (
	FormatShapefile Format = "shp"
	FormatGeoJSON   Format = "geojson"
)

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FormatShapefile, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	}
	return "", fmt.Errorf("unsupported output extension %q (want .shp or .geojson)", filepath.Ext(path))
}

// New returns the exporter for a format.
func New(f Format) (Exporter, error) {
	switch f {
	case FormatShapefile:
		return Shapefile{}, nil
	case FormatGeoJSON:
		return GeoJSON{}, nil
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// Export writes cands to path in the format implied by its extension.
func Export(ctx context.Context, path string, cands []pond.Candidate, attributes []string) error {
	f, err := FormatForPath(path)
	if err != nil {
		return err
	}
	e, err := New(f)
	if err != nil {
		return err
	}
	return e.Export(ctx, path, cands, attributes)
}

// precheck runs the checks every exporter performs before touching the disk.
func precheck(cands []pond.Candidate, attributes []string) error {
	if err := pond.ValidateAttributes(attributes); err != nil {
		return err
	}
	if len(cands) == 0 {
		return ErrNoOutput
	}
	for _, c := range cands {
		if len(c.Geometry) == 0 || len(c.Geometry[0]) < 4 {
			return fmt.Errorf("candidate %s has no geometry", c.ID)
		}
	}
	return nil
}
