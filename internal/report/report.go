// Package report draws the charts summarising a detection run: how many
// candidates each stage kept, and the area and LSI distributions of the
// final ponds.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ironsheep/tambak-detect/internal/pond"
)

// Chart file names written by Write.
const (
	FunnelFile = "funnel.png"
	AreaFile   = "area_hist.png"
	LSIFile    = "lsi_hist.png"
)

const defaultBins = 20

// Stage is one bar of the funnel chart.
type Stage struct {
	Name  string
	Count int
}

// Funnel builds a bar chart of candidate counts per stage, in stage order.
func Funnel(stages []Stage) (*plot.Plot, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stages to plot")
	}
	values := make(plotter.Values, len(stages))
	names := make([]string, len(stages))
	for i, s := range stages {
		values[i] = float64(s.Count)
		names[i] = s.Name
	}

	p := plot.New()
	p.Title.Text = "Candidates per stage"
	p.Y.Label.Text = "candidates"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return nil, fmt.Errorf("failed to build funnel bars: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 0x01, G: 0x66, B: 0x5e, A: 0xff}
	p.Add(bars)
	p.NominalX(names...)
	return p, nil
}

// Histogram builds a histogram of vals. bins <= 0 selects 20 bins.
func Histogram(title, xLabel string, vals []float64, bins int) (*plot.Plot, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("no values for %s histogram", title)
	}
	if bins <= 0 {
		bins = defaultBins
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "ponds"

	h, err := plotter.NewHist(plotter.Values(vals), bins)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s histogram: %w", title, err)
	}
	p.Add(h)
	return p, nil
}

// Write saves the funnel chart and, when ponds is non-empty, the area and
// LSI histograms into dir. It returns the paths written.
func Write(dir string, stages []Stage, ponds []pond.Candidate) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var written []string
	save := func(p *plot.Plot, name string) error {
		path := filepath.Join(dir, name)
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	funnel, err := Funnel(stages)
	if err != nil {
		return nil, err
	}
	if err := save(funnel, FunnelFile); err != nil {
		return written, err
	}
	if len(ponds) == 0 {
		return written, nil
	}

	areas := make([]float64, len(ponds))
	lsis := make([]float64, len(ponds))
	for i, c := range ponds {
		areas[i] = c.AreaM2
		lsis[i] = c.LSI
	}
	area, err := Histogram("Pond area", "area (m²)", areas, 0)
	if err != nil {
		return written, err
	}
	if err := save(area, AreaFile); err != nil {
		return written, err
	}
	lsi, err := Histogram("Landscape shape index", "LSI", lsis, 0)
	if err != nil {
		return written, err
	}
	if err := save(lsi, LSIFile); err != nil {
		return written, err
	}
	return written, nil
}
