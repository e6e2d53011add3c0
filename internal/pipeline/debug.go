package pipeline

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/quicklook"
	"github.com/ironsheep/tambak-detect/internal/segment"
)

// Quicklook file names written into Request.DebugDir.
const (
	NDWIQuicklook  = "ndwi.png"
	SeedQuicklook  = "seed.png"
	FinalQuicklook = "final.png"
)

// debugScale upsamples quicklooks so single pixels stay visible.
const debugScale = 4

// EdgeQuicklook names the edge map quicklook of one round.
func EdgeQuicklook(round int) string {
	return fmt.Sprintf("edges_r%d.png", round)
}

// debugWriter renders intermediate rasters. The zero dir disables it.
type debugWriter struct {
	dir     string
	in      *Inputs
	base    *image.NRGBA
	written []string
}

func newDebugWriter(dir string, in *Inputs) *debugWriter {
	return &debugWriter{dir: dir, in: in}
}

func (w *debugWriter) enabled() bool { return w.dir != "" }

// background renders the NDWI guide once and reuses it for every overlay.
func (w *debugWriter) background() *image.NRGBA {
	if w.base == nil {
		w.base = RenderNDWI(w.in)
	}
	return w.base
}

// RenderNDWI renders the NDWI guide with a 2-98% stretch.
func RenderNDWI(in *Inputs) *image.NRGBA {
	lo, hi := quicklook.Stretch(in.NDWI, 0.02, 0.98)
	return quicklook.RenderGrid(in.NDWI, quicklook.WaterRamp, lo, hi)
}

// RenderRound draws the accumulated edges of one round over base and
// outlines the polygons the round accepted.
func RenderRound(base *image.NRGBA, in *Inputs, rr segment.RoundResult) *image.NRGBA {
	edges := quicklook.RenderMask(rr.Edges.Mask(), quicklook.EdgeColor)
	img := quicklook.Overlay(base, edges)
	quicklook.DrawPolygons(img, in.NDWI.Transform, geometries(rr.Accepted), quicklook.OutlineColor)
	return img
}

func (w *debugWriter) save(name string, img image.Image) error {
	path := filepath.Join(w.dir, name)
	if err := quicklook.Save(path, img, debugScale); err != nil {
		return err
	}
	w.written = append(w.written, path)
	return nil
}

func (w *debugWriter) inputs() error {
	if !w.enabled() {
		return nil
	}
	if err := w.save(NDWIQuicklook, w.background()); err != nil {
		return err
	}
	seed := quicklook.RenderMask(w.in.Seed, quicklook.SeedColor)
	return w.save(SeedQuicklook, quicklook.Overlay(w.background(), seed))
}

func (w *debugWriter) round(rr segment.RoundResult) error {
	if !w.enabled() {
		return nil
	}
	return w.save(EdgeQuicklook(rr.Round), RenderRound(w.background(), w.in, rr))
}

func (w *debugWriter) final(cands []pond.Candidate) error {
	if !w.enabled() {
		return nil
	}
	img := quicklook.Overlay(w.background())
	quicklook.DrawPolygons(img, w.in.NDWI.Transform, geometries(cands), quicklook.OutlineColor)
	return w.save(FinalQuicklook, img)
}

func geometries(cands []pond.Candidate) []orb.Polygon {
	out := make([]orb.Polygon, len(cands))
	for i, c := range cands {
		out[i] = c.Geometry
	}
	return out
}
