// Package pipeline runs a complete detection: it loads the scene bands,
// builds the seed mask, segments it, filters the candidates stage by stage
// and exports the survivors.
//
// Stages run strictly in sequence and each one consumes the complete output
// of its predecessor. The context is checked between stages and between
// segmentation rounds; a cancelled run returns the context error wrapped in a
// StageError naming the stage that was about to start.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/ironsheep/tambak-detect/internal/config"
	"github.com/ironsheep/tambak-detect/internal/export"
	"github.com/ironsheep/tambak-detect/internal/inventory"
	"github.com/ironsheep/tambak-detect/internal/logger"
	"github.com/ironsheep/tambak-detect/internal/neighbor"
	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/report"
	"github.com/ironsheep/tambak-detect/internal/segment"
	"github.com/ironsheep/tambak-detect/internal/smooth"
	"github.com/ironsheep/tambak-detect/internal/source"
	"github.com/ironsheep/tambak-detect/internal/validate"
)

// Request describes one run.
type Request struct {
	// Config is the run configuration; nil selects the default preset.
	Config *config.Config
	// Scene names the input, recorded in the inventory.
	Scene string
	// Output is the export path (.shp or .geojson). Empty skips the export.
	Output string
	// DebugDir receives quicklook PNGs when set.
	DebugDir string
	// ReportDir receives the stage charts when set.
	ReportDir string
}

// StageStat records the candidate counts of one stage.
type StageStat struct {
	Stage    string        `json:"stage"`
	Input    int           `json:"input"`
	Output   int           `json:"output"`
	Duration time.Duration `json:"duration_ns"`
}

// RoundStat summarises one segmentation round.
type RoundStat struct {
	Round      int     `json:"round"`
	Radius     float64 `json:"radius"`
	EdgePixels int     `json:"edge_pixels"`
	Traced     int     `json:"traced"`
	Accepted   int     `json:"accepted"`
}

// Result is the outcome of a run.
type Result struct {
	RunID string `json:"run_id,omitempty"`
	// Ponds are the exported candidates in output order.
	Ponds  []pond.Candidate `json:"ponds"`
	Stages []StageStat      `json:"stages"`
	Rounds []RoundStat      `json:"rounds"`
	// Rejections counts dropped candidates by reason.
	Rejections map[string]int `json:"rejections"`
	SeedPixels int            `json:"seed_pixels"`
	// Output is the written file; empty when nothing was exported.
	Output string `json:"output,omitempty"`
	// NoOutput is set when no candidate survived. It is not an error.
	NoOutput   bool     `json:"no_output"`
	Quicklooks []string `json:"quicklooks,omitempty"`
	Charts     []string `json:"charts,omitempty"`
}

// Detector runs detections against one band source.
type Detector struct {
	src     source.BandSource
	reducer source.Reducer
	store   *inventory.Store
	log     logger.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithInventory records every run in store.
func WithInventory(store *inventory.Store) Option {
	return func(d *Detector) { d.store = store }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Detector) { d.log = logger.OrNop(log) }
}

// New returns a Detector reading bands from src and sampling with reducer.
func New(src source.BandSource, reducer source.Reducer, opts ...Option) *Detector {
	d := &Detector{src: src, reducer: reducer, log: logger.Nop{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run executes every stage for req.
//
// Returns:
//   - *Result: Always non-nil when err is nil. NoOutput distinguishes an
//     empty result from a failed export.
//   - error: A *StageError for every failure.
func (d *Detector) Run(ctx context.Context, req Request) (*Result, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := d.precheck(cfg, req); err != nil {
		return nil, err
	}

	res := &Result{Rejections: make(map[string]int)}
	var runID string
	if d.store != nil {
		run, err := d.store.BeginRun(ctx, d.runRecord(cfg, req))
		if err != nil {
			return nil, stageErr(StageInventory, err)
		}
		runID = run.ID
		res.RunID = runID
	}

	err := d.run(ctx, cfg, req, res)
	if d.store != nil {
		d.finish(runID, res, err)
	}
	if err != nil {
		d.log.Error("pipeline", err, map[string]interface{}{"scene": req.Scene})
		return nil, err
	}
	return res, nil
}

// precheck rejects a request before anything is loaded or written.
func (d *Detector) precheck(cfg *config.Config, req Request) error {
	if err := cfg.Validate(); err != nil {
		return stageErr(StageConfig, err)
	}
	if err := pond.ValidateAttributes(cfg.GetAttributes()); err != nil {
		return stageErr(StageConfig, err)
	}
	if req.Output != "" {
		if _, err := export.FormatForPath(req.Output); err != nil {
			return stageErr(StageConfig, err)
		}
	}
	if d.reducer == nil && cfg.ValidateOptions().Mode != validate.ModeNone {
		return stageErr(StageConfig, errors.New("validation needs a reducer"))
	}
	return nil
}

func (d *Detector) run(ctx context.Context, cfg *config.Config, req Request, res *Result) error {
	start := time.Now()
	in, err := Prepare(ctx, d.src, cfg)
	if err != nil {
		return err
	}
	res.SeedPixels = in.Seed.Count()
	d.log.Info("seed", "seed mask built", map[string]interface{}{
		"variant": cfg.GetSeedVariant(), "pixels": res.SeedPixels,
		"radar": in.VV != nil, "elapsed": time.Since(start).String(),
	})
	dbg := newDebugWriter(req.DebugDir, in)
	if err := dbg.inputs(); err != nil {
		d.log.Warning("quicklook", err.Error(), nil)
	}

	// segment
	if err := checkpoint(ctx, StageSegment); err != nil {
		return err
	}
	t := time.Now()
	seg, err := segment.Segment(ctx, in.Seed, in.NDWI, cfg.SegmentOptions(), func(rr segment.RoundResult) {
		res.Rounds = append(res.Rounds, RoundStat{
			Round:      rr.Round,
			Radius:     rr.Radius,
			EdgePixels: rr.Edges.Count(),
			Traced:     rr.Traced,
			Accepted:   len(rr.Accepted),
		})
		res.Rejections["shape"] += len(rr.Rejected)
		if err := dbg.round(rr); err != nil {
			d.log.Warning("quicklook", err.Error(), nil)
		}
		d.log.Debug("segment", "round done", map[string]interface{}{
			"round": rr.Round, "radius": rr.Radius, "traced": rr.Traced,
			"accepted": len(rr.Accepted), "edge_pixels": rr.Edges.Count(),
		})
	})
	if err != nil {
		return stageErr(StageSegment, err)
	}
	cands := seg.Candidates
	d.record(res, StageSegment, 0, len(cands), t)

	// dedupe
	if cfg.GetDedupeRounds() {
		if err := checkpoint(ctx, StageDedupe); err != nil {
			return err
		}
		t = time.Now()
		before := len(cands)
		cands = pond.Dedupe(cands)
		res.Rejections["duplicate"] += before - len(cands)
		d.record(res, StageDedupe, before, len(cands), t)
	}

	// validate
	if err := checkpoint(ctx, StageValidate); err != nil {
		return err
	}
	t = time.Now()
	layers, err := validationLayers(ctx, d.src, cfg, in)
	if err != nil {
		return stageErr(StageValidate, err)
	}
	v, err := validate.New(d.reducer, layers, cfg.ValidateOptions(), d.log)
	if err != nil {
		return stageErr(StageValidate, err)
	}
	vres, err := v.Validate(ctx, cands)
	if err != nil {
		return candidateErr(StageValidate, err)
	}
	for reason, n := range vres.Counts() {
		res.Rejections[string(reason)] += n
	}
	d.record(res, StageValidate, len(cands), len(vres.Accepted), t)
	cands = vres.Accepted

	// neighbor
	if err := checkpoint(ctx, StageNeighbor); err != nil {
		return err
	}
	t = time.Now()
	nres, err := neighbor.Filter(ctx, cands, cfg.NeighborOptions())
	if err != nil {
		return stageErr(StageNeighbor, err)
	}
	for _, c := range nres.Rejected {
		d.log.Debug("neighbor", "candidate rejected", map[string]interface{}{
			"id": c.ID, "reason": "isolated", "near_num": *c.NeighborCount,
		})
	}
	res.Rejections["isolated"] += len(nres.Rejected)
	d.record(res, StageNeighbor, len(cands), len(nres.Accepted), t)
	cands = nres.Accepted

	// smooth
	if err := checkpoint(ctx, StageSmooth); err != nil {
		return err
	}
	t = time.Now()
	before := len(cands)
	sopts := cfg.SmoothOptions()
	if cfg.GetMeasureSmoothed() {
		// outlines were closed and simplified before they were measured
		sopts.MarginM, sopts.SimplifyM = 0, 0
	}
	cands, err = d.smooth(cands, sopts, res)
	if err != nil {
		return err
	}
	d.record(res, StageSmooth, before, len(cands), t)
	res.Ponds = cands

	if err := dbg.final(cands); err != nil {
		d.log.Warning("quicklook", err.Error(), nil)
	}
	res.Quicklooks = dbg.written

	// export
	if err := checkpoint(ctx, StageExport); err != nil {
		return err
	}
	res.NoOutput = len(cands) == 0
	if req.Output != "" {
		t = time.Now()
		err := export.Export(ctx, req.Output, cands, cfg.GetAttributes())
		switch {
		case errors.Is(err, export.ErrNoOutput):
			d.log.Warning("export", "no ponds survived, nothing written", map[string]interface{}{"output": req.Output})
		case err != nil:
			return stageErr(StageExport, err)
		default:
			res.Output = req.Output
		}
		d.record(res, StageExport, len(cands), len(cands), t)
	}

	if req.ReportDir != "" {
		charts, err := report.Write(req.ReportDir, funnel(res.Stages), cands)
		if err != nil {
			return stageErr(StageReport, err)
		}
		res.Charts = charts
	}

	d.log.Info("pipeline", "run complete", map[string]interface{}{
		"ponds": len(cands), "output": res.Output, "elapsed": time.Since(start).String(),
	})
	return nil
}

// smooth post-processes every candidate. A candidate that the smoothing
// erodes away entirely is dropped.
func (d *Detector) smooth(cands []pond.Candidate, opts smooth.Options, res *Result) ([]pond.Candidate, error) {
	out := make([]pond.Candidate, 0, len(cands))
	for _, c := range cands {
		geom, err := smooth.Process(c.Geometry, opts)
		if errors.Is(err, smooth.ErrEmpty) {
			d.log.Debug("smooth", "candidate vanished", map[string]interface{}{"id": c.ID})
			res.Rejections["vanished"]++
			continue
		}
		if err != nil {
			return nil, &StageError{Stage: StageSmooth, PondID: c.ID, Err: err}
		}
		out = append(out, c.Remeasure(geom))
	}
	return out, nil
}

func (d *Detector) record(res *Result, stage string, in, out int, started time.Time) {
	st := StageStat{Stage: stage, Input: in, Output: out, Duration: time.Since(started)}
	res.Stages = append(res.Stages, st)
	d.log.Info(stage, "stage complete", map[string]interface{}{
		"input": in, "output": out, "elapsed": st.Duration.String(),
	})
}

func (d *Detector) runRecord(cfg *config.Config, req Request) inventory.Run {
	r := inventory.Run{Preset: cfg.GetPreset(), Scene: req.Scene}
	if w, err := cfg.Window(); err == nil && !w.IsZero() {
		r.WindowStart = w.Start.Format(time.DateOnly)
		r.WindowEnd = w.End.Format(time.DateOnly)
	}
	if b, err := cfg.AOIBound(); err == nil && b != (orb.Bound{}) {
		r.AOI = wkt.MarshalString(b.ToPolygon())
	}
	if req.Output != "" {
		r.Output, _ = filepath.Abs(req.Output)
	}
	return r
}

// finish records the outcome of a run. It uses a fresh context so a
// cancelled run is still marked as failed.
func (d *Detector) finish(runID string, res *Result, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, message := inventory.StatusOK, ""
	switch {
	case runErr != nil:
		status, message = inventory.StatusFailed, runErr.Error()
	case res.NoOutput:
		status = inventory.StatusNoOutput
	}
	if runErr == nil {
		stages := make([]inventory.StageCount, len(res.Stages))
		for i, s := range res.Stages {
			stages[i] = inventory.StageCount{Stage: s.Stage, Input: s.Input, Output: s.Output}
		}
		if err := d.store.RecordStages(ctx, runID, stages); err != nil {
			d.log.Error("inventory", err, map[string]interface{}{"run": runID})
		}
		if err := d.store.RecordPonds(ctx, runID, res.Ponds); err != nil {
			d.log.Error("inventory", err, map[string]interface{}{"run": runID})
		}
	}
	if err := d.store.FinishRun(ctx, runID, status, res.Output, message); err != nil {
		d.log.Error("inventory", err, map[string]interface{}{"run": runID})
	}
}

func checkpoint(ctx context.Context, stage string) error {
	return stageErr(stage, ctx.Err())
}

// candidateErr lifts the candidate id of a pond.Error into the StageError.
func candidateErr(stage string, err error) error {
	se := &StageError{Stage: stage, Err: err}
	var pe *pond.Error
	if errors.As(err, &pe) {
		se.PondID = pe.ID
	}
	return se
}

// funnel converts the stage counts into chart bars: the segment output
// first, then the output of every later filtering stage.
func funnel(stages []StageStat) []report.Stage {
	out := make([]report.Stage, 0, len(stages))
	for _, s := range stages {
		if s.Stage == StageExport {
			continue
		}
		out = append(out, report.Stage{Name: s.Stage, Count: s.Output})
	}
	return out
}
