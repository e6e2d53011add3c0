// Package inventory records detection runs and their ponds in SQLite.
//
// The schema is managed by embedded golang-migrate migrations and brought
// up to date when a store is opened.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/tambak-detect/internal/logger"
	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/shape"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusOK       = "ok"
	StatusNoOutput = "no_output"
	StatusFailed   = "failed"
)

// Store is a run inventory backed by one SQLite file.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens or creates the inventory at path and applies migrations.
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, log: logger.OrNop(log)}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run is one detection run.
type Run struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Preset      string     `json:"preset"`
	Scene       string     `json:"scene"`
	AOI         string     `json:"aoi_wkt,omitempty"`
	WindowStart string     `json:"window_start,omitempty"`
	WindowEnd   string     `json:"window_end,omitempty"`
	Status      string     `json:"status"`
	Output      string     `json:"output,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// StageCount is the candidate count entering and leaving one stage.
type StageCount struct {
	Stage  string `json:"stage"`
	Input  int    `json:"input"`
	Output int    `json:"output"`
}

// BeginRun inserts a running run. An empty ID is replaced by a new UUID and
// a zero StartedAt by the current time.
func (s *Store) BeginRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	r.Status = StatusRunning
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, preset, scene, aoi_wkt, window_start, window_end, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.Format(time.RFC3339Nano), r.Preset, r.Scene, r.AOI, r.WindowStart, r.WindowEnd, r.Status)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	s.log.Debug("inventory", "run started", map[string]interface{}{"run_id": r.ID})
	return r, nil
}

// RecordStages stores the stage funnel of a run in order.
func (s *Store) RecordStages(ctx context.Context, runID string, stages []StageCount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, st := range stages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stages (run_id, seq, stage, input_count, output_count) VALUES (?, ?, ?, ?, ?)`,
			runID, i, st.Stage, st.Input, st.Output); err != nil {
			return fmt.Errorf("failed to insert stage %s: %w", st.Stage, err)
		}
	}
	return tx.Commit()
}

// RecordPonds stores the final ponds of a run.
func (s *Store) RecordPonds(ctx context.Context, runID string, ponds []pond.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ponds (run_id, pond_id, round, area_m2, perimeter_m, lsi, rpoc,
			dry_vv, median_ndwi, median_vv, crop_fraction, neighbor_count, geometry_wkt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare pond insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range ponds {
		if _, err := stmt.ExecContext(ctx, runID, p.ID, p.Round, p.AreaM2, p.PerimeterM, p.LSI, p.RPOC,
			nullFloat(p.DryVV), nullFloat(p.MedianNDWI), nullFloat(p.MedianVV), nullFloat(p.CropFraction),
			nullInt(p.NeighborCount), p.WKT()); err != nil {
			return fmt.Errorf("failed to insert pond %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, output, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, output = ?, message = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, output, message, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs returns the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, preset, scene, aoi_wkt, window_start, window_end, status, output, message
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished, aoi, ws, we, output, message sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Preset, &r.Scene, &aoi, &ws, &we, &r.Status, &output, &message); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad start time: %w", r.ID, err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("run %s: bad finish time: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		r.AOI, r.WindowStart, r.WindowEnd = aoi.String, ws.String, we.String
		r.Output, r.Message = output.String, message.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stages returns the stage funnel of a run.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, input_count, output_count FROM stages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer rows.Close()

	var out []StageCount
	for rows.Next() {
		var st StageCount
		if err := rows.Scan(&st.Stage, &st.Input, &st.Output); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Ponds returns the ponds of a run in insertion order.
func (s *Store) Ponds(ctx context.Context, runID string) ([]pond.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pond_id, round, area_m2, perimeter_m, lsi, rpoc, dry_vv, median_ndwi, median_vv,
			crop_fraction, neighbor_count, geometry_wkt
		FROM ponds WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ponds: %w", err)
	}
	defer rows.Close()

	var out []pond.Candidate
	for rows.Next() {
		var c pond.Candidate
		var m shape.Metrics
		var dry, ndwi, vv, crop sql.NullFloat64
		var near sql.NullInt64
		var geom string
		if err := rows.Scan(&c.ID, &c.Round, &m.AreaM2, &m.PerimeterM, &m.LSI, &m.RPOC,
			&dry, &ndwi, &vv, &crop, &near, &geom); err != nil {
			return nil, fmt.Errorf("failed to scan pond: %w", err)
		}
		poly, err := wkt.UnmarshalPolygon(geom)
		if err != nil {
			return nil, fmt.Errorf("pond %s: bad geometry: %w", c.ID, err)
		}
		c.Geometry = poly
		c.Metrics = m
		c.Metrics.HullPerimeterM = hullPerimeter(poly)
		c.DryVV = nullable(dry)
		c.MedianNDWI = nullable(ndwi)
		c.MedianVV = nullable(vv)
		c.CropFraction = nullable(crop)
		if near.Valid {
			n := int(near.Int64)
			c.NeighborCount = &n
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func hullPerimeter(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	return planar.Length(shape.ConvexHull(p[0]))
}
