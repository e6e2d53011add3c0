package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ironsheep/tambak-detect/internal/config"
	"github.com/ironsheep/tambak-detect/internal/export"
	"github.com/ironsheep/tambak-detect/internal/indices"
	"github.com/ironsheep/tambak-detect/internal/pipeline"
	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/quicklook"
	"github.com/ironsheep/tambak-detect/internal/raster"
	"github.com/ironsheep/tambak-detect/internal/scene"
	"github.com/ironsheep/tambak-detect/internal/segment"
	"github.com/ironsheep/tambak-detect/internal/shape"
	"github.com/ironsheep/tambak-detect/internal/source"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "pond_detect", "pond_sample").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warning("server", "tool failed", map[string]interface{}{"tool": params.Name, "error": err.Error()})
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads scenes from cache as needed
//  4. Calls the pipeline, shape or quicklook function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Detection
	case "pond_detect":
		return s.handlePondDetect(ctx, args)
	case "pond_edges":
		return s.handlePondEdges(ctx, args)

	// Scene inspection
	case "pond_scene_info":
		return s.handlePondSceneInfo(args)
	case "pond_sample":
		return s.handlePondSample(ctx, args)
	case "pond_quicklook":
		return s.handlePondQuicklook(ctx, args)

	// Geometry
	case "pond_shape_metrics":
		return s.handlePondShapeMetrics(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// configArgs selects a run configuration. ConfigPath excludes the other two;
// Config holds inline overrides applied on top of Preset.
type configArgs struct {
	Preset     string          `json:"preset"`
	ConfigPath string          `json:"config_path"`
	Config     json.RawMessage `json:"config"`
}

func (a configArgs) resolve() (*config.Config, error) {
	inline := len(a.Config) > 0 && string(a.Config) != "null"
	if a.ConfigPath != "" {
		if a.Preset != "" || inline {
			return nil, errors.New("config_path cannot be combined with preset or config")
		}
		return config.Load(a.ConfigPath)
	}
	fields := map[string]json.RawMessage{}
	if inline {
		if err := json.Unmarshal(a.Config, &fields); err != nil {
			return nil, fmt.Errorf("config must be a JSON object: %w", err)
		}
	}
	if a.Preset != "" {
		raw, err := json.Marshal(a.Preset)
		if err != nil {
			return nil, err
		}
		fields["preset"] = raw
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return config.Parse(raw)
}

// === Detection Handlers ===

type pondDetectArgs struct {
	configArgs
	Scene     string `json:"scene"`
	Output    string `json:"output"`
	DebugDir  string `json:"debug_dir"`
	ReportDir string `json:"report_dir"`
	GeoJSON   bool   `json:"geojson"`
}

type pondDetectResult struct {
	*pipeline.Result
	Features *geojson.FeatureCollection `json:"features,omitempty"`
}

func (s *Server) handlePondDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pondDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := a.resolve()
	if err != nil {
		return nil, err
	}
	sc, err := s.cache.Load(a.Scene)
	if err != nil {
		return nil, err
	}

	d := pipeline.New(sc, scene.NewReducer(cfg.GetMaxPixels()),
		pipeline.WithLogger(s.log), pipeline.WithInventory(s.store))
	res, err := d.Run(ctx, pipeline.Request{
		Config:    cfg,
		Scene:     sc.Name,
		Output:    a.Output,
		DebugDir:  a.DebugDir,
		ReportDir: a.ReportDir,
	})
	if err != nil {
		return nil, err
	}

	out := pondDetectResult{Result: res}
	if a.GeoJSON && len(res.Ponds) > 0 {
		if out.Features, err = export.FeatureCollection(ctx, res.Ponds, cfg.GetAttributes()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type pondEdgesArgs struct {
	configArgs
	Scene string  `json:"scene"`
	Round int     `json:"round"`
	Scale float64 `json:"scale"`
}

type pondEdgesResult struct {
	SeedPixels int                  `json:"seed_pixels"`
	Rounds     []pipeline.RoundStat `json:"rounds"`
	Round      int                  `json:"round"`
	Image      *quicklook.Result    `json:"image"`
}

// handlePondEdges runs seed building and segmentation only, and renders the
// accumulated edge map of one round (default: the last).
func (s *Server) handlePondEdges(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pondEdgesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	cfg, err := a.resolve()
	if err != nil {
		return nil, err
	}
	sc, err := s.cache.Load(a.Scene)
	if err != nil {
		return nil, err
	}
	in, err := pipeline.Prepare(ctx, sc, cfg)
	if err != nil {
		return nil, err
	}
	seg, err := segment.Segment(ctx, in.Seed, in.NDWI, cfg.SegmentOptions(), nil)
	if err != nil {
		return nil, err
	}

	res := pondEdgesResult{SeedPixels: in.Seed.Count()}
	for _, rr := range seg.Rounds {
		res.Rounds = append(res.Rounds, pipeline.RoundStat{
			Round:      rr.Round,
			Radius:     rr.Radius,
			EdgePixels: rr.Edges.Count(),
			Traced:     rr.Traced,
			Accepted:   len(rr.Accepted),
		})
	}
	res.Round = a.Round
	if res.Round == 0 {
		res.Round = len(seg.Rounds)
	}
	if res.Round < 1 || res.Round > len(seg.Rounds) {
		return nil, fmt.Errorf("round %d out of range 1..%d", a.Round, len(seg.Rounds))
	}
	img := pipeline.RenderRound(pipeline.RenderNDWI(in), in, seg.Rounds[res.Round-1])
	if res.Image, err = quicklook.Encode(img, a.Scale); err != nil {
		return nil, err
	}
	return res, nil
}

// === Scene Inspection Handlers ===

type sceneArgs struct {
	Scene string `json:"scene"`
}

func (s *Server) handlePondSceneInfo(args json.RawMessage) (interface{}, error) {
	var a sceneArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	sc, err := s.cache.Load(a.Scene)
	if err != nil {
		return nil, err
	}
	return sc.Info(), nil
}

// bandArgs select a composited band, or a derived index, over a window.
type bandArgs struct {
	Scene     string `json:"scene"`
	Band      string `json:"band"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Composite string `json:"composite"`
}

func (a bandArgs) window() (source.TimeRange, error) {
	if a.Start == "" && a.End == "" {
		return source.TimeRange{}, nil
	}
	return source.ParseRange(a.Start, a.End)
}

// load composites the band. "ndwi" and "ndvi" are derived from the
// composited green, red and nir bands.
func (s *Server) load(ctx context.Context, a bandArgs) (*raster.Grid, error) {
	sc, err := s.cache.Load(a.Scene)
	if err != nil {
		return nil, err
	}
	tr, err := a.window()
	if err != nil {
		return nil, err
	}
	c, err := source.ParseComposite(a.Composite)
	if err != nil {
		return nil, err
	}
	band := func(name string) (*raster.Grid, error) {
		return sc.BandGrid(ctx, name, tr, orb.Bound{}, c)
	}
	switch strings.ToLower(a.Band) {
	case "ndwi":
		green, err := band(scene.BandGreen)
		if err != nil {
			return nil, err
		}
		nir, err := band(scene.BandNIR)
		if err != nil {
			return nil, err
		}
		return indices.NDWI(green, nir)
	case "ndvi":
		nir, err := band(scene.BandNIR)
		if err != nil {
			return nil, err
		}
		red, err := band(scene.BandRed)
		if err != nil {
			return nil, err
		}
		return indices.NDVI(nir, red)
	case "":
		return nil, errors.New("band is required")
	}
	return band(a.Band)
}

type pondSampleArgs struct {
	bandArgs
	WKT        string `json:"wkt"`
	Aggregator string `json:"aggregator"`
	MaxPixels  int    `json:"max_pixels"`
}

type pondSampleResult struct {
	Band       string   `json:"band"`
	Aggregator string   `json:"aggregator"`
	Value      *float64 `json:"value"`
	Missing    bool     `json:"missing"`
}

func (s *Server) handlePondSample(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pondSampleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	agg := source.Aggregator(strings.ToLower(a.Aggregator))
	switch agg {
	case "":
		agg = source.Median
	case source.Median, source.Mean:
	default:
		return nil, fmt.Errorf("unknown aggregator %q (valid: median, mean)", a.Aggregator)
	}
	p, err := pond.ParsePolygon(a.WKT)
	if err != nil {
		return nil, err
	}
	g, err := s.load(ctx, a.bandArgs)
	if err != nil {
		return nil, err
	}

	res := pondSampleResult{Band: a.Band, Aggregator: string(agg)}
	v, err := scene.NewReducer(a.MaxPixels).Reduce(ctx, g, p, agg)
	switch {
	case errors.Is(err, source.ErrMissingData):
		res.Missing = true
	case err != nil:
		return nil, err
	default:
		res.Value = &v
	}
	return res, nil
}

type pondQuicklookArgs struct {
	bandArgs
	Ramp  string   `json:"ramp"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Scale float64  `json:"scale"`
	X1    int      `json:"x1"`
	Y1    int      `json:"y1"`
	X2    int      `json:"x2"`
	Y2    int      `json:"y2"`
}

type pondQuicklookResult struct {
	*quicklook.Result
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (s *Server) handlePondQuicklook(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pondQuicklookArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	ramp, err := quicklook.RampByName(a.Ramp)
	if err != nil {
		return nil, err
	}
	g, err := s.load(ctx, a.bandArgs)
	if err != nil {
		return nil, err
	}

	lo, hi := quicklook.Stretch(g, 0.02, 0.98)
	if a.Min != nil {
		lo = *a.Min
	}
	if a.Max != nil {
		hi = *a.Max
	}
	var img image.Image = quicklook.RenderGrid(g, ramp, lo, hi)
	if a.X2 > a.X1 || a.Y2 > a.Y1 {
		if img, err = quicklook.Crop(img, a.X1, a.Y1, a.X2, a.Y2); err != nil {
			return nil, err
		}
	}
	enc, err := quicklook.Encode(img, a.Scale)
	if err != nil {
		return nil, err
	}
	return pondQuicklookResult{Result: enc, Min: lo, Max: hi}, nil
}

// === Geometry Handlers ===

type pondShapeMetricsArgs struct {
	WKT     string   `json:"wkt"`
	MaxLSI  *float64 `json:"max_lsi"`
	MaxRPOC *float64 `json:"max_rpoc"`
}

type pondShapeMetricsResult struct {
	shape.Metrics
	Degenerate bool         `json:"degenerate"`
	Limits     shape.Limits `json:"limits"`
	Accepted   bool         `json:"accepted"`
}

func (s *Server) handlePondShapeMetrics(args json.RawMessage) (interface{}, error) {
	var a pondShapeMetricsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	p, err := pond.ParsePolygon(a.WKT)
	if err != nil {
		return nil, err
	}
	limits := segment.DefaultOptions().Limits
	if a.MaxLSI != nil {
		limits.MaxLSI = *a.MaxLSI
	}
	if a.MaxRPOC != nil {
		limits.MaxRPOC = *a.MaxRPOC
	}
	m := shape.Compute(p)
	return pondShapeMetricsResult{
		Metrics:    m,
		Degenerate: m.Degenerate(),
		Limits:     limits,
		Accepted:   limits.Accept(m),
	}, nil
}
