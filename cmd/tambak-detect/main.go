package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ironsheep/tambak-detect/internal/config"
	"github.com/ironsheep/tambak-detect/internal/inventory"
	"github.com/ironsheep/tambak-detect/internal/logger"
	"github.com/ironsheep/tambak-detect/internal/pipeline"
	"github.com/ironsheep/tambak-detect/internal/pond"
	"github.com/ironsheep/tambak-detect/internal/scene"
	"github.com/ironsheep/tambak-detect/internal/segment"
	"github.com/ironsheep/tambak-detect/internal/server"
	"github.com/ironsheep/tambak-detect/internal/shape"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `tambak-detect - aquaculture pond detection from optical and radar imagery

Usage:
  tambak-detect run -scene PATH [options]     Detect ponds in a scene
  tambak-detect serve [-inventory DB]         Serve MCP tools over stdin/stdout
  tambak-detect metrics [options] WKT         Print shape metrics of a polygon
  tambak-detect runs -inventory DB [-n N]     List recorded runs

Options:
  --version, -v    Print version information
  --help, -h       Print this help message

Run "tambak-detect <command> -h" for the options of a command.

Environment variables:
  TAMBAK_LOG_LEVEL=debug    Log level (debug, info, warn, error)

Logs are written to stderr; results go to stdout.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Handle --version and -v flags
	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("tambak-detect %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		fmt.Print(usage)
		return
	}

	// Configure logging to stderr (stdout is for results and the MCP protocol)
	log := logger.NewConsoleLogger(logger.LevelFromEnv())
	log.Debug("main", "starting", map[string]interface{}{
		"version": Version, "build_time": BuildTime, "commit": GitCommit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runDetect(ctx, args, os.Stdout, log)
	case "serve":
		err = runServe(ctx, args, log)
	case "metrics":
		err = runMetrics(args, os.Stdout)
	case "runs":
		err = runList(ctx, args, os.Stdout, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Error("main", err, nil)
		os.Exit(1)
	}
}

// loadConfig resolves -config or -preset and applies the window flags.
func loadConfig(path, preset, start, end string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "" && preset != "":
		return nil, errors.New("-config and -preset are mutually exclusive")
	case path != "":
		cfg, err = config.Load(path)
	default:
		cfg, err = config.Preset(preset)
	}
	if err != nil {
		return nil, err
	}
	if start != "" {
		cfg.WindowStart = &start
	}
	if end != "" {
		cfg.WindowEnd = &end
	}
	return cfg, nil
}

func openInventory(path string, log logger.Logger) (*inventory.Store, error) {
	if path == "" {
		return nil, nil
	}
	return inventory.Open(path, log)
}

func runDetect(ctx context.Context, args []string, stdout io.Writer, log logger.Logger) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	scenePath := fs.String("scene", "", "scene manifest, directory or NetCDF cube (required)")
	configPath := fs.String("config", "", "JSON config file")
	preset := fs.String("preset", "", "parameter preset: "+strings.Join(config.Presets(), ", "))
	start := fs.String("start", "", "analysis window start YYYY-MM-DD, overrides the config")
	end := fs.String("end", "", "analysis window end YYYY-MM-DD (exclusive), overrides the config")
	output := fs.String("output", "", "export path ending in .shp or .geojson")
	debugDir := fs.String("debug-dir", "", "directory for intermediate quicklooks")
	reportDir := fs.String("report-dir", "", "directory for report charts")
	invPath := fs.String("inventory", "", "SQLite run inventory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scenePath == "" {
		return errors.New("run: -scene is required")
	}

	cfg, err := loadConfig(*configPath, *preset, *start, *end)
	if err != nil {
		return err
	}
	sc, err := scene.Open(*scenePath)
	if err != nil {
		return err
	}
	store, err := openInventory(*invPath, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	d := pipeline.New(sc, scene.NewReducer(cfg.GetMaxPixels()),
		pipeline.WithLogger(log), pipeline.WithInventory(store))
	res, err := d.Run(ctx, pipeline.Request{
		Config:    cfg,
		Scene:     sc.Name,
		Output:    *output,
		DebugDir:  *debugDir,
		ReportDir: *reportDir,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runServe(ctx context.Context, args []string, log logger.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	invPath := fs.String("inventory", "", "SQLite run inventory for pond_detect runs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := openInventory(*invPath, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	log.Info("main", "serving MCP on stdio", map[string]interface{}{"version": Version})
	srv := server.New(server.WithLogger(log), server.WithInventory(store), server.WithVersion(Version))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

type metricsOutput struct {
	shape.Metrics
	Degenerate bool `json:"degenerate"`
	Accepted   bool `json:"accepted"`
}

func runMetrics(args []string, stdout io.Writer) error {
	limits := segment.DefaultOptions().Limits
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	fs.Float64Var(&limits.MaxLSI, "max-lsi", limits.MaxLSI, "LSI limit")
	fs.Float64Var(&limits.MaxRPOC, "max-rpoc", limits.MaxRPOC, "RPOC limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("metrics: a WKT polygon argument is required")
	}

	p, err := pond.ParsePolygon(strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	m := shape.Compute(p)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(metricsOutput{Metrics: m, Degenerate: m.Degenerate(), Accepted: limits.Accept(m)})
}

func runList(ctx context.Context, args []string, stdout io.Writer, log logger.Logger) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	invPath := fs.String("inventory", "", "SQLite run inventory (required)")
	limit := fs.Int("n", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *invPath == "" {
		return errors.New("runs: -inventory is required")
	}
	store, err := inventory.Open(*invPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		ponds, err := store.Ponds(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s  %s  %-9s  %-16s  %4d ponds  %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Status, r.Preset, len(ponds), r.Scene)
	}
	return nil
}
