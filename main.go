package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via -ldflags
var Version = "dev"

const defaultConfigFile = "config.yaml"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile   string
	MapFile      string
	APIURL       string
	VacuumID     string
	SegmentID    string
	OutputFile   string
	Format       string
	DBPath       string
	HTTPPort     int
	Plan         bool
	ListSegments bool
	Serve        bool
}

// Runner is the application surface driven by the command line.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunPlan(ctx context.Context) error
	RunListSegments(ctx context.Context) error
	RunService(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("tudocover", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", defaultConfigFile, "Path to configuration file")
	fs.BoolVar(&opts.Plan, "plan", false, "Plan sensing poses for one map and exit")
	fs.BoolVar(&opts.ListSegments, "list-segments", false, "List the segments of a map and exit")
	fs.BoolVar(&opts.Serve, "serve", false, "Run the planning service (MQTT + HTTP)")
	fs.StringVar(&opts.MapFile, "map", "", "Valetudo map file (JSON or PNG with embedded map data)")
	fs.StringVar(&opts.APIURL, "api", "", "Valetudo map endpoint, e.g. http://rocky7.local/api/v2/robot/state/map")
	fs.StringVar(&opts.VacuumID, "vacuum", "", "Vacuum ID; its apiUrl is used when no --map or --api is given")
	fs.StringVar(&opts.SegmentID, "segment", "", "Segment ID to plan (default: whole floor)")
	fs.StringVar(&opts.OutputFile, "output", "-", "Output file for --plan, - for stdout")
	fs.StringVar(&opts.Format, "format", formatJSON, "Output format for --plan: json, geojson, png, svg or chart")
	fs.StringVar(&opts.DBPath, "db", "", "SQLite plan archive (default: storage.path from config)")
	fs.IntVar(&opts.HTTPPort, "http-port", 0, "HTTP server port (default: http.port from config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if !validFormat(opts.Format) {
		return fmt.Errorf("unknown format %q", opts.Format)
	}

	app.ApplyOptions(opts)

	switch {
	case opts.Plan:
		return app.RunPlan(ctx)
	case opts.ListSegments:
		return app.RunListSegments(ctx)
	case opts.Serve:
		fmt.Fprintf(out, "tudocover version: %s\n", Version)
		return app.RunService(ctx)
	}

	fmt.Fprintf(out, "tudocover version: %s\n", Version)
	fmt.Fprintln(out, "Use --list-segments --map FILE to inspect a map")
	fmt.Fprintln(out, "Use --plan --map FILE [--segment ID] [--format json|geojson|png|svg|chart] to plan one map")
	fmt.Fprintln(out, "Use --serve to plan maps received over MQTT and serve them over HTTP")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, vacuums and planner parameters")
	return nil
}
