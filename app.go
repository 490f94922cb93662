package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/kwv/tudocover/cover"
	"github.com/kwv/tudocover/mesh"
	"github.com/kwv/tudocover/report"
	"github.com/kwv/tudocover/store"
)

const (
	formatJSON    = "json"
	formatGeoJSON = "geojson"
	formatPNG     = "png"
	formatSVG     = "svg"
	formatChart   = "chart"
)

func validFormat(f string) bool {
	switch f {
	case formatJSON, formatGeoJSON, formatPNG, formatSVG, formatChart:
		return true
	}
	return false
}

// PlanSink receives finished plans, normally a mesh.PlanPublisher.
type PlanSink interface {
	PublishPlan(plan *mesh.SegmentPlan) error
	PublishIndex(vacuumID string, plans []*mesh.SegmentPlan) error
}

// PlanArchive stores finished plans, normally a store.Store.
type PlanArchive interface {
	Insert(ctx context.Context, plan *mesh.SegmentPlan) (string, error)
}

// App encapsulates the application state and dependencies
type App struct {
	Config     *mesh.Config
	Tracker    *mesh.PlanTracker
	Store      *store.Store
	Archive    PlanArchive
	Publisher  PlanSink
	MQTTClient *mesh.MQTTClient
	Out        io.Writer

	opts AppOptions

	mu       sync.Mutex
	planning map[string]bool
	wg       sync.WaitGroup
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Tracker:  mesh.NewPlanTracker(),
		Out:      os.Stdout,
		planning: make(map[string]bool),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// loadConfig reads the config file. A missing default config file yields the
// built-in defaults so one-off planning works without any setup.
func (a *App) loadConfig() error {
	if a.Config != nil {
		return nil
	}
	path := a.opts.ConfigFile
	if path == "" {
		path = defaultConfigFile
	}
	config, err := mesh.LoadConfig(path)
	if err != nil {
		if _, statErr := os.Stat(path); path == defaultConfigFile && errors.Is(statErr, os.ErrNotExist) {
			log.Printf("No %s found, using defaults", path)
			config = mesh.DefaultConfig()
		} else {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		log.Printf("Loaded config from %s", path)
	}
	if a.opts.DBPath != "" {
		config.Storage.Path = a.opts.DBPath
	}
	if a.opts.HTTPPort != 0 {
		config.HTTP.Port = a.opts.HTTPPort
	}
	a.Config = config
	for _, vc := range config.Vacuums {
		if vc.Color != "" {
			a.Tracker.SetColor(vc.ID, vc.Color)
		}
	}
	return nil
}

func (a *App) vacuumID() string {
	if a.opts.VacuumID != "" {
		return a.opts.VacuumID
	}
	return "local"
}

// loadMap reads the map from --map, --api or the vacuum's configured apiUrl.
func (a *App) loadMap(ctx context.Context) (*mesh.ValetudoMap, error) {
	switch {
	case a.opts.MapFile != "":
		return mesh.ParseMapFile(a.opts.MapFile)
	case a.opts.APIURL != "":
		return mesh.FetchMap(ctx, a.opts.APIURL)
	case a.opts.VacuumID != "":
		vc := a.Config.GetVacuumByID(a.opts.VacuumID)
		if vc == nil {
			return nil, fmt.Errorf("vacuum %q is not configured", a.opts.VacuumID)
		}
		if vc.ApiURL == nil || *vc.ApiURL == "" {
			return nil, fmt.Errorf("vacuum %q has no apiUrl", a.opts.VacuumID)
		}
		return mesh.FetchMap(ctx, *vc.ApiURL)
	}
	return nil, errors.New("no map source: use --map, --api or --vacuum")
}

// RunListSegments prints the segments of one map.
func (a *App) RunListSegments(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	m, err := a.loadMap(ctx)
	if err != nil {
		return err
	}

	summary := mesh.Summarize(m)
	fmt.Fprintf(a.Out, "Map Size: %dx%d (pixel size: %d cm)\n", summary.Size.X, summary.Size.Y, summary.PixelSize)
	fmt.Fprintf(a.Out, "Total Layer Area: %d\n", summary.TotalLayerArea)
	if summary.HasCharger {
		fmt.Fprintf(a.Out, "Charger Position: (%.0f, %.0f)\n", summary.ChargerPosition.X, summary.ChargerPosition.Y)
	}
	fmt.Fprintf(a.Out, "Has Floor: %v, Has Wall: %v\n\n", summary.HasFloor, summary.HasWall)

	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAREA\tPIXELS")
	for _, s := range summary.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.ID, s.Name, s.Area, s.Pixels)
	}
	return tw.Flush()
}

// RunPlan plans one segment (or the whole floor) of one map and writes the
// result in the selected format.
func (a *App) RunPlan(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	m, err := a.loadMap(ctx)
	if err != nil {
		return err
	}

	seg := mesh.Segment{}
	if a.opts.SegmentID != "" {
		layer, ok := mesh.FindSegment(m, a.opts.SegmentID)
		if !ok {
			return fmt.Errorf("%w: %q", mesh.ErrSegmentNotFound, a.opts.SegmentID)
		}
		seg = mesh.Segment{ID: layer.MetaData.SegmentID, Name: layer.MetaData.Name, Area: layer.MetaData.Area}
	}

	start := time.Now()
	plan, err := a.planSegment(ctx, a.vacuumID(), m, seg)
	if err != nil {
		return err
	}
	log.Printf("Planned %d poses for %s in %v (coverage %.2f)",
		len(plan.Poses), plan.Key(), time.Since(start).Round(time.Millisecond), plan.Coverage)

	if a.opts.DBPath != "" {
		s, err := store.Open(a.Config.Storage.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.Insert(ctx, plan); err != nil {
			return err
		}
		log.Printf("Archived plan %s in %s", plan.ID, a.Config.Storage.Path)
	}

	w := a.Out
	if a.opts.OutputFile != "" && a.opts.OutputFile != "-" {
		f, err := os.Create(a.opts.OutputFile)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writePlan(w, plan, a.opts.Format, a.Tracker.Color(plan.VacuumID)); err != nil {
		return err
	}
	if w != a.Out {
		fmt.Fprintf(a.Out, "Wrote %s plan to %s\n", a.opts.Format, a.opts.OutputFile)
	}
	return nil
}

// writePlan encodes plan in one of the output formats.
func writePlan(w io.Writer, plan *mesh.SegmentPlan, format, hexColor string) error {
	switch format {
	case formatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case formatGeoJSON:
		fc, err := report.PlanFeatureCollection(plan)
		if err != nil {
			return err
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case formatPNG:
		return report.NewVectorRenderer(report.ColorOrDefault(hexColor)).RenderPNG(w, plan)
	case formatSVG:
		return report.NewVectorRenderer(report.ColorOrDefault(hexColor)).RenderSVG(w, plan)
	case formatChart:
		if plan.Result == nil {
			return errors.New("plan has no planner result")
		}
		return report.ConvergencePlot(w, plan.Result.Relaxation, len(plan.Result.Candidates), planTitle(plan))
	}
	return fmt.Errorf("unknown format %q", format)
}

func planTitle(plan *mesh.SegmentPlan) string {
	name := plan.SegmentName
	if name == "" {
		name = plan.SegmentID
	}
	if name == "" {
		name = "whole floor"
	}
	return fmt.Sprintf("%s / %s", plan.VacuumID, name)
}

// planSegment builds the occupancy grid for seg and runs the planner on it.
func (a *App) planSegment(ctx context.Context, vacuumID string, m *mesh.ValetudoMap, seg mesh.Segment) (*mesh.SegmentPlan, error) {
	grid, roi, err := mesh.OccupancyFromMap(m, seg.ID)
	if err != nil {
		return nil, err
	}
	params, err := a.Config.Planner.Params(roi)
	if err != nil {
		return nil, fmt.Errorf("planner config: %w", err)
	}
	planner := cover.NewPlanner(a.Config.Planner.Solver())
	res, err := planner.Plan(ctx, grid, params)
	if err != nil {
		return nil, fmt.Errorf("plan %s segment %q: %w", vacuumID, seg.ID, err)
	}
	plan := mesh.NewSegmentPlan(vacuumID, seg, grid, params, res)
	plan.MapVersion = m.MetaData.Version
	return plan, nil
}

// PlanMap plans every selected segment of a vacuum's map, or the whole floor
// when the map has no segments. Finished plans replace the vacuum's previous
// plans in the tracker, are archived and published. Archive and publish
// failures are logged; planning failures are returned after the remaining
// segments were planned.
func (a *App) PlanMap(ctx context.Context, vacuumID string, m *mesh.ValetudoMap) ([]*mesh.SegmentPlan, error) {
	segments := mesh.ListSegments(m)
	if len(segments) == 0 {
		segments = []mesh.Segment{{}}
	}
	vc := a.Config.GetVacuumByID(vacuumID)

	var plans []*mesh.SegmentPlan
	var errs []error
	for _, seg := range segments {
		if vc != nil && seg.ID != "" && !vc.PlansSegment(seg.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return plans, err
		}
		start := time.Now()
		plan, err := a.planSegment(ctx, vacuumID, m, seg)
		if err != nil {
			log.Printf("Error planning %s segment %q: %v", vacuumID, seg.ID, err)
			errs = append(errs, err)
			continue
		}
		log.Printf("%s: planned segment %q (%s): %d poses, coverage %.2f, %d iterations (%s) in %v",
			vacuumID, seg.ID, seg.Name, len(plan.Poses), plan.Coverage,
			plan.Result.Relaxation.Iterations, plan.Result.Relaxation.Termination,
			time.Since(start).Round(time.Millisecond))
		plans = append(plans, plan)
	}
	if len(plans) == 0 {
		return nil, errors.Join(errs...)
	}

	a.Tracker.DropPlans(vacuumID)
	for _, plan := range plans {
		if a.Archive != nil {
			if _, err := a.Archive.Insert(ctx, plan); err != nil {
				log.Printf("Error archiving plan for %s: %v", plan.Key(), err)
			}
		}
		a.Tracker.SetPlan(plan)
		if a.Publisher != nil {
			if err := a.Publisher.PublishPlan(plan); err != nil {
				log.Printf("Error publishing plan for %s: %v", plan.Key(), err)
			}
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishIndex(vacuumID, plans); err != nil {
			log.Printf("Error publishing plan index for %s: %v", vacuumID, err)
		}
	}
	a.pruneArchive(ctx)
	return plans, errors.Join(errs...)
}

// pruneArchive applies storage.keep to the plan archive.
func (a *App) pruneArchive(ctx context.Context) {
	if a.Store == nil || a.Config.Storage.Keep < 1 {
		return
	}
	n, err := a.Store.Prune(ctx, a.Config.Storage.Keep)
	if err != nil {
		log.Printf("Error pruning plan archive: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d archived plans", n)
	}
}

// schedulePlan plans a vacuum's map in the background unless a run for that
// vacuum is already in flight.
func (a *App) schedulePlan(ctx context.Context, vacuumID string, m *mesh.ValetudoMap) bool {
	a.mu.Lock()
	if a.planning[vacuumID] {
		a.mu.Unlock()
		log.Printf("%s: planning already in progress, skipping", vacuumID)
		return false
	}
	a.planning[vacuumID] = true
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.mu.Lock()
			delete(a.planning, vacuumID)
			a.mu.Unlock()
		}()
		if _, err := a.PlanMap(ctx, vacuumID, m); err != nil {
			log.Printf("%s: planning finished with errors: %v", vacuumID, err)
		}
	}()
	return true
}

// mapHandler returns the MQTT map callback. The first drawable map of a
// vacuum is planned right away; later maps replace the stored map and are
// planned when the vacuum docks.
func (a *App) mapHandler(ctx context.Context) mesh.MapHandler {
	return func(vacuumID string, m *mesh.ValetudoMap, err error) {
		if err != nil {
			log.Printf("Error receiving map data for %s: %v", vacuumID, err)
			return
		}
		if !mesh.HasDrawablePixels(m) {
			log.Printf("[DEBUG] %s: map without drawable pixels ignored", vacuumID)
			return
		}
		_, known := a.Tracker.GetMap(vacuumID)
		a.Tracker.UpdateMap(vacuumID, m)
		if !known {
			a.schedulePlan(ctx, vacuumID, m)
		}
	}
}

// dockingHandler replans from the latest map when a vacuum returns to its
// dock, which is when Valetudo's map is complete.
func (a *App) dockingHandler(ctx context.Context) mesh.DockingHandler {
	return func(vacuumID string) {
		m, ok := a.Tracker.GetMap(vacuumID)
		if !ok {
			log.Printf("%s docked but no map received yet", vacuumID)
			return
		}
		log.Printf("%s docked, replanning", vacuumID)
		a.schedulePlan(ctx, vacuumID, m)
	}
}

// RunService subscribes to the configured vacuums, plans their maps and
// serves the plans over HTTP until ctx is cancelled.
func (a *App) RunService(ctx context.Context) error {
	log.Println("Starting tudocover service...")
	if err := a.loadConfig(); err != nil {
		return err
	}
	config := a.Config

	if a.Store == nil {
		s, err := store.Open(config.Storage.Path)
		if err != nil {
			return fmt.Errorf("open plan archive: %w", err)
		}
		a.Store = s
		defer s.Close()
		log.Printf("Plan archive: %s", config.Storage.Path)
	}
	a.pruneArchive(ctx)
	if a.Archive == nil {
		a.Archive = a.Store
	}

	if a.MQTTClient == nil {
		client, err := mesh.NewMQTTClient(config, a.mapHandler(ctx))
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		a.MQTTClient = client
	}
	if a.MQTTClient != nil {
		a.MQTTClient.SetDockingHandler(a.dockingHandler(ctx))
		if a.Publisher == nil {
			a.Publisher = mesh.NewPlanPublisher(a.MQTTClient.Client(), config.MQTT.PublishPrefix)
		}
		go func() {
			if err := a.MQTTClient.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("MQTT connect: %v", err)
			}
		}()
	}

	polled := 0
	for _, vc := range config.Vacuums {
		if vc.ApiURL == nil || *vc.ApiURL == "" {
			continue
		}
		polled++
		m, err := mesh.FetchMap(ctx, *vc.ApiURL)
		if err != nil {
			log.Printf("Error fetching map for %s: %v", vc.ID, err)
			continue
		}
		a.mapHandler(ctx)(vc.ID, m, nil)
	}
	if a.MQTTClient == nil && polled == 0 {
		return errors.New("nothing to plan: configure mqtt.broker or a vacuum apiUrl")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", config.HTTP.Port),
		Handler:           newHTTPServer(a.Tracker, a.Store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[HTTP] Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] Server error: %v", err)
		}
	}()

	a.printServiceInfo()

	<-ctx.Done()

	log.Println("Shutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] Shutdown: %v", err)
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	a.wg.Wait()
	log.Println("Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	config := a.Config
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	if a.MQTTClient != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintln(a.Out, "  Subscribed topics:")
		for _, vc := range config.Vacuums {
			if vc.Topic != "" {
				fmt.Fprintf(a.Out, "    - %s (%s)\n", vc.Topic, vc.ID)
			}
		}
		if p, ok := a.Publisher.(*mesh.PlanPublisher); ok {
			fmt.Fprintf(a.Out, "  Publishing plans to: %s\n", p.PlanTopic("{vacuumID}", "{segmentID}"))
		}
	}
	fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", config.HTTP.Port)
	fmt.Fprintln(a.Out, "  GET /health                              - Health check")
	fmt.Fprintln(a.Out, "  GET /plans                               - Latest plan per vacuum and segment")
	fmt.Fprintln(a.Out, "  GET /plans/{vacuum}/{segment}[.json]     - Plan poses")
	fmt.Fprintln(a.Out, "  GET /plans/{vacuum}/{segment}.geojson    - Poses, footprints and uncovered cells")
	fmt.Fprintln(a.Out, "  GET /plans/{vacuum}/{segment}.png|.svg   - Plan drawing")
	fmt.Fprintln(a.Out, "  GET /plans/{vacuum}/{segment}/convergence.png - Sparsity per iteration")
	fmt.Fprintln(a.Out, "  GET /history/{vacuum}                    - Archived plans")
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}
