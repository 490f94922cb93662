package mesh

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/kwv/tudocover/cover"
)

// Planner defaults applied by LoadConfig and DefaultConfig.
const (
	DefaultCellSize     = 10
	DefaultAngleStepDeg = 90
	DefaultStoragePath  = "tudocover.db"
	DefaultHTTPPort     = 8080
)

// DefaultFootprint is a 0.5 m square directly ahead of the robot.
func DefaultFootprint() FootprintConfig {
	return FootprintConfig{
		Points: []cover.Point{
			{X: 0, Y: -0.25},
			{X: 0.5, Y: -0.25},
			{X: 0.5, Y: 0.25},
			{X: 0, Y: 0.25},
		},
		Offset: 0.25,
	}
}

// DefaultConfig returns a configuration with every default filled in and no
// vacuums.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads the configuration from a YAML file, fills defaults and
// validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	p := &c.Planner
	if p.CellSize == 0 {
		p.CellSize = DefaultCellSize
	}
	if p.AngleStepDeg == 0 {
		p.AngleStepDeg = DefaultAngleStepDeg
	}
	if p.SparsityCheckRange == 0 {
		p.SparsityCheckRange = cover.DefaultSparsityCheckRange
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = cover.MaxIterations
	}
	if p.Workers == 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	if p.MaxNodes == 0 {
		p.MaxNodes = cover.DefaultMaxNodes
	}
	if len(p.Footprint.Points) == 0 {
		p.Footprint = DefaultFootprint()
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
}

// Validate checks the configuration. The broker may be empty: MQTT is then
// disabled unless MQTT_BROKER is set.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Vacuums))
	for i, vc := range c.Vacuums {
		if vc.ID == "" {
			return fmt.Errorf("vacuums[%d].id is required", i)
		}
		if seen[vc.ID] {
			return fmt.Errorf("vacuums[%d].id %q is duplicated", i, vc.ID)
		}
		seen[vc.ID] = true
		if vc.Topic == "" && vc.ApiURL == nil {
			return fmt.Errorf("vacuums[%d] (%s) needs a topic or an apiUrl", i, vc.ID)
		}
	}

	p := c.Planner
	if p.CellSize <= 0 {
		return fmt.Errorf("planner.cellSize must be positive, got %d", p.CellSize)
	}
	if p.AngleStepDeg <= 0 || p.AngleStepDeg > 360 {
		return fmt.Errorf("planner.angleStepDeg must be in (0, 360], got %v", p.AngleStepDeg)
	}
	if p.SparsityCheckRange <= 0 {
		return fmt.Errorf("planner.sparsityCheckRange must be positive, got %d", p.SparsityCheckRange)
	}
	if p.MaxIterations < 0 || p.MaxIterations > cover.MaxIterations {
		return fmt.Errorf("planner.maxIterations must be in [0, %d] (0 means %d), got %d", cover.MaxIterations, cover.MaxIterations, p.MaxIterations)
	}
	if _, err := p.Footprint.Build(); err != nil {
		return fmt.Errorf("planner.footprint: %w", err)
	}
	if c.Storage.Keep < 0 {
		return fmt.Errorf("storage.keep must not be negative, got %d", c.Storage.Keep)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}

// Build turns the configured polygon into a cover.Footprint, applying the
// offset and any explicit gating overrides.
func (fc FootprintConfig) Build() (cover.Footprint, error) {
	points := make([]cover.Point, len(fc.Points))
	for i, p := range fc.Points {
		points[i] = cover.Point{X: p.X + fc.Offset, Y: p.Y}
	}
	fp, err := cover.NewFootprint(points)
	if err != nil {
		return cover.Footprint{}, err
	}
	if fc.MaxAngleDeg > 0 {
		fp.MaxAngle = fc.MaxAngleDeg * math.Pi / 180
	}
	if fc.MinRadius > 0 {
		fp.MinRadius = fc.MinRadius
	}
	if fc.MaxRadius > 0 {
		fp.MaxRadius = fc.MaxRadius
	}
	if err := fp.Validate(); err != nil {
		return cover.Footprint{}, err
	}
	return fp, nil
}

// Params converts the planner section into cover.Params for region.
func (pc PlannerConfig) Params(region cover.Bounds) (cover.Params, error) {
	fp, err := pc.Footprint.Build()
	if err != nil {
		return cover.Params{}, err
	}
	return cover.Params{
		CellSize:             pc.CellSize,
		DeltaTheta:           pc.AngleStepDeg * math.Pi / 180,
		Region:               region,
		Footprint:            fp,
		SparsityCheckRange:   pc.SparsityCheckRange,
		MaxIterations:        pc.MaxIterations,
		Workers:              pc.Workers,
		AllowPartialCoverage: pc.AllowPartialCoverage,
	}, nil
}

// Solver returns the LP/ILP backend configured by the planner section.
func (pc PlannerConfig) Solver() *cover.SimplexSolver {
	s := cover.NewSimplexSolver()
	if pc.MaxNodes > 0 {
		s.MaxNodes = pc.MaxNodes
	}
	return s
}
