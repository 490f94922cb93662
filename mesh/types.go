package mesh

import "github.com/kwv/tudocover/cover"

// Layer types found in Valetudo map exports.
const (
	LayerFloor   = "floor"
	LayerSegment = "segment"
	LayerWall    = "wall"
)

// ValetudoMap represents the root map structure from Valetudo JSON export
type ValetudoMap struct {
	Class     string      `json:"__class"`
	MetaData  MapMetaData `json:"metaData"`
	Size      Size        `json:"size"`
	PixelSize int         `json:"pixelSize"` // centimeters per pixel
	Layers    []MapLayer  `json:"layers"`
	Entities  []MapEntity `json:"entities"`
}

// MapMetaData contains map metadata
type MapMetaData struct {
	VendorMapID    int    `json:"vendorMapId,omitempty"`
	Version        int    `json:"version"`
	Nonce          string `json:"nonce"`
	TotalLayerArea int    `json:"totalLayerArea"`
}

// Size represents map dimensions in pixels
type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MapLayer represents a floor/segment/wall layer.
//
// Pixels is a flat [x0,y0,x1,y1,...] list. CompressedPixels holds
// [x,y,count,...] runs along +x and is used when Pixels is empty.
type MapLayer struct {
	Class            string        `json:"__class"`
	MetaData         LayerMetaData `json:"metaData"`
	Type             string        `json:"type"`
	Pixels           []int         `json:"pixels"`
	CompressedPixels []int         `json:"compressedPixels,omitempty"`
}

// LayerMetaData contains layer metadata
type LayerMetaData struct {
	SegmentID  string `json:"segmentId,omitempty"`
	Name       string `json:"name,omitempty"`
	Area       int    `json:"area"`
	Active     bool   `json:"active,omitempty"`
	PixelCount int    `json:"pixelCount,omitempty"`
	Material   string `json:"material,omitempty"`
}

// MapEntity represents a map entity (robot position, charger, path).
// Points are in centimeters, not pixels.
type MapEntity struct {
	Class    string                 `json:"__class"`
	MetaData map[string]interface{} `json:"metaData"`
	Points   []int                  `json:"points"`
	Type     string                 `json:"type"`
}

// Segment identifies a room in a map.
type Segment struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Area   int    `json:"area"`
	Pixels int    `json:"pixels"`
}

// VacuumConfig defines a vacuum from config file
type VacuumConfig struct {
	ID    string  `yaml:"id" json:"id"`
	Topic string  `yaml:"topic" json:"topic"`
	Color string  `yaml:"color,omitempty" json:"color,omitempty"`
	// ApiURL is an optional Valetudo map endpoint used instead of MQTT.
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
	// Segments restricts planning to these segment IDs. Empty plans all.
	Segments []string `yaml:"segments,omitempty" json:"segments,omitempty"`
}

// PlansSegment reports whether segmentID is selected for planning.
func (vc *VacuumConfig) PlansSegment(segmentID string) bool {
	if len(vc.Segments) == 0 {
		return true
	}
	for _, s := range vc.Segments {
		if s == segmentID {
			return true
		}
	}
	return false
}

// FootprintConfig describes the sensing polygon in the robot frame, meters,
// x pointing forward.
type FootprintConfig struct {
	Points []cover.Point `yaml:"points,omitempty" json:"points,omitempty"`
	// Offset shifts all points forward along the heading.
	Offset float64 `yaml:"offset,omitempty" json:"offset,omitempty"`
	// Optional overrides for the derived gating scalars.
	MaxAngleDeg float64 `yaml:"maxAngleDeg,omitempty" json:"maxAngleDeg,omitempty"`
	MinRadius   float64 `yaml:"minRadius,omitempty" json:"minRadius,omitempty"`
	MaxRadius   float64 `yaml:"maxRadius,omitempty" json:"maxRadius,omitempty"`
}

// PlannerConfig holds the planning parameters.
type PlannerConfig struct {
	CellSize             int             `yaml:"cellSize" json:"cellSize"` // pixels
	AngleStepDeg         float64         `yaml:"angleStepDeg" json:"angleStepDeg"`
	SparsityCheckRange   int             `yaml:"sparsityCheckRange" json:"sparsityCheckRange"`
	MaxIterations        int             `yaml:"maxIterations" json:"maxIterations"`
	Workers              int             `yaml:"workers,omitempty" json:"workers,omitempty"`
	AllowPartialCoverage bool            `yaml:"allowPartialCoverage,omitempty" json:"allowPartialCoverage,omitempty"`
	MaxNodes             int             `yaml:"maxNodes,omitempty" json:"maxNodes,omitempty"`
	Footprint            FootprintConfig `yaml:"footprint" json:"footprint"`
}

// StorageConfig locates the plan archive. Keep > 0 limits the archive to the
// newest Keep plans per vacuum and segment.
type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
	Keep int    `yaml:"keep,omitempty" json:"keep,omitempty"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Config represents the full configuration file
type Config struct {
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Vacuums []VacuumConfig `yaml:"vacuums" json:"vacuums"`
	Planner PlannerConfig  `yaml:"planner" json:"planner"`
	Storage StorageConfig  `yaml:"storage" json:"storage"`
	HTTP    HTTPConfig     `yaml:"http" json:"http"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// GetVacuumByID returns the vacuum config for the given ID
func (c *Config) GetVacuumByID(id string) *VacuumConfig {
	for i := range c.Vacuums {
		if c.Vacuums[i].ID == id {
			return &c.Vacuums[i]
		}
	}
	return nil
}
