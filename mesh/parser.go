package mesh

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/kwv/tudocover/cover"
)

// ParseMapFile reads and parses a Valetudo map file. PNG exports and
// compressed payloads are accepted as well as plain JSON.
func ParseMapFile(path string) (*ValetudoMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeMapData(data)
}

// ParseMapJSON parses Valetudo map JSON data
func ParseMapJSON(data []byte) (*ValetudoMap, error) {
	var m ValetudoMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &m, nil
}

// LayerPixels expands a layer into pixel coordinates. The flat pixel list
// wins; run-length compressed pixels are used only when it is empty.
// Trailing incomplete tuples are ignored.
func LayerPixels(layer MapLayer) []cover.Pixel {
	if len(layer.Pixels) > 0 {
		out := make([]cover.Pixel, 0, len(layer.Pixels)/2)
		for i := 0; i+1 < len(layer.Pixels); i += 2 {
			out = append(out, cover.Pixel{X: layer.Pixels[i], Y: layer.Pixels[i+1]})
		}
		return out
	}

	var out []cover.Pixel
	cp := layer.CompressedPixels
	for i := 0; i+2 < len(cp); i += 3 {
		x, y, n := cp[i], cp[i+1], cp[i+2]
		for k := 0; k < n; k++ {
			out = append(out, cover.Pixel{X: x + k, Y: y})
		}
	}
	return out
}

func layerHasPixels(layer MapLayer) bool {
	return len(layer.Pixels) >= 2 || len(layer.CompressedPixels) >= 3
}

// ExtractRobotPosition returns the robot position in centimeters and its
// heading in degrees.
func ExtractRobotPosition(m *ValetudoMap) (cover.Point, float64, bool) {
	for _, entity := range m.Entities {
		if entity.Type == "robot_position" && len(entity.Points) >= 2 {
			angle := 0.0
			if a, ok := entity.MetaData["angle"].(float64); ok {
				angle = a
			}
			return cover.Point{X: float64(entity.Points[0]), Y: float64(entity.Points[1])}, angle, true
		}
	}
	return cover.Point{}, 0, false
}

// ExtractChargerPosition returns the dock position in centimeters.
func ExtractChargerPosition(m *ValetudoMap) (cover.Point, bool) {
	for _, entity := range m.Entities {
		if entity.Type == "charger_location" && len(entity.Points) >= 2 {
			return cover.Point{X: float64(entity.Points[0]), Y: float64(entity.Points[1])}, true
		}
	}
	return cover.Point{}, false
}

// ExtractSegments returns all segment layers
func ExtractSegments(m *ValetudoMap) []MapLayer {
	var segments []MapLayer
	for _, layer := range m.Layers {
		if layer.Type == LayerSegment {
			segments = append(segments, layer)
		}
	}
	return segments
}

// FindSegment returns the segment layer with the given ID.
func FindSegment(m *ValetudoMap, segmentID string) (MapLayer, bool) {
	for _, layer := range m.Layers {
		if layer.Type == LayerSegment && layer.MetaData.SegmentID == segmentID {
			return layer, true
		}
	}
	return MapLayer{}, false
}

// ListSegments returns the map's segments ordered by ID. Numeric IDs sort
// numerically, as Valetudo assigns them.
func ListSegments(m *ValetudoMap) []Segment {
	layers := ExtractSegments(m)
	out := make([]Segment, 0, len(layers))
	for _, l := range layers {
		out = append(out, Segment{
			ID:     l.MetaData.SegmentID,
			Name:   l.MetaData.Name,
			Area:   l.MetaData.Area,
			Pixels: len(LayerPixels(l)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i].ID)
		b, errB := strconv.Atoi(out[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MapSummary provides a summary of map contents
type MapSummary struct {
	Version         int
	TotalLayerArea  int
	Size            Size
	PixelSize       int
	ChargerPosition cover.Point
	HasCharger      bool
	Segments        []Segment
	HasFloor        bool
	HasWall         bool
}

// Summarize extracts key information from a map
func Summarize(m *ValetudoMap) MapSummary {
	summary := MapSummary{
		Version:        m.MetaData.Version,
		TotalLayerArea: m.MetaData.TotalLayerArea,
		Size:           m.Size,
		PixelSize:      m.PixelSize,
		Segments:       ListSegments(m),
	}
	summary.ChargerPosition, summary.HasCharger = ExtractChargerPosition(m)
	for _, layer := range m.Layers {
		switch layer.Type {
		case LayerFloor:
			summary.HasFloor = true
		case LayerWall:
			summary.HasWall = true
		}
	}
	return summary
}

// HasDrawablePixels returns true if the map contains any pixels in floor, wall or segment layers
func HasDrawablePixels(m *ValetudoMap) bool {
	if m == nil {
		return false
	}
	for _, layer := range m.Layers {
		switch layer.Type {
		case LayerFloor, LayerSegment, LayerWall:
			if layerHasPixels(layer) {
				return true
			}
		}
	}
	return false
}
