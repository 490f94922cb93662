package mesh

import (
	"errors"
	"fmt"

	"github.com/kwv/tudocover/cover"
)

// mapMargin is the occupied border added around the map extent so walls
// are never missing at the edges.
const mapMargin = 1

// ErrSegmentNotFound is returned when a requested segment is absent.
var ErrSegmentNotFound = errors.New("segment not found")

// OccupancyFromMap rasterizes a Valetudo map into an occupancy grid.
//
// The grid spans the bounding box of every layer plus a one pixel margin.
// Floor and segment pixels are free and everything else is occupied. When
// segmentID is set only that segment is free, so planning stays inside the
// room. The returned bounds are the region of interest in grid pixels.
func OccupancyFromMap(m *ValetudoMap, segmentID string) (*cover.OccupancyGrid, cover.Bounds, error) {
	if m == nil {
		return nil, cover.Bounds{}, fmt.Errorf("occupancy: nil map")
	}
	if m.PixelSize <= 0 {
		return nil, cover.Bounds{}, fmt.Errorf("occupancy: invalid pixel size %d", m.PixelSize)
	}

	layers := make([][]cover.Pixel, len(m.Layers))
	extent := cover.Bounds{Min: cover.Pixel{X: 1 << 30, Y: 1 << 30}, Max: cover.Pixel{X: -1 << 30, Y: -1 << 30}}
	for i, l := range m.Layers {
		layers[i] = LayerPixels(l)
		for _, p := range layers[i] {
			extent.Min.X = min(extent.Min.X, p.X)
			extent.Min.Y = min(extent.Min.Y, p.Y)
			extent.Max.X = max(extent.Max.X, p.X)
			extent.Max.Y = max(extent.Max.Y, p.Y)
		}
	}
	if extent.Empty() {
		return nil, cover.Bounds{}, fmt.Errorf("occupancy: map has no pixels")
	}

	if segmentID != "" {
		if _, ok := FindSegment(m, segmentID); !ok {
			return nil, cover.Bounds{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, segmentID)
		}
	}

	offX, offY := extent.Min.X-mapMargin, extent.Min.Y-mapMargin
	resolution := float64(m.PixelSize) / 100
	g, err := cover.NewOccupancyGrid(
		extent.Max.X-extent.Min.X+1+2*mapMargin,
		extent.Max.Y-extent.Min.Y+1+2*mapMargin,
		resolution,
		cover.Point{X: float64(offX) * resolution, Y: float64(offY) * resolution},
	)
	if err != nil {
		return nil, cover.Bounds{}, fmt.Errorf("occupancy: %w", err)
	}

	for i, l := range m.Layers {
		if !freeLayer(l, segmentID) {
			continue
		}
		for _, p := range layers[i] {
			g.SetFree(p.X-offX, p.Y-offY, true)
		}
	}
	// Walls override free space where layers overlap.
	for i, l := range m.Layers {
		if l.Type != LayerWall {
			continue
		}
		for _, p := range layers[i] {
			g.SetFree(p.X-offX, p.Y-offY, false)
		}
	}

	roi, ok := g.FreeBounds()
	if !ok {
		return nil, cover.Bounds{}, fmt.Errorf("occupancy: no free space")
	}
	return g, roi, nil
}

func freeLayer(l MapLayer, segmentID string) bool {
	if segmentID != "" {
		return l.Type == LayerSegment && l.MetaData.SegmentID == segmentID
	}
	return l.Type == LayerFloor || l.Type == LayerSegment
}

// GridToMap converts a grid pixel back to map centimeters, the unit of
// Valetudo entities.
func GridToMap(g *cover.OccupancyGrid, p cover.Point) cover.Point {
	w := g.PixelToWorld(p)
	return cover.Point{X: w.X * 100, Y: w.Y * 100}
}
