package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kwv/tudocover/mesh"
)

// roomMap is two 1 m x 1 m rooms at 5 cm per pixel, side by side and
// separated by a wall column at x=120. Segment "1" spans x 100..119,
// segment "2" x 121..140, both y 100..119.
func roomMap() *mesh.ValetudoMap {
	seg := func(x0 int) []int {
		var px []int
		for y := 100; y <= 119; y++ {
			px = append(px, x0, y, 20)
		}
		return px
	}
	var walls []int
	for x := 99; x <= 141; x++ {
		walls = append(walls, x, 99, x, 120)
	}
	for y := 100; y <= 119; y++ {
		walls = append(walls, 99, y, 120, y, 141, y)
	}
	return &mesh.ValetudoMap{
		Class:     "ValetudoMap",
		MetaData:  mesh.MapMetaData{Version: 2, TotalLayerArea: 8000},
		Size:      mesh.Size{X: 512, Y: 512},
		PixelSize: 5,
		Layers: []mesh.MapLayer{
			{Type: mesh.LayerSegment, MetaData: mesh.LayerMetaData{SegmentID: "1", Name: "Kitchen", Area: 4000}, CompressedPixels: seg(100)},
			{Type: mesh.LayerSegment, MetaData: mesh.LayerMetaData{SegmentID: "2", Name: "Hall", Area: 4000}, CompressedPixels: seg(121)},
			{Type: mesh.LayerWall, Pixels: walls},
		},
		Entities: []mesh.MapEntity{
			{Type: "charger_location", Points: []int{550, 550}},
		},
	}
}

func writeMapFile(t *testing.T, m *mesh.ValetudoMap) string {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ValetudoMapExport-rocky7.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testConfig() *mesh.Config {
	c := mesh.DefaultConfig()
	c.Planner.Workers = 2
	c.Vacuums = []mesh.VacuumConfig{{ID: "rocky7", Topic: "valetudo/rocky7/MapData/map-data", Color: "#00FF00"}}
	return c
}

// testApp returns an App with the test config and its output captured.
func testApp(t *testing.T) (*App, *bytesBuffer) {
	t.Helper()
	app := NewApp()
	app.Config = testConfig()
	out := &bytesBuffer{}
	app.Out = out
	return app, out
}

// bytesBuffer is a bytes.Buffer safe for the service goroutines.
type bytesBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bytesBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
