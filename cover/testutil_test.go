package cover

import (
	"io"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

var quietLogger = log.New(io.Discard, "", 0)

// coneFootprint is a triangle with its apex at the sensor: 2 m deep, 2 m
// wide at the far edge.
func coneFootprint(t *testing.T) Footprint {
	t.Helper()
	fp, err := NewFootprint([]Point{{X: 0, Y: 0}, {X: 2, Y: -1}, {X: 2, Y: 1}})
	require.NoError(t, err)
	return fp
}

// squareFootprint is a 1 m square starting 0.5 m ahead of the sensor, so
// the sensor never sees its own cell.
func squareFootprint(t *testing.T) Footprint {
	t.Helper()
	fp, err := NewFootprint([]Point{{X: 0.5, Y: -0.5}, {X: 1.5, Y: -0.5}, {X: 1.5, Y: 0.5}, {X: 0.5, Y: 0.5}})
	require.NoError(t, err)
	return fp
}

// gridFromRows builds a grid from strings where '.' is free and anything
// else occupied.
func gridFromRows(t *testing.T, resolution float64, rows ...string) *OccupancyGrid {
	t.Helper()
	g, err := NewOccupancyGrid(len(rows[0]), len(rows), resolution, Point{})
	require.NoError(t, err)
	for y, row := range rows {
		for x, ch := range row {
			g.SetFree(x, y, ch == '.')
		}
	}
	return g
}

func openGrid(t *testing.T, width, height int, resolution float64) *OccupancyGrid {
	t.Helper()
	g, err := NewOccupancyGrid(width, height, resolution, Point{})
	require.NoError(t, err)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g.SetFree(x, y, true)
		}
	}
	return g
}

func matrixFromRows(rows ...[]int) *VisibilityMatrix {
	v := NewVisibilityMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		for j, x := range row {
			v.Set(i, j, x == 1)
		}
	}
	return v
}
