package cover

import (
	"fmt"
	"math"
)

// Cell is a free-space grid point considered for coverage. GridX/GridY are
// the cell's index in the discretization, X/Y its center pixel.
type Cell struct {
	GridX int `json:"gridX"`
	GridY int `json:"gridY"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

// CandidatePose is a sensing pose at a cell center. Index is its position in
// the candidate sequence and therefore its visibility matrix column.
type CandidatePose struct {
	Index int     `json:"index"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Theta float64 `json:"theta"` // radians
}

// Discretize samples the region with the given cell size and emits one
// candidate pose per free cell and heading 0, dTheta, 2*dTheta, ... < 2*pi.
//
// Cells are ordered row-major (y outer, x inner) and candidates by cell and
// then ascending heading, so identical inputs always produce identical matrix
// indices. A zero region means the whole grid.
func Discretize(grid *OccupancyGrid, region Bounds, cellSize int, deltaTheta float64) ([]Cell, []CandidatePose, error) {
	if grid == nil {
		return nil, nil, fmt.Errorf("%w: nil occupancy grid", ErrInvalidParams)
	}
	if cellSize <= 0 {
		return nil, nil, fmt.Errorf("%w: cell size must be positive, got %d", ErrInvalidParams, cellSize)
	}
	if !(deltaTheta > 0) || math.IsInf(deltaTheta, 0) {
		return nil, nil, fmt.Errorf("%w: angle step must be positive, got %v", ErrInvalidParams, deltaTheta)
	}

	if region.IsZero() {
		region = grid.Bounds()
	}
	clipped := region.Intersect(grid.Bounds())

	var cells []Cell
	if !clipped.Empty() {
		half := cellSize / 2
		for gy, y := 0, region.Min.Y+half; y <= clipped.Max.Y; gy, y = gy+1, y+cellSize {
			for gx, x := 0, region.Min.X+half; x <= clipped.Max.X; gx, x = gx+1, x+cellSize {
				if grid.IsFree(x, y) {
					cells = append(cells, Cell{GridX: gx, GridY: gy, X: x, Y: y})
				}
			}
		}
	}
	if len(cells) == 0 {
		return nil, nil, &EmptyRegionError{Region: region, CellSize: cellSize}
	}

	headings := Headings(deltaTheta)
	poses := make([]CandidatePose, 0, len(cells)*len(headings))
	for _, c := range cells {
		for _, theta := range headings {
			poses = append(poses, CandidatePose{
				Index: len(poses),
				X:     c.X,
				Y:     c.Y,
				Theta: theta,
			})
		}
	}
	return cells, poses, nil
}

// Headings returns k*deltaTheta for every k with k*deltaTheta < 2*pi. A step
// that does not divide the full turn simply truncates the last partial step.
func Headings(deltaTheta float64) []float64 {
	var out []float64
	for k := 0; ; k++ {
		theta := float64(k) * deltaTheta
		if theta >= 2*math.Pi {
			break
		}
		out = append(out, theta)
	}
	return out
}
