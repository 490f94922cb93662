package cover

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/errgroup"
)

// boundaryTolerance absorbs floating point round-off in the radius and
// half-angle gates so cells lying exactly on those limits stay included.
const boundaryTolerance = 1e-9

// VisibilityMatrix is the binary cell-by-pose relation: At(i, j) is true iff
// pose column j observes cell row i without obstruction.
type VisibilityMatrix struct {
	rows, cols int
	data       []bool
}

// NewVisibilityMatrix returns an all-zero matrix.
func NewVisibilityMatrix(rows, cols int) *VisibilityMatrix {
	return &VisibilityMatrix{rows: rows, cols: cols, data: make([]bool, rows*cols)}
}

// Rows returns the number of cells.
func (v *VisibilityMatrix) Rows() int { return v.rows }

// Cols returns the number of candidate pose columns.
func (v *VisibilityMatrix) Cols() int { return v.cols }

// At returns entry (row, col).
func (v *VisibilityMatrix) At(row, col int) bool {
	return v.data[row*v.cols+col]
}

// Set sets entry (row, col).
func (v *VisibilityMatrix) Set(row, col int, visible bool) {
	v.data[row*v.cols+col] = visible
}

// RowSupport returns the columns with a 1 in the given row, ascending.
func (v *VisibilityMatrix) RowSupport(row int) []int {
	var cols []int
	base := row * v.cols
	for j := 0; j < v.cols; j++ {
		if v.data[base+j] {
			cols = append(cols, j)
		}
	}
	return cols
}

// ColumnSupport returns the rows with a 1 in the given column, ascending.
func (v *VisibilityMatrix) ColumnSupport(col int) []int {
	var rows []int
	for i := 0; i < v.rows; i++ {
		if v.data[i*v.cols+col] {
			rows = append(rows, i)
		}
	}
	return rows
}

// EmptyRows returns the rows that contain no 1 entry.
func (v *VisibilityMatrix) EmptyRows() []int {
	var empty []int
	for i := 0; i < v.rows; i++ {
		found := false
		base := i * v.cols
		for j := 0; j < v.cols; j++ {
			if v.data[base+j] {
				found = true
				break
			}
		}
		if !found {
			empty = append(empty, i)
		}
	}
	return empty
}

// SelectColumns returns a copy restricted to cols (in the given order). Row
// order and count are preserved.
func (v *VisibilityMatrix) SelectColumns(cols []int) *VisibilityMatrix {
	out := NewVisibilityMatrix(v.rows, len(cols))
	for i := 0; i < v.rows; i++ {
		for k, j := range cols {
			out.data[i*out.cols+k] = v.data[i*v.cols+j]
		}
	}
	return out
}

// DropRows returns a copy without the listed rows.
func (v *VisibilityMatrix) DropRows(drop []int) *VisibilityMatrix {
	skip := make(map[int]bool, len(drop))
	for _, r := range drop {
		skip[r] = true
	}
	out := NewVisibilityMatrix(v.rows-len(skip), v.cols)
	k := 0
	for i := 0; i < v.rows; i++ {
		if skip[i] {
			continue
		}
		copy(out.data[k*v.cols:(k+1)*v.cols], v.data[i*v.cols:(i+1)*v.cols])
		k++
	}
	return out
}

// Uncovered returns the rows not observed by any of the given columns.
func (v *VisibilityMatrix) Uncovered(cols []int) []int {
	var missing []int
	for i := 0; i < v.rows; i++ {
		seen := false
		for _, j := range cols {
			if v.At(i, j) {
				seen = true
				break
			}
		}
		if !seen {
			missing = append(missing, i)
		}
	}
	return missing
}

// VisibilityBuilder evaluates which cells each candidate pose observes.
type VisibilityBuilder struct {
	Grid      *OccupancyGrid
	Footprint Footprint
	// Workers bounds the number of columns computed concurrently; <= 0
	// means GOMAXPROCS.
	Workers int
}

// Build computes the full visibility matrix. Columns are independent and are
// computed in parallel; each worker writes only its own columns.
func (b *VisibilityBuilder) Build(ctx context.Context, cells []Cell, poses []CandidatePose) (*VisibilityMatrix, error) {
	if b.Grid == nil {
		return nil, fmt.Errorf("%w: visibility builder has no grid", ErrInvalidParams)
	}
	if err := b.Footprint.Validate(); err != nil {
		return nil, err
	}

	v := NewVisibilityMatrix(len(cells), len(poses))
	if len(cells) == 0 || len(poses) == 0 {
		return v, nil
	}

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := max(1, (len(poses)+workers*4-1)/(workers*4))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(poses); start += chunk {
		end := min(start+chunk, len(poses))
		g.Go(func() error {
			for j := start; j < end; j++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				view := b.view(poses[j])
				for i, c := range cells {
					if view.observes(c) {
						v.Set(i, j, true)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building visibility matrix: %w", err)
	}
	return v, nil
}

// Observes evaluates a single (pose, cell) pair.
func (b *VisibilityBuilder) Observes(pose CandidatePose, cell Cell) bool {
	return b.view(pose).observes(cell)
}

// poseView caches everything about one pose that does not depend on the cell.
type poseView struct {
	grid     *OccupancyGrid
	origin   Pixel
	ring     orb.Ring
	axis     Point
	minDist  float64
	maxDist  float64
	maxAngle float64
}

func (b *VisibilityBuilder) view(p CandidatePose) poseView {
	g := b.Grid
	fp := b.Footprint

	placed := fp.Place(g, p)
	ring := make(orb.Ring, 0, len(placed)+1)
	for _, px := range placed {
		px.X = math.Max(0, math.Min(px.X, float64(g.Width)))
		px.Y = math.Max(0, math.Min(px.Y, float64(g.Height)))
		ring = append(ring, orb.Point{px.X, px.Y})
	}
	ring = append(ring, ring[0])

	return poseView{
		grid:     g,
		origin:   Pixel{X: p.X, Y: p.Y},
		ring:     ring,
		axis:     fp.CentroidVector.Rotate(p.Theta),
		minDist:  fp.MinRadius / g.Resolution,
		maxDist:  fp.MaxRadius / g.Resolution,
		maxAngle: fp.MaxAngle,
	}
}

func (v poseView) observes(c Cell) bool {
	d := Point{X: float64(c.X - v.origin.X), Y: float64(c.Y - v.origin.Y)}
	dist := d.Norm()
	if dist < v.minDist-boundaryTolerance || dist > v.maxDist+boundaryTolerance {
		return false
	}
	// a cell under the sensor origin has no direction; treat it as on-axis
	if dist > 0 && angleBetween(v.axis, d) > v.maxAngle+boundaryTolerance {
		return false
	}
	if !planar.RingContains(v.ring, orb.Point{float64(c.X), float64(c.Y)}) {
		return false
	}
	return lineOfSight(v.grid, v.origin, Pixel{X: c.X, Y: c.Y})
}
