package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kwv/tudocover/cover"
	"github.com/kwv/tudocover/mesh"
)

// testPlan is a 10x6 room at 5 cm per pixel with a one pixel wall border,
// one pose at (2,3) facing +x and one uncovered cell at (8,1).
func testPlan(t *testing.T) *mesh.SegmentPlan {
	t.Helper()
	g, err := cover.NewOccupancyGrid(10, 6, 0.05, cover.Point{})
	require.NoError(t, err)
	for y := 1; y < 5; y++ {
		for x := 1; x < 9; x++ {
			g.SetFree(x, y, true)
		}
	}
	g.SetFree(8, 1, true)

	fp, err := cover.NewFootprint([]cover.Point{
		{X: 0.05, Y: -0.05}, {X: 0.15, Y: -0.05}, {X: 0.15, Y: 0.05}, {X: 0.05, Y: 0.05},
	})
	require.NoError(t, err)

	res := &cover.Result{
		Cells:     []cover.Cell{{GridX: 0, GridY: 0, X: 2, Y: 3}, {GridX: 3, GridY: 0, X: 8, Y: 1}},
		Poses:     []cover.CandidatePose{{Index: 0, X: 2, Y: 3, Theta: 0}},
		Selected:  []int{0},
		Uncovered: []cover.Cell{{GridX: 3, GridY: 0, X: 8, Y: 1}},
		Relaxation: &cover.Relaxation{
			History:     cover.SparsityHistory{4, 2, 1, 1, 1},
			Iterations:  5,
			Termination: cover.StateConverged,
		},
	}
	params := cover.Params{CellSize: 3, DeltaTheta: 1.5707963267948966, Footprint: fp, SparsityCheckRange: 3}
	return mesh.NewSegmentPlan("rocky7", mesh.Segment{ID: "1", Name: "Kitchen"}, g, params, res)
}
