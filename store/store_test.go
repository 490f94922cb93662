package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/tudocover/cover"
	"github.com/kwv/tudocover/mesh"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPlan(vacuumID, segmentID string, created time.Time) *mesh.SegmentPlan {
	return &mesh.SegmentPlan{
		VacuumID:    vacuumID,
		SegmentID:   segmentID,
		SegmentName: "Kitchen",
		CreatedAt:   created,
		MapVersion:  2,
		Params: cover.Params{
			CellSize:           10,
			DeltaTheta:         1.5707963267948966,
			SparsityCheckRange: 5,
			Footprint: cover.Footprint{
				Points:         []cover.Point{{X: 0.25, Y: -0.25}, {X: 0.75, Y: -0.25}, {X: 0.75, Y: 0.25}},
				CentroidVector: cover.Point{X: 0.58, Y: -0.08},
				MaxAngle:       0.5,
				MinRadius:      0.35,
				MaxRadius:      0.79,
			},
		},
		Poses: []mesh.PlannedPose{
			{Index: 4, X: 512.5, Y: 1010, Angle: 90, GridX: 3, GridY: 2},
			{Index: 9, X: 530, Y: 1010, Angle: 0, GridX: 7, GridY: 2},
		},
		Coverage: 1,
		Result: &cover.Result{
			Cells:      make([]cover.Cell, 6),
			Candidates: make([]cover.CandidatePose, 24),
			Reduction:  cover.ReductionSupportFallback,
			Relaxation: &cover.Relaxation{Iterations: 7, Termination: cover.StateConverged},
		},
	}
}

func TestOpen_Migrates(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Running again is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Insert(context.Background(), testPlan("rocky7", "1", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "rocky7", rec.VacuumID)
}

func TestInsert_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	plan := testPlan("rocky7", "1", created)
	id, err := s.Insert(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, id, plan.ID)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rocky7", rec.VacuumID)
	assert.Equal(t, "1", rec.SegmentID)
	assert.Equal(t, "Kitchen", rec.SegmentName)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Equal(t, 2, rec.MapVersion)
	assert.Equal(t, 6, rec.CellCount)
	assert.Equal(t, 24, rec.CandidateCount)
	assert.Equal(t, 2, rec.PoseCount)
	assert.Equal(t, 7, rec.Iterations)
	assert.Equal(t, cover.StateConverged, rec.Termination)
	assert.Equal(t, cover.ReductionSupportFallback, rec.Reduction)
	assert.Equal(t, plan.Poses, rec.Poses)
	assert.Equal(t, plan.Params, rec.Params)

	back := rec.Plan()
	assert.Equal(t, id, back.ID)
	assert.Nil(t, back.Grid)
	assert.Nil(t, back.Result)
	assert.Equal(t, plan.Poses, back.Poses)
}

func TestInsert_KeepsExistingID(t *testing.T) {
	s := openTestStore(t)
	plan := testPlan("rocky7", "1", time.Now())
	plan.ID = "fixed-id"

	id, err := s.Insert(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	_, err = s.Insert(context.Background(), plan)
	assert.Error(t, err, "duplicate plan id")
}

func TestInsert_WithoutResult(t *testing.T) {
	s := openTestStore(t)
	plan := testPlan("rocky7", "", time.Now())
	plan.Result = nil

	id, err := s.Insert(context.Background(), plan)
	require.NoError(t, err)
	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.CellCount)
	assert.Equal(t, cover.StateStart, rec.Termination)
}

func TestLatestAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i, v := range []struct{ vacuum, segment string }{
		{"rocky7", "1"}, {"rocky7", "1"}, {"rocky7", "2"}, {"zed", "1"},
	} {
		id, err := s.Insert(ctx, testPlan(v.vacuum, v.segment, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	latest, err := s.Latest(ctx, "rocky7", "1")
	require.NoError(t, err)
	assert.Equal(t, ids[1], latest.PlanID)

	_, err = s.Latest(ctx, "rocky7", "9")
	assert.ErrorIs(t, err, ErrNotFound)

	rocky, err := s.List(ctx, "rocky7", 0)
	require.NoError(t, err)
	require.Len(t, rocky, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{rocky[0].PlanID, rocky[1].PlanID, rocky[2].PlanID})

	all, err := s.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ids[3], all[0].PlanID)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := s.Insert(ctx, testPlan("rocky7", "1", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, testPlan("rocky7", "2", base))
	require.NoError(t, err)

	n, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.List(ctx, "rocky7", 0)
	require.NoError(t, err)
	assert.Len(t, left, 3)

	_, err = s.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert(context.Background(), testPlan("rocky7", "1", time.Now()))
	require.NoError(t, err)
	list, err := s.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
