// Package store keeps a history of computed plans in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kwv/tudocover/cover"
	"github.com/kwv/tudocover/mesh"
)

// ErrNotFound is returned when no plan matches a lookup.
var ErrNotFound = errors.New("plan not found")

// Store is a SQLite-backed plan history.
type Store struct {
	db *sql.DB
}

// Record is one stored plan. It carries the poses and parameters but not the
// occupancy grid or the planner internals.
type Record struct {
	PlanID         string              `json:"planId"`
	VacuumID       string              `json:"vacuumId"`
	SegmentID      string              `json:"segmentId"`
	SegmentName    string              `json:"segmentName,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	MapVersion     int                 `json:"mapVersion"`
	CellCount      int                 `json:"cellCount"`
	CandidateCount int                 `json:"candidateCount"`
	PoseCount      int                 `json:"poseCount"`
	UncoveredCount int                 `json:"uncoveredCount"`
	Iterations     int                 `json:"iterations"`
	Termination    cover.State         `json:"termination"`
	Reduction      cover.ReductionMode `json:"reduction"`
	Coverage       float64             `json:"coverage"`
	Poses          []mesh.PlannedPose  `json:"poses"`
	Params         cover.Params        `json:"params"`
}

// Plan converts the record back into a plan without grid or result.
func (r *Record) Plan() *mesh.SegmentPlan {
	return &mesh.SegmentPlan{
		ID:          r.PlanID,
		VacuumID:    r.VacuumID,
		SegmentID:   r.SegmentID,
		SegmentName: r.SegmentName,
		CreatedAt:   r.CreatedAt,
		MapVersion:  r.MapVersion,
		Params:      r.Params,
		Poses:       r.Poses,
		Coverage:    r.Coverage,
	}
}

// Open opens (or creates) the database at path and migrates it to the latest
// schema. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// ":memory:" databases live per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores plan and returns its ID. A plan without ID gets a new UUID,
// which is written back to plan.ID.
func (s *Store) Insert(ctx context.Context, plan *mesh.SegmentPlan) (string, error) {
	if plan == nil {
		return "", fmt.Errorf("insert: nil plan")
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	poses, err := json.Marshal(plan.Poses)
	if err != nil {
		return "", fmt.Errorf("encode poses: %w", err)
	}
	params, err := json.Marshal(plan.Params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}

	var cells, candidates, uncovered, iterations int
	termination := cover.StateStart
	reduction := cover.ReductionZeroValued
	if res := plan.Result; res != nil {
		cells = len(res.Cells)
		candidates = len(res.Candidates)
		uncovered = len(res.Uncovered)
		reduction = res.Reduction
		if res.Relaxation != nil {
			iterations = res.Relaxation.Iterations
			termination = res.Relaxation.Termination
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (
			plan_id, vacuum_id, segment_id, segment_name, created_at, map_version,
			cell_count, candidate_count, pose_count, uncovered_count,
			iterations, termination, reduction, coverage, poses_json, params_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.VacuumID, plan.SegmentID, plan.SegmentName, plan.CreatedAt.UnixNano(), plan.MapVersion,
		cells, candidates, len(plan.Poses), uncovered,
		iterations, termination.String(), reduction.String(), plan.Coverage, string(poses), string(params),
	)
	if err != nil {
		return "", fmt.Errorf("insert plan %s: %w", plan.ID, err)
	}
	return plan.ID, nil
}

const selectColumns = `
	plan_id, vacuum_id, segment_id, segment_name, created_at, map_version,
	cell_count, candidate_count, pose_count, uncovered_count,
	iterations, termination, reduction, coverage, poses_json, params_json`

// Get returns the plan with the given ID.
func (s *Store) Get(ctx context.Context, planID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM plans WHERE plan_id = ?`, planID)
	return scanRecord(row)
}

// Latest returns the most recent plan for a vacuum and segment.
func (s *Store) Latest(ctx context.Context, vacuumID, segmentID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM plans
		WHERE vacuum_id = ? AND segment_id = ?
		ORDER BY created_at DESC LIMIT 1`, vacuumID, segmentID)
	return scanRecord(row)
}

// List returns a vacuum's plans, newest first. An empty vacuumID lists all
// vacuums. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, vacuumID string, limit int) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM plans`
	var args []interface{}
	if vacuumID != "" {
		query += ` WHERE vacuum_id = ?`
		args = append(args, vacuumID)
	}
	query += ` ORDER BY created_at DESC, plan_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep plans per vacuum and segment and
// returns the number of deleted rows.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("prune: keep must be at least 1, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM plans WHERE plan_id IN (
			SELECT plan_id FROM (
				SELECT plan_id, ROW_NUMBER() OVER (
					PARTITION BY vacuum_id, segment_id ORDER BY created_at DESC
				) AS rn FROM plans
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune plans: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r           Record
		created     int64
		termination string
		reduction   string
		poses       string
		params      string
	)
	err := row.Scan(
		&r.PlanID, &r.VacuumID, &r.SegmentID, &r.SegmentName, &created, &r.MapVersion,
		&r.CellCount, &r.CandidateCount, &r.PoseCount, &r.UncoveredCount,
		&r.Iterations, &termination, &reduction, &r.Coverage, &poses, &params,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	r.CreatedAt = time.Unix(0, created).UTC()
	if err := r.Termination.UnmarshalText([]byte(termination)); err != nil {
		return nil, fmt.Errorf("plan %s: %w", r.PlanID, err)
	}
	if err := r.Reduction.UnmarshalText([]byte(reduction)); err != nil {
		return nil, fmt.Errorf("plan %s: %w", r.PlanID, err)
	}
	if err := json.Unmarshal([]byte(poses), &r.Poses); err != nil {
		return nil, fmt.Errorf("plan %s: decode poses: %w", r.PlanID, err)
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("plan %s: decode params: %w", r.PlanID, err)
	}
	return &r, nil
}
