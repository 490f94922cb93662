package cover

import (
	"context"
	"fmt"
	"log"
	"math"
)

// Params configures a planning run.
type Params struct {
	// CellSize is the grid spacing in pixels.
	CellSize int `json:"cellSize"`
	// DeltaTheta is the heading step in radians.
	DeltaTheta float64 `json:"deltaTheta"`
	// Region bounds the area to discretize; zero means the whole grid.
	Region    Bounds    `json:"region"`
	Footprint Footprint `json:"footprint"`
	// SparsityCheckRange is the plateau length that ends reweighting.
	SparsityCheckRange int `json:"sparsityCheckRange"`
	// MaxIterations optionally lowers the reweighting cap of MaxIterations.
	MaxIterations int `json:"maxIterations,omitempty"`
	// Workers bounds visibility workers; <= 0 means GOMAXPROCS.
	Workers int `json:"workers,omitempty"`
	// AllowPartialCoverage plans around unobservable cells instead of
	// failing. They are reported in Result.Uncovered.
	AllowPartialCoverage bool `json:"allowPartialCoverage,omitempty"`
}

// Validate checks the parameters before any work is done.
func (p Params) Validate() error {
	if p.CellSize <= 0 {
		return fmt.Errorf("%w: cellSize must be positive, got %d", ErrInvalidParams, p.CellSize)
	}
	if !(p.DeltaTheta > 0) || p.DeltaTheta > 2*math.Pi {
		return fmt.Errorf("%w: deltaTheta must be in (0, 2pi], got %v", ErrInvalidParams, p.DeltaTheta)
	}
	if p.SparsityCheckRange <= 0 {
		return fmt.Errorf("%w: sparsityCheckRange must be positive, got %d", ErrInvalidParams, p.SparsityCheckRange)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("%w: maxIterations must not be negative, got %d", ErrInvalidParams, p.MaxIterations)
	}
	if !p.Region.IsZero() && p.Region.Empty() {
		return fmt.Errorf("%w: region min (%d,%d) exceeds max (%d,%d)", ErrInvalidParams,
			p.Region.Min.X, p.Region.Min.Y, p.Region.Max.X, p.Region.Max.Y)
	}
	return p.Footprint.Validate()
}

// Result is a completed plan.
type Result struct {
	Cells      []Cell            `json:"cells"`
	Candidates []CandidatePose   `json:"candidates"`
	Visibility *VisibilityMatrix `json:"-"`
	Relaxation *Relaxation       `json:"relaxation"`
	// Kept are the candidate indices that entered the final solve.
	Kept      []int         `json:"kept"`
	Reduction ReductionMode `json:"reduction"`
	// Selected are the candidate indices of the chosen poses, ascending.
	Selected []int           `json:"selected"`
	Poses    []CandidatePose `json:"poses"`
	// Uncovered lists cells no candidate can observe. It is only non-empty
	// when partial coverage was allowed.
	Uncovered []Cell  `json:"uncovered,omitempty"`
	States    []State `json:"states"`
}

// Coverage returns the fraction of cells observed by at least one selected
// pose.
func (r *Result) Coverage() float64 {
	if r.Visibility == nil || len(r.Cells) == 0 {
		return 0
	}
	missing := r.Visibility.Uncovered(r.Selected)
	return float64(len(r.Cells)-len(missing)) / float64(len(r.Cells))
}

// Planner computes minimal sensing pose sets.
type Planner struct {
	Solver Solver
	Logger *log.Logger
}

// NewPlanner returns a planner backed by solver, or by a SimplexSolver when
// solver is nil.
func NewPlanner(solver Solver) *Planner {
	if solver == nil {
		solver = NewSimplexSolver()
	}
	return &Planner{Solver: solver}
}

func (pl *Planner) logger() *log.Logger {
	if pl.Logger == nil {
		return log.Default()
	}
	return pl.Logger
}

// Plan discretizes the region, builds the visibility matrix, runs the
// reweighted relaxation, reduces the candidates and solves the reduced
// problem exactly. Cancelling ctx abandons the run.
func (pl *Planner) Plan(ctx context.Context, grid *OccupancyGrid, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if pl.Solver == nil {
		return nil, fmt.Errorf("%w: planner has no solver", ErrInvalidParams)
	}
	logger := pl.logger()

	var trail stateTrail
	trail.advance(StateStart)

	cells, poses, err := Discretize(grid, params.Region, params.CellSize, params.DeltaTheta)
	if err != nil {
		return nil, err
	}
	logger.Printf("planner: %d cells, %d candidate poses", len(cells), len(poses))

	builder := &VisibilityBuilder{Grid: grid, Footprint: params.Footprint, Workers: params.Workers}
	full, err := builder.Build(ctx, cells, poses)
	if err != nil {
		return nil, err
	}

	res := &Result{Cells: cells, Candidates: poses, Visibility: full}

	work := full
	if empty := full.EmptyRows(); len(empty) > 0 {
		unseen := make([]Cell, len(empty))
		for k, i := range empty {
			unseen[k] = cells[i]
		}
		if !params.AllowPartialCoverage || len(empty) == len(cells) {
			return nil, &InfeasibleCoverageError{Cells: unseen}
		}
		logger.Printf("planner: warning: %d cell(s) cannot be observed, planning partial coverage", len(empty))
		res.Uncovered = unseen
		work = full.DropRows(empty)
	}

	trail.advance(StateIterating)
	sched := &Scheduler{
		Solver:        pl.Solver,
		CheckRange:    params.SparsityCheckRange,
		MaxIterations: params.MaxIterations,
		Logger:        logger,
	}
	rel, err := sched.Run(ctx, work)
	if err != nil {
		return nil, err
	}
	res.Relaxation = rel
	trail.advance(rel.Termination)
	logger.Printf("planner: relaxation %s after %d iteration(s)", rel.Termination, rel.Iterations)

	trail.advance(StateReduce)
	mode := ReductionZeroValued
	reduced, kept := reduce(work, rel.Solution.Values, mode)
	if len(reduced.EmptyRows()) > 0 {
		logger.Printf("planner: warning: zero-valued columns leave cells uncovered, reducing to the relaxed support")
		mode = ReductionSupportFallback
		reduced, kept = reduce(work, rel.Solution.Values, mode)
	}

	trail.advance(StateFinalSolve)
	sol, err := pl.solveFinal(ctx, reduced)
	if err != nil {
		return nil, err
	}
	if sol.Status == StatusInfeasible && mode == ReductionZeroValued {
		logger.Printf("planner: warning: reduced problem infeasible, reducing to the relaxed support")
		mode = ReductionSupportFallback
		reduced, kept = reduce(work, rel.Solution.Values, mode)
		if sol, err = pl.solveFinal(ctx, reduced); err != nil {
			return nil, err
		}
	}
	if sol.Status != StatusOptimal {
		return nil, &SolveFailure{Problem: "final", Status: sol.Status}
	}
	res.Kept = kept
	res.Reduction = mode

	for k, x := range sol.Values {
		if math.Round(x) == 1 {
			res.Selected = append(res.Selected, kept[k])
			res.Poses = append(res.Poses, poses[kept[k]])
		}
	}
	if missing := work.Uncovered(res.Selected); len(missing) > 0 {
		return nil, fmt.Errorf("final selection leaves %d observable cell(s) uncovered", len(missing))
	}

	trail.advance(StateDone)
	res.States = trail
	logger.Printf("planner: selected %d of %d candidates (%s reduction kept %d)", len(res.Selected), len(poses), mode, len(kept))
	return res, nil
}

func (pl *Planner) solveFinal(ctx context.Context, reduced *VisibilityMatrix) (Solution, error) {
	p, err := buildCoveringProblem("final", reduced, nil)
	if err != nil {
		return Solution{}, err
	}
	return pl.Solver.SolveInteger(ctx, p)
}
