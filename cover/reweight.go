package cover

import (
	"context"
	"fmt"
	"log"
	"math"
)

const (
	// MaxIterations is the hard cap on reweighting iterations.
	MaxIterations = 200
	// SparsityTolerance is the value at or below which a column counts as
	// zero in the sparsity measure.
	SparsityTolerance = 0.01
	// DefaultSparsityCheckRange is the default plateau length.
	DefaultSparsityCheckRange = 5
)

// Epsilon returns epsilon_k = (1/(e-1))^(1 + (k-1)*0.1) for iteration k >= 1.
func Epsilon(k int) float64 {
	return math.Pow(1/(math.E-1), 1+float64(k-1)*0.1)
}

// UpdateWeights sets w_i = eps / (eps + c_i) in place.
func UpdateWeights(weights, values []float64, eps float64) {
	for i, c := range values {
		weights[i] = eps / (eps + c)
	}
}

// SparsityMeasure counts the values at or below SparsityTolerance.
func SparsityMeasure(values []float64) int {
	n := 0
	for _, v := range values {
		if v <= SparsityTolerance {
			n++
		}
	}
	return n
}

// SparsityHistory is the sequence of sparsity measurements, one per iteration.
type SparsityHistory []int

// Append records a measurement.
func (h *SparsityHistory) Append(s int) {
	*h = append(*h, s)
}

// Converged reports whether the last r measurements exist and are all equal
// to the most recent one. Values must match exactly.
func (h SparsityHistory) Converged(r int) bool {
	if r <= 0 || len(h) < r {
		return false
	}
	last := h[len(h)-1]
	for _, s := range h[len(h)-r:] {
		if s != last {
			return false
		}
	}
	return true
}

// Relaxation is the outcome of the reweighting loop.
type Relaxation struct {
	// Solution is the last relaxed solution.
	Solution Solution `json:"solution"`
	// Weights are the weights computed from Solution, i.e. the costs the next
	// iteration would have used.
	Weights     []float64       `json:"weights"`
	History     SparsityHistory `json:"history"`
	Iterations  int             `json:"iterations"`
	Termination State           `json:"termination"`
}

// Scheduler runs the iterative reweighted relaxation. It owns the weight
// vector and sparsity history for the duration of Run.
type Scheduler struct {
	Solver Solver
	// CheckRange is the plateau length that declares convergence.
	CheckRange int
	// MaxIterations lowers the iteration cap; values <= 0 or above
	// MaxIterations mean MaxIterations.
	MaxIterations int
	Logger        *log.Logger
}

func (s *Scheduler) limit() int {
	if s.MaxIterations <= 0 || s.MaxIterations > MaxIterations {
		return MaxIterations
	}
	return s.MaxIterations
}

// Run iterates until the sparsity plateaus or the iteration cap is hit.
// Hitting the cap is not an error; both outcomes return the latest solution.
func (s *Scheduler) Run(ctx context.Context, v *VisibilityMatrix) (*Relaxation, error) {
	if s.Solver == nil {
		return nil, fmt.Errorf("%w: scheduler has no solver", ErrInvalidParams)
	}
	if s.CheckRange <= 0 {
		return nil, fmt.Errorf("%w: sparsity check range must be positive, got %d", ErrInvalidParams, s.CheckRange)
	}
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}

	weights := make([]float64, v.Cols())
	for i := range weights {
		weights[i] = 1
	}

	rel := &Relaxation{Termination: StateIterationLimitReached}
	limit := s.limit()
	for k := 1; k <= limit; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := buildCoveringProblem(fmt.Sprintf("relaxation-%d", k), v, weights)
		if err != nil {
			return nil, err
		}
		sol, err := s.Solver.SolveRelaxed(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("relaxation iteration %d: %w", k, err)
		}
		if sol.Status != StatusOptimal {
			return nil, &SolveFailure{Problem: p.Name, Status: sol.Status}
		}
		if len(sol.Values) != v.Cols() {
			return nil, fmt.Errorf("relaxation iteration %d: solver returned %d values for %d columns", k, len(sol.Values), v.Cols())
		}

		UpdateWeights(weights, sol.Values, Epsilon(k))
		sparsity := SparsityMeasure(sol.Values)
		rel.History.Append(sparsity)
		rel.Solution = sol
		rel.Iterations = k
		logger.Printf("relaxation iteration %d: sparsity %d/%d, objective %.4f", k, sparsity, v.Cols(), sol.Objective)

		if rel.History.Converged(s.CheckRange) {
			rel.Termination = StateConverged
			break
		}
	}
	rel.Weights = append([]float64(nil), weights...)
	return rel, nil
}
