package cover

import (
	"context"
	"errors"
	"math"
	"slices"
)

const integralityTolerance = 1e-6

var errNodeLimit = errors.New("branch-and-bound node limit reached")

// SolveInteger implements Solver with depth-first branch-and-bound. Each node
// solves the LP relaxation under tightened bounds and branches on the most
// fractional variable, rounding up first.
func (s *SimplexSolver) SolveInteger(ctx context.Context, p *Problem) (Solution, error) {
	lower, upper := p.bounds()
	for j := range lower {
		lower[j] = math.Ceil(lower[j] - integralityTolerance)
		upper[j] = math.Floor(upper[j] + integralityTolerance)
	}

	maxNodes := s.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	bb := &branchAndBound{
		solver:   s,
		problem:  p,
		maxNodes: maxNodes,
		bestObj:  math.Inf(1),
		integral: integralCosts(p),
	}
	if err := bb.search(ctx, lower, upper); err != nil {
		switch {
		case errors.Is(err, errNodeLimit):
			return Solution{}, &SolveFailure{Problem: p.Name, Status: StatusNodeLimit, Err: err}
		case bb.unbounded:
			return Solution{Status: StatusUnbounded}, nil
		}
		return Solution{}, err
	}
	if bb.best == nil {
		return Solution{Status: StatusInfeasible}, nil
	}
	return Solution{Status: StatusOptimal, Values: bb.best, Objective: bb.bestObj}, nil
}

type branchAndBound struct {
	solver   *SimplexSolver
	problem  *Problem
	maxNodes int
	nodes    int
	integral bool

	best      []float64
	bestObj   float64
	unbounded bool
}

var errUnboundedRelaxation = errors.New("unbounded relaxation")

func (bb *branchAndBound) search(ctx context.Context, lower, upper []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bb.nodes++
	if bb.nodes > bb.maxNodes {
		return errNodeLimit
	}

	sol, err := bb.solver.solveLP(bb.problem, lower, upper)
	if err != nil {
		return err
	}
	switch sol.Status {
	case StatusInfeasible:
		return nil
	case StatusUnbounded:
		bb.unbounded = true
		return errUnboundedRelaxation
	}

	bound := sol.Objective
	if bb.integral {
		bound = math.Ceil(bound - integralityTolerance)
	}
	if bound >= bb.bestObj-integralityTolerance {
		return nil
	}

	j := mostFractional(sol.Values)
	if j < 0 {
		bb.accept(roundAll(sol.Values))
		return nil
	}
	if bb.nodes == 1 {
		bb.tryRounding(sol.Values, upper)
	}

	v := sol.Values[j]
	up := slices.Clone(lower)
	up[j] = math.Ceil(v)
	if err := bb.search(ctx, up, upper); err != nil {
		return err
	}
	down := slices.Clone(upper)
	down[j] = math.Floor(v)
	return bb.search(ctx, lower, down)
}

// tryRounding seeds the incumbent by rounding the root relaxation up.
func (bb *branchAndBound) tryRounding(values, upper []float64) {
	rounded := make([]float64, len(values))
	for j, v := range values {
		rounded[j] = math.Min(math.Ceil(v-integralityTolerance), upper[j])
	}
	if bb.problem.Satisfied(rounded, integralityTolerance) {
		bb.accept(rounded)
	}
}

func (bb *branchAndBound) accept(values []float64) {
	obj := bb.problem.Objective(values)
	if obj < bb.bestObj {
		bb.best = values
		bb.bestObj = obj
	}
}

// mostFractional returns the variable furthest from an integer, or -1 if all
// values are integral.
func mostFractional(values []float64) int {
	idx, worst := -1, integralityTolerance
	for j, v := range values {
		frac := math.Abs(v - math.Round(v))
		if frac > worst {
			idx, worst = j, frac
		}
	}
	return idx
}

func roundAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for j, v := range values {
		out[j] = math.Round(v)
	}
	return out
}

func integralCosts(p *Problem) bool {
	for _, v := range p.vars {
		if v.cost != math.Trunc(v.cost) {
			return false
		}
	}
	return true
}
