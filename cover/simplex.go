package cover

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// DefaultTolerance is the simplex optimality tolerance.
	DefaultTolerance = 1e-10
	// DefaultMaxNodes bounds the branch-and-bound search.
	DefaultMaxNodes = 100000

	// snapTolerance pulls values that are within round-off of a bound onto it.
	snapTolerance = 1e-9
)

// SimplexSolver solves covering problems with gonum's simplex implementation.
// Integer problems are solved by depth-first branch-and-bound over LP
// relaxations.
type SimplexSolver struct {
	Tolerance float64
	MaxNodes  int
}

// NewSimplexSolver returns a solver with default tolerance and node limit.
func NewSimplexSolver() *SimplexSolver {
	return &SimplexSolver{Tolerance: DefaultTolerance, MaxNodes: DefaultMaxNodes}
}

func (s *SimplexSolver) tolerance() float64 {
	if s.Tolerance <= 0 {
		return DefaultTolerance
	}
	return s.Tolerance
}

// SolveRelaxed implements Solver.
func (s *SimplexSolver) SolveRelaxed(ctx context.Context, p *Problem) (Solution, error) {
	if err := ctx.Err(); err != nil {
		return Solution{}, err
	}
	lower, upper := p.bounds()
	return s.solveLP(p, lower, upper)
}

// solveLP solves p with the given bounds in place of the declared ones.
//
// The problem is shifted so every free variable starts at zero
// (y = x - lower) and brought to standard form:
//
//	sum(y_j in row i) - s_i = rhs_i - sum(lower_j in row i)
//	y_j + t_j = upper_j - lower_j   (only where the bound can bind)
//
// Rows already satisfied by the lower bounds are dropped, variables with
// equal bounds are fixed, and variables appearing in no remaining row are set
// to whichever bound minimizes their cost.
func (s *SimplexSolver) solveLP(p *Problem, lower, upper []float64) (Solution, error) {
	n := len(p.vars)
	values := make([]float64, n)
	free := make([]bool, n)

	for j, v := range p.vars {
		if math.IsInf(lower[j], 0) || math.IsNaN(lower[j]) || math.IsNaN(upper[j]) {
			return Solution{}, &SolveFailure{Problem: p.Name, Status: StatusInvalidProblem}
		}
		if lower[j] > upper[j]+snapTolerance {
			return Solution{Status: StatusInfeasible}, nil
		}
		if math.IsNaN(v.cost) || math.IsInf(v.cost, 0) {
			return Solution{}, &SolveFailure{Problem: p.Name, Status: StatusInvalidProblem}
		}
		values[j] = lower[j]
		free[j] = upper[j]-lower[j] > snapTolerance
	}

	var rows []activeRow
	maxRHS := make([]float64, n)
	inRow := make([]bool, n)
	for _, r := range p.rows {
		rhs := r.rhs
		var vars []int
		for _, id := range r.vars {
			rhs -= lower[id]
			if free[id] {
				vars = append(vars, int(id))
			}
		}
		if rhs <= snapTolerance {
			continue
		}
		if len(vars) == 0 {
			return Solution{Status: StatusInfeasible}, nil
		}
		for _, j := range vars {
			inRow[j] = true
			maxRHS[j] = math.Max(maxRHS[j], rhs)
		}
		rows = append(rows, activeRow{vars: vars, rhs: rhs})
	}

	// Free variables outside every row sit at their cheaper bound.
	var structural []int
	for j, v := range p.vars {
		if !free[j] {
			continue
		}
		if inRow[j] {
			structural = append(structural, j)
			continue
		}
		if v.cost < 0 {
			if math.IsInf(upper[j], 1) {
				return Solution{Status: StatusUnbounded}, nil
			}
			values[j] = upper[j]
		}
	}

	// Upper-bound rows are needed unless a positive cost keeps the variable
	// below the largest right-hand side it appears in anyway.
	var bounded []int
	for _, j := range structural {
		span := upper[j] - lower[j]
		cost := p.vars[j].cost
		if math.IsInf(span, 1) {
			if cost < 0 {
				return Solution{Status: StatusUnbounded}, nil
			}
			continue
		}
		if cost > 0 && span >= maxRHS[j] {
			continue
		}
		bounded = append(bounded, j)
	}

	if len(rows) > 0 {
		x, err := s.simplex(p, structural, rows, bounded, lower, upper)
		if err != nil {
			switch {
			case errors.Is(err, lp.ErrInfeasible):
				return Solution{Status: StatusInfeasible}, nil
			case errors.Is(err, lp.ErrUnbounded):
				return Solution{Status: StatusUnbounded}, nil
			default:
				return Solution{}, &SolveFailure{Problem: p.Name, Status: StatusNumericFailure, Err: err}
			}
		}
		for k, j := range structural {
			values[j] = lower[j] + x[k]
		}
	}

	for j := range values {
		values[j] = snap(values[j], lower[j], upper[j])
	}
	return Solution{
		Status:    StatusOptimal,
		Values:    values,
		Objective: p.Objective(values),
	}, nil
}

// simplex assembles the standard form and returns the structural part of the
// optimum. Columns are laid out as [structural | surplus | slack].
func (s *SimplexSolver) simplex(p *Problem, structural []int, rows []activeRow, bounded []int, lower, upper []float64) ([]float64, error) {
	col := make(map[int]int, len(structural))
	for k, j := range structural {
		col[j] = k
	}

	m := len(rows) + len(bounded)
	nStruct := len(structural)
	cols := nStruct + len(rows) + len(bounded)

	A := mat.NewDense(m, cols, nil)
	b := make([]float64, m)
	c := make([]float64, cols)
	for k, j := range structural {
		c[k] = p.vars[j].cost
	}
	for i, r := range rows {
		for _, j := range r.vars {
			A.Set(i, col[j], 1)
		}
		A.Set(i, nStruct+i, -1)
		b[i] = r.rhs
	}
	for k, j := range bounded {
		i := len(rows) + k
		A.Set(i, col[j], 1)
		A.Set(i, nStruct+len(rows)+k, 1)
		b[i] = upper[j] - lower[j]
	}

	_, x, err := lp.Simplex(c, A, b, s.tolerance(), nil)
	if err != nil {
		return nil, err
	}
	return x[:nStruct], nil
}

// activeRow is a covering row after the lower-bound shift, listing only the
// free variables.
type activeRow struct {
	vars []int
	rhs  float64
}

func snap(v, lower, upper float64) float64 {
	switch {
	case math.Abs(v-lower) <= snapTolerance:
		return lower
	case math.Abs(v-upper) <= snapTolerance:
		return upper
	case v < lower:
		return lower
	case v > upper:
		return upper
	}
	return v
}
