package cover

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	// StatusNumericFailure covers solver-internal errors such as a singular
	// basis.
	StatusNumericFailure
	// StatusNodeLimit means branch-and-bound gave up before proving optimality.
	StatusNodeLimit
	// StatusInvalidProblem means the problem definition cannot be solved as
	// posed (for example an infinite lower bound).
	StatusInvalidProblem
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusNumericFailure:
		return "numeric failure"
	case StatusNodeLimit:
		return "node limit reached"
	case StatusInvalidProblem:
		return "invalid problem"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// VariableID identifies a variable within its Problem. IDs are assigned in
// AddVariable order starting at 0.
type VariableID int

type variable struct {
	cost  float64
	lower float64
	upper float64
}

type covering struct {
	vars []VariableID
	rhs  float64
}

// Problem is a covering program: minimize sum(cost_j * x_j) subject to
// lower_j <= x_j <= upper_j and, for every constraint, sum of its listed
// variables >= rhs.
type Problem struct {
	Name string

	vars []variable
	rows []covering
}

// NewProblem creates an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddVariable declares a variable and returns its ID.
func (p *Problem) AddVariable(cost, lower, upper float64) VariableID {
	p.vars = append(p.vars, variable{cost: cost, lower: lower, upper: upper})
	return VariableID(len(p.vars) - 1)
}

// AddCoveringConstraint adds sum(x_j for j in vars) >= rhs. Duplicate IDs are
// counted once.
func (p *Problem) AddCoveringConstraint(vars []VariableID, rhs float64) error {
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return fmt.Errorf("problem %s: invalid right-hand side %v", p.Name, rhs)
	}
	seen := make(map[VariableID]bool, len(vars))
	row := covering{rhs: rhs, vars: make([]VariableID, 0, len(vars))}
	for _, id := range vars {
		if id < 0 || int(id) >= len(p.vars) {
			return fmt.Errorf("problem %s: unknown variable %d", p.Name, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		row.vars = append(row.vars, id)
	}
	p.rows = append(p.rows, row)
	return nil
}

// NumVariables returns the number of declared variables.
func (p *Problem) NumVariables() int { return len(p.vars) }

// NumConstraints returns the number of covering constraints.
func (p *Problem) NumConstraints() int { return len(p.rows) }

// Costs returns a copy of the objective coefficients.
func (p *Problem) Costs() []float64 {
	c := make([]float64, len(p.vars))
	for j, v := range p.vars {
		c[j] = v.cost
	}
	return c
}

func (p *Problem) bounds() (lower, upper []float64) {
	lower = make([]float64, len(p.vars))
	upper = make([]float64, len(p.vars))
	for j, v := range p.vars {
		lower[j], upper[j] = v.lower, v.upper
	}
	return lower, upper
}

// Objective evaluates the objective at values.
func (p *Problem) Objective(values []float64) float64 {
	return floats.Dot(p.Costs(), values)
}

// Satisfied reports whether values respect every bound and covering
// constraint within tol.
func (p *Problem) Satisfied(values []float64, tol float64) bool {
	if len(values) != len(p.vars) {
		return false
	}
	for j, v := range p.vars {
		if values[j] < v.lower-tol || values[j] > v.upper+tol {
			return false
		}
	}
	for _, row := range p.rows {
		sum := 0.0
		for _, id := range row.vars {
			sum += values[id]
		}
		if sum < row.rhs-tol {
			return false
		}
	}
	return true
}

// Solution is a solver result. Values has one entry per variable, in
// VariableID order, and is owned by the caller.
type Solution struct {
	Status    Status    `json:"status"`
	Values    []float64 `json:"values,omitempty"`
	Objective float64   `json:"objective"`
}

// Solver solves covering problems. Solving must not modify the problem;
// repeated solves of the same problem return the same optimum, although which
// of several tied optima is returned depends on the implementation.
//
// Optimal, infeasible and unbounded outcomes are reported through
// Solution.Status with a nil error. Any other outcome is returned as a
// *SolveFailure.
type Solver interface {
	// SolveRelaxed solves with continuous variables.
	SolveRelaxed(ctx context.Context, p *Problem) (Solution, error)
	// SolveInteger solves with every variable restricted to integers.
	SolveInteger(ctx context.Context, p *Problem) (Solution, error)
}

// buildCoveringProblem declares one [0,1] variable per column of v and one
// covering row (rhs 1) per row. A nil weights slice means unit costs.
func buildCoveringProblem(name string, v *VisibilityMatrix, weights []float64) (*Problem, error) {
	p := NewProblem(name)
	for j := 0; j < v.Cols(); j++ {
		cost := 1.0
		if weights != nil {
			cost = weights[j]
		}
		p.AddVariable(cost, 0, 1)
	}
	for i := 0; i < v.Rows(); i++ {
		cols := v.RowSupport(i)
		ids := make([]VariableID, len(cols))
		for k, j := range cols {
			ids[k] = VariableID(j)
		}
		if err := p.AddCoveringConstraint(ids, 1); err != nil {
			return nil, err
		}
	}
	return p, nil
}
