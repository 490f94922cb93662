package cover

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblem_AddCoveringConstraint(t *testing.T) {
	p := NewProblem("test")
	a := p.AddVariable(1, 0, 1)
	b := p.AddVariable(1, 0, 1)
	assert.Equal(t, VariableID(0), a)
	assert.Equal(t, VariableID(1), b)

	require.NoError(t, p.AddCoveringConstraint([]VariableID{a, b, a}, 1))
	assert.Equal(t, 1, p.NumConstraints())
	assert.Len(t, p.rows[0].vars, 2, "duplicates are counted once")

	assert.Error(t, p.AddCoveringConstraint([]VariableID{7}, 1))
	assert.Error(t, p.AddCoveringConstraint([]VariableID{a}, math.NaN()))
}

func TestProblem_Satisfied(t *testing.T) {
	p := NewProblem("test")
	x := p.AddVariable(1, 0, 1)
	y := p.AddVariable(1, 0, 1)
	require.NoError(t, p.AddCoveringConstraint([]VariableID{x, y}, 1))

	assert.True(t, p.Satisfied([]float64{1, 0}, 1e-9))
	assert.True(t, p.Satisfied([]float64{0.5, 0.5}, 1e-9))
	assert.False(t, p.Satisfied([]float64{0, 0}, 1e-9))
	assert.False(t, p.Satisfied([]float64{2, 0}, 1e-9), "upper bound")
	assert.False(t, p.Satisfied([]float64{1}, 1e-9), "length")
}

func TestSimplexSolver_SolveRelaxed(t *testing.T) {
	p := NewProblem("cheapest-cover")
	x0 := p.AddVariable(1, 0, 1)
	x1 := p.AddVariable(1.5, 0, 1)
	x2 := p.AddVariable(1, 0, 1)
	require.NoError(t, p.AddCoveringConstraint([]VariableID{x0, x1}, 1))
	require.NoError(t, p.AddCoveringConstraint([]VariableID{x1, x2}, 1))

	sol, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, []float64{0, 1, 0}, sol.Values)
	assert.True(t, almostEqual(sol.Objective, 1.5))
}

func oddCycle(t *testing.T) *Problem {
	t.Helper()
	p := NewProblem("odd-cycle")
	ids := []VariableID{p.AddVariable(1, 0, 1), p.AddVariable(1, 0, 1), p.AddVariable(1, 0, 1)}
	require.NoError(t, p.AddCoveringConstraint([]VariableID{ids[0], ids[1]}, 1))
	require.NoError(t, p.AddCoveringConstraint([]VariableID{ids[1], ids[2]}, 1))
	require.NoError(t, p.AddCoveringConstraint([]VariableID{ids[0], ids[2]}, 1))
	return p
}

func TestSimplexSolver_FractionalRelaxation(t *testing.T) {
	sol, err := NewSimplexSolver().SolveRelaxed(context.Background(), oddCycle(t))
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.True(t, almostEqual(sol.Objective, 1.5), "objective %v", sol.Objective)
	for j, v := range sol.Values {
		assert.True(t, almostEqual(v, 0.5), "x%d = %v", j, v)
	}
}

func TestSimplexSolver_SolveInteger(t *testing.T) {
	p := oddCycle(t)
	sol, err := NewSimplexSolver().SolveInteger(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 2.0, sol.Objective)
	assert.True(t, p.Satisfied(sol.Values, 0))
	for _, v := range sol.Values {
		assert.True(t, v == 0 || v == 1, "value %v is not binary", v)
	}
}

func TestSimplexSolver_Deterministic(t *testing.T) {
	p := NewProblem("ties")
	var ids []VariableID
	for range 4 {
		ids = append(ids, p.AddVariable(1, 0, 1))
	}
	require.NoError(t, p.AddCoveringConstraint(ids[:3], 1))
	require.NoError(t, p.AddCoveringConstraint(ids[1:], 1))

	s := NewSimplexSolver()
	first, err := s.SolveRelaxed(context.Background(), p)
	require.NoError(t, err)
	second, err := s.SolveRelaxed(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, almostEqual(first.Objective, 1))
}

func TestSimplexSolver_Bounds(t *testing.T) {
	t.Run("lower bound shift", func(t *testing.T) {
		p := NewProblem("shift")
		x := p.AddVariable(1, 1, 3)
		require.NoError(t, p.AddCoveringConstraint([]VariableID{x}, 2))
		sol, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
		require.NoError(t, err)
		require.Equal(t, StatusOptimal, sol.Status)
		assert.True(t, almostEqual(sol.Values[0], 2), "x = %v", sol.Values[0])
	})

	t.Run("negative cost hits upper bound", func(t *testing.T) {
		p := NewProblem("negative")
		x := p.AddVariable(-1, 0, 1)
		require.NoError(t, p.AddCoveringConstraint([]VariableID{x}, 1))
		sol, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
		require.NoError(t, err)
		require.Equal(t, StatusOptimal, sol.Status)
		assert.Equal(t, []float64{1}, sol.Values)
		assert.Equal(t, -1.0, sol.Objective)
	})

	t.Run("unconstrained variables sit at the cheaper bound", func(t *testing.T) {
		p := NewProblem("free")
		p.AddVariable(2, 0.5, 4)
		p.AddVariable(-1, 0, 4)
		sol, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 4}, sol.Values)
	})
}

func TestSimplexSolver_Statuses(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Problem)
		want  Status
	}{
		{
			name: "row with only fixed variables",
			build: func(p *Problem) {
				x := p.AddVariable(1, 0, 0)
				_ = p.AddCoveringConstraint([]VariableID{x}, 1)
			},
			want: StatusInfeasible,
		},
		{
			name: "empty row",
			build: func(p *Problem) {
				p.AddVariable(1, 0, 1)
				_ = p.AddCoveringConstraint(nil, 1)
			},
			want: StatusInfeasible,
		},
		{
			name: "crossed bounds",
			build: func(p *Problem) {
				p.AddVariable(1, 2, 1)
			},
			want: StatusInfeasible,
		},
		{
			name: "negative cost without upper bound",
			build: func(p *Problem) {
				p.AddVariable(-1, 0, math.Inf(1))
			},
			want: StatusUnbounded,
		},
		{
			name: "satisfied by lower bounds",
			build: func(p *Problem) {
				x := p.AddVariable(1, 1, 1)
				_ = p.AddCoveringConstraint([]VariableID{x}, 1)
			},
			want: StatusOptimal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProblem(tt.name)
			tt.build(p)
			sol, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sol.Status)
		})
	}
}

func TestSimplexSolver_IntegerInfeasible(t *testing.T) {
	p := NewProblem("no-integer")
	x := p.AddVariable(1, 0.2, 0.8)
	require.NoError(t, p.AddCoveringConstraint([]VariableID{x}, 0.5))

	relaxed, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, relaxed.Status)

	sol, err := NewSimplexSolver().SolveInteger(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSimplexSolver_InvalidProblem(t *testing.T) {
	p := NewProblem("bad-bound")
	p.AddVariable(1, math.Inf(-1), 1)

	_, err := NewSimplexSolver().SolveRelaxed(context.Background(), p)
	var failure *SolveFailure
	require.True(t, errors.As(err, &failure), "got %v", err)
	assert.Equal(t, StatusInvalidProblem, failure.Status)
	assert.Equal(t, "bad-bound", failure.Problem)
}

func TestSimplexSolver_NodeLimit(t *testing.T) {
	s := &SimplexSolver{MaxNodes: 1}
	_, err := s.SolveInteger(context.Background(), oddCycle(t))
	var failure *SolveFailure
	require.True(t, errors.As(err, &failure), "got %v", err)
	assert.Equal(t, StatusNodeLimit, failure.Status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "node limit reached", StatusNodeLimit.String())
	assert.Equal(t, "status(42)", Status(42).String())
}
