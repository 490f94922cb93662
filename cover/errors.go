package cover

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidParams is returned when planner parameters fail validation.
	ErrInvalidParams = errors.New("invalid planner parameters")

	// ErrDegenerateFootprint is returned for footprints whose derived
	// quantities are undefined (too few points, centroid at the origin).
	ErrDegenerateFootprint = errors.New("degenerate footprint")
)

// EmptyRegionError reports that the region of interest has no free cells.
type EmptyRegionError struct {
	Region   Bounds
	CellSize int
}

func (e *EmptyRegionError) Error() string {
	return fmt.Sprintf("no free cells in region (%d,%d)-(%d,%d) at cell size %d",
		e.Region.Min.X, e.Region.Min.Y, e.Region.Max.X, e.Region.Max.Y, e.CellSize)
}

// InfeasibleCoverageError reports cells that no candidate pose can observe.
type InfeasibleCoverageError struct {
	Cells []Cell
}

func (e *InfeasibleCoverageError) Error() string {
	const maxListed = 8
	parts := make([]string, 0, min(len(e.Cells), maxListed))
	for i, c := range e.Cells {
		if i == maxListed {
			break
		}
		parts = append(parts, fmt.Sprintf("(%d,%d)", c.X, c.Y))
	}
	msg := fmt.Sprintf("%d cell(s) not observable from any candidate pose: %s",
		len(e.Cells), strings.Join(parts, " "))
	if len(e.Cells) > maxListed {
		msg += " ..."
	}
	return msg
}

// SolveFailure reports a solve without a usable solution: a solver error, or
// a non-optimal status where the caller needs an optimum. Solver failures are
// not retried.
type SolveFailure struct {
	Problem string
	Status  Status
	Err     error
}

func (e *SolveFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solve %s: %s: %v", e.Problem, e.Status, e.Err)
	}
	return fmt.Sprintf("solve %s: %s", e.Problem, e.Status)
}

func (e *SolveFailure) Unwrap() error {
	return e.Err
}
