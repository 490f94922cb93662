package cover

import "fmt"

// ReductionMode records which columns survived reduction.
type ReductionMode int

const (
	// ReductionZeroValued keeps the columns whose relaxed value is exactly 0.
	ReductionZeroValued ReductionMode = iota
	// ReductionSupportFallback keeps the columns with a positive relaxed
	// value. It is used when the zero-valued columns cannot cover every row.
	ReductionSupportFallback
)

func (m ReductionMode) String() string {
	switch m {
	case ReductionZeroValued:
		return "zero-valued"
	case ReductionSupportFallback:
		return "support-fallback"
	default:
		return fmt.Sprintf("reduction(%d)", int(m))
	}
}

// MarshalText encodes the mode by name.
func (m ReductionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *ReductionMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "zero-valued":
		*m = ReductionZeroValued
	case "support-fallback":
		*m = ReductionSupportFallback
	default:
		return fmt.Errorf("unknown reduction mode %q", b)
	}
	return nil
}

// Reduce keeps the columns whose relaxed value is exactly 0.0. Under the
// reweighting scheme a zero value marks a retained candidate, not a discarded
// one. The reduced matrix keeps every row in order; kept lists the original
// column index of each reduced column.
func Reduce(v *VisibilityMatrix, relaxed []float64) (reduced *VisibilityMatrix, kept []int) {
	for j, x := range relaxed {
		if x == 0 {
			kept = append(kept, j)
		}
	}
	return v.SelectColumns(kept), kept
}

// ReduceSupport keeps the columns with a positive relaxed value. The support
// of a feasible relaxed solution covers every row.
func ReduceSupport(v *VisibilityMatrix, relaxed []float64) (reduced *VisibilityMatrix, kept []int) {
	for j, x := range relaxed {
		if x > 0 {
			kept = append(kept, j)
		}
	}
	return v.SelectColumns(kept), kept
}

func reduce(v *VisibilityMatrix, relaxed []float64, mode ReductionMode) (*VisibilityMatrix, []int) {
	if mode == ReductionSupportFallback {
		return ReduceSupport(v, relaxed)
	}
	return Reduce(v, relaxed)
}
