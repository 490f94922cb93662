package cover

import "fmt"

// State is a step of the planning state machine:
//
//	Start -> Iterating -> {Converged | IterationLimitReached} -> Reduce -> FinalSolve -> Done
type State int

const (
	StateStart State = iota
	StateIterating
	StateConverged
	StateIterationLimitReached
	StateReduce
	StateFinalSolve
	StateDone
)

var stateNames = map[State]string{
	StateStart:                 "start",
	StateIterating:             "iterating",
	StateConverged:             "converged",
	StateIterationLimitReached: "iteration-limit-reached",
	StateReduce:                "reduce",
	StateFinalSolve:            "final-solve",
	StateDone:                  "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown planner state %q", b)
}

var transitions = map[State][]State{
	StateStart:                 {StateIterating},
	StateIterating:             {StateConverged, StateIterationLimitReached},
	StateConverged:             {StateReduce},
	StateIterationLimitReached: {StateReduce},
	StateReduce:                {StateFinalSolve},
	StateFinalSolve:            {StateDone},
}

// CanTransition reports whether next may follow s.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// stateTrail records the path through the state machine.
type stateTrail []State

func (t *stateTrail) advance(next State) {
	if n := len(*t); n > 0 && !(*t)[n-1].CanTransition(next) {
		panic(fmt.Sprintf("cover: invalid state transition %s -> %s", (*t)[n-1], next))
	}
	*t = append(*t, next)
}
