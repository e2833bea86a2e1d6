package query

import "fmt"

// Phase identifies which variant of a query State is active.
type Phase int

const (
	// PhaseIdle means the query has not fetched and holds no value.
	PhaseIdle Phase = iota
	// PhaseLoading means a fetch is underway with nothing usable to show.
	PhaseLoading
	// PhaseSucceeded means the query holds a value.
	PhaseSucceeded
	// PhaseFailed means the most recent fetch failed.
	PhaseFailed
)

// String returns a human-readable phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// State is the tagged union a query publishes: exactly one of idle,
// loading, succeeded with a response, or failed with an error.
type State[Response any] struct {
	phase Phase
	value Response
	err   error
}

// Idle returns the idle state.
func Idle[Response any]() State[Response] {
	return State[Response]{phase: PhaseIdle}
}

// Loading returns the loading state.
func Loading[Response any]() State[Response] {
	return State[Response]{phase: PhaseLoading}
}

// Succeeded returns a succeeded state holding value.
func Succeeded[Response any](value Response) State[Response] {
	return State[Response]{phase: PhaseSucceeded, value: value}
}

// Failed returns a failed state holding err.
func Failed[Response any](err error) State[Response] {
	return State[Response]{phase: PhaseFailed, err: err}
}

// Phase returns the active variant.
func (s State[Response]) Phase() Phase {
	return s.phase
}

// Value returns the response and true only when the state is succeeded.
func (s State[Response]) Value() (Response, bool) {
	if s.phase != PhaseSucceeded {
		var zero Response
		return zero, false
	}
	return s.value, true
}

// Err returns the fetch error when the state is failed, nil otherwise.
func (s State[Response]) Err() error {
	if s.phase != PhaseFailed {
		return nil
	}
	return s.err
}

// IsFailed reports whether the state is failed.
func (s State[Response]) IsFailed() bool {
	return s.phase == PhaseFailed
}
