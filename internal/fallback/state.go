// Package fallback schedules completion attempts across an ordered list of
// candidates with per-candidate retries.
package fallback

import (
	"fmt"

	"github.com/sells-group/lifeline/internal/upstream"
)

// Phase is the scheduler's position in a run.
type Phase int

const (
	Idle Phase = iota
	Trying
	Succeeded
	Exhausted
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Trying:
		return "trying"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the scheduler state. Candidate and Retry are meaningful while
// Trying and record the last attempt once terminal.
type State struct {
	Phase     Phase
	Candidate int
	Retry     int
}

// Terminal reports whether no further attempts will be made.
func (s State) Terminal() bool {
	return s.Phase == Succeeded || s.Phase == Exhausted || s.Phase == Aborted
}

// Start moves an Idle state to the first attempt of the first candidate.
// With no candidates the run is Exhausted immediately.
func Start(candidates int) State {
	if candidates <= 0 {
		return State{Phase: Exhausted}
	}
	return State{Phase: Trying}
}

// Next applies the outcome of the attempt described by s. The boolean
// result is true when the next attempt must wait for the retry delay,
// which is only the case when retrying the same candidate.
func (s State) Next(k upstream.Kind, candidates, maxRetries int) (State, bool) {
	if s.Phase != Trying {
		return s, false
	}

	switch k {
	case upstream.Success:
		return State{Phase: Succeeded, Candidate: s.Candidate, Retry: s.Retry}, false
	case upstream.FatalAuth:
		return State{Phase: Aborted, Candidate: s.Candidate, Retry: s.Retry}, false
	}

	if s.Retry < maxRetries {
		return State{Phase: Trying, Candidate: s.Candidate, Retry: s.Retry + 1}, true
	}
	if s.Candidate+1 < candidates {
		return State{Phase: Trying, Candidate: s.Candidate + 1}, false
	}
	return State{Phase: Exhausted, Candidate: s.Candidate, Retry: s.Retry}, false
}
