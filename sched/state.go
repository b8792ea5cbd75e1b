package sched

import (
	"sync"

	"github.com/jaywalker76/LocustDB/errors"
)

// QueryState tracks a query run through its lifecycle. Every run starts
// Planned and ends in exactly one of the two terminal states.
type QueryState int

const (
	StatePlanned QueryState = iota
	StateDispatched
	StatePartiallyComplete
	StateMerged
	StateDone
	StateAborted
)

func (s QueryState) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateDispatched:
		return "dispatched"
	case StatePartiallyComplete:
		return "partially-complete"
	case StateMerged:
		return "merged"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

var validTransitions = map[QueryState][]QueryState{
	StatePlanned:           {StateDispatched, StateMerged, StateAborted},
	StateDispatched:        {StatePartiallyComplete, StateMerged, StateAborted},
	StatePartiallyComplete: {StatePartiallyComplete, StateMerged, StateAborted},
	StateMerged:            {StateDone, StateAborted},
	StateDone:              {},
	StateAborted:           {},
}

// queryRun is the per-query state machine. Batch tasks touch it from the
// worker pool, so transitions are serialized under the mutex.
type queryRun struct {
	mu    sync.Mutex
	state QueryState
}

func newQueryRun() *queryRun {
	return &queryRun{state: StatePlanned}
}

func (q *queryRun) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *queryRun) transitionTo(target QueryState) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, allowed := range validTransitions[q.state] {
		if allowed == target {
			q.state = target
			return nil
		}
	}
	return errors.NewLocustErrorf(errors.InternalError,
		"invalid query state transition %s -> %s", q.state, target)
}
