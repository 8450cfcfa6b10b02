package topology

import "github.com/samsamfire/ethercat-master/internal/ringlog"

// RedundancyState is one phase of the dual-ring redundancy state machine.
type RedundancyState uint8

const (
	PrimaryOnly RedundancyState = iota
	RedundantHealthy
	RedundancyDegraded
	Recovering
)

func (s RedundancyState) String() string {
	switch s {
	case PrimaryOnly:
		return "PrimaryOnly"
	case RedundantHealthy:
		return "RedundantHealthy"
	case RedundancyDegraded:
		return "RedundancyDegraded"
	case Recovering:
		return "Recovering"
	default:
		return "Unknown"
	}
}

// RedundancyTransition records one state-machine transition.
type RedundancyTransition struct {
	From       RedundancyState
	To         RedundancyState
	Generation uint64
}

// RedundancyMachine tracks the dual-ring redundancy state across topology
// refresh generations, keeping a bounded transition history for
// diagnostics (spec.md §4.7).
type RedundancyMachine struct {
	state   RedundancyState
	history *ringlog.Log[RedundancyTransition]
}

// NewRedundancyMachine returns a machine starting in PrimaryOnly.
func NewRedundancyMachine(maxHistory int) *RedundancyMachine {
	return &RedundancyMachine{
		state:   PrimaryOnly,
		history: ringlog.New[RedundancyTransition](maxHistory),
	}
}

// Observe advances the state machine from the redundant link's current
// health and the topology generation it was observed at, returning the
// resulting state.
func (rm *RedundancyMachine) Observe(redundantLinkHealthy bool, generation uint64) RedundancyState {
	next := rm.state
	switch rm.state {
	case PrimaryOnly:
		if redundantLinkHealthy {
			next = RedundantHealthy
		}
	case RedundantHealthy:
		if !redundantLinkHealthy {
			next = RedundancyDegraded
		}
	case RedundancyDegraded:
		if redundantLinkHealthy {
			next = Recovering
		}
	case Recovering:
		if redundantLinkHealthy {
			next = RedundantHealthy
		} else {
			next = RedundancyDegraded
		}
	}
	if next != rm.state {
		rm.history.Push(RedundancyTransition{From: rm.state, To: next, Generation: generation})
		rm.state = next
	}
	return rm.state
}

// State returns the current redundancy state.
func (rm *RedundancyMachine) State() RedundancyState { return rm.state }

// History returns the bounded transition history, oldest first.
func (rm *RedundancyMachine) History() []RedundancyTransition { return rm.history.Snapshot() }
