// Package recovery classifies per-slave AL-status diagnostics and drives
// the corrective action ladder (retry, reconfigure, failover) the way the
// teacher's network.go reacts to an NMT heartbeat timeout, generalized to
// EtherCAT's richer AL status vocabulary (spec.md §4.5).
package recovery

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/ethercat-master/alstate"
	"github.com/samsamfire/ethercat-master/internal/ringlog"
	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/transport"
)

// RecoveryEvent records one per-slave diagnostic-and-act pass.
type RecoveryEvent struct {
	Position uint16
	Cycle    uint64
	AlStatus uint16
	Action   status.RecoveryAction
	Err      error
}

// Options configures the recovery policy.
type Options struct {
	// MaxRetryAttempts is how many consecutive RetryTransition attempts are
	// made before escalating to Reconfigure.
	MaxRetryAttempts int
	// MaxReconfigureAttempts is how many consecutive Reconfigure attempts
	// are made (after retries are exhausted) before escalating to Failover.
	MaxReconfigureAttempts int
	// Overrides forces a specific action for a given AL status code,
	// bypassing the Recoverable-derived decision (spec.md §4.5 override
	// table).
	Overrides map[uint16]status.RecoveryAction
	// MaxEventHistory bounds the in-memory recovery event log.
	MaxEventHistory int
}

func (o Options) withDefaults() Options {
	if o.MaxRetryAttempts <= 0 {
		o.MaxRetryAttempts = 3
	}
	if o.MaxReconfigureAttempts <= 0 {
		o.MaxReconfigureAttempts = 2
	}
	if o.MaxEventHistory <= 0 {
		o.MaxEventHistory = 256
	}
	return o
}

// Engine runs the recovery decision-and-act loop over a transport.
type Engine struct {
	mu sync.Mutex

	t      transport.Transport
	ladder *alstate.Ladder
	opts   Options

	attempts map[uint16]int
	history  *ringlog.Log[RecoveryEvent]
	cycle    uint64
}

// New returns an Engine bound to t and ladder.
func New(t transport.Transport, ladder *alstate.Ladder, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		t:        t,
		ladder:   ladder,
		opts:     opts,
		attempts: map[uint16]int{},
		history:  ringlog.New[RecoveryEvent](opts.MaxEventHistory),
	}
}

// decideAction applies spec.md §4.5's decision policy: an exact override
// wins first, then a non-recoverable AL status forces failover, then the
// per-slave retry/reconfigure attempt counters escalate the action.
func (e *Engine) decideAction(position uint16, current, target status.SlaveState, alCode uint16) status.RecoveryAction {
	if current == target && alCode == 0 {
		return status.ActionNone
	}
	if override, ok := e.opts.Overrides[alCode]; ok {
		return override
	}
	interp := status.DecodeAlStatus(alCode)
	if !interp.Recoverable {
		return status.ActionFailover
	}
	attempts := e.attempts[position]
	switch {
	case attempts < e.opts.MaxRetryAttempts:
		return status.ActionRetryTransition
	case attempts < e.opts.MaxRetryAttempts+e.opts.MaxReconfigureAttempts:
		return status.ActionReconfigure
	default:
		return status.ActionFailover
	}
}

// RecoverNetwork runs one diagnostic-and-act pass over every position in
// positions, driving each toward target. Every slave is visited regardless
// of whether an earlier one failed (spec.md §4.5: "recoverNetwork iterates
// all slaves without short-circuiting").
func (e *Engine) RecoverNetwork(positions []uint16, target status.SlaveState) []RecoveryEvent {
	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.mu.Unlock()

	events := make([]RecoveryEvent, 0, len(positions))
	for _, position := range positions {
		events = append(events, e.recoverSlave(position, target, cycle))
	}
	return events
}

func (e *Engine) recoverSlave(position uint16, target status.SlaveState, cycle uint64) RecoveryEvent {
	current, err := e.t.ReadSlaveState(position)
	if err != nil {
		actErr := e.t.FailoverSlave(position)
		if actErr != nil {
			log.WithFields(log.Fields{"position": position, "action": status.ActionFailover}).
				WithError(actErr).Warn("recovery: action failed")
		}
		e.mu.Lock()
		e.attempts[position]++
		e.mu.Unlock()
		ev := RecoveryEvent{Position: position, Cycle: cycle, Action: status.ActionFailover, Err: err}
		e.history.Push(ev)
		return ev
	}

	alCode, _ := e.t.ReadAlStatusCode(position)
	action := e.decideAction(position, current, target, alCode)

	var actErr error
	switch action {
	case status.ActionRetryTransition:
		actErr = e.ladder.TransitionSlaveTo(position, target)
	case status.ActionReconfigure:
		actErr = e.t.ReconfigureSlave(position)
	case status.ActionFailover:
		actErr = e.t.FailoverSlave(position)
	}

	e.mu.Lock()
	if action == status.ActionNone {
		e.attempts[position] = 0
	} else {
		e.attempts[position]++
	}
	e.mu.Unlock()

	if actErr != nil {
		log.WithFields(log.Fields{"position": position, "action": action, "alStatus": alCode}).
			WithError(actErr).Warn("recovery: action failed")
	}

	ev := RecoveryEvent{Position: position, Cycle: cycle, AlStatus: alCode, Action: action, Err: actErr}
	e.history.Push(ev)
	return ev
}

// EventHistory returns the bounded recovery event log, oldest first.
func (e *Engine) EventHistory() []RecoveryEvent {
	return e.history.Snapshot()
}
