// Package alstate drives the EtherCAT AL (application layer) state ladder:
// Init, PreOp, Bootstrap, SafeOp and Op, both network-wide (broadcast) and
// per slave (auto-increment addressed), the way the teacher's network.go
// drives the NMT state machine over a CAN bus.
package alstate

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/transport"
)

// Options configures transition polling.
type Options struct {
	TransitionTimeout time.Duration
	PollInterval      time.Duration
}

func (o Options) withDefaults() Options {
	if o.TransitionTimeout <= 0 {
		o.TransitionTimeout = 3 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Millisecond
	}
	return o
}

// Ladder drives AL state transitions over a Transport.
type Ladder struct {
	t    transport.Transport
	opts Options
}

// New returns a Ladder bound to t.
func New(t transport.Transport, opts Options) *Ladder {
	return &Ladder{t: t, opts: opts.withDefaults()}
}

// TransitionNetworkTo broadcasts a state-change request and polls the
// broadcast AL status register until every responding slave reports the
// target state or the transition timeout elapses.
func (l *Ladder) TransitionNetworkTo(target status.SlaveState) error {
	log.WithField("target", target).Debug("alstate: requesting network state")
	if err := l.t.RequestNetworkState(target); err != nil {
		return fmt.Errorf("alstate: request network state %s: %w", target, err)
	}
	return l.pollUntil(target, l.t.ReadNetworkState)
}

// TransitionSlaveTo requests and confirms a state change for a single slave
// addressed by auto-increment position.
func (l *Ladder) TransitionSlaveTo(position uint16, target status.SlaveState) error {
	log.WithFields(log.Fields{"position": position, "target": target}).Debug("alstate: requesting slave state")
	if err := l.t.RequestSlaveState(position, target); err != nil {
		return fmt.Errorf("alstate: request slave %d state %s: %w", position, target, err)
	}
	return l.pollUntil(target, func() (status.SlaveState, error) {
		return l.t.ReadSlaveState(position)
	})
}

func (l *Ladder) pollUntil(target status.SlaveState, read func() (status.SlaveState, error)) error {
	deadline := time.Now().Add(l.opts.TransitionTimeout)
	for {
		st, err := read()
		if err != nil {
			return err
		}
		if st == target {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTransitionTimeout
		}
		time.Sleep(l.opts.PollInterval)
	}
}

// Startup drives the full cold-start ladder: Init, PreOp, process-image
// configuration, SafeOp, Op — the sequence spec.md's component design names
// for bringing a freshly discovered network into cyclic operation.
func (l *Ladder) Startup(mapping []transport.ProcessImageMapping) error {
	if err := l.TransitionNetworkTo(status.Init); err != nil {
		return fmt.Errorf("alstate: startup init: %w", err)
	}
	if err := l.TransitionNetworkTo(status.PreOp); err != nil {
		return fmt.Errorf("alstate: startup preop: %w", err)
	}
	if err := l.t.ConfigureProcessImage(mapping); err != nil {
		return fmt.Errorf("alstate: configure process image: %w", err)
	}
	if err := l.TransitionNetworkTo(status.SafeOp); err != nil {
		return fmt.Errorf("alstate: startup safeop: %w", err)
	}
	if err := l.TransitionNetworkTo(status.Op); err != nil {
		return fmt.Errorf("alstate: startup op: %w", err)
	}
	log.Info("alstate: network reached Op")
	return nil
}
