package dc

import (
	"fmt"
	"sync"

	"github.com/samsamfire/ethercat-master/transport"
)

// SlaveSyncStatus is one slave's point-in-time DC discipline state, exposed
// for diagnostics and HIL conformance evaluation (spec.md §4.10).
type SlaveSyncStatus struct {
	Position         uint16
	RawOffsetNs      int64
	FilteredOffsetNs int64
	AppliedNs        int64
	Locked           bool
	Degraded         bool

	// RMSJitterNs and MaxAbsOffsetNs are computed from the bounded rolling
	// window whose length is the jitterWindowLen passed to NewDriver.
	RMSJitterNs    float64
	MaxAbsOffsetNs int64

	// Samples, LifetimeJitterRmsNs and LifetimeMaxAbsOffsetNs are the
	// controller's lifetime accumulator (spec.md §4.6, §8 Testable
	// Property 7): they never forget a sample, unlike the window above.
	Samples                uint64
	LifetimeJitterRmsNs    float64
	LifetimeMaxAbsOffsetNs int64
}

type slaveSync struct {
	controller *Controller
	monitor    *Monitor
	jitter     *JitterWindow
}

// Driver reads each slave's DC system time relative to a reference slave,
// drives its Controller/Monitor pair, and writes the resulting correction
// back through the transport (spec.md §4.6).
type Driver struct {
	mu sync.Mutex

	t               transport.Transport
	refPosition     uint16
	ctrlOpts        ControllerOptions
	monOpts         MonitorOptions
	jitterWindowLen int

	slaves map[uint16]*slaveSync
}

// NewDriver returns a Driver disciplining slaves against refPosition's
// system time.
func NewDriver(t transport.Transport, refPosition uint16, ctrlOpts ControllerOptions, monOpts MonitorOptions, jitterWindowLen int) *Driver {
	return &Driver{
		t:               t,
		refPosition:     refPosition,
		ctrlOpts:        ctrlOpts,
		monOpts:         monOpts,
		jitterWindowLen: jitterWindowLen,
		slaves:          map[uint16]*slaveSync{},
	}
}

func (d *Driver) slaveFor(position uint16) *slaveSync {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slaves[position]
	if !ok {
		s = &slaveSync{
			controller: NewController(d.ctrlOpts),
			monitor:    NewMonitor(d.monOpts),
			jitter:     NewJitterWindow(d.jitterWindowLen),
		}
		d.slaves[position] = s
	}
	return s
}

// StepSlave reads the reference and slave system times, advances that
// slave's control loop and sync monitor for one cycle, writes the applied
// correction back through the transport, and returns the resulting status.
func (d *Driver) StepSlave(position uint16) (SlaveSyncStatus, PolicyAction, error) {
	refTime, err := d.t.ReadDcSystemTime(d.refPosition)
	if err != nil {
		return SlaveSyncStatus{}, PolicyNone, fmt.Errorf("dc: read reference system time: %w", err)
	}
	slaveTime, err := d.t.ReadDcSystemTime(position)
	if err != nil {
		return SlaveSyncStatus{}, PolicyNone, fmt.Errorf("dc: read slave %d system time: %w", position, err)
	}
	offset := refTime - slaveTime

	s := d.slaveFor(position)
	s.jitter.Add(offset)
	applied := s.controller.Step(offset)
	action := s.monitor.Observe(offset)

	if err := d.t.WriteDcSystemTimeOffset(position, applied); err != nil {
		return SlaveSyncStatus{}, action, fmt.Errorf("dc: write slave %d offset: %w", position, err)
	}

	lifetime := s.controller.Stats()
	return SlaveSyncStatus{
		Position:               position,
		RawOffsetNs:            offset,
		FilteredOffsetNs:       s.controller.FilteredOffsetNs(),
		AppliedNs:              applied,
		Locked:                 s.monitor.Locked(),
		Degraded:               s.monitor.Degraded(),
		RMSJitterNs:            s.jitter.RMSNs(),
		MaxAbsOffsetNs:         s.jitter.MaxAbsNs(),
		Samples:                lifetime.Samples,
		LifetimeJitterRmsNs:    lifetime.JitterRmsNs,
		LifetimeMaxAbsOffsetNs: lifetime.MaxAbsOffsetNs,
	}, action, nil
}

// StepAll runs StepSlave for every position, continuing past individual
// errors so one unreachable slave does not block the rest of the network's
// clock discipline.
func (d *Driver) StepAll(positions []uint16) []SlaveSyncStatus {
	out := make([]SlaveSyncStatus, 0, len(positions))
	for _, p := range positions {
		st, _, err := d.StepSlave(p)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
