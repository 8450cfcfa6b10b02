package ethercat

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/ethercat-master/alstate"
	"github.com/samsamfire/ethercat-master/dc"
	"github.com/samsamfire/ethercat-master/recovery"
	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/topology"
	"github.com/samsamfire/ethercat-master/transport"
)

// recoveryTargetState is the AL state the recovery engine and state ladder
// drive every configured slave toward once the network is running
// cyclically.
const recoveryTargetState = status.Op

// CycleStatistics is the monotonic-over-lifetime counter set exposed by a
// configured, started Master (spec.md §3).
type CycleStatistics struct {
	CyclesTotal        uint64
	CyclesFailed       uint64
	ImpactedCycles     uint64
	LastWorkingCounter uint16
	LastCycleRuntime   time.Duration
	LastError          error
	Degraded           bool
}

// Master is the cycle orchestrator: it exclusively owns the process image,
// configuration, recovery event log and counters, and composes the
// AL-state ladder, recovery engine, DC driver and topology reconciler
// around one borrowed Transport (spec.md §3, §4.8).
type Master struct {
	mu sync.Mutex

	t    transport.Transport
	opts Options

	configured bool
	started    bool

	cfg         NetworkConfiguration
	image       *ProcessImage
	signalIndex map[string]SignalBinding

	ladder             *alstate.Ladder
	recoveryEngine     *recovery.Engine
	dcDriver           *dc.Driver
	dcDegraded         bool
	topologyReconciler *topology.Reconciler
	topologyPolicy     *topology.Policy
	redundancyMachine  *topology.RedundancyMachine

	inputCallbacks  map[string]func(bool)
	lastInputValues map[string]bool

	stats CycleStatistics
}

// New returns an unconfigured Master bound to t. t's lifetime must outlive
// the Master (spec.md §3 ownership).
func New(t transport.Transport, opts Options) *Master {
	return &Master{t: t, opts: opts}
}

// Configure validates cfg, builds the signal index and the process image,
// and (re)builds every subcomponent bound to the transport. A previously
// started Master must be stopped first. Configuration errors are fatal and
// leave the Master unconfigured (spec.md §7).
func (m *Master) Configure(cfg NetworkConfiguration) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("ethercat: cannot reconfigure a started master, call Stop first")
	}

	signalIndex := make(map[string]SignalBinding, len(cfg.Signals))
	for _, sig := range cfg.Signals {
		signalIndex[sig.Name] = sig
	}

	m.cfg = cfg
	m.image = newProcessImage(cfg.ProcessImageInputBytes, cfg.ProcessImageOutputBytes)
	m.signalIndex = signalIndex
	m.inputCallbacks = map[string]func(bool){}
	m.lastInputValues = map[string]bool{}

	m.ladder = alstate.New(m.t, m.opts.StateMachine.ladderOptions())
	m.recoveryEngine = recovery.New(m.t, m.ladder, m.opts.Recovery.engineOptions())
	if m.opts.DcClosedLoop.Enabled {
		m.dcDriver = dc.NewDriver(m.t, m.opts.DcClosedLoop.ReferenceSlavePosition, m.opts.DcClosedLoop.controllerOptions(), m.opts.DcSyncQuality.monitorOptions(), m.opts.DcJitterWindowLen)
	} else {
		m.dcDriver = nil
	}
	m.dcDegraded = false
	m.topologyReconciler = topology.New(m.t, m.opts.Topology.MaxPositions)
	m.topologyPolicy = topology.NewPolicy(m.opts.Topology.policyOptions())
	m.redundancyMachine = topology.NewRedundancyMachine(m.opts.Topology.RedundancyHistoryLen)

	m.stats = CycleStatistics{}
	m.configured = true
	return nil
}

// processImageMappings derives the SAFE-OP bootstrap FMMU mapping from the
// configured signals, one entry per slave that owns at least one signal in
// either direction (spec.md §4.3, §4.4).
func (m *Master) processImageMappings() []transport.ProcessImageMapping {
	type window struct {
		outMin, outMax int
		inMin, inMax   int
		hasOut, hasIn  bool
	}
	windows := map[string]*window{}
	order := make([]string, 0, len(m.cfg.Slaves))
	for _, s := range m.cfg.Slaves {
		windows[s.Name] = &window{}
		order = append(order, s.Name)
	}
	for _, sig := range m.cfg.Signals {
		w, ok := windows[sig.SlaveName]
		if !ok {
			continue
		}
		if sig.Direction == SignalOutput {
			if !w.hasOut || sig.ByteOffset < w.outMin {
				w.outMin = sig.ByteOffset
			}
			if !w.hasOut || sig.ByteOffset+1 > w.outMax {
				w.outMax = sig.ByteOffset + 1
			}
			w.hasOut = true
		} else {
			if !w.hasIn || sig.ByteOffset < w.inMin {
				w.inMin = sig.ByteOffset
			}
			if !w.hasIn || sig.ByteOffset+1 > w.inMax {
				w.inMax = sig.ByteOffset + 1
			}
			w.hasIn = true
		}
	}

	var mappings []transport.ProcessImageMapping
	for _, name := range order {
		w := windows[name]
		if !w.hasOut && !w.hasIn {
			continue
		}
		slave, _ := m.cfg.slaveByName(name)
		pm := transport.ProcessImageMapping{Position: slave.Position}
		if w.hasOut {
			pm.OutputLogical = uint32(w.outMin)
			pm.OutputBytes = w.outMax - w.outMin
		}
		if w.hasIn {
			pm.InputLogical = uint32(w.inMin)
			pm.InputBytes = w.inMax - w.inMin
		}
		mappings = append(mappings, pm)
	}
	return mappings
}

// Start opens the transport and, if the state machine is enabled, drives
// the network through the full startup ladder (spec.md §4.4). Fatal
// startup failures close the transport and leave the Master unstarted
// (spec.md §7).
func (m *Master) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return ErrNotConfigured
	}
	if m.started {
		return nil
	}

	if err := m.t.Open(); err != nil {
		return fmt.Errorf("ethercat: open transport: %w", err)
	}

	if m.opts.StateMachine.Enable {
		if err := m.ladder.Startup(m.processImageMappings()); err != nil {
			_ = m.t.Close()
			return fmt.Errorf("ethercat: startup: %w", err)
		}
	}

	m.started = true
	return nil
}

// Stop closes the transport. It does not clear the configuration or
// counters.
func (m *Master) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	return m.t.Close()
}

// SetOutputByName writes value into the output-image bit bound to the
// named signal. It is an error to target an input signal (spec.md §8
// property 3).
func (m *Master) SetOutputByName(name string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signalIndex[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	if sig.Direction != SignalOutput {
		return fmt.Errorf("%w: %q is an input signal", ErrWrongDirection, name)
	}
	m.image.writeOutputBit(sig.ByteOffset, sig.BitOffset, value)
	return nil
}

// ReadInputByName reads the current input-image bit bound to the named
// signal. It is an error to target an output signal (spec.md §8 property
// 3).
func (m *Master) ReadInputByName(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signalIndex[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	if sig.Direction != SignalInput {
		return false, fmt.Errorf("%w: %q is an output signal", ErrWrongDirection, name)
	}
	return m.image.readInputBit(sig.ByteOffset, sig.BitOffset), nil
}

// OnInputChange registers a callback invoked from within RunCycle whenever
// the named input signal's value differs from the previous cycle's value
// (spec.md §4.8 step 6). The callback closure is owned by the caller for
// the lifetime of the configuration (spec.md §3).
func (m *Master) OnInputChange(name string, cb func(value bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signalIndex[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	if sig.Direction != SignalInput {
		return fmt.Errorf("%w: %q is an output signal", ErrWrongDirection, name)
	}
	m.inputCallbacks[name] = cb
	return nil
}

// RecoveryEvents returns the bounded recovery event log, oldest first.
func (m *Master) RecoveryEvents() []recovery.RecoveryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveryEngine.EventHistory()
}

// Stats returns a copy of the current cycle statistics.
func (m *Master) Stats() CycleStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Image returns the Master's process image. Its accessors take their own
// lock; the returned pointer is valid for the lifetime of the current
// configuration.
func (m *Master) Image() *ProcessImage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.image
}

// RunCycle performs one atomic cyclic exchange: snapshot outputs, exchange
// with the transport, update the input image, run the DC closed loop,
// dispatch input-change callbacks, and record statistics (spec.md §4.8).
// The whole call runs under the Master's single coarse lock.
func (m *Master) RunCycle() (CycleStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return m.stats, ErrNotStarted
	}

	start := time.Now()
	outputs := m.image.outputSnapshot()
	inputs := make([]byte, m.cfg.ProcessImageInputBytes)

	result, err := m.t.Exchange(outputs, inputs)
	if err != nil {
		m.stats.CyclesTotal++
		m.stats.CyclesFailed++
		m.stats.LastError = err
		m.observeCycleMetric(false, 0)
		if m.opts.Recovery.Enable {
			m.runRecovery()
		}
		log.WithError(err).Warn("ethercat: cyclic exchange failed")
		return m.stats, err
	}

	m.image.swapInput(inputs)
	m.stats.LastWorkingCounter = result.WorkingCounter
	m.observeCycleMetric(true, result.WorkingCounter)

	if rs := m.redundancyMachine.State(); rs == topology.RedundancyDegraded || rs == topology.Recovering {
		m.stats.ImpactedCycles++
	}

	if m.dcDriver != nil {
		m.stepDc()
	}

	m.dispatchInputCallbacks()

	m.stats.CyclesTotal++
	m.stats.LastError = nil
	m.stats.Degraded = m.dcDegraded
	m.stats.LastCycleRuntime = time.Since(start)
	return m.stats, nil
}

// stepDc advances the DC closed loop for every configured slave other than
// the reference, applying the sync-quality monitor's Warn/Degrade/Recover
// verdict (spec.md §4.6): Warn only logs, Degrade latches the master
// degraded, Recover clears it and, if recovery is enabled, asks the
// recovery engine to re-drive every configured slave.
func (m *Master) stepDc() {
	for _, position := range m.cfg.slavePositions() {
		if position == m.opts.DcClosedLoop.ReferenceSlavePosition {
			continue
		}
		st, action, err := m.dcDriver.StepSlave(position)
		if err != nil {
			log.WithField("position", position).WithError(err).Debug("ethercat: dc step failed")
			continue
		}
		if m.opts.Metrics != nil {
			m.opts.Metrics.ObserveDcOffset(position, st.RawOffsetNs)
		}
		switch action {
		case dc.PolicyWarn:
			log.WithField("position", position).Debug("ethercat: dc sync out of window")
		case dc.PolicyDegrade:
			m.dcDegraded = true
			log.WithField("position", position).Warn("ethercat: dc sync degraded")
		case dc.PolicyRecover:
			m.dcDegraded = false
			log.WithField("position", position).Info("ethercat: dc sync recovered")
			if m.opts.Recovery.Enable {
				m.runRecovery()
			}
		}
	}
}

func (m *Master) runRecovery() {
	events := m.recoveryEngine.RecoverNetwork(m.cfg.slavePositions(), recoveryTargetState)
	for range events {
		if m.opts.Metrics != nil {
			m.opts.Metrics.ObserveRecoveryEvent()
		}
	}
}

func (m *Master) dispatchInputCallbacks() {
	for _, sig := range m.cfg.Signals {
		if sig.Direction != SignalInput {
			continue
		}
		value := m.image.readInputBit(sig.ByteOffset, sig.BitOffset)
		if prev, ok := m.lastInputValues[sig.Name]; ok && prev == value {
			continue
		}
		m.lastInputValues[sig.Name] = value
		if cb, ok := m.inputCallbacks[sig.Name]; ok {
			cb(value)
		}
	}
}

func (m *Master) observeCycleMetric(ok bool, wkc uint16) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveCycle(ok, wkc)
	}
}

// RefreshTopology re-discovers the physical topology, advances the
// redundancy state machine and the missing/hot-connect policy, and, if
// recovery is enabled and the policy escalates to Degrade or FailStop on a
// missing slave, invokes the recovery engine for that position. It is not
// part of the per-exchange runCycle sequence (spec.md §4.7 names it as an
// independent operation); callers typically invoke it at a slower cadence
// than the cyclic exchange.
func (m *Master) RefreshTopology() (topology.Snapshot, topology.ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return topology.Snapshot{}, topology.ChangeSet{}, ErrNotConfigured
	}

	snap, changes, err := m.topologyReconciler.Refresh()
	if err != nil {
		return snap, changes, err
	}

	m.redundancyMachine.Observe(snap.Redundant, snap.Generation)

	if m.opts.Topology.Enable {
		missing := topology.MissingSlaves(snap, m.opts.Topology.ExpectedPositions)
		hot := topology.HotConnectedSlaves(snap, m.opts.Topology.ExpectedPositions)
		actions := m.topologyPolicy.Evaluate(missing, hot)
		for position, action := range actions {
			if action == topology.ActionDegrade || action == topology.ActionFailStop {
				log.WithFields(log.Fields{"position": position, "action": action}).Warn("ethercat: topology policy escalated")
				if m.opts.Recovery.Enable {
					for range m.recoveryEngine.RecoverNetwork([]uint16{position}, recoveryTargetState) {
						if m.opts.Metrics != nil {
							m.opts.Metrics.ObserveRecoveryEvent()
						}
					}
				}
			}
		}
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveTopologyGeneration(snap.Generation)
	}
	return snap, changes, nil
}
