package ethercat

import (
	"time"

	"github.com/samsamfire/ethercat-master/alstate"
	"github.com/samsamfire/ethercat-master/dc"
	"github.com/samsamfire/ethercat-master/diagnostics"
	"github.com/samsamfire/ethercat-master/recovery"
	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/topology"
)

// StateMachineOptions configures the AL-state ladder driven at startup
// (spec.md §6).
type StateMachineOptions struct {
	Enable            bool
	TransitionTimeout time.Duration
	PollInterval      time.Duration
}

func (o StateMachineOptions) ladderOptions() alstate.Options {
	return alstate.Options{TransitionTimeout: o.TransitionTimeout, PollInterval: o.PollInterval}
}

// RecoveryOptions configures the recovery engine (spec.md §6).
type RecoveryOptions struct {
	Enable                bool
	MaxRetriesPerSlave     int
	MaxReconfigurePerSlave int
	StopMasterOnFailover   bool
	MaxEventHistory        int
	Overrides              map[uint16]status.RecoveryAction
}

func (o RecoveryOptions) engineOptions() recovery.Options {
	return recovery.Options{
		MaxRetryAttempts:       o.MaxRetriesPerSlave,
		MaxReconfigureAttempts: o.MaxReconfigurePerSlave,
		MaxEventHistory:        o.MaxEventHistory,
		Overrides:              o.Overrides,
	}
}

// DcClosedLoopOptions configures the distributed-clocks PI correction loop
// (spec.md §6).
type DcClosedLoopOptions struct {
	Enabled              bool
	ReferenceSlavePosition uint16
	Alpha                float64
	Kp                   float64
	Ki                   float64
	MaxCorrectionStepNs  float64
	MaxSlewPerCycleNs    int64
}

func (o DcClosedLoopOptions) controllerOptions() dc.ControllerOptions {
	return dc.ControllerOptions{
		Alpha:             o.Alpha,
		Kp:                o.Kp,
		Ki:                o.Ki,
		CorrectionClampNs: o.MaxCorrectionStepNs,
		MaxSlewPerCycleNs: o.MaxSlewPerCycleNs,
	}
}

// DcSyncQualityOptions configures the lock/out-of-window monitor layered on
// top of the DC controller (spec.md §6).
type DcSyncQualityOptions struct {
	Enabled                         bool
	MaxPhaseErrorNs                 int64
	LockAcquireInWindowCycles       int
	MaxConsecutiveOutOfWindowCycles int
	HistoryWindowCycles             int
}

func (o DcSyncQualityOptions) monitorOptions() dc.MonitorOptions {
	return dc.MonitorOptions{
		WindowNs:                        o.MaxPhaseErrorNs,
		LockAcquireInWindowCycles:       o.LockAcquireInWindowCycles,
		MaxConsecutiveOutOfWindowCycles: o.MaxConsecutiveOutOfWindowCycles,
	}
}

// TopologyConditionOptions configures the grace-cycle escalation for one
// topology condition: a missing slave or a hot-connected slave. The
// redundancy condition has no grace option; it is tracked by the
// redundancy state machine.
type TopologyConditionOptions struct {
	GraceCycles int
}

// TopologyPolicyOptions configures the topology reconciler's policy engine.
type TopologyPolicyOptions struct {
	Enable              bool
	MaxPositions         int
	ExpectedPositions    []uint16
	MissingSlave         TopologyConditionOptions
	HotConnect           TopologyConditionOptions
	RedundancyHistoryLen int
}

func (o TopologyPolicyOptions) policyOptions() topology.PolicyOptions {
	return topology.PolicyOptions{
		MissingGraceCycles:    o.MissingSlave.GraceCycles,
		HotConnectGraceCycles: o.HotConnect.GraceCycles,
	}
}

// Options is the complete set of runtime options recognized by a Master
// (spec.md §6). All suboptions default to disabled/zero; Configure applies
// sensible defaults through the leaf packages' own withDefaults().
type Options struct {
	StateMachine    StateMachineOptions
	Recovery        RecoveryOptions
	DcClosedLoop    DcClosedLoopOptions
	DcSyncQuality   DcSyncQualityOptions
	Topology        TopologyPolicyOptions
	DcJitterWindowLen int

	// Metrics, if non-nil, receives a sample after every cycle and topology
	// refresh (SPEC_FULL.md §6 — added diagnostics sink; nil is a no-op).
	Metrics *diagnostics.Metrics
}
