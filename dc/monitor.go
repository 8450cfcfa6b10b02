package dc

// PolicyAction is the sync-quality policy's verdict for one observation
// (spec.md §4.6's Warn/Degrade/Recover latch).
type PolicyAction uint8

const (
	PolicyNone PolicyAction = iota
	PolicyWarn
	PolicyDegrade
	PolicyRecover
)

func (a PolicyAction) String() string {
	switch a {
	case PolicyNone:
		return "None"
	case PolicyWarn:
		return "Warn"
	case PolicyDegrade:
		return "Degrade"
	case PolicyRecover:
		return "Recover"
	default:
		return "Unknown"
	}
}

// MonitorOptions configures lock-acquisition and degrade thresholds.
type MonitorOptions struct {
	// WindowNs is the maximum absolute offset considered "in window".
	WindowNs int64
	// LockAcquireInWindowCycles is how many consecutive in-window
	// observations are required to declare the clock locked.
	LockAcquireInWindowCycles int
	// MaxConsecutiveOutOfWindowCycles is how many consecutive out-of-window
	// observations trigger a Degrade verdict.
	MaxConsecutiveOutOfWindowCycles int
}

func (o MonitorOptions) withDefaults() MonitorOptions {
	if o.LockAcquireInWindowCycles <= 0 {
		o.LockAcquireInWindowCycles = 1
	}
	if o.MaxConsecutiveOutOfWindowCycles <= 0 {
		o.MaxConsecutiveOutOfWindowCycles = 1
	}
	return o
}

// Monitor tracks one slave's lock state across cycles and latches a
// Degrade verdict until the clock relocks, at which point it emits exactly
// one Recover.
type Monitor struct {
	opts MonitorOptions

	locked                 bool
	degraded               bool
	consecutiveInWindow    int
	consecutiveOutOfWindow int
}

// NewMonitor returns an unlocked, non-degraded Monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	return &Monitor{opts: opts.withDefaults()}
}

// Observe records one cycle's raw offset and returns the resulting policy
// verdict for this cycle.
func (m *Monitor) Observe(offsetNs int64) PolicyAction {
	inWindow := abs64(offsetNs) <= m.opts.WindowNs

	if inWindow {
		m.consecutiveOutOfWindow = 0
		m.consecutiveInWindow++
		if !m.locked && m.consecutiveInWindow >= m.opts.LockAcquireInWindowCycles {
			m.locked = true
		}
		if m.degraded && m.locked {
			m.degraded = false
			return PolicyRecover
		}
		return PolicyNone
	}

	m.consecutiveInWindow = 0
	m.consecutiveOutOfWindow++
	m.locked = false
	if m.consecutiveOutOfWindow >= m.opts.MaxConsecutiveOutOfWindowCycles {
		if !m.degraded {
			m.degraded = true
			return PolicyDegrade
		}
		return PolicyNone
	}
	return PolicyWarn
}

// Locked reports whether the clock is currently considered locked.
func (m *Monitor) Locked() bool { return m.locked }

// Degraded reports whether a Degrade verdict is currently latched.
func (m *Monitor) Degraded() bool { return m.degraded }

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
