package topology

// PolicyAction is the escalation ladder applied to a missing or
// hot-connected slave (spec.md §4.7).
type PolicyAction uint8

const (
	ActionMonitor PolicyAction = iota
	ActionRetry
	ActionReconfigure
	ActionDegrade
	ActionFailStop
)

func (a PolicyAction) String() string {
	switch a {
	case ActionMonitor:
		return "Monitor"
	case ActionRetry:
		return "Retry"
	case ActionReconfigure:
		return "Reconfigure"
	case ActionDegrade:
		return "Degrade"
	case ActionFailStop:
		return "FailStop"
	default:
		return "Unknown"
	}
}

// PolicyOptions configures how many consecutive cycles a missing or
// hot-connected slave is tolerated at each escalation step before moving to
// the next.
type PolicyOptions struct {
	MissingGraceCycles    int
	MissingRetryCycles    int
	MissingDegradeCycles  int
	HotConnectGraceCycles int
}

func (o PolicyOptions) withDefaults() PolicyOptions {
	if o.MissingGraceCycles <= 0 {
		o.MissingGraceCycles = 1
	}
	if o.MissingRetryCycles <= 0 {
		o.MissingRetryCycles = 1
	}
	if o.MissingDegradeCycles <= 0 {
		o.MissingDegradeCycles = 1
	}
	if o.HotConnectGraceCycles <= 0 {
		o.HotConnectGraceCycles = 1
	}
	return o
}

// Policy evaluates missing/hot-connected slave positions cycle over cycle,
// escalating a position's action the longer the condition persists and
// resetting its counter the moment the condition clears.
type Policy struct {
	opts PolicyOptions

	missingSince map[uint16]int
	hotSince     map[uint16]int

	degradeCount  int
	failStopCount int
}

// NewPolicy returns a Policy with zeroed per-position counters.
func NewPolicy(opts PolicyOptions) *Policy {
	return &Policy{
		opts:         opts.withDefaults(),
		missingSince: map[uint16]int{},
		hotSince:     map[uint16]int{},
	}
}

// Evaluate advances the grace-cycle counters for the given missing and
// hot-connected positions and returns the action for each.
func (p *Policy) Evaluate(missing, hot []uint16) map[uint16]PolicyAction {
	result := make(map[uint16]PolicyAction, len(missing)+len(hot))

	seenMissing := make(map[uint16]bool, len(missing))
	for _, pos := range missing {
		seenMissing[pos] = true
		p.missingSince[pos]++
		cycles := p.missingSince[pos]
		action := ActionMonitor
		switch {
		case cycles <= p.opts.MissingGraceCycles:
			action = ActionMonitor
		case cycles <= p.opts.MissingGraceCycles+p.opts.MissingRetryCycles:
			action = ActionRetry
		case cycles <= p.opts.MissingGraceCycles+p.opts.MissingRetryCycles+p.opts.MissingDegradeCycles:
			action = ActionDegrade
			p.degradeCount++
		default:
			action = ActionFailStop
			p.failStopCount++
		}
		result[pos] = action
	}
	for pos := range p.missingSince {
		if !seenMissing[pos] {
			delete(p.missingSince, pos)
		}
	}

	seenHot := make(map[uint16]bool, len(hot))
	for _, pos := range hot {
		seenHot[pos] = true
		p.hotSince[pos]++
		if p.hotSince[pos] <= p.opts.HotConnectGraceCycles {
			result[pos] = ActionMonitor
		} else {
			result[pos] = ActionReconfigure
		}
	}
	for pos := range p.hotSince {
		if !seenHot[pos] {
			delete(p.hotSince, pos)
		}
	}

	return result
}

// DegradeCount and FailStopCount are cumulative KPI counters over the
// lifetime of the Policy (spec.md §4.10).
func (p *Policy) DegradeCount() int  { return p.degradeCount }
func (p *Policy) FailStopCount() int { return p.failStopCount }
