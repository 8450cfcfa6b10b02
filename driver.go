package ethercat

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CycleReport summarizes one RunCycle invocation for an optional report
// callback (spec.md §4.9).
type CycleReport struct {
	CycleIndex     uint64
	Success        bool
	WorkingCounter uint16
	Runtime        time.Duration
}

// PhaseCorrectionFunc supplies a small adjustment to the next wake deadline,
// for callers that discipline the driver's own period against an external
// clock (spec.md §4.9 "optional phase-correction provider").
type PhaseCorrectionFunc func() time.Duration

// CyclicDriverOptions configures the fixed-period worker.
type CyclicDriverOptions struct {
	Period                  time.Duration
	StopOnError             bool
	MaxConsecutiveFailures  int
	PhaseCorrection         PhaseCorrectionFunc
	Report                  func(CycleReport)
}

func (o CyclicDriverOptions) withDefaults() CyclicDriverOptions {
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = 1
	}
	return o
}

// CyclicDriver is the dedicated task that invokes Master.RunCycle on a
// fixed period with drift-free absolute-deadline scheduling (spec.md
// §4.9). It is the only internal caller of RunCycle and never holds the
// Master's lock outside the RunCycle call itself.
type CyclicDriver struct {
	master *Master
	opts   CyclicDriverOptions

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCyclicDriver returns a driver bound to master. Its lifetime must not
// outlive master (spec.md §9 ownership graph).
func NewCyclicDriver(master *Master, opts CyclicDriverOptions) *CyclicDriver {
	return &CyclicDriver{
		master: master,
		opts:   opts.withDefaults(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run blocks, invoking RunCycle every Period until Stop is called or the
// consecutive-failure limit is reached with StopOnError set. Wake times
// form the arithmetic sequence start, start+T, start+2T, ... and do not
// drift on late wake-ups (spec.md §8 property 10).
func (d *CyclicDriver) Run() {
	defer close(d.doneCh)

	nextWake := time.Now()
	var cycleIndex uint64
	var consecutiveFailures int

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		cycleIndex++
		stats, err := d.master.RunCycle()
		success := err == nil
		if success {
			consecutiveFailures = 0
		} else {
			consecutiveFailures++
		}

		if d.opts.Report != nil {
			d.opts.Report(CycleReport{
				CycleIndex:     cycleIndex,
				Success:        success,
				WorkingCounter: stats.LastWorkingCounter,
				Runtime:        stats.LastCycleRuntime,
			})
		}

		if !success && d.opts.StopOnError && consecutiveFailures >= d.opts.MaxConsecutiveFailures {
			log.WithField("consecutiveFailures", consecutiveFailures).Error("ethercat: cyclic driver stopping after consecutive failures")
			return
		}

		nextWake = nextWake.Add(d.opts.Period)
		if d.opts.PhaseCorrection != nil {
			nextWake = nextWake.Add(d.opts.PhaseCorrection())
		}

		if !d.sleepUntil(nextWake) {
			return
		}
	}
}

// sleepUntil blocks until deadline or Stop is called, reporting which one
// woke it.
func (d *CyclicDriver) sleepUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return true
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.stopCh:
		return false
	}
}

// Stop signals Run to return and blocks until it has. Safe to call more
// than once.
func (d *CyclicDriver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}
