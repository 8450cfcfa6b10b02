// Package dc implements the distributed-clocks discipline loop: a
// low-pass-filtered PI controller producing a slew-limited correction per
// slave, and a sync-quality monitor tracking lock/out-of-window state
// (spec.md §4.6). The control-loop shape follows the teacher's SDO client
// retry/backoff bookkeeping in spirit — bounded per-step state updated from
// one scalar measurement — generalized to a continuous clamp-and-slew PI
// loop instead of a retry counter.
package dc

import "math"

// ControllerOptions configures one slave's PI correction loop.
type ControllerOptions struct {
	// Alpha is the low-pass filter coefficient applied to the raw offset
	// measurement before it reaches the PI loop, in (0, 1].
	Alpha float64
	Kp    float64
	Ki    float64
	// CorrectionClampNs bounds the raw PI output (kp*filtered + ki*integral)
	// absolutely, before the slew limiter runs — not the accumulated
	// integral term.
	CorrectionClampNs float64
	// MaxSlewPerCycleNs bounds how much the applied correction may change
	// between consecutive Step calls. Zero disables slew limiting.
	MaxSlewPerCycleNs int64
}

func (o ControllerOptions) withDefaults() ControllerOptions {
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = 1
	}
	return o
}

// Controller is one slave's offset filter, PI correction loop, and lifetime
// jitter accumulator. The lifetime accumulator (samples/sumSquares/
// maxAbsOffsetNs) never forgets a sample, unlike the bounded rolling window
// in JitterWindow.
type Controller struct {
	opts             ControllerOptions
	filteredOffsetNs float64
	integral         float64
	lastAppliedNs    int64

	samples        uint64
	sumSquares     float64
	maxAbsOffsetNs int64
}

// NewController returns a Controller with a zeroed filter and integral.
func NewController(opts ControllerOptions) *Controller {
	return &Controller{opts: opts.withDefaults()}
}

// Step filters rawOffsetNs, advances the PI loop, clamps the raw correction
// and slew-limits the output relative to the previous call's result (zero
// before the first call), returning the correction to apply this cycle. The
// very first call uses
// the raw offset unfiltered: there is no previous filtered value to blend
// from.
func (c *Controller) Step(rawOffsetNs int64) int64 {
	offset := float64(rawOffsetNs)
	if c.samples == 0 {
		c.filteredOffsetNs = offset
	} else {
		c.filteredOffsetNs = c.opts.Alpha*offset + (1-c.opts.Alpha)*c.filteredOffsetNs
	}

	c.integral += c.filteredOffsetNs

	correction := c.opts.Kp*c.filteredOffsetNs + c.opts.Ki*c.integral
	if c.opts.CorrectionClampNs > 0 {
		if correction > c.opts.CorrectionClampNs {
			correction = c.opts.CorrectionClampNs
		}
		if correction < -c.opts.CorrectionClampNs {
			correction = -c.opts.CorrectionClampNs
		}
	}
	applied := int64(correction)

	if c.opts.MaxSlewPerCycleNs > 0 {
		delta := applied - c.lastAppliedNs
		if delta > c.opts.MaxSlewPerCycleNs {
			applied = c.lastAppliedNs + c.opts.MaxSlewPerCycleNs
		} else if delta < -c.opts.MaxSlewPerCycleNs {
			applied = c.lastAppliedNs - c.opts.MaxSlewPerCycleNs
		}
	}

	c.lastAppliedNs = applied

	c.sumSquares += offset * offset
	if abs := int64(math.Abs(offset)); abs > c.maxAbsOffsetNs {
		c.maxAbsOffsetNs = abs
	}
	c.samples++

	return applied
}

// FilteredOffsetNs returns the most recent low-pass-filtered offset.
func (c *Controller) FilteredOffsetNs() int64 {
	return int64(c.filteredOffsetNs)
}

// Stats is the controller's lifetime jitter accumulator (spec.md §4.6),
// distinct from the bounded percentile window computed by JitterWindow.
type Stats struct {
	Samples        uint64
	JitterRmsNs    float64
	MaxAbsOffsetNs int64
}

// Stats returns the lifetime sample count, RMS jitter
// (sqrt(sumSquares/samples)), and max-abs offset observed since
// NewController.
func (c *Controller) Stats() Stats {
	s := Stats{Samples: c.samples, MaxAbsOffsetNs: c.maxAbsOffsetNs}
	if c.samples > 0 {
		s.JitterRmsNs = math.Sqrt(c.sumSquares / float64(c.samples))
	}
	return s
}
