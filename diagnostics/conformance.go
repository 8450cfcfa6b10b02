package diagnostics

import "fmt"

// ConformanceThresholds are the KPI limits a HIL (hardware-in-the-loop)
// conformance run is judged against (spec.md §4.10).
type ConformanceThresholds struct {
	MaxCycleFailureRate        float64
	MaxRMSJitterNs             float64
	MaxAbsOffsetNs             int64
	MaxRecoveryEventsPerWindow int
	MinUptimeCycles            uint64
}

// ConformanceInput summarizes one evaluation window's observed KPIs.
type ConformanceInput struct {
	TotalCycles     uint64
	FailedCycles    uint64
	RMSJitterNs     float64
	MaxAbsOffsetNs  int64
	RecoveryEvents  int
}

// ConformanceReport is the pass/fail verdict plus the specific violations
// found, in evaluation order.
type ConformanceReport struct {
	Pass       bool
	Violations []string
}

// Evaluate checks in against thresholds and returns a ConformanceReport.
func Evaluate(in ConformanceInput, thresholds ConformanceThresholds) ConformanceReport {
	var violations []string

	if in.TotalCycles > 0 {
		rate := float64(in.FailedCycles) / float64(in.TotalCycles)
		if rate > thresholds.MaxCycleFailureRate {
			violations = append(violations, fmt.Sprintf("cycle failure rate %.4f exceeds threshold %.4f", rate, thresholds.MaxCycleFailureRate))
		}
	}
	if in.RMSJitterNs > thresholds.MaxRMSJitterNs {
		violations = append(violations, fmt.Sprintf("rms jitter %.1fns exceeds threshold %.1fns", in.RMSJitterNs, thresholds.MaxRMSJitterNs))
	}
	if in.MaxAbsOffsetNs > thresholds.MaxAbsOffsetNs {
		violations = append(violations, fmt.Sprintf("max abs offset %dns exceeds threshold %dns", in.MaxAbsOffsetNs, thresholds.MaxAbsOffsetNs))
	}
	if in.RecoveryEvents > thresholds.MaxRecoveryEventsPerWindow {
		violations = append(violations, fmt.Sprintf("recovery events %d exceeds threshold %d", in.RecoveryEvents, thresholds.MaxRecoveryEventsPerWindow))
	}
	if in.TotalCycles < thresholds.MinUptimeCycles {
		violations = append(violations, fmt.Sprintf("uptime cycles %d below minimum %d", in.TotalCycles, thresholds.MinUptimeCycles))
	}

	return ConformanceReport{Pass: len(violations) == 0, Violations: violations}
}
