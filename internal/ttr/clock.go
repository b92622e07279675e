// Package ttr holds the pure time-to-resolution arithmetic: remaining hours,
// severity classification and the closure compliance verdict. Nothing here
// touches storage or holds state; thresholds are injected per call so that
// runtime settings changes take effect on the next evaluation.
package ttr

import "time"

// Severity classifies how close a ticket is to its resolution deadline.
type Severity string

const (
	SeveritySafe     Severity = "SAFE"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityOverdue  Severity = "OVERDUE"
)

// Thresholds configures the severity boundaries, in hours.
type Thresholds struct {
	WarningHours  float64
	CriticalHours float64
}

// Remaining returns the fractional hours left before the resolution deadline.
// Negative means overdue. Always recomputed from the stored open timestamp
// and target; never read from a cached field.
func Remaining(openedAt time.Time, targetHours float64, now time.Time) float64 {
	return targetHours - now.Sub(openedAt).Hours()
}

// Classify maps remaining hours onto a severity. Boundaries: exactly zero is
// OVERDUE, exactly the critical threshold is CRITICAL, exactly the warning
// threshold is WARNING.
func Classify(remaining float64, thresholds Thresholds) Severity {
	switch {
	case remaining <= 0:
		return SeverityOverdue
	case remaining <= thresholds.CriticalHours:
		return SeverityCritical
	case remaining <= thresholds.WarningHours:
		return SeverityWarning
	default:
		return SeveritySafe
	}
}

// IsDueSoon reports whether a ticket is approaching its deadline, for
// proactive alerting. Independent of the four-way classification.
func IsDueSoon(remaining, dueSoonHours float64) bool {
	return remaining > 0 && remaining <= dueSoonHours
}
