package ttr

import "github.com/noc-kit/faultdesk/internal/domain"

// ClassifyAtClosure decides the compliance verdict at the instant a ticket
// closes, comparing actual elapsed hours against the TTR target. The result
// is frozen onto the ticket by the lifecycle engine and never recomputed:
// after closure "now" no longer corresponds to the closure event.
func ClassifyAtClosure(targetHours, realHours float64) domain.Compliance {
	if realHours <= targetHours {
		return domain.ComplianceComply
	}
	return domain.ComplianceNotComply
}
