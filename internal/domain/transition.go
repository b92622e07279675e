package domain

import (
	"strings"
	"time"

	"github.com/noc-kit/faultdesk/pkg/util"
)

// allowedTransitions is the legal status graph. CLOSED has no outgoing edges.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusAssigned},
	TicketStatusAssigned:   {TicketStatusOnProgress},
	TicketStatusOnProgress: {TicketStatusWaitingMaterial, TicketStatusWaitingAccess, TicketStatusWaitingCoord, TicketStatusTemporary, TicketStatusClosed},
	TicketStatusTemporary:  {TicketStatusOnProgress, TicketStatusClosed},

	TicketStatusWaitingMaterial: {TicketStatusClosed},
	TicketStatusWaitingAccess:   {TicketStatusClosed},
	TicketStatusWaitingCoord:    {TicketStatusClosed},
	TicketStatusClosed:          {},
}

// ClosureFields carries the data that must accompany a transition to CLOSED.
type ClosureFields struct {
	ClosedAt   *time.Time
	Compliance *Compliance
	Cause      string
}

// ValidateTransition enforces the legal status graph and the fields each edge
// demands. It is a pure decision with no side effects. Requesting the current
// status is accepted as an idempotent no-op, distinct from an illegal edge.
func ValidateTransition(current, requested TicketStatus, fields ClosureFields) error {
	if !requested.Valid() {
		return util.NewValidationError("unknown ticket status", map[string]any{"status": string(requested)})
	}
	if requested == current {
		return nil
	}
	if !edgeAllowed(current, requested) {
		return util.NewInvalidTransition(string(current), string(requested))
	}
	if requested == TicketStatusClosed {
		if fields.ClosedAt == nil {
			return util.NewMissingRequiredField("closed_at", "closing a ticket requires a closure timestamp")
		}
		if fields.Compliance == nil {
			return util.NewMissingRequiredField("compliance", "closing a ticket requires a compliance verdict")
		}
		if !fields.Compliance.Valid() {
			return util.NewValidationError("unknown compliance value", map[string]any{"compliance": string(*fields.Compliance)})
		}
		if *fields.Compliance == ComplianceNotComply && strings.TrimSpace(fields.Cause) == "" {
			return util.NewMissingRequiredField("cause", "a NOT COMPLY closure requires a cause explanation")
		}
	}
	return nil
}

func edgeAllowed(current, requested TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == requested {
			return true
		}
	}
	return false
}

// InitialStatus returns the creation status: ASSIGNED when a technician is
// present at open time, OPEN otherwise.
func InitialStatus(technicians []string) TicketStatus {
	if len(technicians) > 0 {
		return TicketStatusAssigned
	}
	return TicketStatusOpen
}
