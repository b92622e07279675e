package domain

import "time"

// TicketStatus enumerates lifecycle states for fault tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusAssigned        TicketStatus = "ASSIGNED"
	TicketStatusOnProgress      TicketStatus = "ONPROGRESS"
	TicketStatusTemporary       TicketStatus = "TEMPORARY"
	TicketStatusWaitingMaterial TicketStatus = "WAITING_MATERIAL"
	TicketStatusWaitingAccess   TicketStatus = "WAITING_ACCESS"
	TicketStatusWaitingCoord    TicketStatus = "WAITING_COORDINATION"
	TicketStatusClosed          TicketStatus = "CLOSED"
)

// AllStatuses lists every valid wire value.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusAssigned,
	TicketStatusOnProgress,
	TicketStatusTemporary,
	TicketStatusWaitingMaterial,
	TicketStatusWaitingAccess,
	TicketStatusWaitingCoord,
	TicketStatusClosed,
}

// Valid reports whether s is a known wire value.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Compliance is the frozen verdict assigned at closure. The NOT COMPLY
// literal keeps the embedded space for wire compatibility.
type Compliance string

const (
	ComplianceComply    Compliance = "COMPLY"
	ComplianceNotComply Compliance = "NOT COMPLY"
)

// Valid reports whether c is a known wire value.
func (c Compliance) Valid() bool {
	return c == ComplianceComply || c == ComplianceNotComply
}

// Ticket is the aggregate for fault tickets. Deadline is derived from
// OpenedAt and TTRTargetHours; RemainingHint is a denormalized value written
// back by the alert worker for querying only, never read as truth.
type Ticket struct {
	ID              string
	IncidentNumbers []string
	SiteCode        string
	SiteName        string
	Category        string
	Status          TicketStatus
	TTRTargetHours  float64
	OpenedAt        time.Time
	ClosedAt        *time.Time
	Compliance      *Compliance
	IsPermanent     bool
	Technicians     []string
	Cause           string
	Location        string
	RemainingHint   *float64
	PendingIntent   *PendingIntent
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Deadline recomputes the contractual resolution deadline from its source
// timestamps.
func (t *Ticket) Deadline() time.Time {
	return t.OpenedAt.Add(time.Duration(t.TTRTargetHours * float64(time.Hour)))
}

// PrimaryIncident returns the first incident number, the primary reference.
func (t *Ticket) PrimaryIncident() string {
	if len(t.IncidentNumbers) == 0 {
		return ""
	}
	return t.IncidentNumbers[0]
}

// HasTechnician reports whether name is already assigned.
func (t *Ticket) HasTechnician(name string) bool {
	for _, existing := range t.Technicians {
		if existing == name {
			return true
		}
	}
	return false
}

// RealHours returns the actual elapsed resolution time at closure, or the
// elapsed time so far when the ticket is still open.
func (t *Ticket) RealHours(now time.Time) float64 {
	end := now
	if t.ClosedAt != nil {
		end = *t.ClosedAt
	}
	return end.Sub(t.OpenedAt).Hours()
}

// PendingIntent is the write-ahead record of a progress update that must be
// made durable before the ticket row can be considered consistent again. It
// is stored on the ticket row itself so a crash between the dual writes is
// recoverable on next access.
type PendingIntent struct {
	UpdateID  string       `json:"update_id"`
	Timestamp time.Time    `json:"timestamp"`
	Message   string       `json:"message"`
	Origin    UpdateOrigin `json:"origin"`
	Status    TicketStatus `json:"status"`
}
