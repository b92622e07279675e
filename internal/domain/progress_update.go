package domain

import "time"

// UpdateOrigin tags who produced a progress update.
type UpdateOrigin string

const (
	OriginHelpdesk UpdateOrigin = "HELPDESK"
	OriginAdmin    UpdateOrigin = "ADMIN"
	OriginSystem   UpdateOrigin = "SYSTEM"
)

// Valid reports whether o is a known wire value.
func (o UpdateOrigin) Valid() bool {
	return o == OriginHelpdesk || o == OriginAdmin || o == OriginSystem
}

// ProgressUpdate is an immutable history entry on a ticket. Once created it
// is never mutated or deleted; ordering between updates on the same ticket is
// by Timestamp with Seq breaking ties in creation order.
type ProgressUpdate struct {
	ID          string
	TicketID    string
	Timestamp   time.Time
	Message     string
	Origin      UpdateOrigin
	StatusAfter *TicketStatus
	Attachments []string
	Seq         int64
}
