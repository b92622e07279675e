package events

import "time"

// EntityKind names the record a change event refers to.
type EntityKind string

const (
	EntityKindTicket         EntityKind = "ticket"
	EntityKindProgressUpdate EntityKind = "progress_update"
)

// ChangeEvent is an ephemeral notification of a committed mutation. It is
// produced exactly once per commit and delivered to zero or more sessions;
// it is never persisted. IsRead is filled in per session when rendering.
type ChangeEvent struct {
	ID         string     `json:"id"`
	EntityKind EntityKind `json:"entityKind"`
	EntityID   string     `json:"entityId"`
	Timestamp  time.Time  `json:"timestamp"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	IsRead     bool       `json:"isRead"`
}
