package repository

import (
	"context"
	"time"

	"github.com/noc-kit/faultdesk/internal/domain"
)

// TicketFilter captures listing parameters. ChangedSince is the cursor for
// polling clients that only want records mutated after a point in time.
type TicketFilter struct {
	Statuses     []domain.TicketStatus
	SiteCode     *string
	ChangedSince *time.Time
	OpenOnly     bool
	Limit        int
	Offset       int
}

// Store is the record store contract the lifecycle engine requires: keyed
// create/read/update/delete plus a list-changed-since capability. Reads
// return a full snapshot of the record in one fetch; callers never observe a
// torn mix of fields.
type Store interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	DeleteTicket(ctx context.Context, id string) error
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdateRemainingHint(ctx context.Context, id string, hint float64) error

	InsertProgress(ctx context.Context, update *domain.ProgressUpdate) error
	ListProgressByTicket(ctx context.Context, ticketID string) ([]domain.ProgressUpdate, error)
	LatestProgressAt(ctx context.Context, ticketID string) (*time.Time, error)
	DeleteProgressByTicket(ctx context.Context, ticketID string) error
}

// TxStore is implemented by stores that can run a set of writes atomically.
// The engine prefers this path for the ticket+progress dual write and falls
// back to the pending-intent protocol otherwise.
type TxStore interface {
	Store
	WithTransaction(ctx context.Context, fn func(Store) error) error
}
