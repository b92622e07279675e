package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noc-kit/faultdesk/internal/domain"
	"github.com/noc-kit/faultdesk/internal/events"
	"github.com/noc-kit/faultdesk/internal/repository"
	"github.com/noc-kit/faultdesk/internal/settings"
	"github.com/noc-kit/faultdesk/internal/ttr"
)

// TTRAlertWorker periodically scans non-closed tickets, publishes SYSTEM
// change events when a ticket becomes due soon, critical or overdue, or when
// it has had no progress update for the configured window, and writes the
// remaining-hours hint back to the store. The hint is for querying only; the
// scan itself always recomputes from source timestamps.
type TTRAlertWorker struct {
	store    repository.Store
	settings settings.Provider
	hub      *events.Hub
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu           sync.Mutex
	lastSeverity map[string]ttr.Severity
	lastStale    map[string]time.Time
}

// NewTTRAlertWorker builds the worker.
func NewTTRAlertWorker(store repository.Store, provider settings.Provider, hub *events.Hub, logger *zap.Logger, interval time.Duration) *TTRAlertWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &TTRAlertWorker{
		store:        store,
		settings:     provider,
		hub:          hub,
		logger:       logger,
		interval:     interval,
		now:          time.Now,
		lastSeverity: make(map[string]ttr.Severity),
		lastStale:    make(map[string]time.Time),
	}
}

// Run blocks, scanning on the configured interval until ctx is done.
func (w *TTRAlertWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan performs one pass over open tickets. Settings are re-read per pass so
// threshold changes take effect immediately.
func (w *TTRAlertWorker) Scan(ctx context.Context) {
	values, err := w.settings.TTRSettings(ctx)
	if err != nil {
		w.logger.Warn("settings read failed, skipping scan", zap.Error(err))
		return
	}
	tickets, err := w.store.ListTickets(ctx, repository.TicketFilter{OpenOnly: true, Limit: 1000})
	if err != nil {
		w.logger.Warn("ticket scan failed", zap.Error(err))
		return
	}

	now := w.now()
	active := make(map[string]struct{}, len(tickets))
	for i := range tickets {
		ticket := &tickets[i]
		active[ticket.ID] = struct{}{}
		w.checkDeadline(ctx, ticket, values, now)
		w.checkStale(ctx, ticket, values, now)
	}
	w.forget(active)
}

func (w *TTRAlertWorker) checkDeadline(ctx context.Context, ticket *domain.Ticket, values settings.TTRSettings, now time.Time) {
	remaining := ttr.Remaining(ticket.OpenedAt, ticket.TTRTargetHours, now)
	severity := ttr.Classify(remaining, values.Thresholds())

	if err := w.store.UpdateRemainingHint(ctx, ticket.ID, remaining); err != nil {
		w.logger.Warn("remaining hint write failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	w.mu.Lock()
	previous, tracked := w.lastSeverity[ticket.ID]
	w.lastSeverity[ticket.ID] = severity
	w.mu.Unlock()
	if tracked && previous == severity {
		return
	}

	switch {
	case severity == ttr.SeverityOverdue:
		w.publishSystem(ticket, fmt.Sprintf("Ticket %s overdue", ticket.PrimaryIncident()),
			fmt.Sprintf("TTR exceeded by %.2fh at %s", -remaining, ticket.SiteName))
	case severity == ttr.SeverityCritical:
		w.publishSystem(ticket, fmt.Sprintf("Ticket %s critical", ticket.PrimaryIncident()),
			fmt.Sprintf("%.2fh remaining before TTR deadline", remaining))
	case ttr.IsDueSoon(remaining, values.DueSoonHours):
		w.publishSystem(ticket, fmt.Sprintf("Ticket %s due soon", ticket.PrimaryIncident()),
			fmt.Sprintf("%.2fh remaining before TTR deadline", remaining))
	}
}

func (w *TTRAlertWorker) checkStale(ctx context.Context, ticket *domain.Ticket, values settings.TTRSettings, now time.Time) {
	if values.NoUpdateAlertMinutes <= 0 {
		return
	}
	latest, err := w.store.LatestProgressAt(ctx, ticket.ID)
	if err != nil {
		w.logger.Warn("latest progress lookup failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	reference := ticket.OpenedAt
	if latest != nil {
		reference = *latest
	}
	window := time.Duration(values.NoUpdateAlertMinutes) * time.Minute
	if now.Sub(reference) < window {
		return
	}

	w.mu.Lock()
	lastAlert, alerted := w.lastStale[ticket.ID]
	if alerted && now.Sub(lastAlert) < window {
		w.mu.Unlock()
		return
	}
	w.lastStale[ticket.ID] = now
	w.mu.Unlock()

	w.publishSystem(ticket, fmt.Sprintf("Ticket %s has no recent updates", ticket.PrimaryIncident()),
		fmt.Sprintf("no progress recorded for more than %d minutes", values.NoUpdateAlertMinutes))
}

func (w *TTRAlertWorker) publishSystem(ticket *domain.Ticket, title, message string) {
	if w.hub == nil {
		return
	}
	w.hub.Publish(events.ChangeEvent{
		EntityKind: events.EntityKindTicket,
		EntityID:   ticket.ID,
		Title:      title,
		Message:    message,
	})
}

// forget drops tracking state for tickets no longer in the open set.
func (w *TTRAlertWorker) forget(active map[string]struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.lastSeverity {
		if _, ok := active[id]; !ok {
			delete(w.lastSeverity, id)
			delete(w.lastStale, id)
		}
	}
}
