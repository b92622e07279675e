package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noc-kit/faultdesk/internal/domain"
	"github.com/noc-kit/faultdesk/internal/events"
	"github.com/noc-kit/faultdesk/internal/observability"
	"github.com/noc-kit/faultdesk/internal/repository"
	"github.com/noc-kit/faultdesk/internal/settings"
	"github.com/noc-kit/faultdesk/internal/ttr"
	"github.com/noc-kit/faultdesk/pkg/util"
)

// progressWriteRetries bounds the pending-intent insert attempts before a
// PartialCommit is surfaced.
const progressWriteRetries = 3

// TicketService is the lifecycle engine: it orchestrates the transition
// validator, the TTR clock, the compliance classifier and the record store
// into the two supported commands, and publishes change events only after
// the writes are durable.
type TicketService struct {
	store       repository.Store
	settings    settings.Provider
	hub         *events.Hub
	logger      *zap.Logger
	metrics     *observability.Metrics
	locks       *ticketLocks
	lockTimeout time.Duration
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the engine.
type TicketDependencies struct {
	Store       repository.Store
	Settings    settings.Provider
	Hub         *events.Hub
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	LockTimeout time.Duration
	Now         func() time.Time
}

// NewTicketService constructs the engine.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	lockTimeout := deps.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &TicketService{
		store:       deps.Store,
		settings:    deps.Settings,
		hub:         deps.Hub,
		logger:      logger,
		metrics:     deps.Metrics,
		locks:       newTicketLocks(),
		lockTimeout: lockTimeout,
		now:         now,
	}
}

// OpenTicketInput describes the open-ticket command payload.
type OpenTicketInput struct {
	IncidentNumbers []string
	SiteCode        string
	SiteName        string
	Category        string
	TTRTargetHours  float64
	OpenedAt        *time.Time
	IsPermanent     bool
	Technicians     []string
	Location        string
	Cause           string
}

// UpdateInput describes the apply-update command payload. RequestedStatus,
// Message and assignment changes are each optional, but the command must
// carry at least one of them.
type UpdateInput struct {
	RequestedStatus   *domain.TicketStatus
	Message           string
	Origin            domain.UpdateOrigin
	Attachments       []string
	ClosedAt          *time.Time
	Cause             string
	Location          string
	AddTechnicians    []string
	RemoveTechnicians []string
}

func (in UpdateInput) empty() bool {
	return in.RequestedStatus == nil &&
		strings.TrimSpace(in.Message) == "" &&
		len(in.AddTechnicians) == 0 &&
		len(in.RemoveTechnicians) == 0 &&
		strings.TrimSpace(in.Cause) == "" &&
		strings.TrimSpace(in.Location) == ""
}

// UpdateResult reports the outcome of an apply-update command.
type UpdateResult struct {
	Ticket   *domain.Ticket
	Progress *domain.ProgressUpdate
}

// TicketView pairs a ticket snapshot with its freshly recomputed TTR state.
type TicketView struct {
	Ticket         *domain.Ticket
	Deadline       time.Time
	RemainingHours float64
	Severity       ttr.Severity
	DueSoon        bool
}

// OpenTicket constructs a ticket in OPEN or ASSIGNED per technician presence,
// derives the deadline from the target, persists it and emits one change
// event.
func (s *TicketService) OpenTicket(ctx context.Context, input OpenTicketInput) (*domain.Ticket, error) {
	if err := validateOpenInput(input); err != nil {
		s.metrics.RecordCommand("open_ticket", "rejected")
		return nil, err
	}

	openedAt := s.now()
	if input.OpenedAt != nil {
		openedAt = *input.OpenedAt
	}

	ticket := &domain.Ticket{
		ID:              uuid.NewString(),
		IncidentNumbers: trimAll(input.IncidentNumbers),
		SiteCode:        strings.TrimSpace(input.SiteCode),
		SiteName:        strings.TrimSpace(input.SiteName),
		Category:        strings.TrimSpace(input.Category),
		Status:          domain.InitialStatus(input.Technicians),
		TTRTargetHours:  input.TTRTargetHours,
		OpenedAt:        openedAt,
		IsPermanent:     input.IsPermanent,
		Technicians:     dedupeNames(input.Technicians),
		Cause:           strings.TrimSpace(input.Cause),
		Location:        strings.TrimSpace(input.Location),
	}

	if err := s.store.InsertTicket(ctx, ticket); err != nil {
		s.metrics.RecordCommand("open_ticket", "error")
		return nil, err
	}

	s.publish(events.ChangeEvent{
		EntityKind: events.EntityKindTicket,
		EntityID:   ticket.ID,
		Title:      fmt.Sprintf("Ticket %s opened", ticket.PrimaryIncident()),
		Message:    fmt.Sprintf("%s at %s, TTR target %.2fh", ticket.Category, ticket.SiteName, ticket.TTRTargetHours),
	})
	s.metrics.RecordCommand("open_ticket", "ok")
	s.logger.Info("ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.String("incident", ticket.PrimaryIncident()),
		zap.String("status", string(ticket.Status)))
	return ticket, nil
}

// ApplyUpdate runs a validated mutation against one ticket under its lock:
// load snapshot, resolve any pending intent, validate the transition, freeze
// compliance at closure, commit the dual write, then publish.
func (s *TicketService) ApplyUpdate(ctx context.Context, ticketID string, input UpdateInput) (*UpdateResult, error) {
	if input.empty() {
		return nil, util.NewValidationError("update carries no status, message or assignment change", nil)
	}
	if input.Origin == "" {
		input.Origin = domain.OriginHelpdesk
	}
	if !input.Origin.Valid() {
		return nil, util.NewValidationError("unknown update origin", map[string]any{"origin": string(input.Origin)})
	}

	release, err := s.locks.acquire(ctx, ticketID, s.lockTimeout)
	if err != nil {
		s.metrics.RecordCommand("apply_update", "contention")
		return nil, util.NewConcurrentModification(ticketID)
	}
	defer release()

	result, err := s.applyUpdateLocked(ctx, ticketID, input)
	if err != nil {
		if util.HasCode(err, util.CodeInvalidTransition) || util.HasCode(err, util.CodeMissingRequiredField) {
			s.metrics.RecordCommand("apply_update", "rejected")
		} else {
			s.metrics.RecordCommand("apply_update", "error")
		}
		return nil, err
	}
	s.metrics.RecordCommand("apply_update", "ok")
	return result, nil
}

func (s *TicketService) applyUpdateLocked(ctx context.Context, ticketID string, input UpdateInput) (*UpdateResult, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.resolvePendingIntent(ctx, ticket); err != nil {
		return nil, err
	}

	currentStatus := ticket.Status
	resultingStatus := currentStatus
	closing := false

	if input.RequestedStatus != nil {
		requested := *input.RequestedStatus
		fields := domain.ClosureFields{Cause: firstNonEmpty(strings.TrimSpace(input.Cause), ticket.Cause)}
		if requested == domain.TicketStatusClosed && currentStatus != domain.TicketStatusClosed {
			closedAt := s.now()
			if input.ClosedAt != nil {
				closedAt = *input.ClosedAt
			}
			verdict := ttr.ClassifyAtClosure(ticket.TTRTargetHours, closedAt.Sub(ticket.OpenedAt).Hours())
			fields.ClosedAt = &closedAt
			fields.Compliance = &verdict
			closing = true
		}
		if err := domain.ValidateTransition(currentStatus, requested, fields); err != nil {
			return nil, err
		}
		resultingStatus = requested
		ticket.Status = requested
		if closing {
			// Frozen at the instant of closure; never recomputed afterwards.
			ticket.ClosedAt = fields.ClosedAt
			ticket.Compliance = fields.Compliance
		}
	}

	if cause := strings.TrimSpace(input.Cause); cause != "" {
		ticket.Cause = cause
	}
	if location := strings.TrimSpace(input.Location); location != "" {
		ticket.Location = location
	}
	for _, name := range trimAll(input.AddTechnicians) {
		if !ticket.HasTechnician(name) {
			ticket.Technicians = append(ticket.Technicians, name)
		}
	}
	for _, name := range trimAll(input.RemoveTechnicians) {
		ticket.Technicians = removeName(ticket.Technicians, name)
	}

	var progress *domain.ProgressUpdate
	if message := strings.TrimSpace(input.Message); message != "" {
		statusAfter := resultingStatus
		progress = &domain.ProgressUpdate{
			ID:          uuid.NewString(),
			TicketID:    ticket.ID,
			Timestamp:   s.now(),
			Message:     message,
			Origin:      input.Origin,
			StatusAfter: &statusAfter,
			Attachments: input.Attachments,
		}
	}

	if err := s.commit(ctx, ticket, progress); err != nil {
		return nil, err
	}

	s.publish(events.ChangeEvent{
		EntityKind: events.EntityKindTicket,
		EntityID:   ticket.ID,
		Title:      fmt.Sprintf("Ticket %s %s", ticket.PrimaryIncident(), strings.ToLower(string(resultingStatus))),
		Message:    transitionMessage(currentStatus, resultingStatus, ticket),
	})
	if progress != nil {
		s.publish(events.ChangeEvent{
			EntityKind: events.EntityKindProgressUpdate,
			EntityID:   progress.ID,
			Title:      fmt.Sprintf("Update on %s", ticket.PrimaryIncident()),
			Message:    progress.Message,
		})
	}

	s.logger.Info("ticket updated",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(currentStatus)),
		zap.String("to", string(resultingStatus)),
		zap.Bool("progress_recorded", progress != nil))
	return &UpdateResult{Ticket: ticket, Progress: progress}, nil
}

// commit makes the ticket mutation and the progress row durable as a unit.
// With a transactional store both writes share one transaction. Otherwise the
// ticket row is written first carrying the serialized progress update as a
// pending intent, the progress row is inserted with bounded retries, and the
// intent is cleared; a crash or exhaustion leaves the intent in place to be
// re-driven on next access.
func (s *TicketService) commit(ctx context.Context, ticket *domain.Ticket, progress *domain.ProgressUpdate) error {
	if progress == nil {
		return s.store.UpdateTicket(ctx, ticket)
	}

	if tx, ok := s.store.(repository.TxStore); ok {
		return tx.WithTransaction(ctx, func(store repository.Store) error {
			if err := store.UpdateTicket(ctx, ticket); err != nil {
				return err
			}
			return store.InsertProgress(ctx, progress)
		})
	}

	ticket.PendingIntent = &domain.PendingIntent{
		UpdateID:  progress.ID,
		Timestamp: progress.Timestamp,
		Message:   progress.Message,
		Origin:    progress.Origin,
		Status:    ticket.Status,
	}
	if err := s.store.UpdateTicket(ctx, ticket); err != nil {
		ticket.PendingIntent = nil
		return err
	}

	var insertErr error
	for attempt := 0; attempt < progressWriteRetries; attempt++ {
		if insertErr = s.store.InsertProgress(ctx, progress); insertErr == nil {
			break
		}
	}
	if insertErr != nil {
		s.logger.Error("progress write exhausted retries, leaving pending intent",
			zap.String("ticket_id", ticket.ID),
			zap.String("update_id", progress.ID),
			zap.Error(insertErr))
		return util.NewPartialCommit(ticket.ID, insertErr)
	}

	ticket.PendingIntent = nil
	if err := s.store.UpdateTicket(ctx, ticket); err != nil {
		// Progress is durable; a stale tag is harmless and cleared on the
		// next access.
		s.logger.Warn("could not clear pending intent tag",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	return nil
}

// resolvePendingIntent re-drives a write-ahead intent left by an earlier
// partial commit before any new mutation proceeds. The insert is idempotent
// on the update id, so replaying after an uncertain outcome is safe.
func (s *TicketService) resolvePendingIntent(ctx context.Context, ticket *domain.Ticket) error {
	intent := ticket.PendingIntent
	if intent == nil {
		return nil
	}
	statusAfter := intent.Status
	update := &domain.ProgressUpdate{
		ID:          intent.UpdateID,
		TicketID:    ticket.ID,
		Timestamp:   intent.Timestamp,
		Message:     intent.Message,
		Origin:      intent.Origin,
		StatusAfter: &statusAfter,
	}
	if err := s.store.InsertProgress(ctx, update); err != nil {
		return util.NewPartialCommit(ticket.ID, err)
	}
	ticket.PendingIntent = nil
	if err := s.store.UpdateTicket(ctx, ticket); err != nil {
		return err
	}
	s.logger.Info("re-drove pending progress intent",
		zap.String("ticket_id", ticket.ID),
		zap.String("update_id", intent.UpdateID))
	return nil
}

// GetTicket returns a snapshot with the TTR state recomputed from the stored
// timestamps and a fresh settings read. The stored remaining hint is never
// consulted.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*TicketView, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	view, err := s.buildView(ctx, ticket)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListTickets returns ticket views for the filter, including changed-since
// cursor queries.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]TicketView, error) {
	tickets, err := s.store.ListTickets(ctx, filter)
	if err != nil {
		return nil, err
	}
	values, err := s.settings.TTRSettings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		views = append(views, makeView(&tickets[i], values, now))
	}
	return views, nil
}

// ListProgress returns a ticket's updates ordered by timestamp, creation
// sequence breaking ties.
func (s *TicketService) ListProgress(ctx context.Context, ticketID string) ([]domain.ProgressUpdate, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.store.ListProgressByTicket(ctx, ticketID)
}

// PurgeTicket is the administrative purge: it removes the ticket and its
// progress rows. Purging an unknown id succeeds, so replays are harmless.
func (s *TicketService) PurgeTicket(ctx context.Context, ticketID string) error {
	release, err := s.locks.acquire(ctx, ticketID, s.lockTimeout)
	if err != nil {
		return util.NewConcurrentModification(ticketID)
	}
	defer release()

	purge := func(store repository.Store) error {
		if err := store.DeleteProgressByTicket(ctx, ticketID); err != nil {
			return err
		}
		return store.DeleteTicket(ctx, ticketID)
	}
	if tx, ok := s.store.(repository.TxStore); ok {
		err = tx.WithTransaction(ctx, purge)
	} else {
		err = purge(s.store)
	}
	if err != nil {
		s.metrics.RecordCommand("purge_ticket", "error")
		return err
	}
	s.metrics.RecordCommand("purge_ticket", "ok")
	s.publish(events.ChangeEvent{
		EntityKind: events.EntityKindTicket,
		EntityID:   ticketID,
		Title:      "Ticket purged",
		Message:    "ticket and its history were removed by an administrator",
	})
	return nil
}

func (s *TicketService) buildView(ctx context.Context, ticket *domain.Ticket) (*TicketView, error) {
	values, err := s.settings.TTRSettings(ctx)
	if err != nil {
		return nil, err
	}
	view := makeView(ticket, values, s.now())
	return &view, nil
}

func makeView(ticket *domain.Ticket, values settings.TTRSettings, now time.Time) TicketView {
	remaining := ttr.Remaining(ticket.OpenedAt, ticket.TTRTargetHours, now)
	return TicketView{
		Ticket:         ticket,
		Deadline:       ticket.Deadline(),
		RemainingHours: remaining,
		Severity:       ttr.Classify(remaining, values.Thresholds()),
		DueSoon:        ttr.IsDueSoon(remaining, values.DueSoonHours),
	}
}

func (s *TicketService) publish(event events.ChangeEvent) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(event)
	s.metrics.RecordEventPublished()
}

func validateOpenInput(input OpenTicketInput) error {
	numbers := trimAll(input.IncidentNumbers)
	if len(numbers) == 0 {
		return util.NewValidationError("at least one incident number is required", nil)
	}
	if input.TTRTargetHours <= 0 {
		return util.NewValidationError("ttr_target_hours must be positive",
			map[string]any{"ttr_target_hours": input.TTRTargetHours})
	}
	if strings.TrimSpace(input.SiteCode) == "" {
		return util.NewValidationError("site_code is required", nil)
	}
	return nil
}

func transitionMessage(from, to domain.TicketStatus, ticket *domain.Ticket) string {
	if from == to {
		return fmt.Sprintf("ticket updated in status %s", to)
	}
	if to == domain.TicketStatusClosed && ticket.Compliance != nil {
		return fmt.Sprintf("closed %s -> %s, verdict %s", from, to, *ticket.Compliance)
	}
	return fmt.Sprintf("status changed %s -> %s", from, to)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range trimAll(names) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, existing := range names {
		if existing != name {
			out = append(out, existing)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
