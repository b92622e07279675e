package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noc-kit/faultdesk/internal/domain"
	"github.com/noc-kit/faultdesk/internal/events"
	"github.com/noc-kit/faultdesk/internal/observability"
	"github.com/noc-kit/faultdesk/internal/repository"
	"github.com/noc-kit/faultdesk/internal/settings"
	"github.com/noc-kit/faultdesk/internal/ttr"
	"github.com/noc-kit/faultdesk/pkg/util"
)

// memStore is an in-memory Store without transaction support, so the engine
// exercises the pending-intent protocol against it. Snapshots are copied on
// the way in and out: readers never observe a torn record.
type memStore struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	progress map[string][]domain.ProgressUpdate
	seq      int64

	failProgressInserts int
	updateDelay         time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		tickets:  make(map[string]*domain.Ticket),
		progress: make(map[string][]domain.ProgressUpdate),
	}
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	clone.IncidentNumbers = append([]string(nil), t.IncidentNumbers...)
	clone.Technicians = append([]string(nil), t.Technicians...)
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		clone.ClosedAt = &closedAt
	}
	if t.Compliance != nil {
		verdict := *t.Compliance
		clone.Compliance = &verdict
	}
	if t.PendingIntent != nil {
		intent := *t.PendingIntent
		clone.PendingIntent = &intent
	}
	return &clone
}

func (m *memStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return copyTicket(ticket), nil
}

func (m *memStore) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	m.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (m *memStore) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if m.updateDelay > 0 {
		time.Sleep(m.updateDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[ticket.ID]; !ok {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	ticket.UpdatedAt = time.Now()
	m.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (m *memStore) DeleteTicket(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, id)
	return nil
}

func (m *memStore) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range m.tickets {
		if filter.OpenOnly && ticket.Status == domain.TicketStatusClosed {
			continue
		}
		out = append(out, *copyTicket(ticket))
	}
	return out, nil
}

func (m *memStore) UpdateRemainingHint(ctx context.Context, id string, hint float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ticket, ok := m.tickets[id]; ok {
		ticket.RemainingHint = &hint
	}
	return nil
}

func (m *memStore) InsertProgress(ctx context.Context, update *domain.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failProgressInserts > 0 {
		m.failProgressInserts--
		return errors.New("simulated storage failure")
	}
	for _, existing := range m.progress[update.TicketID] {
		if existing.ID == update.ID {
			update.Seq = existing.Seq
			return nil
		}
	}
	m.seq++
	update.Seq = m.seq
	m.progress[update.TicketID] = append(m.progress[update.TicketID], *update)
	return nil
}

func (m *memStore) ListProgressByTicket(ctx context.Context, ticketID string) ([]domain.ProgressUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProgressUpdate(nil), m.progress[ticketID]...), nil
}

func (m *memStore) LatestProgressAt(ctx context.Context, ticketID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updates := m.progress[ticketID]
	if len(updates) == 0 {
		return nil, nil
	}
	ts := updates[len(updates)-1].Timestamp
	return &ts, nil
}

func (m *memStore) DeleteProgressByTicket(ctx context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, ticketID)
	return nil
}

// txMemStore adds transaction support; with it the engine must never resort
// to pending intents.
type txMemStore struct {
	*memStore
}

func (m *txMemStore) WithTransaction(ctx context.Context, fn func(repository.Store) error) error {
	return fn(m.memStore)
}

func testSettings() settings.Provider {
	return settings.NewStaticStore(settings.TTRSettings{
		WarningHours:         2,
		CriticalHours:        1,
		DueSoonHours:         3,
		NoUpdateAlertMinutes: 60,
	})
}

func newTestService(store repository.Store) (*TicketService, *events.Hub) {
	hub := events.NewHub(50, 50, nil, nil)
	svc := NewTicketService(TicketDependencies{
		Store:       store,
		Settings:    testSettings(),
		Hub:         hub,
		Metrics:     observability.NewMetrics(),
		LockTimeout: 2 * time.Second,
	})
	return svc, hub
}

func openInput() OpenTicketInput {
	return OpenTicketInput{
		IncidentNumbers: []string{"IN-1001"},
		SiteCode:        "BTN-014",
		SiteName:        "Bintan North",
		Category:        "MAJOR",
		TTRTargetHours:  4,
	}
}

func mustOpen(t *testing.T, svc *TicketService, input OpenTicketInput) *domain.Ticket {
	t.Helper()
	ticket, err := svc.OpenTicket(context.Background(), input)
	require.NoError(t, err)
	return ticket
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func advanceTo(t *testing.T, svc *TicketService, id string, statuses ...domain.TicketStatus) {
	t.Helper()
	for _, status := range statuses {
		_, err := svc.ApplyUpdate(context.Background(), id, UpdateInput{
			RequestedStatus: statusPtr(status),
			Origin:          domain.OriginHelpdesk,
		})
		require.NoError(t, err)
	}
}

func TestOpenTicketStatusPerAssignment(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	unassigned := mustOpen(t, svc, openInput())
	assert.Equal(t, domain.TicketStatusOpen, unassigned.Status)

	input := openInput()
	input.IncidentNumbers = []string{"IN-1002"}
	input.Technicians = []string{"Budi", "Budi", "Sari"}
	assigned := mustOpen(t, svc, input)
	assert.Equal(t, domain.TicketStatusAssigned, assigned.Status)
	assert.Equal(t, []string{"Budi", "Sari"}, assigned.Technicians)
}

func TestOpenTicketValidation(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	input := openInput()
	input.IncidentNumbers = []string{"  "}
	_, err := svc.OpenTicket(context.Background(), input)
	assert.True(t, util.HasCode(err, util.CodeValidationFailed))

	input = openInput()
	input.TTRTargetHours = 0
	_, err = svc.OpenTicket(context.Background(), input)
	assert.True(t, util.HasCode(err, util.CodeValidationFailed))
}

func TestOpenTicketEmitsChangeEvent(t *testing.T) {
	store := newMemStore()
	svc, hub := newTestService(store)
	session := hub.Subscribe()
	defer session.Close()

	ticket := mustOpen(t, svc, openInput())

	event := <-session.Events()
	assert.Equal(t, events.EntityKindTicket, event.EntityKind)
	assert.Equal(t, ticket.ID, event.EntityID)
}

func TestApplyUpdateRejectsIllegalEdge(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ticket := mustOpen(t, svc, openInput())

	_, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusOnProgress),
		Message:         "jumping the queue",
	})
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodeInvalidTransition))

	// Nothing was persisted: status unchanged, no progress row.
	current, err := store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, current.Status)
	updates, _ := store.ListProgressByTicket(context.Background(), ticket.ID)
	assert.Empty(t, updates)
}

func TestApplyUpdateSameStatusIsNoOp(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ticket := mustOpen(t, svc, openInput())

	result, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusOpen),
		Message:         "still open, waiting for dispatch",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, result.Ticket.Status)
	require.NotNil(t, result.Progress)
	assert.Equal(t, domain.TicketStatusOpen, *result.Progress.StatusAfter)
}

func TestProgressCarriesResultingStatus(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ticket := mustOpen(t, svc, openInput())

	result, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusAssigned),
		Message:         "dispatched to field team",
		AddTechnicians:  []string{"Budi"},
		Origin:          domain.OriginAdmin,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Progress)
	assert.Equal(t, domain.TicketStatusAssigned, *result.Progress.StatusAfter)
	assert.Equal(t, domain.OriginAdmin, result.Progress.Origin)

	updates, err := store.ListProgressByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "dispatched to field team", updates[0].Message)
}

func TestCloseFreezesCompliance(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	openedAt := time.Now().Add(-5 * time.Hour)
	input := openInput()
	input.OpenedAt = &openedAt
	ticket := mustOpen(t, svc, input)
	advanceTo(t, svc, ticket.ID, domain.TicketStatusAssigned, domain.TicketStatusOnProgress)

	// 5h elapsed against a 4h target: NOT COMPLY, which demands a cause.
	_, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusClosed),
		Message:         "service restored",
	})
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodeMissingRequiredField))

	result, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusClosed),
		Message:         "service restored",
		Cause:           "fiber cut, long splice",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Ticket.Compliance)
	assert.Equal(t, domain.ComplianceNotComply, *result.Ticket.Compliance)
	require.NotNil(t, result.Ticket.ClosedAt)

	// The verdict is frozen: later reads never recompute it.
	frozen := *result.Ticket.Compliance
	closedAt := *result.Ticket.ClosedAt
	view, err := svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, frozen, *view.Ticket.Compliance)
	assert.Equal(t, closedAt.Unix(), view.Ticket.ClosedAt.Unix())
}

func TestCloseWithinTargetComplies(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	openedAt := time.Now().Add(-3*time.Hour - 30*time.Minute)
	input := openInput()
	input.OpenedAt = &openedAt
	ticket := mustOpen(t, svc, input)
	advanceTo(t, svc, ticket.ID, domain.TicketStatusAssigned, domain.TicketStatusOnProgress)

	result, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusClosed),
		Message:         "service restored within target",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceComply, *result.Ticket.Compliance)
}

func TestGetTicketRecomputesTTR(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	openedAt := time.Now().Add(-150 * time.Minute)
	input := openInput()
	input.OpenedAt = &openedAt
	ticket := mustOpen(t, svc, input)

	view, err := svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, view.RemainingHours, 0.05)
	assert.Equal(t, ttr.SeverityWarning, view.Severity)
	assert.True(t, view.DueSoon)
	assert.Equal(t, ticket.Deadline(), view.Deadline)
}

func TestPartialCommitLeavesIntentAndRecovers(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ticket := mustOpen(t, svc, openInput())

	// Every retry fails: the progress write exhausts.
	store.failProgressInserts = progressWriteRetries
	_, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusAssigned),
		Message:         "dispatched to field team",
	})
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodePartialCommit))

	// The ticket mutation is durable and carries the write-ahead intent.
	stored, err := store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, stored.Status)
	require.NotNil(t, stored.PendingIntent)
	assert.Equal(t, "dispatched to field team", stored.PendingIntent.Message)

	// The system stays queryable.
	_, err = svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)

	// The next command re-drives the intent before proceeding.
	_, err = svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusOnProgress),
		Message:         "crew on site",
	})
	require.NoError(t, err)

	stored, err = store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PendingIntent)

	updates, err := store.ListProgressByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "dispatched to field team", updates[0].Message)
	assert.Equal(t, domain.TicketStatusAssigned, *updates[0].StatusAfter)
	assert.Equal(t, "crew on site", updates[1].Message)
}

func TestTransactionalStoreSkipsPendingIntent(t *testing.T) {
	store := &txMemStore{newMemStore()}
	svc, _ := newTestService(store)
	ticket := mustOpen(t, svc, openInput())

	_, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
		RequestedStatus: statusPtr(domain.TicketStatusAssigned),
		Message:         "dispatched",
	})
	require.NoError(t, err)

	stored, err := store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PendingIntent)
}

// Two simultaneous commands on one ticket must serialize: the loser observes
// the winner's committed state, never the original snapshot.
func TestConcurrentUpdatesSerialize(t *testing.T) {
	store := newMemStore()
	store.updateDelay = 10 * time.Millisecond
	svc, _ := newTestService(store)

	openedAt := time.Now().Add(-time.Hour)
	input := openInput()
	input.OpenedAt = &openedAt
	ticket := mustOpen(t, svc, input)
	advanceTo(t, svc, ticket.ID, domain.TicketStatusAssigned, domain.TicketStatusOnProgress)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
			RequestedStatus: statusPtr(domain.TicketStatusClosed),
			Message:         "restored",
		})
	}()
	go func() {
		defer wg.Done()
		_, results[1] = svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
			RequestedStatus: statusPtr(domain.TicketStatusWaitingMaterial),
			Message:         "waiting for spare parts",
		})
	}()
	wg.Wait()

	final, err := store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, final.Status)
	require.NotNil(t, final.Compliance)

	// Either the close ran second (both succeed: ONPROGRESS -> WAITING ->
	// CLOSED) or it ran first and the waiting request re-validated against
	// CLOSED and was rejected. Both interleavings prove serialization; a
	// lost update would leave the ticket in WAITING_MATERIAL.
	if results[1] != nil {
		assert.True(t, util.HasCode(results[1], util.CodeInvalidTransition))
	}
	require.NoError(t, results[0])
}

// Concurrent technician additions must not lose writes.
func TestConcurrentAssignmentsNoLostUpdate(t *testing.T) {
	store := newMemStore()
	store.updateDelay = 5 * time.Millisecond
	svc, _ := newTestService(store)
	ticket := mustOpen(t, svc, openInput())

	names := []string{"Budi", "Sari", "Wayan", "Agus"}
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{
				AddTechnicians: []string{name},
			})
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()

	final, err := store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, names, final.Technicians)
}

func TestApplyUpdateEmptyRejected(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ticket := mustOpen(t, svc, openInput())

	_, err := svc.ApplyUpdate(context.Background(), ticket.ID, UpdateInput{})
	assert.True(t, util.HasCode(err, util.CodeValidationFailed))
}

func TestApplyUpdateUnknownTicket(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.ApplyUpdate(context.Background(), "missing", UpdateInput{Message: "hello"})
	assert.True(t, util.HasCode(err, util.CodeNotFound))
}

func TestPurgeTicketIdempotent(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ticket := mustOpen(t, svc, openInput())

	require.NoError(t, svc.PurgeTicket(context.Background(), ticket.ID))
	_, err := store.GetTicket(context.Background(), ticket.ID)
	assert.True(t, util.HasCode(err, util.CodeNotFound))

	// Replaying the purge succeeds.
	require.NoError(t, svc.PurgeTicket(context.Background(), ticket.ID))
}
