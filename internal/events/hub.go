package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub broadcasts committed mutations to subscribed sessions and keeps a
// bounded buffer of recent events for priming newly-connected sessions. Slow
// consumers never block producers: each session owns a bounded queue and a
// full queue drops that session's oldest event only.
type Hub struct {
	mu       sync.RWMutex
	history  []ChangeEvent
	capacity int
	queueCap int
	sessions map[string]*Session
	logger   *zap.Logger
	dropped  func(sessionID string)
}

// NewHub builds a hub with the given history and per-session queue capacity.
// onDropped, when non-nil, is invoked once per event dropped from a full
// session queue.
func NewHub(historyCapacity, subscriberCapacity int, logger *zap.Logger, onDropped func(sessionID string)) *Hub {
	if historyCapacity <= 0 {
		historyCapacity = 200
	}
	if subscriberCapacity <= 0 {
		subscriberCapacity = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		capacity: historyCapacity,
		queueCap: subscriberCapacity,
		sessions: make(map[string]*Session),
		logger:   logger,
		dropped:  onDropped,
	}
}

// Publish appends the event to the recent buffer and fans it out to every
// connected session. Delivery failures are isolated per session and never
// propagate to the caller.
func (h *Hub) Publish(event ChangeEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.history = append(h.history, event)
	if len(h.history) > h.capacity {
		h.history = h.history[len(h.history)-h.capacity:]
	}
	targets := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		targets = append(targets, session)
	}
	h.mu.Unlock()

	for _, session := range targets {
		session.deliver(event)
	}
}

// Recent returns a copy of the bounded recent-history buffer, oldest first.
func (h *Hub) Recent() []ChangeEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ChangeEvent, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a new session receiving events from now on. The recent
// buffer is not replayed into the queue; callers prime their view once via
// Recent.
func (h *Hub) Subscribe() *Session {
	session := &Session{
		id:   uuid.NewString(),
		hub:  h,
		ch:   make(chan ChangeEvent, h.queueCap),
		read: make(map[string]bool),
	}
	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()
	return session
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// SessionCount reports currently connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Session is one subscriber connection. Its queue preserves publish order;
// its read/unread bookkeeping is local and dies with the connection.
type Session struct {
	id  string
	hub *Hub
	ch  chan ChangeEvent

	mu     sync.Mutex
	read   map[string]bool // event id -> marked read; presence means observed
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Events exposes the session's delivery queue in publish order.
func (s *Session) Events() <-chan ChangeEvent {
	return s.ch
}

// deliver enqueues without blocking. When the queue is full the session's
// oldest queued event is discarded to make room; the unread bookkeeping still
// records the new event, since the recent buffer remains readable.
func (s *Session) deliver(event ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, observed := s.read[event.ID]; !observed {
		s.read[event.ID] = false
	}

	// Holding the lock here is safe: every channel operation below is
	// non-blocking, and it guarantees no send races a concurrent Close.
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case dropped := <-s.ch:
			s.hub.logger.Warn("subscriber queue full, dropping oldest event",
				zap.String("session_id", s.id),
				zap.String("dropped_event_id", dropped.ID))
			if s.hub.dropped != nil {
				s.hub.dropped(s.id)
			}
		default:
		}
	}
}

// Prime records the given events (normally the hub's recent buffer) in the
// session's bookkeeping without resetting existing read marks, so re-reading
// the buffer never double-counts.
func (s *Session) Prime(recent []ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range recent {
		if _, observed := s.read[event.ID]; !observed {
			s.read[event.ID] = false
		}
	}
}

// Annotate copies events with this session's IsRead flags applied.
func (s *Session) Annotate(events []ChangeEvent) []ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChangeEvent, len(events))
	for i, event := range events {
		event.IsRead = s.read[event.ID]
		out[i] = event
	}
	return out
}

// MarkRead marks one event read. Marking an already-read id again is a no-op.
func (s *Session) MarkRead(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read[eventID] = true
}

// MarkAllRead marks every observed event read.
func (s *Session) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.read {
		s.read[id] = true
	}
}

// UnreadCount returns the number of observed events not yet marked read.
func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, isRead := range s.read {
		if !isRead {
			count++
		}
	}
	return count
}

// Close detaches the session from the hub and releases its queue.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.unsubscribe(s.id)
	close(s.ch)
}
