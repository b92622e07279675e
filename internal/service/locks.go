package service

import (
	"context"
	"sync"
	"time"
)

// ticketLocks serializes lifecycle commands per ticket id. Each id maps to a
// one-slot semaphore; entries are reference counted so the map does not grow
// with every ticket ever touched.
type ticketLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newTicketLocks() *ticketLocks {
	return &ticketLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the ticket's lock is held, the timeout elapses, or ctx
// is done. On success the returned release function must be called on every
// exit path.
func (l *ticketLocks) acquire(ctx context.Context, ticketID string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[ticketID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[ticketID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.release(ticketID, entry)
		}, nil
	case <-timer.C:
		l.release(ticketID, entry)
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		l.release(ticketID, entry)
		return nil, ctx.Err()
	}
}

func (l *ticketLocks) release(ticketID string, entry *lockEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, ticketID)
	}
	l.mu.Unlock()
}
