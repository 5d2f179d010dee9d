// Package presence tracks which users are currently online. Presence is a
// lease: a user is online while their lease is alive, and the lease must be
// refreshed by a heartbeat before its TTL lapses. A client that exits
// cleanly releases the lease; one that crashes simply stops refreshing and
// lapses, so a wedged process can never pin a contact online forever.
package presence

import (
	"context"
	"sync"
	"time"
)

// Lease is the liveness backend. Implementations must make Acquire and
// Refresh idempotent; both set the lease to expire one TTL from now.
type Lease interface {
	Acquire(ctx context.Context, userID string, ttl time.Duration) error
	Refresh(ctx context.Context, userID string, ttl time.Duration) error
	Release(ctx context.Context, userID string) error
	Alive(ctx context.Context, userID string) (bool, error)
}

// MemoryLease is a process-local lease table. It serves single-machine
// sessions and tests; multi-client deployments use the redis lease so every
// client sees the same liveness.
type MemoryLease struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

// NewMemoryLease returns an empty lease table.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{expiry: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLease) Acquire(_ context.Context, userID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expiry[userID] = l.now().Add(ttl)
	return nil
}

func (l *MemoryLease) Refresh(ctx context.Context, userID string, ttl time.Duration) error {
	return l.Acquire(ctx, userID, ttl)
}

func (l *MemoryLease) Release(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expiry, userID)
	return nil
}

func (l *MemoryLease) Alive(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.expiry[userID]
	if !ok {
		return false, nil
	}
	if l.now().After(exp) {
		delete(l.expiry, userID)
		return false, nil
	}
	return true, nil
}
