package presence

import (
	"context"
	"sync"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/store"
	"go.uber.org/zap"
)

// Tracker manages the local user's presence lease and mirrors lease state
// into the store's online flags, where the roster reads them. It runs two
// tickers: a heartbeat that refreshes the local lease, and a reaper that
// flips the flag off for any user whose lease lapsed.
type Tracker struct {
	db     *store.DB
	lease  Lease
	logger *zap.Logger
	ttl    time.Duration
	beat   time.Duration

	mu     sync.Mutex
	userID string
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewTracker wires a tracker. ttl is the lease lifetime; heartbeat is the
// refresh interval and must be comfortably shorter than ttl.
func NewTracker(db *store.DB, lease Lease, logger *zap.Logger, ttl, heartbeat time.Duration) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{db: db, lease: lease, logger: logger, ttl: ttl, beat: heartbeat}
}

// Enter acquires the lease for userID, flags them online and starts the
// heartbeat and reaper. Calling Enter while already entered is an error in
// usage; the previous session is left to leave first.
func (t *Tracker) Enter(ctx context.Context, userID string) error {
	if err := t.lease.Acquire(ctx, userID, t.ttl); err != nil {
		return err
	}
	if err := t.db.SetOnline(userID, true); err != nil {
		_ = t.lease.Release(ctx, userID)
		return err
	}

	t.mu.Lock()
	t.userID = userID
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	t.wg.Add(2)
	go t.heartbeat(userID, stop)
	go t.reap(stop)
	return nil
}

// Leave releases the lease, flags the user offline and stops the tickers.
// Safe to call without a prior Enter.
func (t *Tracker) Leave(ctx context.Context) error {
	t.mu.Lock()
	userID := t.userID
	stop := t.stop
	t.userID = ""
	t.stop = nil
	t.mu.Unlock()

	if userID == "" {
		return nil
	}
	close(stop)
	t.wg.Wait()

	if err := t.lease.Release(ctx, userID); err != nil {
		t.logger.Warn("lease release failed", zap.Error(err))
	}
	return t.db.SetOnline(userID, false)
}

// heartbeat refreshes the local lease every beat interval. A failed refresh
// is logged and retried next tick; the lease survives as long as one refresh
// lands per TTL.
func (t *Tracker) heartbeat(userID string, stop <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.beat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.beat)
			err := t.lease.Refresh(ctx, userID, t.ttl)
			cancel()
			if err != nil {
				t.logger.Warn("presence heartbeat failed", zap.String("user", userID), zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}

// reap flips the online flag off for every user flagged online whose lease
// has lapsed. The local user's own flag is covered too: if our heartbeat
// stalls long enough to lapse, the flag goes honest until the next refresh.
func (t *Tracker) reap(stop <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.beat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.reapOnce()
		case <-stop:
			return
		}
	}
}

func (t *Tracker) reapOnce() {
	ids, err := t.db.OnlineUsers()
	if err != nil {
		t.logger.Warn("presence reap query failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), t.beat)
		alive, err := t.lease.Alive(ctx, id)
		cancel()
		if err != nil {
			t.logger.Warn("lease check failed", zap.String("user", id), zap.Error(err))
			continue
		}
		if alive {
			continue
		}
		if err := t.db.SetOnline(id, false); err != nil {
			t.logger.Warn("reap flag update failed", zap.String("user", id), zap.Error(err))
		}
	}
}
