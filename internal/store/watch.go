package store

import (
	"sync"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"go.uber.org/zap"
)

// Watch subscriptions. Each watcher runs one goroutine that delivers an
// initial snapshot and then requeries the store on every matching change
// event, so snapshots are always recomputed from store state. Events for a
// subscription are handled one at a time, in bus order. The returned cancel
// func tears the watcher down; forgetting to call it leaks the goroutine
// and keeps delivering stale updates.
//
// Query failures are logged and skipped: the subscriber keeps its previous
// snapshot until the store recovers.

// WatchConversation streams ordered snapshots of the conversation between
// local and remote.
func (db *DB) WatchConversation(local, remote string) (<-chan []Message, func()) {
	return watch(db, "store.",
		func(evt bus.Event) bool {
			c, ok := evt.Payload.(bus.MessagesChange)
			return ok && c.Touches(local, remote)
		},
		func() ([]Message, error) { return db.ListConversation(local, remote) },
	)
}

// WatchUnread streams the count of unread messages from contact to local.
func (db *DB) WatchUnread(contact, local string) (<-chan int, func()) {
	return watch(db, "store.",
		func(evt bus.Event) bool {
			c, ok := evt.Payload.(bus.MessagesChange)
			return ok && c.Touches(contact, local)
		},
		func() (int, error) { return db.UnreadCount(contact, local) },
	)
}

// WatchUsers streams the full user directory except excludeID, sorted by
// name, with each entry's online flag.
func (db *DB) WatchUsers(excludeID string) (<-chan []UserRecord, func()) {
	return watch(db, "store.",
		func(evt bus.Event) bool {
			_, ok := evt.Payload.(bus.UsersChange)
			return ok
		},
		func() ([]UserRecord, error) { return db.ListUsers(excludeID) },
	)
}

// WatchPresence streams the online flag of one user.
func (db *DB) WatchPresence(userID string) (<-chan bool, func()) {
	return watch(db, "store.",
		func(evt bus.Event) bool {
			c, ok := evt.Payload.(bus.UsersChange)
			return ok && c.UserID == userID
		},
		func() (bool, error) {
			u, err := db.GetUser(userID)
			if err != nil {
				return false, err
			}
			return u != nil && u.Online, nil
		},
	)
}

// WatchTyping streams the directional typing flag from sender to receiver.
func (db *DB) WatchTyping(sender, receiver string) (<-chan bool, func()) {
	return watch(db, "store.",
		func(evt bus.Event) bool {
			c, ok := evt.Payload.(bus.TypingChange)
			return ok && c.Sender == sender && c.Receiver == receiver
		},
		func() (bool, error) { return db.Typing(sender, receiver) },
	)
}

// watch is the shared subscription loop. Delivery conflates under
// backpressure: if the subscriber lags, the oldest queued snapshot is
// dropped in favor of the newest, which is safe because every snapshot is
// a full recomputation.
func watch[T any](db *DB, namespace string, match func(bus.Event) bool, query func() (T, error)) (<-chan T, func()) {
	out := make(chan T, 8)
	events, unsub := db.bus.Subscribe(namespace, 64)
	done := make(chan struct{})

	deliver := func() {
		snap, err := query()
		if err != nil {
			db.logger.Warn("subscription query failed", zap.Error(err))
			return
		}
		for {
			select {
			case out <- snap:
				return
			default:
			}
			select {
			case <-out:
			default:
			}
		}
	}

	go func() {
		defer close(out)
		deliver()
		for {
			select {
			case evt := <-events:
				if !match(evt) {
					continue
				}
				deliver()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
	return out, cancel
}
