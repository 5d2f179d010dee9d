// Package roster maintains the contact list for the local user: every other
// registered user, each with a live online flag and unread-message count.
package roster

import (
	"slices"
	"sync"

	"github.com/Atropina/Falai-Arizona/internal/store"
	"go.uber.org/zap"
)

// Entry is one contact row as the UI renders it.
type Entry struct {
	User   store.UserRecord
	Unread int
}

// Roster keeps the contact list consistent with the store. The directory and
// presence flags come from a single user-table subscription; each contact
// additionally carries its own unread-count subscription, added and removed
// as contacts appear in or leave the directory.
type Roster struct {
	db     *store.DB
	logger *zap.Logger
	local  string

	mu      sync.Mutex
	users   []store.UserRecord
	unread  map[string]int
	cancels map[string]func()

	snapshots   chan []Entry
	cancelUsers func()
	closeOnce   sync.Once
	done        chan struct{}
}

// Open starts a live roster for the local user. Contacts are every user
// except local, sorted by name. Close tears down all subscriptions.
func Open(db *store.DB, logger *zap.Logger, local string) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Roster{
		db:        db,
		logger:    logger,
		local:     local,
		unread:    make(map[string]int),
		cancels:   make(map[string]func()),
		snapshots: make(chan []Entry, 1),
		done:      make(chan struct{}),
	}

	usersCh, cancelUsers := db.WatchUsers(local)
	r.cancelUsers = cancelUsers

	go r.loop(usersCh)
	return r
}

// Snapshots returns the channel of roster snapshots. Delivery is conflated:
// a slow consumer sees the newest roster, not every intermediate one.
func (r *Roster) Snapshots() <-chan []Entry {
	return r.snapshots
}

func (r *Roster) loop(usersCh <-chan []store.UserRecord) {
	for {
		select {
		case users, ok := <-usersCh:
			if !ok {
				return
			}
			r.applyUsers(users)
		case <-r.done:
			return
		}
	}
}

// applyUsers replaces the directory wholesale and reconciles the per-contact
// unread watchers against the new contact set.
func (r *Roster) applyUsers(users []store.UserRecord) {
	r.mu.Lock()
	r.users = users

	current := make(map[string]bool, len(users))
	for _, u := range users {
		current[u.ID] = true
		if _, watching := r.cancels[u.ID]; !watching {
			r.watchUnreadLocked(u.ID)
		}
	}
	for id, cancel := range r.cancels {
		if !current[id] {
			cancel()
			delete(r.cancels, id)
			delete(r.unread, id)
		}
	}
	r.mu.Unlock()

	r.emit()
}

// watchUnreadLocked starts the unread-count subscription for one contact.
// Caller holds r.mu.
func (r *Roster) watchUnreadLocked(contact string) {
	ch, cancel := r.db.WatchUnread(contact, r.local)
	r.cancels[contact] = cancel
	go func() {
		for {
			select {
			case n, ok := <-ch:
				if !ok {
					return
				}
				r.mu.Lock()
				r.unread[contact] = n
				r.mu.Unlock()
				r.emit()
			case <-r.done:
				return
			}
		}
	}()
}

func (r *Roster) emit() {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.users))
	for _, u := range r.users {
		entries = append(entries, Entry{User: u, Unread: r.unread[u.ID]})
	}
	r.mu.Unlock()

	for {
		select {
		case r.snapshots <- entries:
			return
		default:
		}
		select {
		case <-r.snapshots:
		default:
		}
	}
}

// Entries returns the current roster without waiting for a snapshot.
func (r *Roster) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.users))
	for _, u := range r.users {
		entries = append(entries, Entry{User: u, Unread: r.unread[u.ID]})
	}
	return entries
}

// Contact returns the roster entry for one contact id, if present.
func (r *Roster) Contact(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.users, func(u store.UserRecord) bool { return u.ID == id })
	if i < 0 {
		return Entry{}, false
	}
	return Entry{User: r.users[i], Unread: r.unread[id]}, true
}

// Close cancels every subscription. Idempotent.
func (r *Roster) Close() {
	r.closeOnce.Do(func() {
		r.cancelUsers()
		r.mu.Lock()
		for id, cancel := range r.cancels {
			cancel()
			delete(r.cancels, id)
		}
		r.mu.Unlock()
		close(r.done)
	})
}
