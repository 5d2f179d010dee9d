package roster

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path, bus.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustCreate(t *testing.T, db *store.DB, id, name string) {
	t.Helper()
	if err := db.CreateUser(&store.UserRecord{ID: id, Name: name, Email: id + "@example.com"}); err != nil {
		t.Fatal(err)
	}
}

// waitFor receives snapshots until pred holds or the deadline passes.
func waitFor(t *testing.T, r *Roster, pred func([]Entry) bool) []Entry {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case entries := <-r.Snapshots():
			if pred(entries) {
				return entries
			}
		case <-deadline:
			t.Fatalf("roster never reached expected state, last: %v", r.Entries())
			return nil
		}
	}
}

func TestRosterExcludesSelfAndSortsByName(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "u-carol", "Carol")
	mustCreate(t, db, "u-alice", "Alice")
	mustCreate(t, db, "u-bob", "Bob")

	r := Open(db, nil, "u-alice")
	defer r.Close()

	entries := waitFor(t, r, func(es []Entry) bool { return len(es) == 2 })
	if entries[0].User.Name != "Bob" || entries[1].User.Name != "Carol" {
		t.Errorf("order = [%s %s], want [Bob Carol]", entries[0].User.Name, entries[1].User.Name)
	}
	for _, e := range entries {
		if e.User.ID == "u-alice" {
			t.Error("roster contains the local user")
		}
	}
}

func TestRosterTracksPresence(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "u-alice", "Alice")
	mustCreate(t, db, "u-bob", "Bob")

	r := Open(db, nil, "u-alice")
	defer r.Close()

	waitFor(t, r, func(es []Entry) bool { return len(es) == 1 && !es[0].User.Online })

	if err := db.SetOnline("u-bob", true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func(es []Entry) bool { return len(es) == 1 && es[0].User.Online })

	if err := db.SetOnline("u-bob", false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func(es []Entry) bool { return len(es) == 1 && !es[0].User.Online })
}

func TestRosterTracksUnreadPerContact(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "u-alice", "Alice")
	mustCreate(t, db, "u-bob", "Bob")
	mustCreate(t, db, "u-carol", "Carol")

	r := Open(db, nil, "u-alice")
	defer r.Close()
	waitFor(t, r, func(es []Entry) bool { return len(es) == 2 })

	for i := int64(0); i < 2; i++ {
		if _, err := db.Append(&store.Message{Sender: "u-bob", Receiver: "u-alice", Timestamp: 100 + i, Kind: store.KindText, Body: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	entries := waitFor(t, r, func(es []Entry) bool {
		return len(es) == 2 && es[0].Unread == 2
	})
	if entries[1].Unread != 0 {
		t.Errorf("carol unread = %d, want 0", entries[1].Unread)
	}

	// Reading the conversation drops the badge back to zero.
	if err := db.MarkConversationRead("u-bob", "u-alice"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func(es []Entry) bool {
		return len(es) == 2 && es[0].Unread == 0
	})
}

func TestRosterPicksUpNewUsers(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "u-alice", "Alice")
	mustCreate(t, db, "u-bob", "Bob")

	r := Open(db, nil, "u-alice")
	defer r.Close()
	waitFor(t, r, func(es []Entry) bool { return len(es) == 1 })

	mustCreate(t, db, "u-carol", "Carol")
	entries := waitFor(t, r, func(es []Entry) bool { return len(es) == 2 })
	if entries[1].User.Name != "Carol" {
		t.Errorf("new user missing, got %v", entries)
	}

	// The new contact's unread watcher is live too.
	if _, err := db.Append(&store.Message{Sender: "u-carol", Receiver: "u-alice", Timestamp: 100, Kind: store.KindText, Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func(es []Entry) bool {
		return len(es) == 2 && es[1].Unread == 1
	})
}

func TestRosterContactLookup(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "u-alice", "Alice")
	mustCreate(t, db, "u-bob", "Bob")

	r := Open(db, nil, "u-alice")
	defer r.Close()
	waitFor(t, r, func(es []Entry) bool { return len(es) == 1 })

	e, ok := r.Contact("u-bob")
	if !ok || e.User.Name != "Bob" {
		t.Errorf("Contact(u-bob) = %v, %v", e, ok)
	}
	if _, ok := r.Contact("u-nobody"); ok {
		t.Error("Contact returned an entry for an unknown id")
	}
}

func TestRosterCloseIdempotent(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "u-alice", "Alice")
	mustCreate(t, db, "u-bob", "Bob")

	r := Open(db, nil, "u-alice")
	waitFor(t, r, func(es []Entry) bool { return len(es) == 1 })
	r.Close()
	r.Close()
}
