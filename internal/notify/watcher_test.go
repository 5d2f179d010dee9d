package notify

import (
	"path/filepath"
	"testing"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
)

func watcherFixture(t *testing.T) (*store.DB, *bus.Bus) {
	t.Helper()
	b := bus.New()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, b
}

func appendMsg(t *testing.T, db *store.DB, sender, receiver, body string) {
	t.Helper()
	m := &store.Message{Sender: sender, Receiver: receiver, Timestamp: 100, Kind: store.KindText, Body: body}
	if _, err := db.Append(m); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherAlertsWithoutAnOpenView(t *testing.T) {
	db, b := watcherFixture(t)
	ch, unsub := b.Subscribe("notify.", 8)
	defer unsub()

	d := NewDispatcher(b, nil, "u-alice", true)
	w, err := Watch(db, b, d, nil, "u-alice")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// No conversation view exists for bob; the watcher still alerts.
	appendMsg(t, db, "u-bob", "u-alice", "psst")

	a := recvAlert(t, ch)
	if a.Sender != "u-bob" || a.Preview != "psst" {
		t.Errorf("alert = %+v, want psst from u-bob", a)
	}
}

func TestWatcherSkipsHistoryBeforeStart(t *testing.T) {
	db, b := watcherFixture(t)

	appendMsg(t, db, "u-bob", "u-alice", "old news")

	ch, unsub := b.Subscribe("notify.", 8)
	defer unsub()
	d := NewDispatcher(b, nil, "u-alice", true)
	w, err := Watch(db, b, d, nil, "u-alice")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// A mark-read touches the pair and triggers a replay; nothing past the
	// watermark exists, so no alert.
	if err := db.MarkConversationRead("u-bob", "u-alice"); err != nil {
		t.Fatal(err)
	}
	assertNoAlert(t, ch)
}

func TestWatcherSkipsOutboundAndAttached(t *testing.T) {
	db, b := watcherFixture(t)
	ch, unsub := b.Subscribe("notify.", 8)
	defer unsub()

	d := NewDispatcher(b, nil, "u-alice", true)
	w, err := Watch(db, b, d, nil, "u-alice")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Own outbound message touches the pair but is not inbound.
	appendMsg(t, db, "u-alice", "u-bob", "hi bob")
	assertNoAlert(t, ch)

	// Bob's conversation view is open: its own forwarding handles his
	// messages, the watcher stays quiet for them.
	w.Attach("u-bob")
	appendMsg(t, db, "u-bob", "u-alice", "handled elsewhere")
	assertNoAlert(t, ch)

	// Carol has no view; she still alerts while bob is attached.
	appendMsg(t, db, "u-carol", "u-alice", "hello")
	a := recvAlert(t, ch)
	if a.Sender != "u-carol" {
		t.Errorf("alert sender = %s, want u-carol", a.Sender)
	}

	// Detached again: bob's next message alerts.
	w.Attach("")
	appendMsg(t, db, "u-bob", "u-alice", "back in scope")
	a = recvAlert(t, ch)
	if a.Sender != "u-bob" || a.Preview != "back in scope" {
		t.Errorf("alert = %+v, want bob's message", a)
	}
}

func TestWatcherCloseStopsAlerts(t *testing.T) {
	db, b := watcherFixture(t)
	ch, unsub := b.Subscribe("notify.", 8)
	defer unsub()

	d := NewDispatcher(b, nil, "u-alice", true)
	w, err := Watch(db, b, d, nil, "u-alice")
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	w.Close() // idempotent

	appendMsg(t, db, "u-bob", "u-alice", "too late")
	assertNoAlert(t, ch)
}
