package conversation

import (
	"path/filepath"
	"sync"
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

type notifyCall struct {
	msg     store.Message
	visible bool
}

// recordingNotifier captures forwarded messages.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) MaybeNotify(msg store.Message, surfaceVisible bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{msg: msg, visible: surfaceVisible})
}

func (n *recordingNotifier) snapshot() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

// waitSnap receives snapshots until pred holds or the deadline passes.
// Delivery is conflated, so tests wait on the state they need instead of
// counting emissions.
func waitSnap(t *testing.T, v *View, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-v.Snapshots():
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatal("view never reached expected state")
			return Snapshot{}
		}
	}
}

func hasMessages(n int) func(Snapshot) bool {
	return func(s Snapshot) bool { return len(s.Messages) == n }
}

func TestSendEmptyIsNoOp(t *testing.T) {
	db := testDB(t)
	v := Open(db, nil, nil, "alice", "bob")
	defer v.Close()

	for _, input := range []string{"", "   ", "\t\n"} {
		if err := v.Send(input); err != nil {
			t.Errorf("Send(%q) error = %v, want nil no-op", input, err)
		}
	}

	msgs, err := db.ListConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("store has %d messages after empty sends, want 0", len(msgs))
	}
}

func TestSendAppendsAndClearsTyping(t *testing.T) {
	db := testDB(t)
	v := Open(db, nil, nil, "alice", "bob", WithQuietPeriod(time.Minute))
	defer v.Close()

	if err := v.TypingPulse(); err != nil {
		t.Fatal(err)
	}
	if on, _ := db.Typing("alice", "bob"); !on {
		t.Fatal("typing should be set after pulse")
	}

	if err := v.Send("hi bob"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListConversation("alice", "bob")
	if len(msgs) != 1 || msgs[0].Body != "hi bob" || msgs[0].Sender != "alice" {
		t.Errorf("stored = %v, want one message from alice", msgs)
	}
	if on, _ := db.Typing("alice", "bob"); on {
		t.Error("typing still set after send")
	}
}

func TestSnapshotOrderingWithClockSkew(t *testing.T) {
	db := testDB(t)
	v := Open(db, nil, nil, "alice", "bob")
	defer v.Close()

	// Alice sends at t=100; Bob's skewed clock stamps his later message t=50.
	if _, err := db.Append(&store.Message{Sender: "alice", Receiver: "bob", Timestamp: 100, Kind: store.KindText, Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	waitSnap(t, v, hasMessages(1))
	if _, err := db.Append(&store.Message{Sender: "bob", Receiver: "alice", Timestamp: 50, Kind: store.KindText, Body: "hello"}); err != nil {
		t.Fatal(err)
	}

	snap := waitSnap(t, v, hasMessages(2))
	if snap.Messages[0].Body != "hello" || snap.Messages[1].Body != "hi" {
		t.Errorf("order = [%s %s], want [hello hi] (timestamp sort)",
			snap.Messages[0].Body, snap.Messages[1].Body)
	}
}

func TestTypingDebounceSingleFlight(t *testing.T) {
	db := testDB(t)
	quiet := 300 * time.Millisecond
	v := Open(db, nil, nil, "alice", "bob", WithQuietPeriod(quiet))
	defer v.Close()

	// Rapid pulses within the quiet period: the flag must never flicker
	// to false between them.
	for i := 0; i < 4; i++ {
		if err := v.TypingPulse(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(80 * time.Millisecond)
		if on, _ := db.Typing("alice", "bob"); !on {
			t.Fatalf("typing flickered false after pulse %d", i)
		}
	}

	// One quiet period after the last pulse the flag auto-clears.
	time.Sleep(quiet + 200*time.Millisecond)
	if on, _ := db.Typing("alice", "bob"); on {
		t.Error("typing still set one quiet period after last pulse")
	}
}

func TestInboundForwardedToNotifier(t *testing.T) {
	db := testDB(t)
	n := &recordingNotifier{}
	v := Open(db, n, nil, "alice", "bob")
	defer v.Close()

	// Hidden surface, inbound message: forwarded with visible=false.
	if _, err := db.Append(&store.Message{Sender: "bob", Receiver: "alice", Timestamp: 100, Kind: store.KindText, Body: "psst"}); err != nil {
		t.Fatal(err)
	}
	waitSnap(t, v, hasMessages(1))

	calls := n.snapshot()
	if len(calls) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(calls))
	}
	if calls[0].msg.Body != "psst" || calls[0].visible {
		t.Errorf("call = %+v, want psst with visible=false", calls[0])
	}

	// Own outbound message: never forwarded.
	if err := v.Send("reply"); err != nil {
		t.Fatal(err)
	}
	waitSnap(t, v, hasMessages(2))
	if len(n.snapshot()) != 1 {
		t.Error("outbound message reached the notifier")
	}

	// Visible surface: forwarded with visible=true so the dispatcher
	// suppresses it.
	v.SetVisible(true)
	if !v.Visible() {
		t.Fatal("Visible() = false after SetVisible(true)")
	}
	if _, err := db.Append(&store.Message{Sender: "bob", Receiver: "alice", Timestamp: 200, Kind: store.KindText, Body: "again"}); err != nil {
		t.Fatal(err)
	}
	waitSnap(t, v, hasMessages(3))
	calls = n.snapshot()
	if len(calls) != 2 {
		t.Fatalf("notifier calls = %d, want 2", len(calls))
	}
	if !calls[1].visible {
		t.Error("second call should carry visible=true")
	}
}

func TestMarkReadDrivesUnreadToZero(t *testing.T) {
	db := testDB(t)

	for i := int64(0); i < 3; i++ {
		if _, err := db.Append(&store.Message{Sender: "bob", Receiver: "alice", Timestamp: 100 + i, Kind: store.KindText, Body: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	v := Open(db, nil, nil, "alice", "bob")
	defer v.Close()

	if err := v.MarkRead(); err != nil {
		t.Fatal(err)
	}
	n, err := db.UnreadCount("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("unread after MarkRead = %d, want 0", n)
	}
}

func TestDeleteConversationScopedToPair(t *testing.T) {
	db := testDB(t)

	if _, err := db.Append(&store.Message{Sender: "alice", Receiver: "bob", Timestamp: 1, Kind: store.KindText, Body: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Append(&store.Message{Sender: "alice", Receiver: "carol", Timestamp: 2, Kind: store.KindText, Body: "keep"}); err != nil {
		t.Fatal(err)
	}

	v := Open(db, nil, nil, "alice", "bob")
	defer v.Close()

	if err := v.DeleteConversation(); err != nil {
		t.Fatal(err)
	}
	ab, _ := db.ListConversation("alice", "bob")
	ac, _ := db.ListConversation("alice", "carol")
	if len(ab) != 0 || len(ac) != 1 {
		t.Errorf("after delete: ab=%d ac=%d, want 0 and 1", len(ab), len(ac))
	}
}

func TestSameCountSnapshotSkipped(t *testing.T) {
	db := testDB(t)

	if _, err := db.Append(&store.Message{Sender: "bob", Receiver: "alice", Timestamp: 1, Kind: store.KindText, Body: "m"}); err != nil {
		t.Fatal(err)
	}

	v := Open(db, nil, nil, "alice", "bob")
	defer v.Close()
	waitSnap(t, v, hasMessages(1))

	// A read-flag flip changes content but not count: the view keeps its
	// list and emits nothing.
	if err := v.MarkRead(); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-v.Snapshots():
		// Typing updates also emit; only a message-list change would be
		// wrong here.
		if len(s.Messages) != 1 {
			t.Errorf("unexpected structural change: %v", s)
		}
	case <-time.After(150 * time.Millisecond):
		// Expected: no emission for a same-count change.
	}
}

func TestCloseStopsDeliveries(t *testing.T) {
	db := testDB(t)
	v := Open(db, nil, nil, "alice", "bob")
	waitSnap(t, v, hasMessages(0))
	v.Close()
	v.Close() // idempotent

	if _, err := db.Append(&store.Message{Sender: "bob", Receiver: "alice", Timestamp: 1, Kind: store.KindText, Body: "late"}); err != nil {
		t.Fatal(err)
	}

	select {
	case s, open := <-v.Snapshots():
		if open && len(s.Messages) > 0 {
			t.Errorf("snapshot delivered after Close: %v", s)
		}
	case <-time.After(150 * time.Millisecond):
		// Expected.
	}
}
