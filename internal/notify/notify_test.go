package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
)

func recvAlert(t *testing.T, ch <-chan bus.Event) bus.Alert {
	t.Helper()
	select {
	case evt := <-ch:
		a, ok := evt.Payload.(bus.Alert)
		if !ok {
			t.Fatalf("payload = %T, want bus.Alert", evt.Payload)
		}
		return a
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for alert")
		return bus.Alert{}
	}
}

func assertNoAlert(t *testing.T, ch <-chan bus.Event) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected alert: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAlertMatrix(t *testing.T) {
	inbound := store.Message{Sender: "u-bob", Receiver: "u-alice", Kind: store.KindText, Body: "hey"}

	tests := []struct {
		name    string
		enabled bool
		visible bool
		msg     store.Message
		want    bool
	}{
		{"hidden inbound text fires", true, false, inbound, true},
		{"visible surface suppressed", true, true, inbound, false},
		{"own message suppressed", true, false, store.Message{Sender: "u-alice", Receiver: "u-bob", Kind: store.KindText, Body: "hi"}, false},
		{"media only suppressed", true, false, store.Message{Sender: "u-bob", Receiver: "u-alice", Kind: store.KindMedia, MediaURL: "https://cdn/x.png"}, false},
		{"blank body suppressed", true, false, store.Message{Sender: "u-bob", Receiver: "u-alice", Kind: store.KindText, Body: "   "}, false},
		{"permission denied suppressed", false, false, inbound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			ch, unsub := b.Subscribe("notify.", 4)
			defer unsub()

			d := NewDispatcher(b, nil, "u-alice", tt.enabled)
			d.MaybeNotify(tt.msg, tt.visible)

			if tt.want {
				a := recvAlert(t, ch)
				if a.Sender != "u-bob" || a.Preview != "hey" {
					t.Errorf("alert = %+v", a)
				}
			} else {
				assertNoAlert(t, ch)
			}
		})
	}
}

func TestPermissionAskedOnce(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notify.", 4)
	defer unsub()

	d := NewDispatcher(b, nil, "u-alice", false)
	// A later grant attempt does not override the session's answer.
	d.RequestPermission(true)
	if d.Granted() {
		t.Error("permission flipped after the first answer")
	}
	d.MaybeNotify(store.Message{Sender: "u-bob", Kind: store.KindText, Body: "hey"}, false)
	assertNoAlert(t, ch)
}

func TestPreviewTruncation(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notify.", 4)
	defer unsub()

	long := strings.Repeat("a", 200)
	d := NewDispatcher(b, nil, "u-alice", true)
	d.MaybeNotify(store.Message{Sender: "u-bob", Kind: store.KindText, Body: long}, false)

	a := recvAlert(t, ch)
	if got := len([]rune(a.Preview)); got != previewLimit+1 {
		t.Errorf("preview length = %d runes, want %d plus ellipsis", got, previewLimit)
	}
	if !strings.HasSuffix(a.Preview, "…") {
		t.Errorf("preview %q not truncated with ellipsis", a.Preview)
	}
}
