// Package notify decides which inbound messages surface as user-facing
// alerts and publishes them on the bus, where the UI renders them as a
// transient banner.
package notify

import (
	"strings"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
	"go.uber.org/zap"
)

const previewLimit = 80

// Dispatcher filters candidate alerts. Permission is asked for once, at
// startup; a denied permission silently suppresses every alert for the rest
// of the session.
type Dispatcher struct {
	bus     *bus.Bus
	logger  *zap.Logger
	selfID  string
	granted bool
	asked   bool
}

// NewDispatcher wires a dispatcher for the signed-in user. enabled carries
// the configured notification preference.
func NewDispatcher(b *bus.Bus, logger *zap.Logger, selfID string, enabled bool) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{bus: b, logger: logger, selfID: selfID}
	d.RequestPermission(enabled)
	return d
}

// RequestPermission records the permission outcome. Only the first call
// counts; the answer holds for the whole session.
func (d *Dispatcher) RequestPermission(granted bool) {
	if d.asked {
		return
	}
	d.asked = true
	d.granted = granted
	if !granted {
		d.logger.Info("notifications disabled for this session")
	}
}

// Granted reports the recorded permission outcome.
func (d *Dispatcher) Granted() bool { return d.granted }

// MaybeNotify publishes an alert for msg unless any suppression rule
// applies: permission denied, the conversation surface is visible, the
// message is the user's own, or it carries no text body. Media-only
// messages never alert.
func (d *Dispatcher) MaybeNotify(msg store.Message, surfaceVisible bool) {
	if !d.granted || surfaceVisible || msg.Sender == d.selfID {
		return
	}
	if msg.Kind != store.KindText || strings.TrimSpace(msg.Body) == "" {
		return
	}
	d.bus.Publish(bus.Event{
		Kind:      bus.KindAlert,
		Timestamp: time.Now(),
		Payload:   bus.Alert{Sender: msg.Sender, Preview: preview(msg.Body)},
	})
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit]) + "…"
}
