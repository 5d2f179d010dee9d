package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
)

// Watcher feeds the dispatcher with inbound messages for contacts that have
// no open conversation view. It keeps a sequence watermark initialized to the
// log's high-water mark at start, so only messages appended during the
// session can alert, and replays past it whenever a message event touches the
// signed-in user.
//
// The contact attached via Attach is skipped entirely: that conversation's
// own view forwards its messages with the real visibility flag, and the
// watcher must not alert for them a second time.
type Watcher struct {
	db         *store.DB
	dispatcher *Dispatcher
	logger     *zap.Logger
	selfID     string

	mu       sync.Mutex
	attached string

	watermark int64
	events    <-chan bus.Event
	unsub     func()
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts a watcher for the signed-in user. Callers must Close it at
// sign-out.
func Watch(db *store.DB, b *bus.Bus, d *Dispatcher, logger *zap.Logger, selfID string) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seq, err := db.LatestSeq()
	if err != nil {
		return nil, err
	}

	events, unsub := b.Subscribe("store.", 64)
	w := &Watcher{
		db:         db,
		dispatcher: d,
		logger:     logger,
		selfID:     selfID,
		watermark:  seq,
		events:     events,
		unsub:      unsub,
		done:       make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Attach records the contact whose conversation view is currently open.
// Pass the empty string when no view exists.
func (w *Watcher) Attach(contactID string) {
	w.mu.Lock()
	w.attached = contactID
	w.mu.Unlock()
}

func (w *Watcher) run() {
	for {
		select {
		case evt := <-w.events:
			c, ok := evt.Payload.(bus.MessagesChange)
			if !ok {
				continue
			}
			if !c.All && c.Participants[0] != w.selfID && c.Participants[1] != w.selfID {
				continue
			}
			w.deliver()
		case <-w.done:
			return
		}
	}
}

// deliver replays inbound messages past the watermark. Only the run goroutine
// touches the watermark; sequences are monotonic so deletes cannot move it
// backwards.
func (w *Watcher) deliver() {
	msgs, err := w.db.InboundSince(w.selfID, w.watermark)
	if err != nil {
		w.logger.Warn("inbound replay failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	attached := w.attached
	w.mu.Unlock()

	for _, m := range msgs {
		if m.Seq > w.watermark {
			w.watermark = m.Seq
		}
		if m.Sender == attached {
			continue
		}
		w.dispatcher.MaybeNotify(m, false)
	}
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.unsub()
		close(w.done)
	})
}
