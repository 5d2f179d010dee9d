package conversation

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/store"
	"go.uber.org/zap"
)

// DefaultQuietPeriod is how long after the last input event the typing flag
// auto-clears.
const DefaultQuietPeriod = 2 * time.Second

// Notifier receives inbound messages that may deserve a user-facing alert.
type Notifier interface {
	MaybeNotify(msg store.Message, surfaceVisible bool)
}

// Snapshot is what the view emits to the UI layer: the full ordered message
// list for the pair plus the remote party's typing flag.
type Snapshot struct {
	Messages     []store.Message
	RemoteTyping bool
}

// View is the conversation view model for one (local, remote) pair. It keeps
// an in-memory copy of the conversation consistent with the store via a live
// subscription, owns the typing debounce timer for this pair, and forwards
// fresh inbound messages to the notifier.
//
// The in-memory list is replaced wholesale when the message count changes.
// Same-count snapshots are assumed unchanged and skipped; in-place edits
// such as read-flag flips are therefore not re-rendered until the next
// structural change. Known limitation, kept deliberately cheap.
type View struct {
	db       *store.DB
	notifier Notifier
	logger   *zap.Logger
	local    string
	remote   string
	quiet    time.Duration

	mu           sync.Mutex
	msgs         []store.Message
	remoteTyping bool
	visible      bool
	typingTimer  *time.Timer

	snapshots chan Snapshot
	closeOnce sync.Once
	cancelMsg func()
	cancelTyp func()
	done      chan struct{}
}

// Option configures a View.
type Option func(*View)

// WithQuietPeriod overrides the typing auto-clear delay.
func WithQuietPeriod(d time.Duration) Option {
	return func(v *View) { v.quiet = d }
}

// Open starts a live view of the conversation between local and remote.
// Callers must Close the view when it leaves the screen; an unclosed view
// keeps its subscriptions and typing timer alive and will deliver stale
// updates.
func Open(db *store.DB, notifier Notifier, logger *zap.Logger, local, remote string, opts ...Option) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &View{
		db:        db,
		notifier:  notifier,
		logger:    logger,
		local:     local,
		remote:    remote,
		quiet:     DefaultQuietPeriod,
		snapshots: make(chan Snapshot, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}

	msgCh, cancelMsg := db.WatchConversation(local, remote)
	typCh, cancelTyp := db.WatchTyping(remote, local)
	v.cancelMsg = cancelMsg
	v.cancelTyp = cancelTyp

	go v.loop(msgCh, typCh)
	return v
}

// Snapshots returns the channel of view snapshots. Delivery is conflated:
// a slow consumer sees the newest state, not every intermediate one.
func (v *View) Snapshots() <-chan Snapshot {
	return v.snapshots
}

// Remote returns the remote participant id.
func (v *View) Remote() string { return v.remote }

func (v *View) loop(msgCh <-chan []store.Message, typCh <-chan bool) {
	for {
		select {
		case msgs, ok := <-msgCh:
			if !ok {
				return
			}
			v.applyMessages(msgs)
		case typing, ok := <-typCh:
			if !ok {
				return
			}
			v.mu.Lock()
			v.remoteTyping = typing
			v.mu.Unlock()
			v.emit()
		case <-v.done:
			return
		}
	}
}

func (v *View) applyMessages(msgs []store.Message) {
	v.mu.Lock()
	prevCount := len(v.msgs)
	if len(msgs) == prevCount {
		// Structural-change check only; same count means keep the
		// current list.
		v.mu.Unlock()
		return
	}
	v.msgs = msgs
	grew := len(msgs) > prevCount
	visible := v.visible
	var latest store.Message
	if grew {
		latest = msgs[len(msgs)-1]
	}
	v.mu.Unlock()

	if grew && latest.Sender == v.remote && v.notifier != nil {
		v.notifier.MaybeNotify(latest, visible)
	}
	v.emit()
}

func (v *View) emit() {
	v.mu.Lock()
	snap := Snapshot{Messages: slices.Clone(v.msgs), RemoteTyping: v.remoteTyping}
	v.mu.Unlock()
	for {
		select {
		case v.snapshots <- snap:
			return
		default:
		}
		select {
		case <-v.snapshots:
		default:
		}
	}
}

// SetVisible records whether this conversation is the active, visible
// surface. Invisible views forward inbound messages to the notifier.
func (v *View) SetVisible(visible bool) {
	v.mu.Lock()
	v.visible = visible
	v.mu.Unlock()
}

// Visible reports whether the conversation is currently the active surface.
func (v *View) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Send appends a text message from the local user. Empty or whitespace-only
// input is a no-op, not an error; it never reaches the store. A successful
// send also clears the local typing flag.
func (v *View) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := v.db.Append(&store.Message{
		Sender:    v.local,
		Receiver:  v.remote,
		Timestamp: time.Now().UnixMilli(),
		Kind:      store.KindText,
		Body:      text,
	})
	if err != nil {
		return err
	}
	v.clearTyping()
	return nil
}

// TypingPulse records a local input event: it marks the local user as typing
// and re-arms the auto-clear timer. Exactly one timer is live per view; each
// pulse cancels the previous one, so the flag clears one quiet period after
// the final pulse with no flicker in between.
func (v *View) TypingPulse() error {
	v.mu.Lock()
	if v.typingTimer != nil {
		v.typingTimer.Stop()
	}
	v.typingTimer = time.AfterFunc(v.quiet, func() {
		if err := v.db.SetTyping(v.local, v.remote, false); err != nil {
			v.logger.Warn("typing auto-clear failed", zap.Error(err))
		}
	})
	v.mu.Unlock()

	return v.db.SetTyping(v.local, v.remote, true)
}

func (v *View) clearTyping() {
	v.mu.Lock()
	if v.typingTimer != nil {
		v.typingTimer.Stop()
		v.typingTimer = nil
	}
	v.mu.Unlock()
	if err := v.db.SetTyping(v.local, v.remote, false); err != nil {
		v.logger.Warn("typing clear failed", zap.Error(err))
	}
}

// MarkRead flags every unread message from the remote party as read. Called
// when this conversation becomes the active one. Best effort, not
// transactional; the error is surfaced for user-facing messaging.
func (v *View) MarkRead() error {
	return v.db.MarkConversationRead(v.remote, v.local)
}

// DeleteMessage removes one message. The UI offers the affordance only on
// the local user's own messages.
func (v *View) DeleteMessage(id string) error {
	return v.db.DeleteMessage(id)
}

// DeleteConversation removes every message of the pair after the caller has
// confirmed. All-or-nothing is not guaranteed: individual deletions can fail
// mid-batch and are reported, never swallowed.
func (v *View) DeleteConversation() error {
	return v.db.DeleteConversation(v.local, v.remote)
}

// Close cancels the subscriptions and the pending typing timer. The typing
// flag is cleared best-effort so the remote party does not see a stuck
// indicator.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.cancelMsg()
		v.cancelTyp()
		close(v.done)
		v.clearTyping()
	})
}
