package bus

import "time"

// Event kinds published by the core. Subscribers filter by namespace
// prefix, e.g. "store." receives every store change.
const (
	KindMessagesChanged = "store.messages"
	KindUsersChanged    = "store.users"
	KindTypingChanged   = "store.typing"
	KindStatusChanged   = "session.status_changed"
	KindAlert           = "notify.alert"
	KindUploadProgress  = "upload.progress"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessagesChange identifies the conversation pair touched by a message write.
// Participants is unordered; a bulk change across pairs sets All.
type MessagesChange struct {
	Participants [2]string
	All          bool
}

// Touches reports whether the change can affect the conversation between a and b.
func (c MessagesChange) Touches(a, b string) bool {
	if c.All {
		return true
	}
	return (c.Participants[0] == a && c.Participants[1] == b) ||
		(c.Participants[0] == b && c.Participants[1] == a)
}

// UsersChange identifies the user record touched by a directory or presence write.
type UsersChange struct {
	UserID string
}

// TypingChange identifies the directed pair whose typing flag changed.
type TypingChange struct {
	Sender   string
	Receiver string
}

// Alert is a user-facing notification: who sent the message and a short
// body preview for the banner.
type Alert struct {
	Sender  string
	Preview string
}

// UploadProgress reports bytes moved so far for one in-flight upload.
type UploadProgress struct {
	UploadID string
	Sent     int64
	Total    int64
}
