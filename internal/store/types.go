package store

// Message kinds.
const (
	KindText  = "text"
	KindMedia = "media"
)

// Message is an entry in the append-only message log. Immutable once
// created except for the read flag (set by the receiver) and deletion
// (performed by the sender).
type Message struct {
	// ID is the opaque identifier assigned by the store on append.
	ID string
	// Seq is the store-assigned monotonic sequence, used as the
	// deterministic tie-break when client timestamps collide.
	Seq       int64
	Sender    string
	Receiver  string
	Timestamp int64 // unix millis, client clock
	Kind      string
	Body      string
	MediaURL  string
	MediaType string
	Read      bool
}

// InConversation reports whether the message belongs to the conversation
// between a and b, in either direction.
func (m *Message) InConversation(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}

// UserRecord is a directory entry. Online is ephemeral presence state,
// maintained by the presence tracker, with no history retained.
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	AvatarURL    string
	PasswordHash string
	Online       bool
}
