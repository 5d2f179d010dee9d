package store

import (
	"database/sql"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/bus"
)

// SetTyping records whether sender is currently typing to receiver. The flag
// is directional: (a,b) and (b,a) are independent rows. Idempotent, last
// writer wins; expiry is the typing view's job, the store keeps no timers.
func (db *DB) SetTyping(sender, receiver string, typing bool) error {
	v := 0
	if typing {
		v = 1
	}
	_, err := db.Exec(`
		INSERT INTO typing (sender, receiver, typing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sender, receiver) DO UPDATE SET
			typing = excluded.typing,
			updated_at = excluded.updated_at`,
		sender, receiver, v, time.Now().UnixMilli())
	if err != nil {
		return unavailable("set typing", err)
	}
	if db.bus != nil {
		db.bus.Publish(bus.Event{
			Kind:      bus.KindTypingChanged,
			Timestamp: time.Now(),
			Payload:   bus.TypingChange{Sender: sender, Receiver: receiver},
		})
	}
	return nil
}

// Typing reports whether sender is typing to receiver. Missing rows read as
// not typing.
func (db *DB) Typing(sender, receiver string) (bool, error) {
	var v int
	err := db.QueryRow(`SELECT typing FROM typing WHERE sender = ? AND receiver = ?`,
		sender, receiver).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, unavailable("get typing", err)
	}
	return v != 0, nil
}
