package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/google/uuid"
)

// Append adds a message to the log and returns its store-assigned id.
// The sequence tie-break is assigned here; the caller-provided timestamp is
// stored verbatim (client clocks are not trusted for ordering beyond it).
func (db *DB) Append(m *Message) (string, error) {
	id := uuid.New().String()
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (id, sender, receiver, timestamp, kind, body, media_url, media_type, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, m.Sender, m.Receiver, m.Timestamp, m.Kind, m.Body, m.MediaURL, m.MediaType, now)
	if err != nil {
		return "", unavailable("append message", err)
	}
	m.ID = id
	m.Seq, _ = res.LastInsertId()
	db.publishMessages(m.Sender, m.Receiver)
	return id, nil
}

// GetMessage returns a single message by id, or nil if it does not exist.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	var read int
	err := db.QueryRow(`
		SELECT seq, id, sender, receiver, timestamp, kind, body, media_url, media_type, read
		FROM messages WHERE id = ?`, id).
		Scan(&m.Seq, &m.ID, &m.Sender, &m.Receiver, &m.Timestamp, &m.Kind, &m.Body, &m.MediaURL, &m.MediaType, &read)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get message", err)
	}
	m.Read = read != 0
	return &m, nil
}

// DeleteMessage removes one message by id. Deleting a missing id is a no-op.
func (db *DB) DeleteMessage(id string) error {
	m, err := db.GetMessage(id)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if _, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
		return unavailable("delete message", err)
	}
	db.publishMessages(m.Sender, m.Receiver)
	return nil
}

// DeleteConversation removes every message between a and b, row by row.
// Individual failures do not stop the batch; all of them are reported
// together and nothing is rolled back.
func (db *DB) DeleteConversation(a, b string) error {
	msgs, err := db.ListConversation(a, b)
	if err != nil {
		return err
	}
	var errs []error
	deleted := 0
	for _, m := range msgs {
		if _, err := db.Exec(`DELETE FROM messages WHERE id = ?`, m.ID); err != nil {
			errs = append(errs, unavailable(fmt.Sprintf("delete message %s", m.ID), err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		db.publishMessages(a, b)
	}
	return errors.Join(errs...)
}

// ListConversation returns every message between a and b, ascending by
// timestamp. Ties are broken by the store-assigned sequence: client clocks
// can collide or run backwards, the sequence reflects append order and is
// the documented deterministic tie-break.
func (db *DB) ListConversation(a, b string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT seq, id, sender, receiver, timestamp, kind, body, media_url, media_type, read
		FROM messages
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY timestamp ASC, seq ASC`, a, b, b, a)
	if err != nil {
		return nil, unavailable("list conversation", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var read int
		if err := rows.Scan(&m.Seq, &m.ID, &m.Sender, &m.Receiver, &m.Timestamp, &m.Kind, &m.Body, &m.MediaURL, &m.MediaType, &read); err != nil {
			return nil, unavailable("scan conversation", err)
		}
		m.Read = read != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LatestSeq returns the highest sequence number ever assigned, or 0 for an
// empty log. Sequences are monotonic, so this is a stable high-water mark
// even across deletes.
func (db *DB) LatestSeq() (int64, error) {
	var seq int64
	err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM messages`).Scan(&seq)
	if err != nil {
		return 0, unavailable("latest seq", err)
	}
	return seq, nil
}

// InboundSince returns every message addressed to receiver with a sequence
// past afterSeq, in append order. Used to replay deliveries past a watermark.
func (db *DB) InboundSince(receiver string, afterSeq int64) ([]Message, error) {
	rows, err := db.Query(`
		SELECT seq, id, sender, receiver, timestamp, kind, body, media_url, media_type, read
		FROM messages
		WHERE receiver = ? AND seq > ?
		ORDER BY seq ASC`, receiver, afterSeq)
	if err != nil {
		return nil, unavailable("inbound since", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var read int
		if err := rows.Scan(&m.Seq, &m.ID, &m.Sender, &m.Receiver, &m.Timestamp, &m.Kind, &m.Body, &m.MediaURL, &m.MediaType, &read); err != nil {
			return nil, unavailable("scan inbound", err)
		}
		m.Read = read != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UnreadCount returns the number of unread messages sent by sender to receiver.
func (db *DB) UnreadCount(sender, receiver string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE sender = ? AND receiver = ? AND read = 0`, sender, receiver).Scan(&n)
	if err != nil {
		return 0, unavailable("unread count", err)
	}
	return n, nil
}

// MarkConversationRead flags every unread message from sender to receiver as
// read. Best effort, last writer wins; the flag is idempotent.
func (db *DB) MarkConversationRead(sender, receiver string) error {
	res, err := db.Exec(`
		UPDATE messages SET read = 1
		WHERE sender = ? AND receiver = ? AND read = 0`, sender, receiver)
	if err != nil {
		return unavailable("mark read", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.publishMessages(sender, receiver)
	}
	return nil
}

func (db *DB) publishMessages(a, b string) {
	if db.bus == nil {
		return
	}
	db.bus.Publish(bus.Event{
		Kind:      bus.KindMessagesChanged,
		Timestamp: time.Now(),
		Payload:   bus.MessagesChange{Participants: [2]string{a, b}},
	})
}
