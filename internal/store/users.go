package store

import (
	"database/sql"
	"time"

	"github.com/Atropina/Falai-Arizona/internal/bus"
)

// CreateUser inserts a new directory entry.
func (db *DB) CreateUser(u *UserRecord) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, name, email, avatar_url, password_hash, online, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		u.ID, u.Name, u.Email, u.AvatarURL, u.PasswordHash, now)
	if err != nil {
		return unavailable("create user", err)
	}
	db.publishUser(u.ID)
	return nil
}

// GetUser returns a user by id, or nil if not found.
func (db *DB) GetUser(id string) (*UserRecord, error) {
	return db.getUser(`SELECT id, name, email, avatar_url, password_hash, online FROM users WHERE id = ?`, id)
}

// GetUserByEmail returns a user by email, or nil if not found.
func (db *DB) GetUserByEmail(email string) (*UserRecord, error) {
	return db.getUser(`SELECT id, name, email, avatar_url, password_hash, online FROM users WHERE email = ?`, email)
}

func (db *DB) getUser(query string, arg any) (*UserRecord, error) {
	var u UserRecord
	var online int
	err := db.QueryRow(query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &u.PasswordHash, &online)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	u.Online = online != 0
	return &u, nil
}

// ListUsers returns every directory entry except excludeID, sorted by name.
func (db *DB) ListUsers(excludeID string) ([]UserRecord, error) {
	rows, err := db.Query(`
		SELECT id, name, email, avatar_url, password_hash, online
		FROM users WHERE id != ? ORDER BY name ASC, id ASC`, excludeID)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer func() { _ = rows.Close() }()

	var users []UserRecord
	for rows.Next() {
		var u UserRecord
		var online int
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &u.PasswordHash, &online); err != nil {
			return nil, unavailable("scan user", err)
		}
		u.Online = online != 0
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetOnline flips the ephemeral presence flag. Idempotent, last writer wins.
func (db *DB) SetOnline(id string, online bool) error {
	v := 0
	if online {
		v = 1
	}
	_, err := db.Exec(`UPDATE users SET online = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UnixMilli(), id)
	if err != nil {
		return unavailable("set online", err)
	}
	db.publishUser(id)
	return nil
}

// OnlineUsers returns the ids of all users currently flagged online.
func (db *DB) OnlineUsers() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM users WHERE online = 1`)
	if err != nil {
		return nil, unavailable("online users", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan online user", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) publishUser(id string) {
	if db.bus == nil {
		return
	}
	db.bus.Publish(bus.Event{
		Kind:      bus.KindUsersChanged,
		Timestamp: time.Now(),
		Payload:   bus.UsersChange{UserID: id},
	})
}
