package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrUnavailable marks a store read or write that failed for transient
// reasons (locked database, lost connectivity). Callers match it with
// errors.Is.
var ErrUnavailable = errors.New("store unavailable")

// DB is the message store adapter. It owns the persisted message, user and
// typing records and publishes a bus event after every write so that
// subscriptions can requery. Derived state (unread counts, ordered
// conversations, presence flags) is always recomputed from store state,
// never patched in place.
type DB struct {
	*sql.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, b *bus.Bus, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, bus: b, logger: logger}, nil
}

// unavailable wraps a driver error into the store taxonomy.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
