// Package metastore persists the authoritative record of fragments,
// channel messages, tenants, projects, and API keys in SQLite. The
// vector store holds a derived copy; on any disagreement this store
// wins.
package metastore

import (
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Config controls how the SQLite database is opened.
type Config struct {
	// Path is the database file. Use ":memory:" for tests.
	Path string
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
	// MaxOpenConns caps the connection pool. SQLite allows one writer,
	// so small values behave best under WAL.
	MaxOpenConns int
}

// Store is the SQLite-backed metadata store.
type Store struct {
	db *sql.DB

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New opens (or creates) the database at cfg.Path and applies the
// schema.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("metastore: path is required")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// Transactions take the write lock up front. Deferred transactions
	// that read before writing would otherwise hold a WAL read snapshot
	// and fail the lock upgrade with SQLITE_BUSY under concurrency.
	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(on)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("metastore: open database: %w", err)
	}
	if cfg.Path == ":memory:" {
		// Each pooled connection to :memory: would open its own empty
		// database, so the pool must stay at a single connection.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &Store{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// newID returns a lexically sortable unique identifier.
func (s *Store) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tenant_id, name)
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id         TEXT PRIMARY KEY,
		key_hash   TEXT NOT NULL UNIQUE,
		tenant_id  TEXT NOT NULL,
		project_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		revoked    INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys(tenant_id);

	CREATE TABLE IF NOT EXISTS fragments (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		content     TEXT NOT NULL,
		memory_type TEXT NOT NULL,
		role        TEXT NOT NULL DEFAULT '',
		session_id  TEXT NOT NULL DEFAULT '',
		tags        TEXT NOT NULL DEFAULT '[]',
		importance  REAL NOT NULL DEFAULT 0.5,
		metadata    TEXT NOT NULL DEFAULT '{}',
		hit_count   INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fragments_scope ON fragments(tenant_id, project_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_fragments_type ON fragments(tenant_id, project_id, user_id, memory_type);
	CREATE INDEX IF NOT EXISTS idx_fragments_created ON fragments(created_at);

	CREATE TABLE IF NOT EXISTS channel_messages (
		id         TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		tenant_id  TEXT NOT NULL,
		project_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tenant_id, project_id, user_id, channel_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_channel
		ON channel_messages(tenant_id, project_id, user_id, channel_id, seq);

	CREATE TABLE IF NOT EXISTS vector_tombstones (
		fragment_id TEXT NOT NULL,
		collection  TEXT NOT NULL,
		tenant_id   TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		reason      TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (fragment_id, collection)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("metastore: migrate: %w", err)
	}
	return nil
}

// isUniqueViolation detects SQLite unique constraint failures. The
// modernc driver exposes them only through the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
