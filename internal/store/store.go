package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added idx_events_agent for per-agent history queries
const currentSchemaVersion = 2

// Store is the durable home of the graph, its event log and the governance
// records. Uses SQLite with WAL mode and a single connection, so every
// transaction is serialized against every other.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
	hooks  []EventHook
}

// EventHook observes events after their transaction commits.
type EventHook func(schema.Event)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the generator used for node and edge ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithEventHook registers a hook called after each committed mutation.
// Hooks run outside any transaction.
func WithEventHook(h EventHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fault.Persist("open store", fmt.Errorf("open database: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fault.Persist("open store", fmt.Errorf("connect to database: %w", err))
	}

	// SQLite only supports one writer at a time. One connection also makes
	// each transaction an exclusive section for the whole store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fault.Persist("open store", fmt.Errorf("apply pragmas: %w", err))
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fault.Persist("open store", fmt.Errorf("apply schema: %w", err))
	}

	s := &Store{
		db:     db,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Now returns the store's current time in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the per-agent event index to databases created before it
// was part of schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent, seq)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 adds the per-agent decay multiplier to reputation records.
// Fresh databases already have it from schema.sql.
func migrateToV2(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('reputations') WHERE name = 'decay'
	`).Scan(&n); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE reputations ADD COLUMN decay REAL NOT NULL DEFAULT 1`); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction. Errors from fn are returned as-is
// (so fault kinds survive); driver errors are wrapped as persistence failures.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Persist(op, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fault.Persist(op, err)
	}
	if err := tx.Commit(); err != nil {
		return fault.Persist(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) notify(events ...schema.Event) {
	for _, ev := range events {
		for _, h := range s.hooks {
			h(ev)
		}
	}
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
