package shadow

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added position index on objects
const currentSchemaVersion = 1

// DefaultSchema is the configuration schema of a freshly created shadow.
const DefaultSchema = "pacemaker-1.2"

// IDGenerator produces commit record ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable commit ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Shadow is a SQLite-backed live configuration.
type Shadow struct {
	db            *sql.DB
	patch         bool
	ids           IDGenerator
	initialSchema string
}

// Option configures a Shadow.
type Option func(*Shadow)

// WithPatch enables or disables incremental patch support. Without patch
// support every commit replaces the whole document.
func WithPatch(enabled bool) Option {
	return func(s *Shadow) { s.patch = enabled }
}

// WithIDGenerator sets the commit id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Shadow) { s.ids = g }
}

// WithInitialSchema sets the schema recorded when the database is new.
func WithInitialSchema(name string) Option {
	return func(s *Shadow) { s.initialSchema = name }
}

// Open creates or opens a shadow database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Opening an existing database is safe; schema and migrations are
// idempotent.
func Open(path string, opts ...Option) (*Shadow, error) {
	s := &Shadow{patch: true, ids: UUIDv7Generator{}, initialSchema: DefaultSchema}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open shadow: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect shadow: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO settings (key, value) VALUES ('schema', ?), ('epoch', '0')
		ON CONFLICT(key) DO NOTHING`, s.initialSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database.
func (s *Shadow) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SupportsPatch reports whether Patch may be used.
func (s *Shadow) SupportsPatch() bool {
	return s.patch
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_objects_position ON objects(position)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
