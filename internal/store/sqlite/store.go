// Package sqlite is the embedded store backend. Similarity and lexical
// scoring run inside SQLite as registered SQL functions, so pre-filtering,
// ranking and limiting all happen in a single statement.
//
// SQLite has no approximate index structure here: every search is an exact
// scan, which gives approximate requests perfect recall.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Config configures the SQLite database file.
type Config struct {
	Path        string        `koanf:"path" json:"path"`
	BusyTimeout time.Duration `koanf:"busy_timeout" json:"busy_timeout"`
	JournalMode string        `koanf:"journal_mode" json:"journal_mode"`
}

// DefaultConfig returns a WAL-mode configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return vecerr.Config("store.sqlite.path", "must not be empty")
	}
	if c.BusyTimeout < 0 {
		return vecerr.Config("store.sqlite.busy_timeout", "must not be negative")
	}
	switch c.JournalMode {
	case "", "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF":
	default:
		return vecerr.Config("store.sqlite.journal_mode", "unsupported mode %q", c.JournalMode)
	}
	return nil
}

func (c Config) dsn() string {
	q := url.Values{}
	if c.JournalMode != "" {
		q.Set("_journal_mode", c.JournalMode)
	}
	q.Set("_busy_timeout", strconv.FormatInt(c.BusyTimeout.Milliseconds(), 10))
	q.Set("_txlock", "immediate")
	q.Set("_foreign_keys", "1")
	return "file:" + c.Path + "?" + q.Encode()
}

// Store owns the database handle. Connections are handed out by Dial and
// are meant to be managed by a pool.Pool.
type Store struct {
	cfg    Config
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	registerDriver()
	db, err := sql.Open(DriverName, cfg.dsn())
	if err != nil {
		return nil, vecerr.Connection("open", err)
	}
	// The connection pool in front of this store does the pooling;
	// database/sql must close connections the moment they are returned.
	db.SetMaxIdleConns(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, vecerr.Connection("open", err)
	}
	if _, err := db.Exec(createIndexRegistry); err != nil {
		_ = db.Close()
		return nil, vecerr.Datastore("init", err)
	}

	logger.Info("sqlite store opened", zap.String("path", cfg.Path))
	return &Store{cfg: cfg, db: db, logger: logger}, nil
}

// Dial opens a dedicated connection. It satisfies pool.DialFunc.
func (s *Store) Dial(ctx context.Context) (store.Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, classify("dial", err)
	}
	return &Conn{conn: c, logger: s.logger}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const createIndexRegistry = `
CREATE TABLE IF NOT EXISTS _vector_indexes (
	name        TEXT PRIMARY KEY,
	field       TEXT NOT NULL,
	dimensions  INTEGER NOT NULL,
	metric      TEXT NOT NULL,
	index_type  TEXT NOT NULL,
	definition  TEXT NOT NULL,
	created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`
