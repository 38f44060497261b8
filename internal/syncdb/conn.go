package syncdb

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmined/syncengine/internal/utils"
)

// SQLite pragmas tuned for a single-writer, crash-safe local database: WAL
// so the executor (the sole writer) never blocks readers, a bounded busy
// timeout instead of "database is locked" errors under the cache's reads.
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=8000;
`

type connConfig struct {
	path            string
	pragmas         string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures the underlying sqlite connection.
type Option func(*connConfig)

// WithPath sets the file path for the sync DB. Use ":memory:" for tests.
func WithPath(path string) Option {
	return func(c *connConfig) { c.path = path }
}

// WithMaxOpenConns overrides the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(c *connConfig) { c.maxOpenConns = n }
}

// newSqliteDB opens (creating if needed) the on-disk sqlite database used as
// the sync DB's storage engine.
func newSqliteDB(opts ...Option) (*sqlx.DB, error) {
	cfg := &connConfig{
		path:         ":memory:",
		pragmas:      defaultPragma,
		maxOpenConns: 1, // the executor is the sole writer; readers share the cache
		maxIdleConns: 1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var dsn string
	if cfg.path != ":memory:" {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	} else {
		dsn = ":memory:"
	}

	slog.Info("syncdb", "driver", driverName, "path", cfg.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sync db: %w", err)
	}

	if cfg.maxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.connMaxLifetime)
	}

	if _, err := conn.Exec(cfg.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return conn, nil
}
