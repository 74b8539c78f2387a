// Package storage owns the connection pool to the Pulse dataset and runs
// composed report queries against it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"insights/internal/core"
	"insights/internal/retry"
)

// Dialect names the SQL engine behind a Store.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// IsValid reports whether d is a supported dialect.
func (d Dialect) IsValid() bool {
	return d == MySQL || d == SQLite
}

// Options configure a Store.
type Options struct {
	Dialect Dialect
	// DSN is a go-sql-driver DSN for MySQL or a file path for SQLite.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// QueryTimeout bounds a single report query. Zero disables it.
	QueryTimeout time.Duration
	// Retry applies to connection failures only.
	Retry retry.Policy

	// Writable opens a SQLite file without the query_only pragma. Used by
	// the CLI and tests that load fixtures. MySQL access is always read-only.
	Writable bool
}

// MySQLParams are the discrete connection settings used when no DSN is given.
type MySQLParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN formats p with the driver's config type.
func (p MySQLParams) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	cfg.DBName = p.Database
	cfg.ParseTime = true
	cfg.Timeout = 5 * time.Second
	return cfg.FormatDSN()
}

// Store is a pooled handle to the dataset.
type Store struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

// Open creates the pool and pings it, retrying connection failures per
// opts.Retry. A store that cannot be reached returns a *core.ConnectionError.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Dialect.IsValid() {
		return nil, fmt.Errorf("unsupported dialect %q", opts.Dialect)
	}

	driverName, dsn, err := opts.driver()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &core.ConnectionError{Op: "open", Err: err}
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := &Store{db: db, opts: opts, logger: logger.With("component", "store", "dialect", string(opts.Dialect))}

	attempt := 0
	err = retry.Do(ctx, opts.Retry, func(ctx context.Context) error {
		attempt++
		err := s.ping(ctx)
		if err != nil {
			s.logger.Warn("Store ping failed", "attempt", attempt, "error", err)
		}
		return err
	}, core.IsConnectionError)
	if err != nil {
		db.Close()
		if !core.IsConnectionError(err) {
			err = &core.ConnectionError{Op: "ping", Err: err}
		}
		return nil, err
	}

	s.logger.Info("Store connected", "max_open_conns", opts.MaxOpenConns, "query_timeout", opts.QueryTimeout)
	return s, nil
}

func (o Options) driver() (string, string, error) {
	switch o.Dialect {
	case MySQL:
		cfg, err := mysql.ParseDSN(o.DSN)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		return "mysql", cfg.FormatDSN(), nil
	case SQLite:
		if o.DSN == "" {
			return "", "", fmt.Errorf("sqlite path is empty")
		}
		if o.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(o.DSN), 0755); err != nil {
				return "", "", fmt.Errorf("create db directory: %w", err)
			}
		}
		q := url.Values{}
		q.Add("_pragma", "busy_timeout(5000)")
		if !o.Writable {
			q.Add("_pragma", "query_only(1)")
		}
		return "sqlite", o.DSN + "?" + q.Encode(), nil
	}
	return "", "", fmt.Errorf("unsupported dialect %q", o.Dialect)
}

// Ping checks the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// DB exposes the pool for fixture loading and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the engine behind the store.
func (s *Store) Dialect() Dialect {
	return s.opts.Dialect
}

// Stats reports pool usage.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
