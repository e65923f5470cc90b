// Package store persists portfolio projects and contact messages in SQLite.
//
// It is plain collaborator plumbing behind the API routes; none of the
// request-defense logic depends on it.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"

	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    slug             TEXT NOT NULL UNIQUE,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL,
    long_description TEXT,
    category         TEXT NOT NULL,
    tags             TEXT NOT NULL DEFAULT '[]',
    date             TEXT NOT NULL,
    image            TEXT,
    github           TEXT,
    demo             TEXT,
    featured         BOOLEAN NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_category ON projects(category);

CREATE TABLE IF NOT EXISTS contact_messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    email      TEXT NOT NULL,
    subject    TEXT NOT NULL,
    message    TEXT NOT NULL,
    is_read    BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contact_created_at ON contact_messages(created_at DESC);
`

// Store is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database at path (":memory:" for an ephemeral one)
// and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New("store: empty database path")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open sqlite %s", path)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, xerrors.Wrapf(err, "apply %q", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, "apply schema")
	}
	return &Store{db: db}, nil
}

// Ping reports whether the database is reachable. Used by readiness.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }
