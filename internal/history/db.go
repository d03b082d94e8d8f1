// Package history keeps a SQLite journal of sync runs.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// DefaultFileName is the journal file inside the config directory
const DefaultFileName = "history.db"

type DB struct {
	db    *sql.DB
	clock clockwork.Clock
}

type Option func(*DB)

// WithClock sets the clock used for run timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(d *DB) {
		d.clock = clock
	}
}

// Open opens or creates the journal at path and migrates its schema
func Open(path string, opts ...Option) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(instance)
	}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	local_root TEXT NOT NULL,
	destination TEXT NOT NULL,
	destination_id TEXT,
	share_email TEXT,
	dry_run INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL DEFAULT 0,
	cancelled INTEGER NOT NULL DEFAULT 0,
	folders INTEGER NOT NULL DEFAULT 0,
	uploads INTEGER NOT NULL DEFAULT 0,
	updates INTEGER NOT NULL DEFAULT 0,
	deletes INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	message TEXT
);

CREATE TABLE IF NOT EXISTS sync_run_actions (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	action TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	remote_id TEXT,
	error TEXT,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES sync_runs(id)
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
`
