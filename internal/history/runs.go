package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one journaled sync run
type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	LocalRoot     string    `json:"localRoot"`
	Destination   string    `json:"destination"`
	DestinationID string    `json:"destinationId,omitempty"`
	ShareEmail    string    `json:"shareEmail,omitempty"`
	DryRun        bool      `json:"dryRun"`
	Success       bool      `json:"success"`
	Cancelled     bool      `json:"cancelled"`
	Folders       int       `json:"folders"`
	Uploads       int       `json:"uploads"`
	Updates       int       `json:"updates"`
	Deletes       int       `json:"deletes"`
	Failures      int       `json:"failures"`
	Message       string    `json:"message"`
	Actions       []Action  `json:"actions,omitempty"`
}

// Action is one planned step of a run. Error is set when it failed.
type Action struct {
	Type         string `json:"type"`
	RelativePath string `json:"relativePath"`
	RemoteID     string `json:"remoteId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RecordRun stores run with its actions and returns the stored copy. A run
// without an id gets a new one; missing timestamps are taken from the clock.
func (d *DB) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := d.clock.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = now
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return run, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, started_at, finished_at, local_root, destination, destination_id, share_email,
			dry_run, success, cancelled, folders, uploads, updates, deletes, failures, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.LocalRoot, run.Destination,
		run.DestinationID, run.ShareEmail, boolToInt(run.DryRun), boolToInt(run.Success), boolToInt(run.Cancelled),
		run.Folders, run.Uploads, run.Updates, run.Deletes, run.Failures, run.Message)
	if err != nil {
		return run, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_run_actions (run_id, seq, action, relative_path, remote_id, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return run, err
	}
	defer func() {
		_ = stmt.Close()
	}()
	for i, a := range run.Actions {
		if _, err := stmt.ExecContext(ctx, run.ID, i, a.Type, a.RelativePath, a.RemoteID, a.Error); err != nil {
			return run, fmt.Errorf("insert action %s: %w", a.RelativePath, err)
		}
	}

	return run, tx.Commit()
}

// ListRuns returns up to limit runs, newest first, without their actions.
// A limit of zero or less returns every run.
func (d *DB) ListRuns(ctx context.Context, limit int) (runs []Run, err error) {
	query := `
		SELECT id, started_at, finished_at, local_root, destination, destination_id, share_email,
		       dry_run, success, cancelled, folders, uploads, updates, deletes, failures, message
		FROM sync_runs ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns one run with its actions
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, local_root, destination, destination_id, share_email,
		       dry_run, success, cancelled, folders, uploads, updates, deletes, failures, message
		FROM sync_runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	actions, err := d.listActions(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Actions = actions
	return &run, nil
}

func (d *DB) listActions(ctx context.Context, runID string) (actions []Action, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT action, relative_path, remote_id, error
		FROM sync_run_actions WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var a Action
		var remoteID, errText sql.NullString
		if err := rows.Scan(&a.Type, &a.RelativePath, &remoteID, &errText); err != nil {
			return nil, err
		}
		a.RemoteID = remoteID.String
		a.Error = errText.String
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var started, finished int64
	var destID, share, message sql.NullString
	var dryRun, success, cancelled int
	err := row.Scan(&run.ID, &started, &finished, &run.LocalRoot, &run.Destination, &destID, &share,
		&dryRun, &success, &cancelled, &run.Folders, &run.Uploads, &run.Updates, &run.Deletes, &run.Failures, &message)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	run.DestinationID = destID.String
	run.ShareEmail = share.String
	run.Message = message.String
	run.DryRun = dryRun != 0
	run.Success = success != 0
	run.Cancelled = cancelled != 0
	return run, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
