package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/linkup-social/flowkit/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Timestamps are stored as unix nanoseconds so due-run selection is a plain
// integer comparison. The partial unique index on active runs is what makes
// create-or-get linearizable across processes sharing the database file.
type SQLiteRunStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given database
// and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			next_run_at INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			context BLOB,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires_at INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_active_key
			ON runs(workflow_name, idempotency_key)
			WHERE status IN ('PENDING','RUNNING','SLEEPING');
		CREATE INDEX IF NOT EXISTS idx_runs_due
			ON runs(status, next_run_at);
		CREATE TABLE IF NOT EXISTS step_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			step_name TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			output BLOB,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_step_records_run
			ON step_records(run_id, seq);`,
	)
	return err
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *SQLiteRunStore) CreateOrGetRun(ctx context.Context, run *api.Run) (*api.Run, bool, error) {
	if existing, err := s.activeRun(ctx, run.WorkflowName, run.IdempotencyKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	blob, err := EncodeContext(run.Context)
	if err != nil {
		return nil, false, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_name, idempotency_key, status, current_step,
			next_run_at, attempt, context, lease_owner, lease_expires_at,
			last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.WorkflowName,
		run.IdempotencyKey,
		string(run.Status),
		run.CurrentStep,
		unixOrZero(run.NextRunAt),
		run.Attempt,
		blob,
		run.LeaseOwner,
		unixOrZero(run.LeaseExpiresAt),
		run.LastError,
		unixOrZero(run.CreatedAt),
		unixOrZero(run.UpdatedAt),
	)
	if err != nil {
		// Lost a race with a concurrent publisher of the same key: the
		// partial unique index rejected the insert, so return the winner.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			existing, aerr := s.activeRun(ctx, run.WorkflowName, run.IdempotencyKey)
			if aerr != nil {
				return nil, false, aerr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return copyRun(run), true, nil
}

func (s *SQLiteRunStore) activeRun(ctx context.Context, workflow, key string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRunQuery+`
		WHERE workflow_name = ? AND idempotency_key = ?
			AND status IN ('PENDING','RUNNING','SLEEPING')`,
		workflow, key,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

const selectRunQuery = `
	SELECT id, workflow_name, idempotency_key, status, current_step,
		next_run_at, attempt, context, lease_owner, lease_expires_at,
		last_error, created_at, updated_at
	FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.Run, error) {
	var run api.Run
	var statusStr string
	var nextRunAt, leaseExpiresAt, createdAt, updatedAt int64
	var blob []byte

	err := row.Scan(
		&run.ID,
		&run.WorkflowName,
		&run.IdempotencyKey,
		&statusStr,
		&run.CurrentStep,
		&nextRunAt,
		&run.Attempt,
		&blob,
		&run.LeaseOwner,
		&leaseExpiresAt,
		&run.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = api.Status(statusStr)
	run.NextRunAt = timeOrZero(nextRunAt)
	run.LeaseExpiresAt = timeOrZero(leaseExpiresAt)
	run.CreatedAt = timeOrZero(createdAt)
	run.UpdatedAt = timeOrZero(updatedAt)

	rc, err := DecodeContext(blob)
	if err != nil {
		return nil, err
	}
	run.Context = rc
	return &run, nil
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRunQuery+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	query := selectRunQuery
	var clauses []string
	var args []any

	if opts.WorkflowName != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, opts.WorkflowName)
	}
	if opts.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(opts.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	return s.queryRuns(ctx, query, args...)
}

func (s *SQLiteRunStore) queryRuns(ctx context.Context, query string, args ...any) ([]*api.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteRunStore) DueRuns(ctx context.Context, now time.Time, limit int) ([]*api.Run, error) {
	if limit <= 0 {
		limit = 32
	}
	return s.queryRuns(ctx, selectRunQuery+`
		WHERE (status IN ('PENDING','SLEEPING') AND next_run_at <= ?)
			OR (status = 'RUNNING' AND lease_expires_at <= ?)
		ORDER BY next_run_at ASC
		LIMIT ?`,
		now.UnixNano(), now.UnixNano(), limit,
	)
}

func (s *SQLiteRunStore) AcquireLease(ctx context.Context, runID, owner string, ttl time.Duration, now time.Time) (*api.Run, bool, bool, error) {
	// Reclaim detection must read the prior status before the CAS flips it.
	prior := s.db.QueryRowContext(ctx,
		`SELECT status FROM runs WHERE id = ?`, runID)
	var priorStatus string
	if err := prior.Scan(&priorStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, false, ErrRunNotFound
		}
		return nil, false, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = 'RUNNING', lease_owner = ?, lease_expires_at = ?, updated_at = ?
		WHERE id = ?
			AND ((status IN ('PENDING','SLEEPING') AND next_run_at <= ?)
				OR (status = 'RUNNING' AND lease_expires_at <= ?))`,
		owner,
		now.Add(ttl).UnixNano(),
		now.UnixNano(),
		runID,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return nil, false, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, false, err
	}
	if affected == 0 {
		// Another worker won the race, or the run was cancelled in between.
		return nil, false, false, nil
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, false, false, err
	}
	return run, true, priorStatus == string(api.StatusRunning), nil
}

func (s *SQLiteRunStore) UpdateRun(ctx context.Context, run *api.Run, owner string) error {
	blob, err := EncodeContext(run.Context)
	if err != nil {
		return err
	}

	leaseOwner := run.LeaseOwner
	leaseExpires := run.LeaseExpiresAt
	if run.Status != api.StatusRunning {
		leaseOwner = ""
		leaseExpires = time.Time{}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, current_step = ?, next_run_at = ?, attempt = ?,
			context = ?, lease_owner = ?, lease_expires_at = ?,
			last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'RUNNING' AND lease_owner = ?`,
		string(run.Status),
		run.CurrentStep,
		unixOrZero(run.NextRunAt),
		run.Attempt,
		blob,
		leaseOwner,
		unixOrZero(leaseExpires),
		run.LastError,
		unixOrZero(run.UpdatedAt),
		run.ID,
		owner,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}

func (s *SQLiteRunStore) AppendStepRecord(ctx context.Context, rec api.StepRecord) error {
	blob, err := EncodeContext(rec.Output)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_records (run_id, step_index, step_name, attempt,
			outcome, error, output, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.StepIndex,
		rec.StepName,
		rec.Attempt,
		string(rec.Outcome),
		rec.Error,
		blob,
		unixOrZero(rec.StartedAt),
		unixOrZero(rec.FinishedAt),
	)
	return err
}

func (s *SQLiteRunStore) StepRecords(ctx context.Context, runID string) ([]api.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, step_index, step_name, attempt, outcome, error,
			output, started_at, finished_at
		FROM step_records
		WHERE run_id = ?
		ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []api.StepRecord
	for rows.Next() {
		var rec api.StepRecord
		var outcome string
		var startedAt, finishedAt int64
		var blob []byte

		if err := rows.Scan(&rec.RunID, &rec.StepIndex, &rec.StepName,
			&rec.Attempt, &outcome, &rec.Error, &blob,
			&startedAt, &finishedAt); err != nil {
			return nil, err
		}
		rec.Outcome = api.Outcome(outcome)
		rec.StartedAt = timeOrZero(startedAt)
		rec.FinishedAt = timeOrZero(finishedAt)

		out, err := DecodeContext(blob)
		if err != nil {
			return nil, err
		}
		rec.Output = out
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteRunStore) CancelRun(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, cancelQuery+` AND id = ?`,
		now.UnixNano(), now.UnixNano(), id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *SQLiteRunStore) CancelActiveRun(ctx context.Context, workflowName, key string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, cancelQuery+` AND workflow_name = ? AND idempotency_key = ?`,
		now.UnixNano(), now.UnixNano(), workflowName, key)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// cancelQuery transitions a run to CANCELLED unless it is terminal or held
// by a live lease; a live executor's final write wins instead.
const cancelQuery = `
	UPDATE runs
	SET status = 'CANCELLED', lease_owner = '', lease_expires_at = 0, updated_at = ?
	WHERE (status IN ('PENDING','SLEEPING')
		OR (status = 'RUNNING' AND lease_expires_at <= ?))`

func (s *SQLiteRunStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM step_records WHERE run_id IN (
			SELECT id FROM runs
			WHERE status IN ('SUCCEEDED','FAILED','CANCELLED') AND updated_at < ?)`,
		olderThan.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE status IN ('SUCCEEDED','FAILED','CANCELLED') AND updated_at < ?`,
		olderThan.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *SQLiteRunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
