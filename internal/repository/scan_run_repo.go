package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// ScanRun is one row of scan history.
type ScanRun struct {
	ID                  string
	State               models.ScanState
	Resumed             bool
	Trigger             string
	Total               int
	Processed           int
	SuccessCount        int
	ErrorCount          int
	InsufficientCredits bool
	Summary             string
	LastError           string
	StartedAt           time.Time
	FinishedAt          *time.Time
}

// SQLiteScanRunRepository implements ScanRunRepository for SQLite.
type SQLiteScanRunRepository struct {
	db *sql.DB
}

// NewSQLiteScanRunRepository creates a new SQLite scan run repository.
func NewSQLiteScanRunRepository(db *sql.DB) *SQLiteScanRunRepository {
	return &SQLiteScanRunRepository{db: db}
}

// Save upserts the snapshot of a run keyed by its scan ID.
func (r *SQLiteScanRunRepository) Save(ctx context.Context, snap models.ScanSnapshot, trigger string) error {
	started := time.Now().UTC()
	if snap.StartedAt != nil {
		started = snap.StartedAt.UTC()
	}
	var finished sql.NullString
	if snap.FinishedAt != nil {
		finished = sql.NullString{String: snap.FinishedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_runs (
			id, state, resumed, trigger_source, total, processed, success_count,
			error_count, insufficient_credits, summary, last_error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			resumed = excluded.resumed,
			total = excluded.total,
			processed = excluded.processed,
			success_count = excluded.success_count,
			error_count = excluded.error_count,
			insufficient_credits = excluded.insufficient_credits,
			summary = excluded.summary,
			last_error = excluded.last_error,
			finished_at = excluded.finished_at
	`,
		snap.ScanID,
		string(snap.State),
		boolToInt(snap.Resumed),
		trigger,
		snap.Total,
		snap.Processed,
		snap.SuccessCount,
		snap.ErrorCount,
		boolToInt(snap.InsufficientCredits),
		snap.Summary,
		snap.LastError,
		started.Format(time.RFC3339),
		finished,
	)
	return err
}

// Recent returns the latest runs, newest first.
func (r *SQLiteScanRunRepository) Recent(ctx context.Context, limit int) ([]*ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state, resumed, trigger_source, total, processed, success_count,
			error_count, insufficient_credits, summary, last_error, started_at, finished_at
		FROM scan_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScanRun
	for rows.Next() {
		var run ScanRun
		var state, startedAt string
		var resumed, insufficient int
		var finishedAt sql.NullString
		if err := rows.Scan(
			&run.ID, &state, &resumed, &run.Trigger, &run.Total, &run.Processed,
			&run.SuccessCount, &run.ErrorCount, &insufficient, &run.Summary,
			&run.LastError, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}
		run.State = models.ScanState(state)
		run.Resumed = resumed == 1
		run.InsufficientCredits = insufficient == 1
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
