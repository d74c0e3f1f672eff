package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// SQLiteRecordRepository implements RecordRepository for SQLite.
type SQLiteRecordRepository struct {
	db *sql.DB
}

// NewSQLiteRecordRepository creates a new SQLite record repository.
func NewSQLiteRecordRepository(db *sql.DB) *SQLiteRecordRepository {
	return &SQLiteRecordRepository{db: db}
}

// PersistRecords inserts the batch with INSERT OR IGNORE so that calling it
// twice with the same records inserts them at most once.
func (r *SQLiteRecordRepository) PersistRecords(ctx context.Context, entityID string, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO records (
			id, entity_id, record_date, sender, subject, status,
			document_no, document_url, document_path, document_pages,
			scanned_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for i := range records {
		rec := &records[i]
		rec.EntityID = entityID
		if rec.ID == "" {
			rec.ID = ulid.Make().String()
		}
		if rec.ScannedAt.IsZero() {
			rec.ScannedAt = now
		}

		res, err := stmt.ExecContext(ctx,
			rec.ID,
			entityID,
			rec.Date,
			rec.Sender,
			rec.Subject,
			rec.Status,
			rec.DocumentNo,
			rec.DocumentURL,
			rec.DocumentPath,
			rec.DocumentPages,
			rec.ScannedAt.UTC().Format(time.RFC3339),
			now.Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByEntity returns the newest records of an entity.
func (r *SQLiteRecordRepository) ListByEntity(ctx context.Context, entityID string, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_id, record_date, sender, subject, status,
			document_no, document_url, document_path, document_pages, scanned_at
		FROM records
		WHERE entity_id = ?
		ORDER BY scanned_at DESC, id DESC
		LIMIT ?
	`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var rec models.Record
		var scannedAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.EntityID,
			&rec.Date,
			&rec.Sender,
			&rec.Subject,
			&rec.Status,
			&rec.DocumentNo,
			&rec.DocumentURL,
			&rec.DocumentPath,
			&rec.DocumentPages,
			&scannedAt,
		); err != nil {
			return nil, err
		}
		rec.ScannedAt, _ = time.Parse(time.RFC3339, scannedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// CountByEntity returns the number of stored records for an entity.
func (r *SQLiteRecordRepository) CountByEntity(ctx context.Context, entityID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE entity_id = ?`, entityID).Scan(&n)
	return n, err
}
