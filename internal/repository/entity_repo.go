package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// SQLiteEntityRepository implements EntityRepository for SQLite.
type SQLiteEntityRepository struct {
	db *sql.DB
}

// NewSQLiteEntityRepository creates a new SQLite entity repository.
func NewSQLiteEntityRepository(db *sql.DB) *SQLiteEntityRepository {
	return &SQLiteEntityRepository{db: db}
}

const entityColumns = `id, firm_name, tax_number, user_code, password_encrypted, status, created_at, updated_at`

// Create inserts a new entity. Status defaults to active.
func (r *SQLiteEntityRepository) Create(ctx context.Context, e *models.Entity) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Status == "" {
		e.Status = models.EntityStatusActive
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.FirmName,
		e.TaxNumber,
		e.UserCode,
		e.PasswordEncrypted,
		string(e.Status),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// GetByID retrieves an entity by ID.
func (r *SQLiteEntityRepository) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns every entity ordered by firm name.
func (r *SQLiteEntityRepository) List(ctx context.Context) ([]*models.Entity, error) {
	return r.query(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY firm_name, id`)
}

// ListActive returns active entities in a stable order.
func (r *SQLiteEntityRepository) ListActive(ctx context.Context) ([]*models.Entity, error) {
	return r.query(ctx, `SELECT `+entityColumns+` FROM entities WHERE status = ? ORDER BY firm_name, id`,
		string(models.EntityStatusActive))
}

// Update writes every mutable field of e.
func (r *SQLiteEntityRepository) Update(ctx context.Context, e *models.Entity) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE entities SET
			firm_name = ?,
			tax_number = ?,
			user_code = ?,
			password_encrypted = ?,
			status = ?,
			updated_at = ?
		WHERE id = ?
	`,
		e.FirmName,
		e.TaxNumber,
		e.UserCode,
		e.PasswordEncrypted,
		string(e.Status),
		e.UpdatedAt.Format(time.RFC3339Nano),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return requireAffected(res)
}

// SetStatus activates or deactivates an entity.
func (r *SQLiteEntityRepository) SetStatus(ctx context.Context, id string, status models.EntityStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE entities SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to set entity status: %w", err)
	}
	return requireAffected(res)
}

// CountActive returns the number of active entities.
func (r *SQLiteEntityRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE status = ?`,
		string(models.EntityStatusActive)).Scan(&n)
	return n, err
}

// Fingerprint summarises the population as "<active>/<total>/<latest update>".
func (r *SQLiteEntityRepository) Fingerprint(ctx context.Context) (string, error) {
	var active, total int
	var latest sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COUNT(*),
			MAX(updated_at)
		FROM entities
	`, string(models.EntityStatusActive)).Scan(&active, &total, &latest)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d/%s", active, total, latest.String), nil
}

func (r *SQLiteEntityRepository) query(ctx context.Context, q string, args ...any) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var e models.Entity
	var status, createdAt, updatedAt string
	if err := row.Scan(
		&e.ID,
		&e.FirmName,
		&e.TaxNumber,
		&e.UserCode,
		&e.PasswordEncrypted,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = models.EntityStatus(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
