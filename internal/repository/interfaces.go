// Package repository defines repository interfaces and their SQLite implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// EntityRepository defines methods for entity data access.
type EntityRepository interface {
	Create(ctx context.Context, e *models.Entity) error
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	List(ctx context.Context) ([]*models.Entity, error)
	ListActive(ctx context.Context) ([]*models.Entity, error)
	Update(ctx context.Context, e *models.Entity) error
	SetStatus(ctx context.Context, id string, status models.EntityStatus) error
	CountActive(ctx context.Context) (int, error)
	// Fingerprint changes whenever the active population changes.
	Fingerprint(ctx context.Context) (string, error)
}

// RecordRepository defines methods for extracted record data access.
type RecordRepository interface {
	// PersistRecords inserts records in one transaction, skipping natural-key
	// duplicates, and returns the number of rows actually inserted.
	PersistRecords(ctx context.Context, entityID string, records []models.Record) (int, error)
	ListByEntity(ctx context.Context, entityID string, limit int) ([]*models.Record, error)
	CountByEntity(ctx context.Context, entityID string) (int, error)
}

// SettingsRepository stores JSON documents under string keys.
type SettingsRepository interface {
	// Get decodes the value at key into v and reports whether it existed.
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
}

// CreditRepository manages the credit ledger.
type CreditRepository interface {
	Balance(ctx context.Context) (int, error)
	Add(ctx context.Context, amount int, reason string) (int, error)
	// Consume atomically deducts amount if the balance covers it.
	Consume(ctx context.Context, amount int, reason string) (bool, int, error)
}

// ScanRunRepository records the history of scan runs.
type ScanRunRepository interface {
	Save(ctx context.Context, snap models.ScanSnapshot, trigger string) error
	Recent(ctx context.Context, limit int) ([]*ScanRun, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Entity   EntityRepository
	Record   RecordRepository
	Settings SettingsRepository
	Credit   CreditRepository
	ScanRun  ScanRunRepository
}

// NewRepositories creates all repositories backed by db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Entity:   NewSQLiteEntityRepository(db),
		Record:   NewSQLiteRecordRepository(db),
		Settings: NewSQLiteSettingsRepository(db),
		Credit:   NewSQLiteCreditRepository(db),
		ScanRun:  NewSQLiteScanRunRepository(db),
	}
}
