package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/crypto"
	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// ErrNoCredential is returned when an entity has no usable portal login.
var ErrNoCredential = errors.New("entity has no stored credential")

// EntityStore is the scan-facing view of the store: the active population,
// decrypted credentials and idempotent record persistence.
type EntityStore struct {
	entities EntityRepository
	records  RecordRepository
	enc      *crypto.Encryptor
}

// NewEntityStore creates an EntityStore.
func NewEntityStore(entities EntityRepository, records RecordRepository, enc *crypto.Encryptor) *EntityStore {
	return &EntityStore{entities: entities, records: records, enc: enc}
}

// ListActiveEntities returns the current active population.
func (s *EntityStore) ListActiveEntities(ctx context.Context) ([]*models.Entity, error) {
	return s.entities.ListActive(ctx)
}

// ResolveCredential decrypts the stored login of an entity.
func (s *EntityStore) ResolveCredential(ctx context.Context, entityID string) (*models.Credential, error) {
	e, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if e.UserCode == "" || e.PasswordEncrypted == "" {
		return nil, ErrNoCredential
	}
	password, err := s.enc.Decrypt(e.PasswordEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	if password == "" {
		return nil, ErrNoCredential
	}
	return &models.Credential{UserCode: e.UserCode, Password: password}, nil
}

// PersistRecords stores records for an entity without duplicating rows.
func (s *EntityStore) PersistRecords(ctx context.Context, entityID string, records []models.Record) (int, error) {
	return s.records.PersistRecords(ctx, entityID, records)
}

// CreateEntity encrypts password and inserts a new active entity.
func (s *EntityStore) CreateEntity(ctx context.Context, firmName, taxNumber, userCode, password string) (*models.Entity, error) {
	encrypted, err := s.enc.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}
	e := &models.Entity{
		FirmName:          firmName,
		TaxNumber:         taxNumber,
		UserCode:          userCode,
		PasswordEncrypted: encrypted,
		Status:            models.EntityStatusActive,
	}
	if err := s.entities.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdatePassword replaces the stored password of an entity.
func (s *EntityStore) UpdatePassword(ctx context.Context, entityID, password string) error {
	e, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return err
	}
	encrypted, err := s.enc.Encrypt(password)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	e.PasswordEncrypted = encrypted
	e.UpdatedAt = time.Now().UTC()
	return s.entities.Update(ctx, e)
}
