package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

// LocalStore writes documents under a root directory.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	logger.Info("document storage: local", "dir", root)
	return &LocalStore{root: root, logger: logger}, nil
}

// Save writes doc atomically and returns its path relative to the root.
func (s *LocalStore) Save(ctx context.Context, entityID string, doc *pagedriver.Document) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := objectKey(entityID, doc)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create entity dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".download-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.Data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	stored := &Stored{Path: key, Size: len(doc.Data)}
	inspect(doc, stored, s.logger)

	s.logger.Debug("stored document", "entity_id", entityID, "path", key, "size", stored.Size)
	return stored, nil
}
