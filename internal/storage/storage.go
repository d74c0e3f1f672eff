// Package storage persists downloaded portal documents.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/narworks/muhasebe-asistani-sub000/internal/config"
	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

// Stored describes where a document ended up.
type Stored struct {
	Path  string
	Size  int
	Pages int
}

// DocumentStore saves documents for an entity.
type DocumentStore interface {
	Save(ctx context.Context, entityID string, doc *pagedriver.Document) (*Stored, error)
}

// New returns an S3 store when a bucket is configured and a local store otherwise.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (DocumentStore, error) {
	if cfg.S3Enabled() {
		return NewS3Store(ctx, S3Options{
			Bucket:    cfg.StorageBucket,
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
		}, logger)
	}
	return NewLocalStore(cfg.StorageDir, logger)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey is content-addressed so saving the same document twice lands on
// the same key.
func objectKey(entityID string, doc *pagedriver.Document) string {
	sum := sha256.Sum256(doc.Data)
	name := sanitize(path.Base(doc.Name))
	if name == "" {
		name = "document"
	}
	if IsPDF(doc) && !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return path.Join(sanitize(entityID), hex.EncodeToString(sum[:6])+"-"+name)
}

func sanitize(s string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "._")
}

// inspect fills in the page count of PDF documents. A malformed PDF is kept
// with zero pages.
func inspect(doc *pagedriver.Document, stored *Stored, logger *slog.Logger) {
	if !IsPDF(doc) {
		return
	}
	pages, err := InspectPDF(doc.Data)
	if err != nil {
		logger.Warn("failed to inspect PDF", "path", stored.Path, "error", err)
		return
	}
	stored.Pages = pages
}
