package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// onePagePDF builds a minimal, structurally valid single-page PDF.
func onePagePDF() []byte {
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(Tebligat) Tj\nET"

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, 6)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	offsets[4] = b.Len()
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(stream), stream)
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xref := b.Len()
	b.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return []byte(b.String())
}

func newStore(t *testing.T, root string) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(root, testLogger())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return store
}

func TestLocalStore_Save(t *testing.T) {
	root := t.TempDir()
	store := newStore(t, root)

	doc := &pagedriver.Document{Name: "notice 1.txt", ContentType: "text/plain", Data: []byte("hello")}
	stored, err := store.Save(context.Background(), "ent-1", doc)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !strings.HasPrefix(stored.Path, "ent-1/") || !strings.HasSuffix(stored.Path, "-notice_1.txt") {
		t.Errorf("Path = %q, want ent-1/<hash>-notice_1.txt", stored.Path)
	}
	if stored.Size != 5 {
		t.Errorf("Size = %d, want 5", stored.Size)
	}
	if stored.Pages != 0 {
		t.Errorf("Pages = %d, want 0 for a text file", stored.Pages)
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(stored.Path)))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("stored content = %q, want hello", data)
	}

	again, err := store.Save(context.Background(), "ent-1", doc)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if again.Path != stored.Path {
		t.Errorf("same content saved to %q and %q", stored.Path, again.Path)
	}
}

func TestLocalStore_SavePDF(t *testing.T) {
	store := newStore(t, t.TempDir())

	doc := &pagedriver.Document{Name: "download", Data: onePagePDF()}
	stored, err := store.Save(context.Background(), "ent-1", doc)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !strings.HasSuffix(stored.Path, ".pdf") {
		t.Errorf("Path = %q, want .pdf suffix", stored.Path)
	}
	if stored.Pages != 1 {
		t.Errorf("Pages = %d, want 1", stored.Pages)
	}
}

func TestLocalStore_Cancelled(t *testing.T) {
	store := newStore(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, "ent-1", &pagedriver.Document{Data: []byte("x")}); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want %v", err, context.Canceled)
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		doc  *pagedriver.Document
		want bool
	}{
		{"content type", &pagedriver.Document{ContentType: "application/pdf"}, true},
		{"magic bytes", &pagedriver.Document{Data: []byte("%PDF-1.7 ...")}, true},
		{"html", &pagedriver.Document{ContentType: "text/html", Data: []byte("<html>")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPDF(tt.doc); got != tt.want {
				t.Errorf("IsPDF() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInspectPDF_Invalid(t *testing.T) {
	if _, err := InspectPDF([]byte("%PDF-1.4 truncated")); err == nil {
		t.Error("InspectPDF() error = nil for a truncated file")
	}
}

func TestObjectKey_Sanitizes(t *testing.T) {
	key := objectKey("../ent", &pagedriver.Document{Name: "../../etc/passwd", Data: []byte("x")})
	if strings.Contains(key, "..") {
		t.Errorf("objectKey() = %q, contains a parent reference", key)
	}
	if !strings.HasSuffix(key, "-passwd") {
		t.Errorf("objectKey() = %q, want -passwd suffix", key)
	}
}
