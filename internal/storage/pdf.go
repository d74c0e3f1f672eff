package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

// IsPDF reports whether doc looks like a PDF by content type or magic bytes.
func IsPDF(doc *pagedriver.Document) bool {
	if strings.Contains(strings.ToLower(doc.ContentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(doc.Data, []byte("%PDF-"))
}

// InspectPDF validates data as a PDF and returns its page count.
func InspectPDF(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}
