package models

import (
	"strings"
	"time"
)

// Sentinel values for the record persisted when a scan finds nothing.
const (
	NoResultsSender  = "-"
	NoResultsSubject = "No records found"
	NoResultsStatus  = "no-results"
)

// ScanDateLayout formats the date of a no-results record.
const ScanDateLayout = "2006-01-02"

// Record is one notification row extracted for an entity.
type Record struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	Date          string    `json:"date"`
	Sender        string    `json:"sender"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status"`
	DocumentNo    string    `json:"document_no,omitempty"`
	DocumentURL   string    `json:"document_url,omitempty"`
	DocumentPath  string    `json:"document_path,omitempty"`
	DocumentPages int       `json:"document_pages,omitempty"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// NoResultsRecord marks that entityID was scanned on day and nothing was found.
func NoResultsRecord(entityID string, day time.Time) Record {
	return Record{
		EntityID:  entityID,
		Date:      day.Format(ScanDateLayout),
		Sender:    NoResultsSender,
		Subject:   NoResultsSubject,
		Status:    NoResultsStatus,
		ScannedAt: day,
	}
}

// IsNoResults reports whether r is a no-results sentinel.
func (r Record) IsNoResults() bool {
	return r.Status == NoResultsStatus && r.Sender == NoResultsSender
}

// HasDocument reports whether the row links to a downloadable document.
func (r Record) HasDocument() bool {
	return r.DocumentURL != ""
}

// Key is the natural key the store deduplicates on.
func (r Record) Key() string {
	return strings.Join([]string{r.EntityID, r.Date, r.Sender, r.Subject, r.Status}, "\x1f")
}
