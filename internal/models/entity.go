// Package models contains the domain types shared across the scanner.
package models

import "time"

// EntityStatus is the lifecycle flag of a scanned entity.
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "active"
	EntityStatusInactive EntityStatus = "inactive"
)

// Entity is one taxpayer account scanned against the portal.
type Entity struct {
	ID                string       `json:"id"`
	FirmName          string       `json:"firm_name"`
	TaxNumber         string       `json:"tax_number,omitempty"`
	UserCode          string       `json:"user_code"`
	PasswordEncrypted string       `json:"-"`
	Status            EntityStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// IsActive reports whether the entity takes part in scans.
func (e *Entity) IsActive() bool {
	return e.Status == EntityStatusActive
}

// DisplayName is the label used in progress events.
func (e *Entity) DisplayName() string {
	if e.FirmName != "" {
		return e.FirmName
	}
	return e.UserCode
}

// Credential is a resolved portal login for one entity.
type Credential struct {
	UserCode string
	Password string
}
