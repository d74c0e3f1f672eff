// Package routes provides shared route registration for the control surface.
// Both the server and the OpenAPI generator use the same route definitions.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/http/mw"
	"github.com/narworks/muhasebe-asistani-sub000/internal/version"
)

// NewHumaConfig creates the shared Huma configuration.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Portalscan API", version.Get().Version)
	cfg.Info.Description = "Control surface for bulk portal scans and the backward scan scheduler."

	// Disable $schema field in responses.
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description: "HS256 bearer token (`portalscan token`), or the X-Portalscan-Client, " +
				"X-Portalscan-Timestamp and X-Portalscan-Signature headers signed with API_SECRET.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Scan", Description: "Start, resume, cancel and observe scans"},
		{Name: "Schedule", Description: "Recurring scan schedule"},
		{Name: "Entities", Description: "Scanned entities and their records"},
		{Name: "Credits", Description: "Scan credit balance"},
		{Name: "Health", Description: "System health and status"},
	}

	return cfg
}
