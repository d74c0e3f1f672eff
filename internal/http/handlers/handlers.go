// Package handlers contains HTTP handlers for the control surface.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"

	"github.com/narworks/muhasebe-asistani-sub000/internal/http/mw"
	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
	"github.com/narworks/muhasebe-asistani-sub000/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status    string           `json:"status"`
		Version   string           `json:"version"`
		ScanState models.ScanState `json:"scan_state,omitempty"`
	}
}

// StateReader reports the current scan state.
type StateReader interface {
	State() models.ScanSnapshot
}

// NewHealthCheck returns the health handler. scans may be nil.
func NewHealthCheck(scans StateReader) func(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	return func(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
		out := &HealthCheckOutput{}
		out.Body.Status = "healthy"
		out.Body.Version = version.Get().Version
		if scans != nil {
			out.Body.ScanState = scans.State().State
		}
		return out, nil
	}
}

// LivezOutput represents liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports that the process is up.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// DBPinger checks database connectivity.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// ReadyzHandler reports readiness based on the database.
type ReadyzHandler struct {
	db DBPinger
}

// NewReadyzHandler creates a readiness handler.
func NewReadyzHandler(db DBPinger) *ReadyzHandler {
	return &ReadyzHandler{db: db}
}

// ReadyzOutput represents readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Readyz returns 503 when the database cannot be reached.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("database not configured")
	}
	if err := h.db.PingContext(ctx); err != nil {
		return nil, huma.Error503ServiceUnavailable("database unavailable")
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ready"
	return out, nil
}

// Rearmer recomputes the schedule after a population change.
type Rearmer interface {
	Rearm(ctx context.Context) (models.ScheduleStatus, error)
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs validator tags and converts failures to a 422.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		details := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, &huma.ErrorDetail{
				Message:  fmt.Sprintf("failed on '%s'", fe.Tag()),
				Location: "body." + fe.Field(),
				Value:    fe.Value(),
			})
		}
		return huma.Error422UnprocessableEntity("validation failed", details...)
	}
	return huma.Error422UnprocessableEntity("validation failed")
}

// notFoundOr maps repository.ErrNotFound to a 404 and anything else to a 500.
func notFoundOr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return huma.Error404NotFound(what + " not found")
	}
	return huma.Error500InternalServerError("failed to load "+what, err)
}

// caller names the authenticated caller for audit logs.
func caller(ctx context.Context) string {
	if claims := mw.GetClaims(ctx); claims != nil {
		return claims.Source + ":" + claims.Subject
	}
	return ""
}
