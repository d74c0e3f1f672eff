package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/orchestrator"
	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
)

// ScanController is the orchestrator surface used by the scan handlers.
type ScanController interface {
	Start(ctx context.Context, req orchestrator.Request) orchestrator.StartResult
	Cancel() bool
	State() models.ScanSnapshot
}

// ScanHistory lists finished and running scans.
type ScanHistory interface {
	Recent(ctx context.Context, limit int) ([]*repository.ScanRun, error)
}

// ScanHandler handles scan control endpoints.
type ScanHandler struct {
	scans   ScanController
	history ScanHistory
	logger  *slog.Logger
}

// NewScanHandler creates a scan handler.
func NewScanHandler(scans ScanController, history ScanHistory, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{scans: scans, history: history, logger: logger.With("component", "scan-handler")}
}

// ScanStartOutput wraps the informational start result. A refused start is
// still a 200 with started=false.
type ScanStartOutput struct {
	Body orchestrator.StartResult
}

// StartScan begins a fresh scan.
func (h *ScanHandler) StartScan(ctx context.Context, input *struct{}) (*ScanStartOutput, error) {
	return h.start(ctx, false), nil
}

// ResumeScan continues the last interrupted scan.
func (h *ScanHandler) ResumeScan(ctx context.Context, input *struct{}) (*ScanStartOutput, error) {
	return h.start(ctx, true), nil
}

func (h *ScanHandler) start(ctx context.Context, resume bool) *ScanStartOutput {
	res := h.scans.Start(ctx, orchestrator.Request{Resume: resume, Trigger: orchestrator.TriggerManual})
	h.logger.Info("scan start requested",
		"resume", resume,
		"started", res.Started,
		"message", res.Message,
		"caller", caller(ctx),
	)
	return &ScanStartOutput{Body: res}
}

// ScanCancelOutput reports whether a running scan was signalled.
type ScanCancelOutput struct {
	Body struct {
		Cancelled bool   `json:"cancelled"`
		Message   string `json:"message"`
	}
}

// CancelScan requests the running scan to stop after the current entity step.
func (h *ScanHandler) CancelScan(ctx context.Context, input *struct{}) (*ScanCancelOutput, error) {
	out := &ScanCancelOutput{}
	out.Body.Cancelled = h.scans.Cancel()
	if out.Body.Cancelled {
		out.Body.Message = "Cancellation requested"
	} else {
		out.Body.Message = "No scan is running"
	}
	h.logger.Info("scan cancel requested", "cancelled", out.Body.Cancelled, "caller", caller(ctx))
	return out, nil
}

// ScanStateOutput wraps the current snapshot.
type ScanStateOutput struct {
	Body models.ScanSnapshot
}

// GetScanState returns the current or last scan snapshot.
func (h *ScanHandler) GetScanState(ctx context.Context, input *struct{}) (*ScanStateOutput, error) {
	return &ScanStateOutput{Body: h.scans.State()}, nil
}

// ScanRunResponse is one history row.
type ScanRunResponse struct {
	ID                  string           `json:"id"`
	State               models.ScanState `json:"state"`
	Trigger             string           `json:"trigger"`
	Resumed             bool             `json:"resumed"`
	Total               int              `json:"total"`
	Processed           int              `json:"processed"`
	SuccessCount        int              `json:"success_count"`
	ErrorCount          int              `json:"error_count"`
	InsufficientCredits bool             `json:"insufficient_credits"`
	Summary             string           `json:"summary,omitempty"`
	LastError           string           `json:"last_error,omitempty"`
	StartedAt           time.Time        `json:"started_at"`
	FinishedAt          *time.Time       `json:"finished_at,omitempty"`
}

// ScanHistoryInput selects how many runs to return.
type ScanHistoryInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"200" default:"20" doc:"Maximum runs to return"`
}

// ScanHistoryOutput lists recent runs, newest first.
type ScanHistoryOutput struct {
	Body struct {
		Runs []ScanRunResponse `json:"runs"`
	}
}

// ListScanHistory returns recent scan runs.
func (h *ScanHandler) ListScanHistory(ctx context.Context, input *ScanHistoryInput) (*ScanHistoryOutput, error) {
	runs, err := h.history.Recent(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load scan history", err)
	}
	out := &ScanHistoryOutput{}
	out.Body.Runs = make([]ScanRunResponse, 0, len(runs))
	for _, r := range runs {
		out.Body.Runs = append(out.Body.Runs, ScanRunResponse{
			ID:                  r.ID,
			State:               r.State,
			Trigger:             r.Trigger,
			Resumed:             r.Resumed,
			Total:               r.Total,
			Processed:           r.Processed,
			SuccessCount:        r.SuccessCount,
			ErrorCount:          r.ErrorCount,
			InsufficientCredits: r.InsufficientCredits,
			Summary:             r.Summary,
			LastError:           r.LastError,
			StartedAt:           r.StartedAt,
			FinishedAt:          r.FinishedAt,
		})
	}
	return out, nil
}
