package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/scheduler"
)

// ScheduleController is the scheduler surface used by the schedule handlers.
type ScheduleController interface {
	Configure(ctx context.Context, req scheduler.ConfigureRequest) (models.ScheduleStatus, error)
	Status() models.ScheduleStatus
}

// ScheduleHandler handles the schedule endpoints.
type ScheduleHandler struct {
	schedule ScheduleController
	logger   *slog.Logger
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(schedule ScheduleController, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule, logger: logger.With("component", "schedule-handler")}
}

// ScheduleOutput wraps the schedule status.
type ScheduleOutput struct {
	Body models.ScheduleStatus
}

// GetSchedule returns the persisted schedule and the live trigger state.
func (h *ScheduleHandler) GetSchedule(ctx context.Context, input *struct{}) (*ScheduleOutput, error) {
	return &ScheduleOutput{Body: h.schedule.Status()}, nil
}

// SetScheduleInput is the schedule update.
type SetScheduleInput struct {
	Body struct {
		Enabled    bool   `json:"enabled" doc:"Whether the recurring scan is armed"`
		FinishBy   string `json:"finish_by" example:"08:00" doc:"Time of day (HH:MM) the scan should finish by"`
		Frequency  string `json:"frequency" enum:"daily,weekdays,weekends,custom" doc:"Days the scan should finish on"`
		CustomDays []int  `json:"custom_days,omitempty" doc:"Weekdays (0=Sunday) for the custom frequency"`
	}
}

// SetSchedule validates and applies a schedule.
func (h *ScheduleHandler) SetSchedule(ctx context.Context, input *SetScheduleInput) (*ScheduleOutput, error) {
	req := scheduler.ConfigureRequest{
		Enabled:    input.Body.Enabled,
		FinishBy:   input.Body.FinishBy,
		Frequency:  models.Frequency(input.Body.Frequency),
		CustomDays: input.Body.CustomDays,
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	status, err := h.schedule.Configure(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrInvalidClock),
			errors.Is(err, scheduler.ErrInvalidFrequency),
			errors.Is(err, scheduler.ErrNoDays),
			errors.Is(err, scheduler.ErrNoSlot):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		h.logger.Error("failed to configure schedule", "error", err)
		return nil, huma.Error500InternalServerError("failed to configure schedule", err)
	}

	h.logger.Info("schedule updated",
		"enabled", status.Enabled,
		"finish_by", status.FinishBy,
		"frequency", status.Frequency,
		"armed", status.Armed,
		"caller", caller(ctx),
	)
	return &ScheduleOutput{Body: status}, nil
}
