package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
)

// CredentialWriter stores encrypted portal credentials.
type CredentialWriter interface {
	CreateEntity(ctx context.Context, firmName, taxNumber, userCode, password string) (*models.Entity, error)
	UpdatePassword(ctx context.Context, entityID, password string) error
}

// EntityHandler handles entity lifecycle and record listing. Every
// population change re-arms the schedule.
type EntityHandler struct {
	entities repository.EntityRepository
	records  repository.RecordRepository
	creds    CredentialWriter
	rearmer  Rearmer
	logger   *slog.Logger
}

// NewEntityHandler creates an entity handler. rearmer may be nil.
func NewEntityHandler(entities repository.EntityRepository, records repository.RecordRepository, creds CredentialWriter, rearmer Rearmer, logger *slog.Logger) *EntityHandler {
	return &EntityHandler{
		entities: entities,
		records:  records,
		creds:    creds,
		rearmer:  rearmer,
		logger:   logger.With("component", "entity-handler"),
	}
}

// ListEntitiesOutput lists every entity.
type ListEntitiesOutput struct {
	Body struct {
		Entities []*models.Entity `json:"entities"`
		Active   int              `json:"active"`
	}
}

// ListEntities returns all entities ordered by firm name.
func (h *EntityHandler) ListEntities(ctx context.Context, input *struct{}) (*ListEntitiesOutput, error) {
	list, err := h.entities.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list entities", err)
	}
	out := &ListEntitiesOutput{}
	out.Body.Entities = make([]*models.Entity, 0, len(list))
	for _, e := range list {
		out.Body.Entities = append(out.Body.Entities, e)
		if e.IsActive() {
			out.Body.Active++
		}
	}
	return out, nil
}

// CreateEntityInput registers a new entity.
type CreateEntityInput struct {
	Body struct {
		FirmName  string `json:"firm_name" validate:"required,max=200" doc:"Display name of the firm"`
		TaxNumber string `json:"tax_number,omitempty" validate:"omitempty,numeric,min=10,max=11" doc:"10-digit tax or 11-digit identity number"`
		UserCode  string `json:"user_code" validate:"required,max=64" doc:"Portal user code"`
		Password  string `json:"password" validate:"required" doc:"Portal password, stored encrypted"`
	}
}

// EntityOutput wraps a single entity.
type EntityOutput struct {
	Body *models.Entity
}

// CreateEntity encrypts the credential, stores the entity and re-arms.
func (h *EntityHandler) CreateEntity(ctx context.Context, input *CreateEntityInput) (*EntityOutput, error) {
	if err := validateStruct(input.Body); err != nil {
		return nil, err
	}
	e, err := h.creds.CreateEntity(ctx, input.Body.FirmName, input.Body.TaxNumber, input.Body.UserCode, input.Body.Password)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to create entity", err)
	}
	h.logger.Info("entity created", "entity_id", e.ID, "caller", caller(ctx))
	h.rearm(ctx)
	return &EntityOutput{Body: e}, nil
}

// UpdateEntityInput changes some fields of an entity.
type UpdateEntityInput struct {
	ID   string `path:"id" doc:"Entity ID"`
	Body struct {
		FirmName  *string `json:"firm_name,omitempty" validate:"omitempty,max=200"`
		TaxNumber *string `json:"tax_number,omitempty" validate:"omitempty,numeric,min=10,max=11"`
		UserCode  *string `json:"user_code,omitempty" validate:"omitempty,min=1,max=64"`
		Password  *string `json:"password,omitempty" validate:"omitempty,min=1"`
		Status    *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive" enum:"active,inactive"`
	}
}

// UpdateEntity applies a partial update and re-arms.
func (h *EntityHandler) UpdateEntity(ctx context.Context, input *UpdateEntityInput) (*EntityOutput, error) {
	if err := validateStruct(input.Body); err != nil {
		return nil, err
	}

	if input.Body.Password != nil {
		if err := h.creds.UpdatePassword(ctx, input.ID, *input.Body.Password); err != nil {
			return nil, notFoundOr(err, "entity")
		}
	}

	e, err := h.entities.GetByID(ctx, input.ID)
	if err != nil {
		return nil, notFoundOr(err, "entity")
	}
	if v := input.Body.FirmName; v != nil {
		e.FirmName = *v
	}
	if v := input.Body.TaxNumber; v != nil {
		e.TaxNumber = *v
	}
	if v := input.Body.UserCode; v != nil {
		e.UserCode = *v
	}
	if v := input.Body.Status; v != nil {
		e.Status = models.EntityStatus(*v)
	}
	if err := h.entities.Update(ctx, e); err != nil {
		return nil, notFoundOr(err, "entity")
	}

	h.logger.Info("entity updated", "entity_id", e.ID, "status", e.Status, "caller", caller(ctx))
	h.rearm(ctx)
	return &EntityOutput{Body: e}, nil
}

// EntityIDInput addresses one entity.
type EntityIDInput struct {
	ID string `path:"id" doc:"Entity ID"`
}

// DeactivateEntity removes an entity from future scans. Its records are kept.
func (h *EntityHandler) DeactivateEntity(ctx context.Context, input *EntityIDInput) (*EntityOutput, error) {
	if err := h.entities.SetStatus(ctx, input.ID, models.EntityStatusInactive); err != nil {
		return nil, notFoundOr(err, "entity")
	}
	e, err := h.entities.GetByID(ctx, input.ID)
	if err != nil {
		return nil, notFoundOr(err, "entity")
	}
	h.logger.Info("entity deactivated", "entity_id", e.ID, "caller", caller(ctx))
	h.rearm(ctx)
	return &EntityOutput{Body: e}, nil
}

// ListRecordsInput selects the records of one entity.
type ListRecordsInput struct {
	ID    string `path:"id" doc:"Entity ID"`
	Limit int    `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Maximum records to return"`
}

// ListRecordsOutput lists records newest first.
type ListRecordsOutput struct {
	Body struct {
		Records []*models.Record `json:"records"`
		Total   int              `json:"total"`
	}
}

// ListRecords returns the extracted records of an entity.
func (h *EntityHandler) ListRecords(ctx context.Context, input *ListRecordsInput) (*ListRecordsOutput, error) {
	if _, err := h.entities.GetByID(ctx, input.ID); err != nil {
		return nil, notFoundOr(err, "entity")
	}
	recs, err := h.records.ListByEntity(ctx, input.ID, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list records", err)
	}
	total, err := h.records.CountByEntity(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count records", err)
	}
	out := &ListRecordsOutput{}
	out.Body.Records = recs
	if out.Body.Records == nil {
		out.Body.Records = []*models.Record{}
	}
	out.Body.Total = total
	return out, nil
}

// rearm failures are logged only; the population watcher retries.
func (h *EntityHandler) rearm(ctx context.Context) {
	if h.rearmer == nil {
		return
	}
	if _, err := h.rearmer.Rearm(ctx); err != nil {
		h.logger.Error("failed to re-arm schedule", "error", err)
	}
}
