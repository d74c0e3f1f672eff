package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
)

type countingRearmer struct{ calls int }

func (c *countingRearmer) Rearm(ctx context.Context) (models.ScheduleStatus, error) {
	c.calls++
	return models.ScheduleStatus{}, nil
}

type entityFixture struct {
	h       *EntityHandler
	repos   *repository.Repositories
	store   *repository.EntityStore
	rearmer *countingRearmer
}

func newEntityFixture(t *testing.T) *entityFixture {
	t.Helper()
	repos := repository.NewRepositories(setupTestDB(t))
	store := repository.NewEntityStore(repos.Entity, repos.Record, testEncryptor(t))
	rearmer := &countingRearmer{}
	return &entityFixture{
		h:       NewEntityHandler(repos.Entity, repos.Record, store, rearmer, testLogger()),
		repos:   repos,
		store:   store,
		rearmer: rearmer,
	}
}

func createInput(firm, taxNo, user, password string) *CreateEntityInput {
	in := &CreateEntityInput{}
	in.Body.FirmName = firm
	in.Body.TaxNumber = taxNo
	in.Body.UserCode = user
	in.Body.Password = password
	return in
}

func strPtr(s string) *string { return &s }

func TestEntityHandler_CreateAndList(t *testing.T) {
	f := newEntityFixture(t)
	ctx := context.Background()

	out, err := f.h.CreateEntity(ctx, createInput("Acme Ltd", "1234567890", "u-acme", "s3cret"))
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	if out.Body.ID == "" || out.Body.Status != models.EntityStatusActive {
		t.Errorf("entity = %+v", out.Body)
	}
	if f.rearmer.calls != 1 {
		t.Errorf("rearm calls = %d, want 1", f.rearmer.calls)
	}

	cred, err := f.store.ResolveCredential(ctx, out.Body.ID)
	if err != nil {
		t.Fatalf("ResolveCredential() error = %v", err)
	}
	if cred.Password != "s3cret" {
		t.Errorf("password = %q, want %q", cred.Password, "s3cret")
	}

	list, err := f.h.ListEntities(ctx, nil)
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if len(list.Body.Entities) != 1 || list.Body.Active != 1 {
		t.Errorf("list = %+v", list.Body)
	}
}

func TestEntityHandler_CreateValidation(t *testing.T) {
	f := newEntityFixture(t)

	_, err := f.h.CreateEntity(context.Background(), createInput("Acme", "12ab", "u", "p"))
	if got := statusOf(t, err); got != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", got, http.StatusUnprocessableEntity)
	}
	if f.rearmer.calls != 0 {
		t.Errorf("rearm calls = %d, want 0", f.rearmer.calls)
	}
}

func TestEntityHandler_UpdateAndDeactivate(t *testing.T) {
	f := newEntityFixture(t)
	ctx := context.Background()

	created, err := f.h.CreateEntity(ctx, createInput("Acme", "", "u-acme", "old"))
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	id := created.Body.ID

	upd := &UpdateEntityInput{ID: id}
	upd.Body.FirmName = strPtr("Acme Holding")
	upd.Body.Password = strPtr("new")
	out, err := f.h.UpdateEntity(ctx, upd)
	if err != nil {
		t.Fatalf("UpdateEntity() error = %v", err)
	}
	if out.Body.FirmName != "Acme Holding" {
		t.Errorf("FirmName = %q", out.Body.FirmName)
	}
	cred, err := f.store.ResolveCredential(ctx, id)
	if err != nil {
		t.Fatalf("ResolveCredential() error = %v", err)
	}
	if cred.Password != "new" {
		t.Errorf("password = %q, want %q", cred.Password, "new")
	}

	del, err := f.h.DeactivateEntity(ctx, &EntityIDInput{ID: id})
	if err != nil {
		t.Fatalf("DeactivateEntity() error = %v", err)
	}
	if del.Body.Status != models.EntityStatusInactive {
		t.Errorf("Status = %q, want inactive", del.Body.Status)
	}
	n, _ := f.repos.Entity.CountActive(ctx)
	if n != 0 {
		t.Errorf("CountActive() = %d, want 0", n)
	}
	if f.rearmer.calls != 3 {
		t.Errorf("rearm calls = %d, want 3", f.rearmer.calls)
	}
}

func TestEntityHandler_NotFound(t *testing.T) {
	f := newEntityFixture(t)
	ctx := context.Background()

	upd := &UpdateEntityInput{ID: "missing"}
	upd.Body.FirmName = strPtr("x")
	if _, err := f.h.UpdateEntity(ctx, upd); statusOf(t, err) != http.StatusNotFound {
		t.Errorf("UpdateEntity() error = %v, want 404", err)
	}
	if _, err := f.h.DeactivateEntity(ctx, &EntityIDInput{ID: "missing"}); statusOf(t, err) != http.StatusNotFound {
		t.Errorf("DeactivateEntity() error = %v, want 404", err)
	}
	if _, err := f.h.ListRecords(ctx, &ListRecordsInput{ID: "missing", Limit: 10}); statusOf(t, err) != http.StatusNotFound {
		t.Errorf("ListRecords() error = %v, want 404", err)
	}
	if f.rearmer.calls != 0 {
		t.Errorf("rearm calls = %d, want 0", f.rearmer.calls)
	}
}

func TestEntityHandler_ListRecords(t *testing.T) {
	f := newEntityFixture(t)
	ctx := context.Background()

	created, err := f.h.CreateEntity(ctx, createInput("Acme", "", "u-acme", "pw"))
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	id := created.Body.ID

	empty, err := f.h.ListRecords(ctx, &ListRecordsInput{ID: id, Limit: 10})
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if empty.Body.Records == nil || len(empty.Body.Records) != 0 {
		t.Errorf("records = %v, want empty non-nil slice", empty.Body.Records)
	}

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if _, err := f.store.PersistRecords(ctx, id, []models.Record{models.NoResultsRecord(id, day)}); err != nil {
		t.Fatalf("PersistRecords() error = %v", err)
	}

	out, err := f.h.ListRecords(ctx, &ListRecordsInput{ID: id, Limit: 10})
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if out.Body.Total != 1 || len(out.Body.Records) != 1 || !out.Body.Records[0].IsNoResults() {
		t.Errorf("records = %+v, total = %d", out.Body.Records, out.Body.Total)
	}
}
