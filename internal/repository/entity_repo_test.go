package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/narworks/muhasebe-asistani-sub000/internal/crypto"
	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

func TestEntityRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEntityRepository(db)
	ctx := context.Background()

	e := &models.Entity{FirmName: "Acme", UserCode: "111", PasswordEncrypted: "x"}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FirmName != "Acme" || got.Status != models.EntityStatusActive {
		t.Errorf("GetByID() = %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEntityRepository_ListActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEntityRepository(db)
	ctx := context.Background()

	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		if err := repo.Create(ctx, &models.Entity{FirmName: name, UserCode: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	all, _ := repo.List(ctx)
	if err := repo.SetStatus(ctx, all[1].ID, models.EntityStatusInactive); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("len(ListActive()) = %d, want 2", len(active))
	}
	if active[0].FirmName != "Alpha" || active[1].FirmName != "Charlie" {
		t.Errorf("ListActive() order = [%s, %s], want [Alpha, Charlie]", active[0].FirmName, active[1].FirmName)
	}

	n, err := repo.CountActive(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountActive() = %d, %v; want 2", n, err)
	}

	if err := repo.SetStatus(ctx, "missing", models.EntityStatusInactive); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEntityRepository_Fingerprint(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEntityRepository(db)
	ctx := context.Background()

	before, err := repo.Fingerprint(ctx)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if err := repo.Create(ctx, &models.Entity{FirmName: "A", UserCode: "a"}); err != nil {
		t.Fatal(err)
	}
	after, _ := repo.Fingerprint(ctx)
	if before == after {
		t.Errorf("Fingerprint did not change after insert: %q", after)
	}
	again, _ := repo.Fingerprint(ctx)
	if again != after {
		t.Errorf("Fingerprint changed without writes: %q -> %q", after, again)
	}
}

func TestEntityStore_ResolveCredential(t *testing.T) {
	db := setupTestDB(t)
	enc, err := crypto.NewEncryptor(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	repos := NewRepositories(db)
	store := NewEntityStore(repos.Entity, repos.Record, enc)
	ctx := context.Background()

	e, err := store.CreateEntity(ctx, "Acme", "123", "user1", "s3cret")
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	if e.PasswordEncrypted == "s3cret" {
		t.Error("password stored in plaintext")
	}

	cred, err := store.ResolveCredential(ctx, e.ID)
	if err != nil {
		t.Fatalf("ResolveCredential() error = %v", err)
	}
	if cred.UserCode != "user1" || cred.Password != "s3cret" {
		t.Errorf("ResolveCredential() = %+v", cred)
	}

	blank, err := store.CreateEntity(ctx, "Blank", "", "user2", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.ResolveCredential(ctx, blank.ID); !errors.Is(err, ErrNoCredential) {
		t.Errorf("ResolveCredential(blank) error = %v, want ErrNoCredential", err)
	}

	if err := store.UpdatePassword(ctx, blank.ID, "newpass"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	cred, err = store.ResolveCredential(ctx, blank.ID)
	if err != nil || cred.Password != "newpass" {
		t.Errorf("ResolveCredential() after update = %+v, %v", cred, err)
	}
}
