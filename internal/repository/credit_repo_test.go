package repository

import (
	"context"
	"errors"
	"testing"
)

func TestCreditRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteCreditRepository(db)
	ctx := context.Background()

	balance, err := repo.Balance(ctx)
	if err != nil || balance != 0 {
		t.Fatalf("Balance() = %d, %v; want 0", balance, err)
	}

	ok, balance, err := repo.Consume(ctx, 1, "scan")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if ok || balance != 0 {
		t.Errorf("Consume() on empty balance = %v, %d; want false, 0", ok, balance)
	}

	if balance, err = repo.Add(ctx, 2, "top-up"); err != nil || balance != 2 {
		t.Fatalf("Add() = %d, %v; want 2", balance, err)
	}

	for i, want := range []int{1, 0} {
		ok, balance, err := repo.Consume(ctx, 1, "scan")
		if err != nil || !ok || balance != want {
			t.Errorf("Consume() #%d = %v, %d, %v; want true, %d", i, ok, balance, err, want)
		}
	}

	var txCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM credit_transactions").Scan(&txCount); err != nil {
		t.Fatal(err)
	}
	if txCount != 3 {
		t.Errorf("credit_transactions rows = %d, want 3", txCount)
	}

	if _, err := repo.Add(ctx, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Add(0) error = %v, want ErrInvalidAmount", err)
	}
}
