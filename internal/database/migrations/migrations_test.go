package migrations

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun(t *testing.T) {
	db := openMemory(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, table := range []string{"entities", "records", "settings", "credit_balance", "credit_transactions", "scan_runs"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	pending, err := Pending(db)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(Pending()) = %d, want 0", len(pending))
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openMemory(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := Run(db, nil); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if count != len(registry) {
		t.Errorf("applied = %d, want %d", count, len(registry))
	}
}

func TestSortedOrder(t *testing.T) {
	s := sorted()
	for i := 1; i < len(s); i++ {
		if s[i-1].Timestamp >= s[i].Timestamp {
			t.Errorf("migrations out of order: %s before %s", s[i-1].Timestamp, s[i].Timestamp)
		}
	}
}
