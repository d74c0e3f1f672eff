package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260302-000000",
		Description: "Scan run history",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS scan_runs (
				id TEXT PRIMARY KEY,
				state TEXT NOT NULL,
				resumed INTEGER NOT NULL DEFAULT 0,
				trigger_source TEXT NOT NULL DEFAULT 'manual',
				total INTEGER NOT NULL DEFAULT 0,
				processed INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				insufficient_credits INTEGER NOT NULL DEFAULT 0,
				summary TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				started_at TEXT NOT NULL,
				finished_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at)`,
		},
	})
}
