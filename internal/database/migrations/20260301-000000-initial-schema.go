package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "Initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS entities (
				id TEXT PRIMARY KEY,
				firm_name TEXT NOT NULL,
				tax_number TEXT NOT NULL DEFAULT '',
				user_code TEXT NOT NULL UNIQUE,
				password_encrypted TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(status)`,

			// One row per extracted notification; the unique index is the natural key
			// that makes persistence idempotent.
			`CREATE TABLE IF NOT EXISTS records (
				id TEXT PRIMARY KEY,
				entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
				record_date TEXT NOT NULL,
				sender TEXT NOT NULL,
				subject TEXT NOT NULL,
				status TEXT NOT NULL,
				document_no TEXT NOT NULL DEFAULT '',
				document_url TEXT NOT NULL DEFAULT '',
				document_path TEXT NOT NULL DEFAULT '',
				document_pages INTEGER NOT NULL DEFAULT 0,
				scanned_at TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_records_natural_key
				ON records(entity_id, record_date, sender, subject, status)`,
			`CREATE INDEX IF NOT EXISTS idx_records_entity_scanned ON records(entity_id, scanned_at)`,

			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS credit_balance (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				balance INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS credit_transactions (
				id TEXT PRIMARY KEY,
				delta INTEGER NOT NULL,
				balance_after INTEGER NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_tx_created ON credit_transactions(created_at)`,
		},
	})
}
