package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upBilling, downBilling)
}

func upBilling(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS billing_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			cycle TEXT NOT NULL DEFAULT 'monthly',
			due_day INTEGER,
			amount REAL,
			currency TEXT NOT NULL DEFAULT 'CNY',
			status TEXT NOT NULL DEFAULT 'active',
			remote_page_id TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			synced_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS billing_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL REFERENCES billing_items(id),
			period TEXT NOT NULL,
			amount REAL,
			due_date TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			email_message_id TEXT,
			email_subject TEXT,
			notes TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(item_id, period)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_billing_records_item ON billing_records(item_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func downBilling(tx *sql.Tx) error {
	stmts := []string{
		`DROP TABLE IF EXISTS billing_records`,
		`DROP TABLE IF EXISTS billing_items`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
