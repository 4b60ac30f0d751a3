package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upState, downState)
}

func upState(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_emails (
			message_id TEXT PRIMARY KEY,
			account TEXT,
			subject TEXT,
			processed_at TEXT NOT NULL,
			stage1_result TEXT,
			stage2_category TEXT,
			synced INTEGER NOT NULL DEFAULT 0,
			marked_read INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_emails(processed_at)`,

		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func downState(tx *sql.Tx) error {
	stmts := []string{
		`DROP TABLE IF EXISTS metadata`,
		`DROP TABLE IF EXISTS processed_emails`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
