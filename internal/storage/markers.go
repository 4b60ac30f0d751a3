package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"emailmanager/internal"
	"emailmanager/internal/util"
)

const markerSubjectLimit = 200

// MarkProcessed writes the marker for one message, replacing any earlier row
// with the same id. Messages without an id cannot be deduplicated and are
// skipped.
func (d *DB) MarkProcessed(m internal.ProcessedMarker) error {
	if m.MessageID == "" {
		return nil
	}
	at := m.ProcessedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := d.conn.Exec(`
INSERT OR REPLACE INTO processed_emails
  (message_id, account, subject, processed_at, stage1_result, stage2_category, synced, marked_read)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		m.MessageID,
		m.Account,
		util.Truncate(m.Subject, markerSubjectLimit),
		at.UTC().Format(timeLayout),
		nullable(m.Stage1Result),
		nullable(m.Stage2Category),
		boolInt(m.Synced),
		boolInt(m.MarkedRead),
	)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", m.MessageID, err)
	}
	return nil
}

func (d *DB) ProcessedIDs() (map[string]struct{}, error) {
	rows, err := d.conn.Query(`SELECT message_id FROM processed_emails`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (d *DB) GetMarker(messageID string) (*internal.ProcessedMarker, error) {
	row := d.conn.QueryRow(`
SELECT message_id, account, subject, processed_at, stage1_result, stage2_category, synced, marked_read
FROM processed_emails WHERE message_id = ?`, messageID)
	m, err := scanMarker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *DB) SetMarkedRead(messageID string, read bool) error {
	_, err := d.conn.Exec(`UPDATE processed_emails SET marked_read = ? WHERE message_id = ?`, boolInt(read), messageID)
	return err
}

func (d *DB) MarkerStats() (internal.MarkerStats, error) {
	stats := internal.MarkerStats{
		ByStage1:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM processed_emails`).Scan(&stats.Total); err != nil {
		return stats, err
	}
	if err := d.countInto(stats.ByStage1, `
SELECT COALESCE(stage1_result, ''), COUNT(*) FROM processed_emails GROUP BY stage1_result`); err != nil {
		return stats, err
	}
	if err := d.countInto(stats.ByCategory, `
SELECT stage2_category, COUNT(*) FROM processed_emails
WHERE stage2_category IS NOT NULL GROUP BY stage2_category`); err != nil {
		return stats, err
	}
	return stats, nil
}

// CleanupOld deletes markers older than days and returns the count removed.
func (d *DB) CleanupOld(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)
	res, err := d.conn.Exec(`DELETE FROM processed_emails WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) ListMarkers(since time.Time) ([]internal.ProcessedMarker, error) {
	rows, err := d.conn.Query(`
SELECT message_id, account, subject, processed_at, stage1_result, stage2_category, synced, marked_read
FROM processed_emails WHERE processed_at >= ? ORDER BY processed_at DESC`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ProcessedMarker
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarker(s scanner) (internal.ProcessedMarker, error) {
	var (
		m                     internal.ProcessedMarker
		account, subject      sql.NullString
		processedAt           string
		stage1, stage2        sql.NullString
		synced, markedReadInt int
	)
	if err := s.Scan(&m.MessageID, &account, &subject, &processedAt, &stage1, &stage2, &synced, &markedReadInt); err != nil {
		return m, err
	}
	m.Account = account.String
	m.Subject = subject.String
	m.Stage1Result = stage1.String
	m.Stage2Category = stage2.String
	m.Synced = synced == 1
	m.MarkedRead = markedReadInt == 1
	if t, err := time.Parse(timeLayout, processedAt); err == nil {
		m.ProcessedAt = t
	}
	return m, nil
}

func (d *DB) countInto(dst map[string]int, query string, args ...any) error {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
