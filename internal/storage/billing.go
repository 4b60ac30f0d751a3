package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"emailmanager/internal"
)

const (
	RecordPending = "pending"
	RecordPaid    = "paid"
)

type ItemInput struct {
	Description string
	Cycle       string
	DueDay      *int
	Amount      *float64
	Currency    string
}

type RecordInput struct {
	Period         string
	Amount         *float64
	DueDate        *string
	Status         string
	EmailMessageID *string
	EmailSubject   *string
	Notes          *string
}

// GetOrCreateBillingItem looks the item up by exact name and inserts it when
// missing. Existing items are never modified here.
func (d *DB) GetOrCreateBillingItem(name, itemType string, in ItemInput) (int64, bool, error) {
	var id int64
	err := d.conn.QueryRow(`SELECT id FROM billing_items WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	cycle := in.Cycle
	if cycle == "" {
		cycle = "monthly"
	}
	currency := in.Currency
	if currency == "" {
		currency = "CNY"
	}
	res, err := d.conn.Exec(`
INSERT INTO billing_items (name, type, description, cycle, due_day, amount, currency, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, name, itemType, in.Description, cycle, in.DueDay, in.Amount, currency, now(), now())
	if err != nil {
		return 0, false, fmt.Errorf("insert billing item %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	return id, true, err
}

func (d *DB) GetBillingItemByName(name string) (*internal.BillingItemRow, error) {
	row := d.conn.QueryRow(`
SELECT id, name, type, description, cycle, due_day, amount, currency, status, remote_page_id, created_at, updated_at, synced_at
FROM billing_items WHERE name = ?`, name)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (d *DB) ActiveBillingItems() ([]internal.BillingItemRow, error) {
	rows, err := d.conn.Query(`
SELECT id, name, type, description, cycle, due_day, amount, currency, status, remote_page_id, created_at, updated_at, synced_at
FROM billing_items WHERE status = 'active' ORDER BY type, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BillingItemRow
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (d *DB) UpdateBillingItemRemoteID(itemID int64, pageID string) error {
	_, err := d.conn.Exec(`UPDATE billing_items SET remote_page_id = ?, synced_at = ? WHERE id = ?`, pageID, now(), itemID)
	return err
}

// AddOrUpdateBillingRecord upserts the (item, period) record. An existing row
// is only rewritten when amount, due date or status actually differ.
func (d *DB) AddOrUpdateBillingRecord(itemID int64, in RecordInput) (id int64, isNew bool, hasChanges bool, err error) {
	status := in.Status
	if status == "" {
		status = RecordPending
	}

	var (
		existingID     int64
		existingAmount sql.NullFloat64
		existingDue    sql.NullString
		existingStatus string
	)
	err = d.conn.QueryRow(`
SELECT id, amount, due_date, status FROM billing_records WHERE item_id = ? AND period = ?`, itemID, in.Period).
		Scan(&existingID, &existingAmount, &existingDue, &existingStatus)

	if errors.Is(err, sql.ErrNoRows) {
		res, err := d.conn.Exec(`
INSERT INTO billing_records (item_id, period, amount, due_date, status, email_message_id, email_subject, notes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, itemID, in.Period, in.Amount, in.DueDate, status, in.EmailMessageID, in.EmailSubject, in.Notes, now(), now())
		if err != nil {
			return 0, false, false, fmt.Errorf("insert billing record: %w", err)
		}
		id, err := res.LastInsertId()
		return id, true, true, err
	}
	if err != nil {
		return 0, false, false, err
	}

	if in.Amount != nil && (!existingAmount.Valid || existingAmount.Float64 != *in.Amount) {
		hasChanges = true
	}
	if in.DueDate != nil && (!existingDue.Valid || existingDue.String != *in.DueDate) {
		hasChanges = true
	}
	if existingStatus != status {
		hasChanges = true
	}
	if !hasChanges {
		return existingID, false, false, nil
	}

	_, err = d.conn.Exec(`
UPDATE billing_records
SET amount = COALESCE(?, amount),
    due_date = COALESCE(?, due_date),
    status = COALESCE(?, status),
    email_message_id = COALESCE(?, email_message_id),
    notes = COALESCE(?, notes),
    updated_at = ?
WHERE id = ?
`, in.Amount, in.DueDate, status, in.EmailMessageID, in.Notes, now(), existingID)
	if err != nil {
		return existingID, false, true, fmt.Errorf("update billing record: %w", err)
	}
	return existingID, false, true, nil
}

func (d *DB) BillingRecordsForItem(itemID int64, limit int) ([]internal.BillingRecordRow, error) {
	if limit <= 0 {
		limit = 12
	}
	return d.queryRecords(`
SELECT r.id, r.item_id, i.name, i.type, r.period, r.amount, r.due_date, r.status,
       r.email_message_id, r.email_subject, r.notes, r.created_at, r.updated_at
FROM billing_records r JOIN billing_items i ON r.item_id = i.id
WHERE r.item_id = ? ORDER BY r.period DESC LIMIT ?`, itemID, limit)
}

func (d *DB) PendingBillingRecords() ([]internal.BillingRecordRow, error) {
	return d.queryRecords(`
SELECT r.id, r.item_id, i.name, i.type, r.period, r.amount, r.due_date, r.status,
       r.email_message_id, r.email_subject, r.notes, r.created_at, r.updated_at
FROM billing_records r JOIN billing_items i ON r.item_id = i.id
WHERE r.status = 'pending' ORDER BY r.due_date`)
}

func (d *DB) MarkBillingRecordPaid(recordID int64) error {
	_, err := d.conn.Exec(`UPDATE billing_records SET status = 'paid', updated_at = ? WHERE id = ?`, now(), recordID)
	return err
}

func (d *DB) BillingSummary() (internal.BillingSummary, error) {
	summary := internal.BillingSummary{ByType: make(map[string]int)}
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM billing_items WHERE status = 'active'`).Scan(&summary.TotalItems); err != nil {
		return summary, err
	}
	if err := d.countInto(summary.ByType, `
SELECT type, COUNT(*) FROM billing_items WHERE status = 'active' GROUP BY type`); err != nil {
		return summary, err
	}
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM billing_records WHERE status = 'pending'`).Scan(&summary.PendingRecords); err != nil {
		return summary, err
	}
	return summary, nil
}

func (d *DB) queryRecords(query string, args ...any) ([]internal.BillingRecordRow, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BillingRecordRow
	for rows.Next() {
		var r internal.BillingRecordRow
		if err := rows.Scan(
			&r.ID,
			&r.ItemID,
			&r.ItemName,
			&r.ItemType,
			&r.Period,
			&r.Amount,
			&r.DueDate,
			&r.Status,
			&r.EmailMessageID,
			&r.EmailSubject,
			&r.Notes,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanItem(s scanner) (internal.BillingItemRow, error) {
	var item internal.BillingItemRow
	var dueDay sql.NullInt64
	err := s.Scan(
		&item.ID,
		&item.Name,
		&item.Type,
		&item.Description,
		&item.Cycle,
		&dueDay,
		&item.Amount,
		&item.Currency,
		&item.Status,
		&item.RemotePageID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.SyncedAt,
	)
	if dueDay.Valid {
		v := int(dueDay.Int64)
		item.DueDay = &v
	}
	return item, err
}
