// Package export writes the local marker and billing tables to xlsx.
package export

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"emailmanager/internal"
	"emailmanager/internal/billing"
	"emailmanager/internal/util"
)

const (
	SheetMarkers = "processed"
	SheetItems   = "items"
	SheetRecords = "records"
)

var markerHeaders = []string{
	"message_id", "account", "subject", "processed_at",
	"stage1_result", "stage2_category", "synced", "marked_read",
}

var itemHeaders = []string{
	"id", "name", "type", "type_name", "cycle", "due_day", "amount", "currency", "status", "remote_page_id", "updated_at",
}

var recordHeaders = []string{
	"id", "item", "type", "period", "amount", "due_date", "status", "email_subject", "notes", "updated_at",
}

// WriteMarkers saves one row per processed message.
func WriteMarkers(rows []internal.ProcessedMarker, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, SheetMarkers); err != nil {
		return err
	}

	w := sheetWriter{f: f, sheet: SheetMarkers}
	w.header(markerHeaders)
	for i, m := range rows {
		w.row(i+2,
			m.MessageID,
			m.Account,
			m.Subject,
			m.ProcessedAt.Format("2006-01-02 15:04:05"),
			m.Stage1Result,
			m.Stage2Category,
			m.Synced,
			m.MarkedRead,
		)
	}
	return save(f, outputPath)
}

// WriteBilling saves items and their records on two sheets.
func WriteBilling(items []internal.BillingItemRow, records []internal.BillingRecordRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetItems); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetRecords); err != nil {
		return err
	}

	w := sheetWriter{f: f, sheet: SheetItems}
	w.header(itemHeaders)
	for i, it := range items {
		w.row(i+2,
			it.ID,
			it.Name,
			it.Type,
			billing.TypeName(it.Type),
			it.Cycle,
			derefInt(it.DueDay),
			derefFloat(it.Amount),
			it.Currency,
			it.Status,
			util.DerefString(it.RemotePageID),
			it.UpdatedAt,
		)
	}

	w = sheetWriter{f: f, sheet: SheetRecords}
	w.header(recordHeaders)
	for i, r := range records {
		w.row(i+2,
			r.ID,
			r.ItemName,
			billing.TypeName(r.ItemType),
			r.Period,
			derefFloat(r.Amount),
			util.DerefString(r.DueDate),
			r.Status,
			util.DerefString(r.EmailSubject),
			util.DerefString(r.Notes),
			r.UpdatedAt,
		)
	}
	return save(f, outputPath)
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
}

func (w sheetWriter) header(cols []string) {
	values := make([]any, len(cols))
	for i, c := range cols {
		values[i] = c
	}
	w.row(1, values...)
}

func (w sheetWriter) row(r int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, r)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
}

func save(f *excelize.File, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
