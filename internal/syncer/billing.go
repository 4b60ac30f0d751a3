package syncer

import (
	"context"
	"strings"
	"time"

	"emailmanager/internal"
	"emailmanager/internal/billing"
	"emailmanager/internal/notion"
	"emailmanager/internal/storage"
	"emailmanager/internal/util"
)

type BillingStats struct {
	NewItems       int
	UpdatedRecords int
	Synced         int
	Failed         int
}

// SyncBilling stores each parsed entry locally and then upserts it remotely
// keyed on name and period. Periodless entries still get a remote row.
// msgs is the batch the entries' SourceEmails indexes point into.
func (s *Syncer) SyncBilling(ctx context.Context, entries []internal.BillingEntry, msgs []*internal.Message) BillingStats {
	var st BillingStats
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}

		itemID, created, err := s.store.GetOrCreateBillingItem(name, e.Type, storage.ItemInput{
			Amount:   e.Amount,
			Currency: e.Currency,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("name", name).Msg("store billing item")
			st.Failed++
			continue
		}
		if created {
			st.NewItems++
		}

		if e.Period != "" {
			rec := storage.RecordInput{
				Period: e.Period,
				Amount: e.Amount,
				Status: e.Status,
			}
			if e.DueDate != "" {
				rec.DueDate = util.StringPtr(e.DueDate)
			}
			if e.Notes != "" {
				rec.Notes = util.StringPtr(e.Notes)
			}
			if src := sourceMessage(e, msgs); src != nil {
				rec.EmailMessageID = util.StringPtr(src.MessageID)
				rec.EmailSubject = util.StringPtr(src.Subject)
			}
			_, isNew, changed, err := s.store.AddOrUpdateBillingRecord(itemID, rec)
			if err != nil {
				s.log.Warn().Err(err).Str("name", name).Str("period", e.Period).Msg("store billing record")
			} else if isNew || changed {
				st.UpdatedRecords++
			}
		}

		if pageID, ok := s.syncBillingRemote(ctx, e); ok {
			st.Synced++
			if err := s.store.UpdateBillingItemRemoteID(itemID, pageID); err != nil {
				s.log.Warn().Err(err).Int64("item_id", itemID).Msg("store remote page id")
			}
		} else {
			st.Failed++
		}
	}
	return st
}

func sourceMessage(e internal.BillingEntry, msgs []*internal.Message) *internal.Message {
	for _, idx := range e.SourceEmails {
		if idx >= 1 && idx <= len(msgs) {
			return msgs[idx-1]
		}
	}
	return nil
}

func billingStatusLabel(status string) string {
	if status == storage.RecordPaid {
		return "已还款"
	}
	return "待还款"
}

func (s *Syncer) syncBillingRemote(ctx context.Context, e internal.BillingEntry) (string, bool) {
	start := time.Now()
	dbID, ok := s.database(ctx, notion.Billing)
	if !ok {
		s.observe(notion.Billing, start, false)
		return "", false
	}

	pageID, ok := s.findPage(ctx, notion.Billing, dbID, notion.And(
		notion.Equals(notion.PropName, "title", e.Name),
		notion.Equals(notion.PropPeriod, "rich_text", e.Period),
	))
	if !ok {
		s.observe(notion.Billing, start, false)
		return "", false
	}

	props := map[string]any{
		notion.PropName:     notion.Title(e.Name),
		notion.PropBillType: notion.Select(billing.TypeName(e.Type)),
		notion.PropPeriod:   notion.RichText(e.Period),
		notion.PropStatus:   notion.Select(billingStatusLabel(e.Status)),
	}
	if e.Amount != nil && *e.Amount != 0 {
		props[notion.PropAmount] = notion.Number(*e.Amount)
	}
	if day, ok := ParseDate(e.DueDate); ok {
		props[notion.PropDueDate] = notion.Date(day)
	}
	if e.Notes != "" {
		props[notion.PropNotes] = notion.RichText(util.Truncate(e.Notes, notesLimit))
	}

	res := s.upsert(ctx, notion.Billing, dbID, pageID, props, props)
	s.observe(notion.Billing, start, res.OK())
	s.log.Info().
		Bool("ok", res.OK()).
		Bool("update", pageID != "").
		Str("name", e.Name).
		Str("period", e.Period).
		Msg("billing synced")
	return res.ID(), res.OK()
}
