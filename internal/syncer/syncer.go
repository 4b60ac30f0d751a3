// Package syncer pushes reconciled mail into the Notion databases and records
// the local processed marker.
package syncer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"emailmanager/internal"
	"emailmanager/internal/notion"
	"emailmanager/internal/reconcile"
	"emailmanager/internal/storage"
	"emailmanager/internal/util"
)

const (
	titleLimit   = 100
	titleKeyLen  = 50
	notesLimit   = 500
	venueLimit   = 100
	subjectLimit = 100
	fromLimit    = 100
	summaryLimit = 20
	summaryVenue = 50
)

// Recorder receives one observation per remote call.
type Recorder interface {
	ObserveRemote(database string, d time.Duration, ok bool)
}

type Syncer struct {
	dbs   *notion.Databases
	store *storage.DB
	rec   Recorder
	log   zerolog.Logger
}

func New(dbs *notion.Databases, store *storage.DB, log zerolog.Logger) *Syncer {
	return &Syncer{
		dbs:   dbs,
		store: store,
		log:   log.With().Str("component", "syncer").Logger(),
	}
}

// WithRecorder returns a copy that reports to rec, typically a per-run
// metrics context.
func (s *Syncer) WithRecorder(rec Recorder) *Syncer {
	cp := *s
	cp.rec = rec
	return &cp
}

func (s *Syncer) client() *notion.Client {
	return s.dbs.Client()
}

func (s *Syncer) observe(kind notion.DatabaseKind, start time.Time, ok bool) {
	if s.rec != nil {
		s.rec.ObserveRemote(string(kind), time.Since(start), ok)
	}
}

func (s *Syncer) database(ctx context.Context, kind notion.DatabaseKind) (string, bool) {
	id, err := s.dbs.ID(ctx, kind)
	if err != nil {
		s.log.Warn().Err(err).Str("database", string(kind)).Msg("resolve database")
		return "", false
	}
	return id, true
}

// forgetIfMissing drops a stale cached database id so the next call searches
// again.
func (s *Syncer) forgetIfMissing(kind notion.DatabaseKind, res notion.Result) {
	if res.Status == http.StatusNotFound {
		s.dbs.Forget(kind)
	}
}

// findPage returns the first page matching filter. ok is false when the
// query itself failed, in which case callers must not create a duplicate.
func (s *Syncer) findPage(ctx context.Context, kind notion.DatabaseKind, dbID string, filter map[string]any) (pageID string, ok bool) {
	res := s.client().QueryDatabase(ctx, dbID, filter)
	if res.Kind != notion.FailureNone {
		s.forgetIfMissing(kind, res)
		return "", false
	}
	for _, row := range res.Results() {
		if id, _ := row["id"].(string); id != "" {
			return id, true
		}
	}
	return "", true
}

func (s *Syncer) upsert(ctx context.Context, kind notion.DatabaseKind, dbID, pageID string, create, update map[string]any) notion.Result {
	var res notion.Result
	if pageID != "" {
		res = s.client().UpdatePage(ctx, pageID, update)
	} else {
		res = s.client().CreatePage(ctx, dbID, create)
	}
	s.forgetIfMissing(kind, res)
	return res
}

// SyncPaper upserts a paper keyed on manuscript id, then on the title prefix.
// Existing rows only get status, notes and last-update refreshed.
func (s *Syncer) SyncPaper(ctx context.Context, item internal.AcademicItem) bool {
	title := util.Truncate(strings.TrimSpace(item.Title), titleLimit)
	if title == "" {
		return false
	}
	start := time.Now()
	dbID, ok := s.database(ctx, notion.Papers)
	if !ok {
		s.observe(notion.Papers, start, false)
		return false
	}

	manuscript := strings.TrimSpace(item.ManuscriptID)
	var pageID string
	if manuscript != "" {
		pageID, ok = s.findPage(ctx, notion.Papers, dbID, notion.Equals(notion.PropManuscript, "rich_text", manuscript))
		if !ok {
			s.observe(notion.Papers, start, false)
			return false
		}
	}
	if pageID == "" {
		pageID, ok = s.findPage(ctx, notion.Papers, dbID, notion.StartsWith(notion.PropPaperTitle, "title", util.Truncate(title, titleKeyLen)))
		if !ok {
			s.observe(notion.Papers, start, false)
			return false
		}
	}

	status := NormalizePaperStatus(item.Status)
	notes := util.Truncate(util.FirstNonEmpty(item.Summary, item.Notes), notesLimit)

	update := map[string]any{
		notion.PropStatus: notion.Select(status),
		notion.PropNotes:  notion.RichText(notes),
	}
	create := map[string]any{
		notion.PropPaperTitle: notion.Title(title),
		notion.PropManuscript: notion.RichText(manuscript),
		notion.PropVenueType:  notion.Select(VenueTypeLabel(item.VenueType)),
		notion.PropVenue:      notion.RichText(util.Truncate(item.VenueName(), venueLimit)),
		notion.PropStatus:     notion.Select(status),
		notion.PropNotes:      notion.RichText(notes),
	}
	if day, ok := ParseDate(item.LastUpdate); ok {
		update[notion.PropLastUpdate] = notion.Date(day)
		create[notion.PropLastUpdate] = notion.Date(day)
	}

	res := s.upsert(ctx, notion.Papers, dbID, pageID, create, update)
	s.observe(notion.Papers, start, res.OK())
	s.log.Info().
		Bool("ok", res.OK()).
		Bool("update", pageID != "").
		Str("manuscript_id", manuscript).
		Str("status", status).
		Str("title", util.Truncate(title, 30)).
		Msg("paper synced")
	return res.OK()
}

// SyncReview upserts a review task keyed on the title prefix.
func (s *Syncer) SyncReview(ctx context.Context, item internal.AcademicItem) bool {
	title := util.Truncate(util.FirstNonEmpty(strings.TrimSpace(item.Title), "未知论文"), titleLimit)
	start := time.Now()
	dbID, ok := s.database(ctx, notion.Reviews)
	if !ok {
		s.observe(notion.Reviews, start, false)
		return false
	}

	pageID, ok := s.findPage(ctx, notion.Reviews, dbID, notion.StartsWith(notion.PropPaperTitle, "title", util.Truncate(title, titleKeyLen)))
	if !ok {
		s.observe(notion.Reviews, start, false)
		return false
	}

	status := NormalizeReviewStatus(item.Status)
	notes := util.Truncate(item.Notes, notesLimit)
	update := map[string]any{
		notion.PropStatus: notion.Select(status),
		notion.PropNotes:  notion.RichText(notes),
	}
	create := map[string]any{
		notion.PropPaperTitle: notion.Title(title),
		notion.PropJournal:    notion.RichText(util.Truncate(util.FirstNonEmpty(item.Journal, item.Venue), venueLimit)),
		notion.PropStatus:     notion.Select(status),
		notion.PropNotes:      notion.RichText(notes),
	}
	if day, ok := ParseDate(item.Deadline); ok {
		update[notion.PropDeadline] = notion.Date(day)
		create[notion.PropDeadline] = notion.Date(day)
	}

	res := s.upsert(ctx, notion.Reviews, dbID, pageID, create, update)
	s.observe(notion.Reviews, start, res.OK())
	s.log.Info().
		Bool("ok", res.OK()).
		Bool("update", pageID != "").
		Str("status", status).
		Str("deadline", item.Deadline).
		Msg("review synced")
	return res.OK()
}

type AcademicStats struct {
	Papers  int
	Reviews int
	Skipped int
	Failed  int
}

// SyncAcademicItems routes each Stage-2 item to the paper or review database
// by its type, falling back to the category family when the type is missing.
// Trash items are skipped.
func (s *Syncer) SyncAcademicItems(ctx context.Context, items []internal.AcademicItem) AcademicStats {
	var st AcademicStats
	for _, item := range items {
		label := reconcile.ParseLabel(item.Category)
		if label.Is(reconcile.FamilyTrash) || item.IsPublishedSpam {
			st.Skipped++
			continue
		}

		kind := strings.ToLower(strings.TrimSpace(item.Type))
		if kind == "" {
			switch {
			case label.Is(reconcile.FamilyReview):
				kind = "review"
			case label.Is(reconcile.FamilyPaper):
				kind = "paper"
			}
		}

		switch kind {
		case "paper":
			if s.SyncPaper(ctx, item) {
				st.Papers++
			} else {
				st.Failed++
			}
		case "review":
			if s.SyncReview(ctx, item) {
				st.Reviews++
			} else {
				st.Failed++
			}
		default:
			st.Skipped++
		}
	}
	return st
}

// SyncSummary writes the per-message row into the email summary database.
// An existing row with the same subject, account and day counts as synced.
func (s *Syncer) SyncSummary(ctx context.Context, m *internal.Message, d reconcile.Decision) bool {
	start := time.Now()
	dbID, ok := s.database(ctx, notion.Emails)
	if !ok {
		s.observe(notion.Emails, start, false)
		return false
	}

	subject := util.Truncate(util.FirstNonEmpty(strings.TrimSpace(m.Subject), "无标题"), subjectLimit)
	day := ""
	if m.Date != nil {
		day = m.Date.Format("2006-01-02")
	}

	filters := []map[string]any{
		notion.Equals(notion.PropSubject, "title", subject),
		notion.Equals(notion.PropAccount, "select", m.Account),
	}
	if day != "" {
		filters = append(filters, notion.Equals(notion.PropDate, "date", day))
	}
	existing, ok := s.findPage(ctx, notion.Emails, dbID, notion.And(filters...))
	if !ok {
		s.observe(notion.Emails, start, false)
		return false
	}
	if existing != "" {
		s.observe(notion.Emails, start, true)
		s.log.Debug().Str("message_id", m.MessageID).Str("page_id", existing).Msg("summary row already present")
		return true
	}

	props := map[string]any{
		notion.PropSubject:     notion.Title(subject),
		notion.PropFrom:        notion.RichText(util.Truncate(m.From, fromLimit)),
		notion.PropAccount:     notion.Select(m.Account),
		notion.PropCategory:    notion.Select(d.Bucket),
		notion.PropImportance:  notion.Select(ImportanceLabel(d.Importance)),
		notion.PropNeedsAction: notion.Checkbox(d.NeedsAction),
		notion.PropVenue:       notion.RichText(util.Truncate(d.Venue, summaryVenue)),
		notion.PropSummary:     notion.RichText(util.Truncate(d.Summary, summaryLimit)),
	}
	if day != "" {
		props[notion.PropDate] = notion.Date(day)
	}

	res := s.client().CreatePage(ctx, dbID, props)
	s.forgetIfMissing(notion.Emails, res)
	s.observe(notion.Emails, start, res.OK())
	s.log.Debug().
		Bool("ok", res.OK()).
		Str("message_id", m.MessageID).
		Str("bucket", d.Bucket).
		Int("importance", d.Importance).
		Msg("summary synced")
	return res.OK()
}

// MarkProcessed writes the local marker. It is the last step for every
// message whatever happened remotely.
func (s *Syncer) MarkProcessed(m *internal.Message, d reconcile.Decision, synced, markedRead bool) error {
	return s.store.MarkProcessed(internal.ProcessedMarker{
		MessageID:      m.MessageID,
		Account:        m.Account,
		Subject:        m.Subject,
		ProcessedAt:    time.Now(),
		Stage1Result:   string(m.Stage1Category),
		Stage2Category: d.Stage2Category,
		Synced:         synced,
		MarkedRead:     markedRead,
	})
}
