package internal

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryTrash    Category = "TRASH"
	CategoryPaper    Category = "PAPER"
	CategoryReview   Category = "REVIEW"
	CategoryBilling  Category = "BILLING"
	CategoryNotice   Category = "NOTICE"
	CategoryExam     Category = "EXAM"
	CategoryPersonal Category = "PERSONAL"
	CategoryUnknown  Category = "UNKNOWN"
)

// Categories lists the fixed enumeration in processing order.
var Categories = []Category{
	CategoryTrash,
	CategoryPaper,
	CategoryReview,
	CategoryBilling,
	CategoryNotice,
	CategoryExam,
	CategoryPersonal,
	CategoryUnknown,
}

// ParseCategory upper-cases raw model output and folds anything outside the
// enumeration into UNKNOWN.
func ParseCategory(raw string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryUnknown
}

type Message struct {
	MessageID string
	LocalID   string
	Account   string
	Subject   string
	From      string
	FromLower string
	Date      *time.Time
	Raw       []byte

	body       string
	bodyLoaded bool

	Stage1Category Category
	RuleMatched    bool
	RuleImportance int

	FinalCategory string
	Importance    int
	NeedsAction   *bool
	Summary       string
	Venue         string
}

func (m *Message) Body() (string, bool) {
	return m.body, m.bodyLoaded
}

// SetBody caches the decoded body and releases the raw payload.
func (m *Message) SetBody(body string) {
	m.body = body
	m.bodyLoaded = true
	m.Raw = nil
}

func (m *Message) DateString() string {
	if m.Date == nil {
		return "未知"
	}
	return m.Date.Format("2006-01-02 15:04")
}

func (m *Message) ImportanceOr(fallback int) int {
	if m.Importance >= 1 && m.Importance <= 5 {
		return m.Importance
	}
	return fallback
}

func (m *Message) NeedsActionOr(fallback bool) bool {
	if m.NeedsAction == nil {
		return fallback
	}
	return *m.NeedsAction
}

type AcademicItem struct {
	Type            string `json:"type"`
	Category        string `json:"category"`
	ManuscriptID    string `json:"manuscript_id"`
	Title           string `json:"title"`
	Venue           string `json:"venue"`
	Journal         string `json:"journal"`
	VenueType       string `json:"venue_type"`
	Status          string `json:"status"`
	Deadline        string `json:"deadline"`
	LastUpdate      string `json:"last_update"`
	SourceEmails    []int  `json:"source_emails"`
	Notes           string `json:"notes"`
	Summary         string `json:"summary"`
	IsPublishedSpam bool   `json:"is_published_spam"`
}

func (i AcademicItem) VenueName() string {
	if strings.TrimSpace(i.Venue) != "" {
		return i.Venue
	}
	return i.Journal
}

type Classification struct {
	ID          int    `json:"id"`
	Category    string `json:"category"`
	Importance  *int   `json:"importance,omitempty"`
	NeedsAction *bool  `json:"needs_action,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type Stage2Result struct {
	Items           []AcademicItem
	Classifications []Classification
}

type BillingEntry struct {
	Name         string
	Type         string
	Period       string
	Amount       *float64
	Currency     string
	DueDate      string
	Status       string
	SourceEmails []int
	Notes        string
}

type ProcessedMarker struct {
	MessageID      string
	Account        string
	Subject        string
	ProcessedAt    time.Time
	Stage1Result   string
	Stage2Category string
	Synced         bool
	MarkedRead     bool
}

type MarkerStats struct {
	Total      int
	ByStage1   map[string]int
	ByCategory map[string]int
}

type BillingItemRow struct {
	ID           int64
	Name         string
	Type         string
	Description  string
	Cycle        string
	DueDay       *int
	Amount       *float64
	Currency     string
	Status       string
	RemotePageID *string
	CreatedAt    string
	UpdatedAt    string
	SyncedAt     *string
}

type BillingRecordRow struct {
	ID             int64
	ItemID         int64
	ItemName       string
	ItemType       string
	Period         string
	Amount         *float64
	DueDate        *string
	Status         string
	EmailMessageID *string
	EmailSubject   *string
	Notes          *string
	CreatedAt      string
	UpdatedAt      string
}

type BillingSummary struct {
	TotalItems     int
	ByType         map[string]int
	PendingRecords int
}

type RunRow struct {
	ID        int64
	RunID     string
	Mode      string
	Timings   map[string]float64
	Counts    map[string]int
	CreatedAt string
}

// RunStats counts one poll iteration. ByCategory is keyed by Stage-1 group.
type RunStats struct {
	RunID      string
	Total      int
	New        int
	ByCategory map[Category]int
	Synced     int
	MarkedRead int
	Papers     int
	Reviews    int
	Billing    int
	Notified   bool
}

func (s RunStats) Count(c Category) int {
	return s.ByCategory[c]
}
