// Package reconcile groups classified messages and turns Stage-2 output into
// a per-message sync decision.
package reconcile

import (
	"strings"

	"emailmanager/internal"
	"emailmanager/internal/util"
)

type Family string

const (
	FamilyPaper  Family = "Paper"
	FamilyReview Family = "Review"
	FamilyTrash  Family = "Trash"
	FamilyOther  Family = "Other"
)

// Label is a free-form model category split into its family and the raw text.
type Label struct {
	Family   Family
	Specific string
}

// ParseLabel uses case-sensitive containment so "Paper/Journal" and
// "Paper/InProgress" both land in FamilyPaper. Trash wins over the others.
func ParseLabel(s string) Label {
	l := Label{Family: FamilyOther, Specific: s}
	switch {
	case strings.Contains(s, string(FamilyTrash)):
		l.Family = FamilyTrash
	case strings.Contains(s, string(FamilyPaper)):
		l.Family = FamilyPaper
	case strings.Contains(s, string(FamilyReview)):
		l.Family = FamilyReview
	}
	return l
}

func (l Label) Is(f Family) bool {
	return strings.Contains(l.Specific, string(f))
}

// Groups maps every category in the enumeration to its messages.
type Groups map[internal.Category][]*internal.Message

func Group(msgs []*internal.Message) Groups {
	g := make(Groups, len(internal.Categories))
	for _, c := range internal.Categories {
		g[c] = nil
	}
	for _, m := range msgs {
		c := internal.ParseCategory(string(m.Stage1Category))
		g[c] = append(g[c], m)
	}
	return g
}

func (g Groups) Counts() map[internal.Category]int {
	out := make(map[internal.Category]int, len(g))
	for c, msgs := range g {
		out[c] = len(msgs)
	}
	return out
}

const (
	BucketAcademic = "学术"
	BucketReview   = "审稿"
	BucketBilling  = "账单"
	BucketNotice   = "通知"
	BucketExam     = "考试"
	BucketPersonal = "个人"
)

// Default is the fallback disposition for a Stage-1 group when Stage-2 left
// the message unannotated.
type Default struct {
	Importance  int
	NeedsAction bool
	Sync        bool
	Bucket      string
}

var Defaults = map[internal.Category]Default{
	internal.CategoryTrash:    {Importance: 1, NeedsAction: false, Sync: false},
	internal.CategoryBilling:  {Importance: 2, NeedsAction: false, Sync: true, Bucket: BucketBilling},
	internal.CategoryNotice:   {Importance: 2, NeedsAction: false, Sync: true, Bucket: BucketNotice},
	internal.CategoryExam:     {Importance: 5, NeedsAction: true, Sync: true, Bucket: BucketExam},
	internal.CategoryPersonal: {Importance: 3, NeedsAction: false, Sync: true, Bucket: BucketPersonal},
}

// Academic messages (PAPER, REVIEW, UNKNOWN) fall back to these.
const (
	AcademicImportance  = 2
	AcademicNeedsAction = false
)

// DefaultsFor returns the group default, preferring the rule importance for
// rule-resolved messages.
func DefaultsFor(m *internal.Message) Default {
	d, ok := Defaults[m.Stage1Category]
	if !ok {
		d = Default{Importance: AcademicImportance, NeedsAction: AcademicNeedsAction}
	}
	if m.RuleMatched && m.RuleImportance > 0 {
		d.Importance = m.RuleImportance
	}
	return d
}

type Decision struct {
	FinalCategory  string
	ItemCategory   string
	Label          Label
	IsTrash        bool
	IsPaper        bool
	IsReview       bool
	Sync           bool
	Bucket         string
	Importance     int
	NeedsAction    bool
	Summary        string
	Venue          string
	Stage2Category string
}

// Decide derives the sync decision for the message at 1-based position index
// in the Stage-2 batch.
func Decide(m *internal.Message, index int, res internal.Stage2Result) Decision {
	d := Decision{
		FinalCategory: m.FinalCategory,
		Summary:       util.Truncate(m.Summary, 20),
		Venue:         m.Venue,
	}
	for _, c := range res.Classifications {
		if c.ID == index && c.Category != "" && !m.RuleMatched {
			d.FinalCategory = c.Category
			break
		}
	}
	if d.FinalCategory == "" {
		d.FinalCategory = "Unknown"
	}

	for _, item := range res.Items {
		if containsInt(item.SourceEmails, index) {
			d.ItemCategory = item.Category
			if d.Venue == "" {
				d.Venue = util.Truncate(item.VenueName(), 50)
			}
			break
		}
	}

	def := DefaultsFor(m)
	d.Importance = m.ImportanceOr(def.Importance)
	d.NeedsAction = m.NeedsActionOr(def.NeedsAction)

	final := ParseLabel(d.FinalCategory)
	item := ParseLabel(d.ItemCategory)
	d.Label = final
	d.IsTrash = final.Is(FamilyTrash)
	d.IsPaper = final.Is(FamilyPaper) || item.Is(FamilyPaper)
	d.IsReview = final.Is(FamilyReview) || item.Is(FamilyReview)

	if !d.IsTrash && (d.IsPaper || d.IsReview || d.NeedsAction) {
		d.Sync = true
		d.Bucket = BucketAcademic
		if d.IsReview {
			d.Bucket = BucketReview
		}
	}

	d.Stage2Category = util.FirstNonEmpty(d.ItemCategory, d.FinalCategory)
	return d
}

// DecideDefault is the decision for groups that skip academic reconciliation.
func DecideDefault(m *internal.Message) Decision {
	def := DefaultsFor(m)
	d := Decision{
		FinalCategory:  util.FirstNonEmpty(m.FinalCategory, string(m.Stage1Category)),
		Sync:           def.Sync,
		Bucket:         def.Bucket,
		Importance:     m.ImportanceOr(def.Importance),
		NeedsAction:    m.NeedsActionOr(def.NeedsAction),
		Summary:        util.Truncate(m.Summary, 20),
		Venue:          m.Venue,
		Stage2Category: m.FinalCategory,
	}
	d.Label = ParseLabel(d.FinalCategory)
	// Stage-2 can still demote a message to trash, e.g. published spam.
	d.IsTrash = m.Stage1Category == internal.CategoryTrash || d.Label.Is(FamilyTrash)
	if d.IsTrash {
		d.Sync = false
		d.Bucket = ""
	}
	return d
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
