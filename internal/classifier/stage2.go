package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"emailmanager/internal"
	"emailmanager/internal/jsonx"
	"emailmanager/internal/llm"
	"emailmanager/internal/util"
)

const (
	// PublishedSpamCategory replaces whatever the model said when it flags
	// a published-paper upsell.
	PublishedSpamCategory = "Academic/Trash"

	DefaultImportance = 2

	summaryLimit        = 20
	venueLimit          = 50
	stage2SubjectLimit  = 150
	stage2SenderLimit   = 80
	defaultBodyLimit    = 800
	defaultStage2Window = 90 * time.Second
)

type Stage2 struct {
	llm         llm.Caller
	bodyLimit   int
	concurrency int
	timeout     time.Duration
	log         zerolog.Logger
}

func NewStage2(caller llm.Caller, bodyLimit, concurrency int, timeout time.Duration, log zerolog.Logger) *Stage2 {
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = defaultStage2Window
	}
	return &Stage2{
		llm:         caller,
		bodyLimit:   bodyLimit,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log.With().Str("component", "stage2").Logger(),
	}
}

type stage2Item struct {
	Type            string   `json:"type"`
	Category        string   `json:"category"`
	ManuscriptID    string   `json:"manuscript_id"`
	Title           string   `json:"title"`
	Venue           string   `json:"venue"`
	Journal         string   `json:"journal"`
	VenueType       string   `json:"venue_type"`
	Status          string   `json:"status"`
	Deadline        string   `json:"deadline"`
	LastUpdate      string   `json:"last_update"`
	Notes           string   `json:"notes"`
	Summary         string   `json:"summary"`
	IsPublishedSpam flexBool `json:"is_published_spam"`
}

type stage2Classification struct {
	Category    string   `json:"category"`
	Importance  flexInt  `json:"importance"`
	NeedsAction flexBool `json:"needs_action"`
	Summary     string   `json:"summary"`
	Venue       string   `json:"venue"`
	Reason      string   `json:"reason"`
}

type stage2Response struct {
	Item           *stage2Item           `json:"item"`
	Classification *stage2Classification `json:"classification"`
}

type stage2Outcome struct {
	item *internal.AcademicItem
	cls  *internal.Classification
}

// Analyze makes one call per message. Indices in the result are 1-based
// positions in msgs. A failed message contributes nothing and keeps its
// annotations untouched.
func (s *Stage2) Analyze(ctx context.Context, msgs []*internal.Message) internal.Stage2Result {
	outcomes := make([]stage2Outcome, len(msgs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, m := range msgs {
		g.Go(func() error {
			outcomes[i] = s.analyzeOne(ctx, i+1, m)
			return nil
		})
	}
	_ = g.Wait()

	res := internal.Stage2Result{}
	for _, o := range outcomes {
		if o.item != nil {
			res.Items = append(res.Items, *o.item)
		}
		if o.cls != nil {
			res.Classifications = append(res.Classifications, *o.cls)
		}
	}
	s.log.Info().
		Int("messages", len(msgs)).
		Int("items", len(res.Items)).
		Int("classifications", len(res.Classifications)).
		Msg("stage2 done")
	return res
}

func (s *Stage2) analyzeOne(ctx context.Context, index int, m *internal.Message) stage2Outcome {
	log := s.log.With().Str("message_id", m.MessageID).Int("index", index).Logger()

	content, err := s.llm.Call(ctx, stage2System, s.buildPrompt(m), s.timeout)
	if err != nil {
		log.Warn().Err(err).Msg("stage2 call failed")
		return stage2Outcome{}
	}

	var resp stage2Response
	if !jsonx.ExtractInto(content, false, &resp) {
		log.Warn().Str("response", util.Truncate(content, 200)).Msg("stage2 response not parseable")
		return stage2Outcome{}
	}

	var out stage2Outcome
	spam := resp.Item != nil && resp.Item.IsPublishedSpam.v
	if resp.Item != nil && !spam && itemHasIdentity(resp.Item) {
		item := toAcademicItem(resp.Item, index)
		out.item = &item
	}

	if resp.Classification != nil || spam {
		c := resp.Classification
		if c == nil {
			c = &stage2Classification{}
		}
		cls := internal.Classification{
			ID:       index,
			Category: strings.TrimSpace(c.Category),
			Summary:  util.Truncate(strings.TrimSpace(c.Summary), summaryLimit),
			Venue:    util.Truncate(strings.TrimSpace(c.Venue), venueLimit),
			Reason:   c.Reason,
		}
		if c.Importance.ok {
			cls.Importance = util.IntPtr(clampImportance(c.Importance.v))
		}
		if c.NeedsAction.ok {
			cls.NeedsAction = util.BoolPtr(c.NeedsAction.v)
		}
		if spam {
			cls.Category = PublishedSpamCategory
			cls.Importance = util.IntPtr(1)
			cls.NeedsAction = util.BoolPtr(false)
		}
		out.cls = &cls
		annotate(m, cls, out.item)
	}
	return out
}

// annotate writes classification fields onto the message. Rule-resolved
// messages keep their category; only the refinements are applied.
func annotate(m *internal.Message, cls internal.Classification, item *internal.AcademicItem) {
	if !m.RuleMatched && cls.Category != "" {
		m.FinalCategory = cls.Category
	}
	m.Importance = DefaultImportance
	if cls.Importance != nil {
		m.Importance = *cls.Importance
	}
	m.NeedsAction = util.BoolPtr(false)
	if cls.NeedsAction != nil {
		m.NeedsAction = util.BoolPtr(*cls.NeedsAction)
	}
	m.Summary = cls.Summary
	m.Venue = cls.Venue
	if m.Venue == "" && item != nil {
		m.Venue = util.Truncate(item.VenueName(), venueLimit)
	}
}

func (s *Stage2) buildPrompt(m *internal.Message) string {
	body, _ := m.Body()
	var b strings.Builder
	b.WriteString("请分析以下邮件：\n\n")
	fmt.Fprintf(&b, "标题: %s\n", util.Truncate(m.Subject, stage2SubjectLimit))
	fmt.Fprintf(&b, "发件人: %s\n", util.Truncate(m.From, stage2SenderLimit))
	fmt.Fprintf(&b, "日期: %s\n", m.DateString())
	fmt.Fprintf(&b, "内容:\n%s\n", util.Truncate(strings.TrimSpace(body), s.bodyLimit))
	b.WriteString("\n返回JSON：")
	return b.String()
}

func itemHasIdentity(it *stage2Item) bool {
	return strings.TrimSpace(it.Title) != "" || strings.TrimSpace(it.ManuscriptID) != ""
}

func toAcademicItem(it *stage2Item, index int) internal.AcademicItem {
	typ := strings.ToLower(strings.TrimSpace(it.Type))
	if typ == "" {
		switch {
		case strings.Contains(it.Category, "Review"):
			typ = "review"
		case strings.Contains(it.Category, "Paper"):
			typ = "paper"
		}
	}
	return internal.AcademicItem{
		Type:         typ,
		Category:     strings.TrimSpace(it.Category),
		ManuscriptID: strings.TrimSpace(it.ManuscriptID),
		Title:        strings.TrimSpace(it.Title),
		Venue:        strings.TrimSpace(it.Venue),
		Journal:      strings.TrimSpace(it.Journal),
		VenueType:    strings.TrimSpace(it.VenueType),
		Status:       strings.TrimSpace(it.Status),
		Deadline:     strings.TrimSpace(it.Deadline),
		LastUpdate:   strings.TrimSpace(it.LastUpdate),
		SourceEmails: []int{index},
		Notes:        it.Notes,
		Summary:      it.Summary,
	}
}

func clampImportance(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}
