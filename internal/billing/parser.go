package billing

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"emailmanager/internal"
	"emailmanager/internal/jsonx"
	"emailmanager/internal/llm"
	"emailmanager/internal/util"
)

//go:embed prompts/billing_parser.md
var parserSystem string

const (
	maxEmails    = 10
	bodyLimit    = 800
	subjectLimit = 150
	senderLimit  = 80
)

// BodyLoader fills a message body on demand.
type BodyLoader func(m *internal.Message) string

type Parser struct {
	llm      llm.Caller
	loadBody BodyLoader
	timeout  time.Duration
	log      zerolog.Logger
}

func NewParser(caller llm.Caller, loadBody BodyLoader, timeout time.Duration, log zerolog.Logger) *Parser {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Parser{
		llm:      caller,
		loadBody: loadBody,
		timeout:  timeout,
		log:      log.With().Str("component", "billing-parser").Logger(),
	}
}

type rawEntry struct {
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Period       string     `json:"period"`
	Amount       amount     `json:"amount"`
	Currency     string     `json:"currency"`
	DueDate      string     `json:"due_date"`
	Status       string     `json:"status"`
	SourceEmails []emailRef `json:"source_emails"`
	Notes        string     `json:"notes"`
}

// amount accepts 12.5, "12.5" and "¥1,234.56".
type amount struct {
	v        *float64
	currency string
}

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] != '"' {
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			a.v = &f
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	parsed := util.ParseAmount(s)
	a.v, a.currency = parsed.Amount, parsed.Currency
	return nil
}

// emailRef tolerates ids written as numbers or strings.
type emailRef int

func (i *emailRef) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if n, err := strconv.Atoi(s); err == nil {
		*i = emailRef(n)
	}
	return nil
}

type parseResult struct {
	Items   []rawEntry `json:"items"`
	Summary string     `json:"summary"`
}

// Parse sends billing messages to the model in batches of ten and returns
// the extracted entries. SourceEmails index into msgs, starting at 1. A
// failed batch contributes no entries.
func (p *Parser) Parse(ctx context.Context, msgs []*internal.Message) []internal.BillingEntry {
	var out []internal.BillingEntry
	for start := 0; start < len(msgs); start += maxEmails {
		end := min(start+maxEmails, len(msgs))
		for _, e := range p.parseBatch(ctx, msgs[start:end]) {
			for i := range e.SourceEmails {
				e.SourceEmails[i] += start
			}
			out = append(out, e)
		}
	}
	return out
}

func (p *Parser) parseBatch(ctx context.Context, msgs []*internal.Message) []internal.BillingEntry {
	reply, err := p.llm.Call(ctx, parserSystem, p.prompt(msgs), p.timeout)
	if err != nil {
		p.log.Warn().Err(err).Int("emails", len(msgs)).Msg("billing parse failed")
		return nil
	}

	var parsed parseResult
	if !jsonx.ExtractInto(reply, false, &parsed) {
		p.log.Warn().Str("reply", util.Truncate(reply, 200)).Msg("billing reply has no json")
		return nil
	}

	out := make([]internal.BillingEntry, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		entry := p.entry(raw, msgs)
		if entry.Name == "" {
			continue
		}
		out = append(out, entry)
	}
	p.log.Info().Int("emails", len(msgs)).Int("entries", len(out)).Str("summary", parsed.Summary).Msg("billing parsed")
	return out
}

func (p *Parser) prompt(msgs []*internal.Message) string {
	parts := make([]string, 0, len(msgs))
	for i, m := range msgs {
		body := ""
		if p.loadBody != nil {
			body = p.loadBody(m)
		}
		parts = append(parts, fmt.Sprintf("%d. 标题: %s\n   发件人: %s\n   时间: %s\n   内容: %s",
			i+1,
			util.Truncate(m.Subject, subjectLimit),
			util.Truncate(m.From, senderLimit),
			m.DateString(),
			util.Truncate(body, bodyLimit),
		))
	}
	return "邮件列表：\n" + strings.Join(parts, "\n\n")
}

func (p *Parser) entry(raw rawEntry, msgs []*internal.Message) internal.BillingEntry {
	e := internal.BillingEntry{
		Name:     strings.TrimSpace(raw.Name),
		Type:     strings.ToLower(strings.TrimSpace(raw.Type)),
		Period:   strings.TrimSpace(raw.Period),
		Amount:   raw.Amount.v,
		Currency: strings.ToUpper(strings.TrimSpace(raw.Currency)),
		DueDate:  strings.TrimSpace(raw.DueDate),
		Status:   strings.ToLower(strings.TrimSpace(raw.Status)),
		Notes:    strings.TrimSpace(raw.Notes),
	}
	for _, id := range raw.SourceEmails {
		if int(id) >= 1 && int(id) <= len(msgs) {
			e.SourceEmails = append(e.SourceEmails, int(id))
		}
	}
	if _, ok := Types[e.Type]; !ok {
		e.Type = ""
	}
	if e.Type == "" {
		e.Type = TypeOther
		if len(e.SourceEmails) > 0 {
			m := msgs[e.SourceEmails[0]-1]
			e.Type = DetectType(m.From, m.Subject)
		}
	}
	if e.Currency == "" {
		e.Currency = util.FirstNonEmpty(raw.Amount.currency, "CNY")
	}
	if e.Status != "paid" {
		e.Status = "pending"
	}
	return e
}
