// Package connectors merges the configured mailboxes behind one Mailbox.
package connectors

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"emailmanager/internal"
)

// MailConnector is one account. Fetches must not change the seen state.
type MailConnector interface {
	Account() string
	// FetchUnread returns up to limit of the newest unread messages received
	// on or after since. A zero since means no age filter.
	FetchUnread(ctx context.Context, limit int, since time.Time) ([]*internal.Message, error)
	// FetchRecent returns up to limit of the newest messages, read or not,
	// received on or after since.
	FetchRecent(ctx context.Context, since time.Time, limit int) ([]*internal.Message, error)
	MarkRead(ctx context.Context, localID string) error
}

type Mailbox struct {
	connectors []MailConnector
	bodyLimit  int
	log        zerolog.Logger
	now        func() time.Time
}

func NewMailbox(conns []MailConnector, log zerolog.Logger) *Mailbox {
	return &Mailbox{
		connectors: conns,
		bodyLimit:  DefaultBodyLimit,
		log:        log.With().Str("component", "mailbox").Logger(),
		now:        time.Now,
	}
}

func (m *Mailbox) Accounts() []string {
	out := make([]string, 0, len(m.connectors))
	for _, c := range m.connectors {
		out = append(out, c.Account())
	}
	return out
}

// FetchUnread collects unread mail from every account, limit per account.
// An account that fails is logged and skipped.
func (m *Mailbox) FetchUnread(ctx context.Context, limit, maxAgeDays int) []*internal.Message {
	var since time.Time
	if maxAgeDays > 0 {
		since = m.now().AddDate(0, 0, -maxAgeDays)
	}
	return m.collect(ctx, "fetch unread", func(c MailConnector) ([]*internal.Message, error) {
		return c.FetchUnread(ctx, limit, since)
	})
}

// FetchRecent collects the last days of mail, read or not, limit per account.
func (m *Mailbox) FetchRecent(ctx context.Context, days, limit int) []*internal.Message {
	since := m.now().AddDate(0, 0, -days)
	return m.collect(ctx, "fetch recent", func(c MailConnector) ([]*internal.Message, error) {
		return c.FetchRecent(ctx, since, limit)
	})
}

func (m *Mailbox) collect(ctx context.Context, op string, fetch func(MailConnector) ([]*internal.Message, error)) []*internal.Message {
	var all []*internal.Message
	for _, c := range m.connectors {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		msgs, err := fetch(c)
		if err != nil {
			m.log.Warn().Err(err).Str("account", c.Account()).Msg(op + " failed")
			continue
		}
		m.log.Info().Str("account", c.Account()).Int("messages", len(msgs)).Dur("duration", time.Since(start)).Msg(op)
		all = append(all, msgs...)
	}
	SortNewestFirst(all)
	return all
}

// SortNewestFirst orders by date descending; undated messages go last.
func SortNewestFirst(msgs []*internal.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].Date, msgs[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// LoadBody decodes the body once and caches it on the message.
func (m *Mailbox) LoadBody(msg *internal.Message) string {
	if body, ok := msg.Body(); ok {
		return body
	}
	body := ""
	if len(msg.Raw) > 0 {
		text, err := ExtractBody(msg.Raw, m.bodyLimit)
		if err != nil {
			m.log.Debug().Err(err).Str("message_id", msg.MessageID).Msg("decode body")
		}
		body = text
	}
	msg.SetBody(body)
	return body
}

// MarkRead flags one message as seen on its account. Failures are logged
// and reported as false.
func (m *Mailbox) MarkRead(ctx context.Context, account, localID string) bool {
	for _, c := range m.connectors {
		if c.Account() != account {
			continue
		}
		if err := c.MarkRead(ctx, localID); err != nil {
			m.log.Warn().Err(err).Str("account", account).Str("local_id", localID).Msg("mark read failed")
			return false
		}
		return true
	}
	m.log.Warn().Str("account", account).Msg("mark read: unknown account")
	return false
}
