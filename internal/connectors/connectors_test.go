package connectors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailmanager/internal"
)

type fakeConnector struct {
	name      string
	msgs      []*internal.Message
	err       error
	markErr   error
	gotLimit  int
	gotSince  time.Time
	markedIDs []string
}

func (f *fakeConnector) Account() string { return f.name }

func (f *fakeConnector) FetchUnread(_ context.Context, limit int, since time.Time) ([]*internal.Message, error) {
	f.gotLimit, f.gotSince = limit, since
	return f.msgs, f.err
}

func (f *fakeConnector) FetchRecent(_ context.Context, since time.Time, limit int) ([]*internal.Message, error) {
	f.gotLimit, f.gotSince = limit, since
	return f.msgs, f.err
}

func (f *fakeConnector) MarkRead(_ context.Context, localID string) error {
	f.markedIDs = append(f.markedIDs, localID)
	return f.markErr
}

func at(day int) *time.Time {
	t := time.Date(2026, 3, day, 8, 0, 0, 0, time.UTC)
	return &t
}

func TestFetchUnreadMergesAndSorts(t *testing.T) {
	qq := &fakeConnector{name: "QQ邮箱", msgs: []*internal.Message{
		{MessageID: "q1", Date: at(2)},
		{MessageID: "q2"},
	}}
	pku := &fakeConnector{name: "PKU邮箱", msgs: []*internal.Message{
		{MessageID: "p1", Date: at(5)},
		{MessageID: "p2", Date: at(1)},
	}}
	broken := &fakeConnector{name: "broken", err: errors.New("login failed")}

	mb := NewMailbox([]MailConnector{qq, broken, pku}, zerolog.Nop())
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mb.now = func() time.Time { return now }

	msgs := mb.FetchUnread(context.Background(), 50, 7)
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.MessageID)
	}
	assert.Equal(t, []string{"p1", "q1", "p2", "q2"}, ids)
	assert.Equal(t, 50, qq.gotLimit)
	assert.Equal(t, now.AddDate(0, 0, -7), qq.gotSince)
	assert.Equal(t, []string{"QQ邮箱", "broken", "PKU邮箱"}, mb.Accounts())
}

func TestFetchUnreadWithoutAgeLimit(t *testing.T) {
	qq := &fakeConnector{name: "QQ邮箱"}
	mb := NewMailbox([]MailConnector{qq}, zerolog.Nop())
	assert.Empty(t, mb.FetchUnread(context.Background(), 10, 0))
	assert.True(t, qq.gotSince.IsZero())
}

func TestMarkRead(t *testing.T) {
	qq := &fakeConnector{name: "QQ邮箱"}
	pku := &fakeConnector{name: "PKU邮箱", markErr: errors.New("store failed")}
	mb := NewMailbox([]MailConnector{qq, pku}, zerolog.Nop())

	assert.True(t, mb.MarkRead(context.Background(), "QQ邮箱", "42"))
	assert.Equal(t, []string{"42"}, qq.markedIDs)
	assert.False(t, mb.MarkRead(context.Background(), "PKU邮箱", "7"))
	assert.False(t, mb.MarkRead(context.Background(), "nobody", "1"))
}

const plainMail = "Message-ID: <abc@example.com>\r\n" +
	"From: =?UTF-8?B?5pyx6ICB5biI?= <zhu@pku.edu.cn>\r\n" +
	"Subject: =?UTF-8?B?5pyf5pyr6ICD6K+V?=\r\n" +
	"Date: Mon, 02 Mar 2026 10:20:30 +0800\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Exam on Friday.\r\n"

const htmlMail = "Message-ID: <html@example.com>\r\n" +
	"From: news@example.com\r\n" +
	"Subject: Weekly\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><head><style>p{}</style></head><body><p>Hello</p><p>World</p></body></html>\r\n"

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage("PKU邮箱", "17", []byte(plainMail))
	require.NoError(t, err)
	assert.Equal(t, "<abc@example.com>", msg.MessageID)
	assert.Equal(t, "17", msg.LocalID)
	assert.Equal(t, "PKU邮箱", msg.Account)
	assert.Equal(t, "期末考试", msg.Subject)
	assert.Contains(t, msg.From, "zhu@pku.edu.cn")
	assert.Equal(t, strings.ToLower(msg.From), msg.FromLower)
	require.NotNil(t, msg.Date)
	assert.Equal(t, "2026-03-02", msg.Date.UTC().Format("2006-01-02"))
	assert.NotEmpty(t, msg.Raw)
}

func TestLoadBodyCachesAndReleasesRaw(t *testing.T) {
	msg, err := ParseMessage("QQ邮箱", "1", []byte(plainMail))
	require.NoError(t, err)

	mb := NewMailbox(nil, zerolog.Nop())
	assert.Equal(t, "Exam on Friday.", mb.LoadBody(msg))
	assert.Nil(t, msg.Raw)
	assert.Equal(t, "Exam on Friday.", mb.LoadBody(msg))
}

func TestExtractBodyHTML(t *testing.T) {
	body, err := ExtractBody([]byte(htmlMail), DefaultBodyLimit)
	require.NoError(t, err)
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, "World")
	assert.NotContains(t, body, "<p>")
}

func TestExtractBodyTruncates(t *testing.T) {
	raw := "Content-Type: text/plain; charset=utf-8\r\n\r\n" + strings.Repeat("字", 50)
	body, err := ExtractBody([]byte(raw), 10)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("字", 10), body)
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText("<div>Hi <b>there</b><script>var x=1</script></div>")
	assert.Equal(t, "Hi there", got)
}
