package notify

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
	"emailmanager/internal/util"
)

type captureSender struct {
	sent []string
	err  error
}

func (c *captureSender) Send(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	return c.err
}

type countRecorder struct{ ok, failed int }

func (c *countRecorder) ObserveNotification(ok bool) {
	if ok {
		c.ok++
	} else {
		c.failed++
	}
}

var noon = time.Date(2026, 3, 2, 12, 5, 0, 0, time.Local)

func newMsg(cat internal.Category, subject, summary string, importance int) *internal.Message {
	return &internal.Message{Stage1Category: cat, Subject: subject, Summary: summary, Importance: importance}
}

func TestFormatSummary(t *testing.T) {
	assert.Empty(t, FormatSummary(internal.RunStats{Total: 3}, noon))

	got := FormatSummary(internal.RunStats{
		New: 4,
		ByCategory: map[internal.Category]int{
			internal.CategoryPaper: 1,
			internal.CategoryTrash: 3,
		},
	}, noon)
	assert.Equal(t, "📬 邮件处理完成\n时间: 12:05\n\n📥 新邮件: 4 封\n📄 论文: 1 | 🗑️ 垃圾: 3", got)
}

func TestFormatImportantAlert(t *testing.T) {
	assert.Empty(t, FormatImportantAlert(nil))

	var msgs []*internal.Message
	for i := 0; i < 7; i++ {
		msgs = append(msgs, newMsg(internal.CategoryExam, strings.Repeat("考", 40), "", 5))
	}
	msgs[0].Summary = strings.Repeat("摘", 20)

	got := FormatImportantAlert(msgs)
	lines := strings.Split(got, "\n")
	assert.Equal(t, "⚠️ 重要邮件提醒", lines[0])
	assert.Equal(t, "• "+strings.Repeat("考", 30), lines[2])
	assert.Equal(t, "  "+strings.Repeat("摘", 15), lines[3])
	assert.Equal(t, "...还有 2 封", lines[len(lines)-1])
	assert.Equal(t, 5, strings.Count(got, "• "))
}

func TestFormatDigest(t *testing.T) {
	needs := true
	msgs := []*internal.Message{
		newMsg(internal.CategoryTrash, "spam", "", 1),
		newMsg(internal.CategoryPaper, "Decision", "大修意见", 4),
		{Stage1Category: internal.CategoryNotice, Subject: "讲座通知", NeedsAction: &needs},
		newMsg(internal.CategoryPersonal, "", "", 3),
		newMsg(internal.Category("ODD"), "hello", "", 2),
	}
	got := FormatDigest(msgs, noon)
	assert.Equal(t, strings.Join([]string{
		"📬 新邮件 (4封)",
		"12:05",
		"",
		"📄⚡ 大修意见",
		"📢⚡ 讲座通知",
		"👤 无标题",
		"📧 hello",
	}, "\n"), got)

	assert.Empty(t, FormatDigest([]*internal.Message{newMsg(internal.CategoryTrash, "x", "", 1)}, noon))
}

func TestFormatDigestCapsLines(t *testing.T) {
	var msgs []*internal.Message
	for i := 0; i < 12; i++ {
		msgs = append(msgs, newMsg(internal.CategoryNotice, "n", "s", 2))
	}
	got := FormatDigest(msgs, noon)
	assert.Equal(t, 10, strings.Count(got, "📢 s"))
	assert.True(t, strings.HasSuffix(got, "...还有 2 封"))
}

func TestFormatErrorAlert(t *testing.T) {
	assert.Equal(t, "❌ 邮件处理出错\n环节: 邮件处理\n错误: boom",
		FormatErrorAlert(errors.New("boom"), "邮件处理"))

	long := FormatErrorAlert(errors.New(strings.Repeat("x", 150)), "")
	assert.Equal(t, "❌ 邮件处理出错\n错误: "+strings.Repeat("x", 100)+"...", long)
}

func TestQuietHours(t *testing.T) {
	q, err := ParseQuietHours("23:00-07:00")
	require.NoError(t, err)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.Local) }
	assert.True(t, q.Contains(at(23, 30)))
	assert.True(t, q.Contains(at(6, 59)))
	assert.True(t, q.Contains(at(7, 0)))
	assert.False(t, q.Contains(at(12, 0)))

	day, err := ParseQuietHours("12:00-13:00")
	require.NoError(t, err)
	assert.True(t, day.Contains(at(12, 30)))
	assert.False(t, day.Contains(at(23, 0)))

	off, err := ParseQuietHours("")
	require.NoError(t, err)
	assert.False(t, off.Contains(at(0, 0)))

	_, err = ParseQuietHours("late")
	assert.Error(t, err)
	_, err = ParseQuietHours("25:00-07:00")
	assert.Error(t, err)
}

func newNotifier(sender Sender, opts Options, now time.Time) *Notifier {
	n := New(sender, opts, zerolog.Nop())
	n.now = func() time.Time { return now }
	return n
}

func TestNotifyRunSendsDigest(t *testing.T) {
	s := &captureSender{}
	rec := &countRecorder{}
	n := newNotifier(s, Options{Enabled: true}, noon).WithRecorder(rec)

	msgs := []*internal.Message{newMsg(internal.CategoryExam, "IELTS", "考试确认", 5)}
	assert.True(t, n.NotifyRun(context.Background(), internal.RunStats{New: 1}, msgs))
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "📋⚡ 考试确认")
	assert.Equal(t, 1, rec.ok)
}

func TestNotifyRunGates(t *testing.T) {
	msgs := []*internal.Message{newMsg(internal.CategoryNotice, "n", "s", 2)}
	stats := internal.RunStats{New: 1}
	quiet, err := ParseQuietHours("12:00-13:00")
	require.NoError(t, err)

	cases := map[string]struct {
		opts  Options
		stats internal.RunStats
	}{
		"disabled":           {Options{Enabled: false}, stats},
		"quiet hours":        {Options{Enabled: true, Quiet: quiet}, stats},
		"nothing new":        {Options{Enabled: true}, internal.RunStats{Total: 5}},
		"important required": {Options{Enabled: true, Level: LevelImportant}, stats},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := &captureSender{}
			n := newNotifier(s, tc.opts, noon)
			assert.False(t, n.NotifyRun(context.Background(), tc.stats, msgs))
			assert.Empty(t, s.sent)
		})
	}
}

func TestNotifyRunFallsBackToSummary(t *testing.T) {
	s := &captureSender{}
	n := newNotifier(s, Options{Enabled: true, Level: LevelAll}, noon)
	stats := internal.RunStats{New: 2, ByCategory: map[internal.Category]int{internal.CategoryBilling: 2}}
	assert.True(t, n.NotifyRun(context.Background(), stats, nil))
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "💳 账单: 2")
}

func TestSendSilentSwallowsErrors(t *testing.T) {
	s := &captureSender{err: errors.New("Messages not running")}
	rec := &countRecorder{}
	n := newNotifier(s, Options{Enabled: true}, noon).WithRecorder(rec)
	assert.False(t, n.SendSilent(context.Background(), "hi"))
	assert.False(t, n.SendSilent(context.Background(), ""))
	assert.Equal(t, 1, rec.failed)
}

func TestNotifyErrorRespectsQuietHours(t *testing.T) {
	quiet, err := ParseQuietHours("23:00-07:00")
	require.NoError(t, err)

	s := &captureSender{}
	night := time.Date(2026, 3, 2, 2, 0, 0, 0, time.Local)
	assert.False(t, newNotifier(s, Options{Enabled: true, Quiet: quiet}, night).NotifyError(context.Background(), errors.New("x"), "run"))
	assert.True(t, newNotifier(s, Options{Enabled: true, Quiet: quiet}, noon).NotifyError(context.Background(), errors.New("x"), "run"))
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "环节: run")
}

func TestIMessageScript(t *testing.T) {
	var got string
	s := NewIMessageSender("+8613800000000", "")
	s.run = func(_ context.Context, script string) error {
		got = script
		return nil
	}
	require.NoError(t, s.Send(context.Background(), `say "hi" \ bye`))
	assert.Contains(t, got, `set targetService to 1st account whose service type = iMessage`)
	assert.Contains(t, got, `participant "+8613800000000"`)
	assert.Contains(t, got, `send "say \"hi\" \\ bye" to targetBuddy`)

	s = NewIMessageSender("me@icloud.com", "sender@icloud.com")
	s.run = func(_ context.Context, script string) error {
		got = script
		return nil
	}
	require.NoError(t, s.Send(context.Background(), "📬 ok"))
	assert.Contains(t, got, `account id "sender@icloud.com"`)
}

func TestIMessageRejectsBadInput(t *testing.T) {
	assert.ErrorIs(t, NewIMessageSender("", "").Send(context.Background(), "x"), ErrNoRecipient)
	assert.ErrorIs(t, NewIMessageSender("a", "").Send(context.Background(), ""), ErrEmptyMessage)
}

func TestIsImportant(t *testing.T) {
	assert.True(t, IsImportant(&internal.Message{Importance: 4}))
	assert.True(t, IsImportant(&internal.Message{NeedsAction: util.BoolPtr(true)}))
	assert.False(t, IsImportant(&internal.Message{Importance: 3}))
	assert.False(t, IsImportant(&internal.Message{}))
}
