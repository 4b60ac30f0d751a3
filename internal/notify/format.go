package notify

import (
	"fmt"
	"strings"
	"time"

	"emailmanager/internal"
	"emailmanager/internal/util"
)

const (
	alertLimit      = 5
	digestLimit     = 10
	alertSubjectLen = 30
	alertSummaryLen = 15
	digestFallback  = 20
	errorLimit      = 100
	noSubject       = "无标题"
)

var summaryLabels = []struct {
	category internal.Category
	label    string
}{
	{internal.CategoryPaper, "📄 论文"},
	{internal.CategoryReview, "📝 审稿"},
	{internal.CategoryBilling, "💳 账单"},
	{internal.CategoryNotice, "📢 通知"},
	{internal.CategoryExam, "📋 考试"},
	{internal.CategoryPersonal, "👤 个人"},
	{internal.CategoryTrash, "🗑️ 垃圾"},
}

var icons = map[internal.Category]string{
	internal.CategoryPaper:    "📄",
	internal.CategoryReview:   "📝",
	internal.CategoryBilling:  "💳",
	internal.CategoryNotice:   "📢",
	internal.CategoryExam:     "📋",
	internal.CategoryPersonal: "👤",
	internal.CategoryUnknown:  "📧",
}

// IsImportant is the alert threshold: importance 4+ or an action flag.
func IsImportant(m *internal.Message) bool {
	return m.ImportanceOr(2) >= 4 || m.NeedsActionOr(false)
}

// FormatSummary renders per-category counts. Runs without new mail render
// to "".
func FormatSummary(stats internal.RunStats, at time.Time) string {
	if stats.New == 0 {
		return ""
	}
	lines := []string{
		"📬 邮件处理完成",
		"时间: " + at.Format("15:04"),
		"",
		fmt.Sprintf("📥 新邮件: %d 封", stats.New),
	}
	var details []string
	for _, l := range summaryLabels {
		if n := stats.Count(l.category); n > 0 {
			details = append(details, fmt.Sprintf("%s: %d", l.label, n))
		}
	}
	if len(details) > 0 {
		lines = append(lines, strings.Join(details, " | "))
	}
	return strings.Join(lines, "\n")
}

func FormatImportantAlert(msgs []*internal.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := []string{"⚠️ 重要邮件提醒", ""}
	for _, m := range head(msgs, alertLimit) {
		lines = append(lines, "• "+util.Truncate(subjectOf(m), alertSubjectLen))
		if s := util.Truncate(m.Summary, alertSummaryLen); s != "" {
			lines = append(lines, "  "+s)
		}
	}
	if len(msgs) > alertLimit {
		lines = append(lines, fmt.Sprintf("...还有 %d 封", len(msgs)-alertLimit))
	}
	return strings.Join(lines, "\n")
}

// FormatDigest lists one line per non-trash message.
func FormatDigest(msgs []*internal.Message, at time.Time) string {
	var valid []*internal.Message
	for _, m := range msgs {
		if m.Stage1Category != internal.CategoryTrash {
			valid = append(valid, m)
		}
	}
	if len(valid) == 0 {
		return ""
	}

	lines := []string{
		fmt.Sprintf("📬 新邮件 (%d封)", len(valid)),
		at.Format("15:04"),
		"",
	}
	for _, m := range head(valid, digestLimit) {
		icon, ok := icons[m.Stage1Category]
		if !ok {
			icon = icons[internal.CategoryUnknown]
		}
		summary := m.Summary
		if summary == "" {
			summary = util.Truncate(subjectOf(m), digestFallback)
		}
		urgent := ""
		if IsImportant(m) {
			urgent = "⚡"
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", icon, urgent, summary))
	}
	if len(valid) > digestLimit {
		lines = append(lines, fmt.Sprintf("...还有 %d 封", len(valid)-digestLimit))
	}
	return strings.Join(lines, "\n")
}

func FormatErrorAlert(err error, stage string) string {
	lines := []string{"❌ 邮件处理出错"}
	if stage != "" {
		lines = append(lines, "环节: "+stage)
	}
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	if len([]rune(text)) > errorLimit {
		text = util.Truncate(text, errorLimit) + "..."
	}
	lines = append(lines, "错误: "+text)
	return strings.Join(lines, "\n")
}

func subjectOf(m *internal.Message) string {
	if m.Subject == "" {
		return noSubject
	}
	return m.Subject
}

func head(msgs []*internal.Message, n int) []*internal.Message {
	if len(msgs) > n {
		return msgs[:n]
	}
	return msgs
}
