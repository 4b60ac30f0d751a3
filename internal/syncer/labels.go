package syncer

import (
	"strings"
	"time"
)

type statusEntry struct {
	key   string
	label string
}

// Checked in order against the lower-cased status; the first contained key
// wins, so "submitted" shadows later entries for "revision submitted".
var paperStatuses = []statusEntry{
	{"submitted", "已投稿"},
	{"under review", "审稿中"},
	{"with editor", "审稿中"},
	{"minor revision", "小修"},
	{"major revision", "大修"},
	{"accepted", "已接收"},
	{"rejected", "被拒稿"},
	{"已投稿", "已投稿"},
	{"审稿中", "审稿中"},
	{"小修", "小修"},
	{"大修", "大修"},
	{"已接收", "已接收"},
	{"被拒稿", "被拒稿"},
}

var reviewStatuses = []statusEntry{
	{"pending", "待接受"},
	{"invited", "待接受"},
	{"accepted", "已接受"},
	{"in progress", "审稿中"},
	{"reviewing", "审稿中"},
	{"submitted", "已提交"},
	{"completed", "已提交"},
	{"待接受", "待接受"},
	{"已接受", "已接受"},
	{"审稿中", "审稿中"},
	{"已提交", "已提交"},
}

func normalize(status string, table []statusEntry, fallback string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return fallback
	}
	for _, e := range table {
		if strings.Contains(s, e.key) {
			return e.label
		}
	}
	return fallback
}

func NormalizePaperStatus(status string) string {
	return normalize(status, paperStatuses, "审稿中")
}

func NormalizeReviewStatus(status string) string {
	return normalize(status, reviewStatuses, "待接受")
}

var importanceLabels = map[int]string{
	5: "5-紧急",
	4: "4-重要",
	3: "3-一般",
	2: "2-可选",
	1: "1-低",
}

func ImportanceLabel(importance int) string {
	if l, ok := importanceLabels[importance]; ok {
		return l
	}
	return importanceLabels[2]
}

// VenueTypeLabel maps the model's venue_type to the select option.
func VenueTypeLabel(venueType string) string {
	switch strings.ToLower(strings.TrimSpace(venueType)) {
	case "", "journal", "期刊":
		return "期刊"
	default:
		return "会议"
	}
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04",
	"2006/01/02",
}

// ParseDate tries each layout in turn and returns the day as YYYY-MM-DD.
// A trailing "(CST)" style zone comment is ignored.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
