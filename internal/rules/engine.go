// Package rules decides well-known senders and subjects without an LLM call.
package rules

import (
	"regexp"
	"strings"

	"emailmanager/internal"
)

type Source string

const (
	SourceAllowlist Source = "allowlist"
	SourceDenylist  Source = "denylist"
	SourceExam      Source = "exam_keyword"
	SourceAdvert    Source = "post_publication_ad"
)

type Match struct {
	Category   internal.Category
	Importance int
	Source     Source
	Pattern    string
}

type SenderRule struct {
	Pattern    string
	Category   internal.Category
	Importance int
}

type Engine struct {
	allow        []SenderRule
	deny         []string
	examWords    []string
	examPatterns []*regexp.Regexp
	adPhrases    []string
}

func New(allow []SenderRule, deny, examWords []string, examPatterns []*regexp.Regexp, adPhrases []string) *Engine {
	return &Engine{
		allow:        lowerRules(allow),
		deny:         lowerAll(deny),
		examWords:    lowerAll(examWords),
		examPatterns: examPatterns,
		adPhrases:    lowerAll(adPhrases),
	}
}

// Match checks, in order: sender allowlist, sender denylist, exam keywords in
// subject or sender, post-publication advertising in the subject. The first
// hit wins; ok is false when the caller has to ask the LLM.
func (e *Engine) Match(sender, subject string) (Match, bool) {
	from := strings.ToLower(sender)
	subj := strings.ToLower(subject)

	for _, r := range e.allow {
		if strings.Contains(from, r.Pattern) {
			return Match{Category: r.Category, Importance: r.Importance, Source: SourceAllowlist, Pattern: r.Pattern}, true
		}
	}

	for _, p := range e.deny {
		if strings.Contains(from, p) {
			return Match{Category: internal.CategoryTrash, Importance: 1, Source: SourceDenylist, Pattern: p}, true
		}
	}

	for _, w := range e.examWords {
		if strings.Contains(subj, w) || strings.Contains(from, w) {
			return Match{Category: internal.CategoryExam, Importance: 5, Source: SourceExam, Pattern: w}, true
		}
	}
	for _, re := range e.examPatterns {
		if re.MatchString(subj) || re.MatchString(from) {
			return Match{Category: internal.CategoryExam, Importance: 5, Source: SourceExam, Pattern: re.String()}, true
		}
	}

	for _, p := range e.adPhrases {
		if strings.Contains(subj, p) {
			return Match{Category: internal.CategoryTrash, Importance: 1, Source: SourceAdvert, Pattern: p}, true
		}
	}

	return Match{}, false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerRules(in []SenderRule) []SenderRule {
	out := make([]SenderRule, 0, len(in))
	for _, r := range in {
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		if r.Pattern != "" {
			out = append(out, r)
		}
	}
	return out
}
