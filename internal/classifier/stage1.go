// Package classifier holds the two LLM passes: Stage1 labels messages from
// subject and sender, Stage2 reads the body of a single message.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"emailmanager/internal"
	"emailmanager/internal/jsonx"
	"emailmanager/internal/llm"
	"emailmanager/internal/rules"
	"emailmanager/internal/util"
)

const (
	stage1SubjectLimit = 100
	stage1SenderLimit  = 80
)

type Stage1 struct {
	llm       llm.Caller
	rules     *rules.Engine
	batchSize int
	timeout   time.Duration
	log       zerolog.Logger
}

func NewStage1(caller llm.Caller, engine *rules.Engine, batchSize int, timeout time.Duration, log zerolog.Logger) *Stage1 {
	if batchSize <= 0 {
		batchSize = 10
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Stage1{
		llm:       caller,
		rules:     engine,
		batchSize: batchSize,
		timeout:   timeout,
		log:       log.With().Str("component", "stage1").Logger(),
	}
}

type stage1Label struct {
	ID       flexInt `json:"id"`
	Category string  `json:"category"`
}

// Classify sets Stage1Category on every message. Rule matches skip the LLM;
// the rest go out in sub-batches and fall back to UNKNOWN on any failure.
func (s *Stage1) Classify(ctx context.Context, msgs []*internal.Message) {
	var pending []*internal.Message
	for _, m := range msgs {
		if s.rules != nil {
			if match, ok := s.rules.Match(m.From, m.Subject); ok {
				m.Stage1Category = match.Category
				m.RuleMatched = true
				m.RuleImportance = match.Importance
				s.log.Debug().
					Str("message_id", m.MessageID).
					Str("category", string(match.Category)).
					Str("rule", string(match.Source)).
					Str("pattern", match.Pattern).
					Msg("rule match")
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(msgs) > 0 {
		s.log.Info().Int("total", len(msgs)).Int("rule_matched", len(msgs)-len(pending)).Msg("stage1 rules applied")
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		s.classifyBatch(ctx, pending[start:end], start)
	}
}

func (s *Stage1) classifyBatch(ctx context.Context, batch []*internal.Message, offset int) {
	for _, m := range batch {
		m.Stage1Category = internal.CategoryUnknown
	}

	content, err := s.llm.Call(ctx, stage1System, buildStage1Prompt(batch), s.timeout)
	if err != nil {
		s.log.Warn().Err(err).Int("offset", offset).Int("size", len(batch)).Msg("stage1 batch failed")
		return
	}

	var labels []stage1Label
	if !jsonx.ExtractInto(content, true, &labels) {
		s.log.Warn().Int("offset", offset).Str("response", util.Truncate(content, 200)).Msg("stage1 response not parseable")
		return
	}

	byID := make(map[int]internal.Category, len(labels))
	for _, l := range labels {
		if !l.ID.ok {
			continue
		}
		byID[l.ID.v] = internal.ParseCategory(l.Category)
	}
	for i, m := range batch {
		if c, ok := byID[i+1]; ok {
			m.Stage1Category = c
		}
	}
}

func buildStage1Prompt(batch []*internal.Message) string {
	var b strings.Builder
	b.WriteString("请分析以下邮件，根据标题和发件人判断分类：\n\n")
	for i, m := range batch {
		fmt.Fprintf(&b, "%d. 标题: %s\n   发件人: %s\n",
			i+1,
			util.Truncate(m.Subject, stage1SubjectLimit),
			util.Truncate(m.From, stage1SenderLimit))
	}
	b.WriteString("\n返回JSON数组：")
	return b.String()
}
