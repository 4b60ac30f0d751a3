// Package pipeline runs one pass over the mailboxes: fetch, classify,
// reconcile, sync, mark and notify.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"emailmanager/internal"
	"emailmanager/internal/billing"
	"emailmanager/internal/classifier"
	"emailmanager/internal/llm"
	"emailmanager/internal/metrics"
	"emailmanager/internal/notify"
	"emailmanager/internal/rules"
	"emailmanager/internal/storage"
	"emailmanager/internal/syncer"
)

const (
	ModeWatch   = "watch"
	ModeRebuild = "rebuild"
)

// Mailbox is the slice of connectors.Mailbox the pipeline drives.
type Mailbox interface {
	FetchUnread(ctx context.Context, limit, maxAgeDays int) []*internal.Message
	FetchRecent(ctx context.Context, days, limit int) []*internal.Message
	LoadBody(msg *internal.Message) string
	MarkRead(ctx context.Context, account, localID string) bool
}

type Deps struct {
	Mailbox  Mailbox
	LLM      llm.Caller
	Rules    *rules.Engine
	Syncer   *syncer.Syncer
	Store    *storage.DB
	Notifier *notify.Notifier
}

type Options struct {
	MaxEmails         int
	MaxAgeDays        int
	Stage1BatchSize   int
	Stage2BodyLimit   int
	Stage2Concurrency int
	LLMTimeout        time.Duration
}

type Processor struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

func New(deps Deps, opts Options, log zerolog.Logger) *Processor {
	if opts.MaxEmails <= 0 {
		opts.MaxEmails = 100
	}
	return &Processor{
		deps: deps,
		opts: opts,
		log:  log.With().Str("component", "pipeline").Logger(),
	}
}

// CheckAndProcess handles the unread mail not yet in the marker store.
// Only a marker store that cannot be read fails the run.
func (p *Processor) CheckAndProcess(ctx context.Context) (internal.RunStats, error) {
	r := p.newRun(ModeWatch, true)
	r.log.Info().Msg("checking mail")

	stop := r.metrics.Time("fetch")
	unread := p.deps.Mailbox.FetchUnread(ctx, p.opts.MaxEmails, p.opts.MaxAgeDays)
	stop()
	r.stats.Total = len(unread)

	processed, err := p.deps.Store.ProcessedIDs()
	if err != nil {
		return r.stats, fmt.Errorf("load processed ids: %w", err)
	}
	fresh := FilterNew(unread, processed)
	r.stats.New = len(fresh)
	r.log.Info().Int("unread", len(unread)).Int("new", len(fresh)).Msg("fetched")

	if len(fresh) == 0 {
		r.finish()
		return r.stats, nil
	}

	runErr := r.process(ctx, fresh)
	if ctx.Err() == nil && p.deps.Notifier != nil {
		r.stats.Notified = p.deps.Notifier.WithRecorder(r.metrics).NotifyRun(ctx, r.stats, fresh)
	}
	r.finish()
	return r.stats, runErr
}

// RebuildRecent reprocesses the last days of mail, read or not, without
// the processed filter. Seen flags are left alone and nothing is notified.
func (p *Processor) RebuildRecent(ctx context.Context, days, limit int) (internal.RunStats, error) {
	r := p.newRun(ModeRebuild, false)

	stop := r.metrics.Time("fetch")
	msgs := p.deps.Mailbox.FetchRecent(ctx, days, limit)
	stop()
	r.stats.Total = len(msgs)
	r.stats.New = len(msgs)
	r.log.Info().Int("days", days).Int("messages", len(msgs)).Msg("rebuilding")

	var err error
	if len(msgs) > 0 {
		err = r.process(ctx, msgs)
	}
	r.finish()
	return r.stats, err
}

// FilterNew drops messages whose id is already marked. Messages without an
// id are always new.
func FilterNew(msgs []*internal.Message, processed map[string]struct{}) []*internal.Message {
	out := make([]*internal.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.MessageID != "" {
			if _, seen := processed[m.MessageID]; seen {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// run is the state of one invocation. Collaborators that report metrics are
// rebuilt per run so each run owns its registry.
type run struct {
	p        *Processor
	id       string
	mode     string
	markRead bool
	metrics  *metrics.Run
	stage1   *classifier.Stage1
	stage2   *classifier.Stage2
	billing  *billing.Parser
	syncer   *syncer.Syncer
	stats    internal.RunStats
	firstErr error
	log      zerolog.Logger
}

func (p *Processor) newRun(mode string, markRead bool) *run {
	id := uuid.NewString()
	m := metrics.NewRun()
	log := p.log.With().Str("run_id", id).Str("mode", mode).Logger()
	o := p.opts
	return &run{
		p:        p,
		id:       id,
		mode:     mode,
		markRead: markRead,
		metrics:  m,
		stage1:   classifier.NewStage1(llm.Instrument(p.deps.LLM, m, "stage1"), p.deps.Rules, o.Stage1BatchSize, o.LLMTimeout, log),
		stage2:   classifier.NewStage2(llm.Instrument(p.deps.LLM, m, "stage2"), o.Stage2BodyLimit, o.Stage2Concurrency, o.LLMTimeout, log),
		billing:  billing.NewParser(llm.Instrument(p.deps.LLM, m, "billing"), p.deps.Mailbox.LoadBody, o.LLMTimeout, log),
		syncer:   p.deps.Syncer.WithRecorder(m),
		stats:    internal.RunStats{RunID: id, ByCategory: map[internal.Category]int{}},
		log:      log,
	}
}

// finish persists the run row. Failure here is logged only.
func (r *run) finish() {
	snap := r.metrics.Snapshot()
	counts := snap.Counts
	counts["total"] = r.stats.Total
	counts["new"] = r.stats.New
	counts["synced"] = r.stats.Synced
	counts["marked_read"] = r.stats.MarkedRead
	for c, n := range r.stats.ByCategory {
		counts["category."+strings.ToLower(string(c))] = n
	}
	if err := r.p.deps.Store.InsertRun(r.id, r.mode, snap.Timings, counts); err != nil {
		r.log.Warn().Err(err).Msg("persist run")
	}
	r.log.Info().
		Int("total", r.stats.Total).
		Int("new", r.stats.New).
		Int("synced", r.stats.Synced).
		Int("marked_read", r.stats.MarkedRead).
		Float64("seconds", snap.Timings["total"]).
		Msg("run finished")
	if ev := r.log.Debug(); ev.Enabled() {
		ev.Str("metrics", r.metrics.Summary()).Msg("run metrics")
	}
}
