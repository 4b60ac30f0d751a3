package pipeline

import (
	"context"
	"errors"
	"fmt"

	"emailmanager/internal"
	"emailmanager/internal/reconcile"
)

// errStopped ends a run early when the context is cancelled. Messages not yet
// marked stay eligible for the next run.
var errStopped = errors.New("run cancelled")

// process runs Stage-1 over msgs and then each category group in a fixed
// order. Every message ends with its marker, then mark-read.
func (r *run) process(ctx context.Context, msgs []*internal.Message) error {
	stop := r.metrics.Time("stage1")
	r.stage1.Classify(ctx, msgs)
	stop()

	groups := reconcile.Group(msgs)
	for c, n := range groups.Counts() {
		r.stats.ByCategory[c] = n
		r.metrics.CountEmails(string(c), n)
	}
	r.log.Info().Interface("groups", r.stats.ByCategory).Msg("stage1 grouped")

	steps := []func(context.Context, reconcile.Groups) error{
		r.trash,
		r.academic,
		r.billingGroup,
		r.plain(internal.CategoryNotice),
		r.plain(internal.CategoryExam),
		r.plain(internal.CategoryPersonal),
	}
	for _, step := range steps {
		if err := step(ctx, groups); err != nil {
			if errors.Is(err, errStopped) {
				return ctx.Err()
			}
			return err
		}
	}
	return r.firstErr
}

func (r *run) trash(ctx context.Context, g reconcile.Groups) error {
	for _, m := range g[internal.CategoryTrash] {
		if err := r.finishMessage(ctx, m, reconcile.DecideDefault(m), false); err != nil {
			return err
		}
	}
	return nil
}

// academic covers PAPER, REVIEW and UNKNOWN in one Stage-2 batch so the
// item source indices line up with the message positions.
func (r *run) academic(ctx context.Context, g reconcile.Groups) error {
	var msgs []*internal.Message
	for _, c := range []internal.Category{internal.CategoryPaper, internal.CategoryReview, internal.CategoryUnknown} {
		msgs = append(msgs, g[c]...)
	}
	if len(msgs) == 0 {
		return nil
	}

	res := r.analyze(ctx, msgs)

	stop := r.metrics.Time("sync")
	st := r.syncer.SyncAcademicItems(ctx, res.Items)
	stop()
	r.stats.Papers += st.Papers
	r.stats.Reviews += st.Reviews
	r.log.Info().
		Int("items", len(res.Items)).
		Int("papers", st.Papers).
		Int("reviews", st.Reviews).
		Int("failed", st.Failed).
		Msg("academic items synced")

	for i, m := range msgs {
		d := reconcile.Decide(m, i+1, res)
		if err := r.finishMessage(ctx, m, d, r.summary(ctx, m, d)); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) billingGroup(ctx context.Context, g reconcile.Groups) error {
	msgs := g[internal.CategoryBilling]
	if len(msgs) == 0 {
		return nil
	}
	r.loadBodies(msgs)

	stop := r.metrics.Time("billing")
	entries := r.billing.Parse(ctx, msgs)
	st := r.syncer.SyncBilling(ctx, entries, msgs)
	stop()
	r.stats.Billing += st.Synced
	r.log.Info().
		Int("entries", len(entries)).
		Int("new_items", st.NewItems).
		Int("updated_records", st.UpdatedRecords).
		Int("synced", st.Synced).
		Msg("billing synced")

	for _, m := range msgs {
		d := reconcile.DecideDefault(m)
		if err := r.finishMessage(ctx, m, d, r.summary(ctx, m, d)); err != nil {
			return err
		}
	}
	return nil
}

// plain handles groups that only need Stage-2 refinement and a summary row.
func (r *run) plain(c internal.Category) func(context.Context, reconcile.Groups) error {
	return func(ctx context.Context, g reconcile.Groups) error {
		msgs := g[c]
		if len(msgs) == 0 {
			return nil
		}
		r.analyze(ctx, msgs)
		for _, m := range msgs {
			d := reconcile.DecideDefault(m)
			if err := r.finishMessage(ctx, m, d, r.summary(ctx, m, d)); err != nil {
				return err
			}
		}
		return nil
	}
}

func (r *run) analyze(ctx context.Context, msgs []*internal.Message) internal.Stage2Result {
	r.loadBodies(msgs)
	stop := r.metrics.Time("stage2")
	defer stop()
	return r.stage2.Analyze(ctx, msgs)
}

func (r *run) loadBodies(msgs []*internal.Message) {
	stop := r.metrics.Time("load_body")
	defer stop()
	for _, m := range msgs {
		r.p.deps.Mailbox.LoadBody(m)
	}
}

func (r *run) summary(ctx context.Context, m *internal.Message, d reconcile.Decision) bool {
	if !d.Sync || d.IsTrash {
		return false
	}
	stop := r.metrics.Time("sync")
	defer stop()
	return r.syncer.SyncSummary(ctx, m, d)
}

// finishMessage writes the marker and then clears the unread flag. A
// cancelled context stops before the marker so the message is retried.
func (r *run) finishMessage(ctx context.Context, m *internal.Message, d reconcile.Decision, synced bool) error {
	if ctx.Err() != nil {
		return errStopped
	}
	if synced {
		r.stats.Synced++
	}

	if err := r.syncer.MarkProcessed(m, d, synced, r.markRead); err != nil {
		r.log.Error().Err(err).Str("message_id", m.MessageID).Msg("write marker")
		if r.firstErr == nil {
			r.firstErr = fmt.Errorf("write marker %s: %w", m.MessageID, err)
		}
	}
	if !r.markRead {
		return nil
	}

	if r.p.deps.Mailbox.MarkRead(ctx, m.Account, m.LocalID) {
		r.stats.MarkedRead++
		return nil
	}
	if m.MessageID != "" {
		if err := r.p.deps.Store.SetMarkedRead(m.MessageID, false); err != nil {
			r.log.Warn().Err(err).Str("message_id", m.MessageID).Msg("record mark-read failure")
		}
	}
	return nil
}
