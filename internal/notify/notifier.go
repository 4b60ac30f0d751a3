// Package notify formats run results and pushes them to the desktop
// messaging channel. Delivery is best-effort and never fails a run.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"emailmanager/internal"
)

type Sender interface {
	Send(ctx context.Context, text string) error
}

type Level string

const (
	LevelAll       Level = "all"
	LevelImportant Level = "important"
	LevelSummary   Level = "summary"
)

// Recorder receives one observation per delivery attempt.
type Recorder interface {
	ObserveNotification(ok bool)
}

// QuietHours is a local wall-clock window; End before Start wraps midnight.
// Both ends are inclusive.
type QuietHours struct {
	Start, End time.Duration
	set        bool
}

// ParseQuietHours reads "HH:MM-HH:MM". An empty string disables the window.
func ParseQuietHours(s string) (QuietHours, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return QuietHours{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return QuietHours{}, fmt.Errorf("quiet hours %q: want HH:MM-HH:MM", s)
	}
	start, err := clock(from)
	if err != nil {
		return QuietHours{}, err
	}
	end, err := clock(to)
	if err != nil {
		return QuietHours{}, err
	}
	return QuietHours{Start: start, End: end, set: true}, nil
}

func clock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("quiet hours %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (q QuietHours) Contains(t time.Time) bool {
	if !q.set {
		return false
	}
	now := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	if q.Start <= q.End {
		return q.Start <= now && now <= q.End
	}
	return now >= q.Start || now <= q.End
}

type Options struct {
	Enabled bool
	Level   Level
	Quiet   QuietHours
}

type Notifier struct {
	sender Sender
	opts   Options
	rec    Recorder
	log    zerolog.Logger
	now    func() time.Time
}

func New(sender Sender, opts Options, log zerolog.Logger) *Notifier {
	if opts.Level == "" {
		opts.Level = LevelSummary
	}
	return &Notifier{
		sender: sender,
		opts:   opts,
		log:    log.With().Str("component", "notify").Logger(),
		now:    time.Now,
	}
}

func (n *Notifier) WithRecorder(rec Recorder) *Notifier {
	cp := *n
	cp.rec = rec
	return &cp
}

func (n *Notifier) Quiet() bool {
	return n.opts.Quiet.Contains(n.now())
}

func (n *Notifier) active() bool {
	return n != nil && n.opts.Enabled && n.sender != nil && !n.Quiet()
}

// SendSilent delivers text and reports success. Errors are logged only.
func (n *Notifier) SendSilent(ctx context.Context, text string) bool {
	if text == "" || n.sender == nil {
		return false
	}
	err := n.sender.Send(ctx, text)
	if n.rec != nil {
		n.rec.ObserveNotification(err == nil)
	}
	if err != nil {
		n.log.Warn().Err(err).Msg("notification failed")
		return false
	}
	return true
}

// NotifyRun sends the end-of-run message: a digest of the new mail when
// there is any, else an alert or a count summary depending on the level.
func (n *Notifier) NotifyRun(ctx context.Context, stats internal.RunStats, newMsgs []*internal.Message) bool {
	if !n.active() || stats.New == 0 {
		return false
	}
	var important []*internal.Message
	for _, m := range newMsgs {
		if IsImportant(m) {
			important = append(important, m)
		}
	}
	if n.opts.Level == LevelImportant && len(important) == 0 {
		return false
	}

	at := n.now()
	var text string
	switch {
	case len(newMsgs) > 0:
		text = FormatDigest(newMsgs, at)
	case n.opts.Level == LevelImportant:
		text = FormatImportantAlert(important)
	default:
		text = FormatSummary(stats, at)
	}
	return n.SendSilent(ctx, text)
}

// NotifyError reports a failed run outside quiet hours.
func (n *Notifier) NotifyError(ctx context.Context, err error, stage string) bool {
	if !n.active() {
		return false
	}
	return n.SendSilent(ctx, FormatErrorAlert(err, stage))
}
