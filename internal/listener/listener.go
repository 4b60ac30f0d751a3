// Package listener polls the mailboxes on a fixed interval.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"emailmanager/internal"
)

const errorStage = "邮件处理"

// Runner is one pass of the pipeline.
type Runner interface {
	CheckAndProcess(ctx context.Context) (internal.RunStats, error)
}

// Alerter reports a failed pass. It decides itself whether to stay quiet.
type Alerter interface {
	NotifyError(ctx context.Context, err error, stage string) bool
}

type Service struct {
	runner   Runner
	alerter  Alerter
	interval time.Duration
	log      zerolog.Logger
}

func NewService(runner Runner, alerter Alerter, interval time.Duration, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Service{
		runner:   runner,
		alerter:  alerter,
		interval: interval,
		log:      log.With().Str("component", "listener").Logger(),
	}
}

// Run loops until ctx is cancelled. A failed pass is logged and alerted,
// then the loop waits a full interval. Passes never overlap.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("watcher started")
	for {
		s.runCycle(ctx)

		s.log.Info().Time("next", time.Now().Add(s.interval)).Msg("sleeping")
		select {
		case <-ctx.Done():
			s.log.Info().Msg("watcher stopped")
			return nil
		case <-time.After(s.interval):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("cycle panicked")
			if s.alerter != nil {
				s.alerter.NotifyError(ctx, fmt.Errorf("panic: %v", r), errorStage)
			}
		}
	}()

	stats, err := s.runner.CheckAndProcess(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.log.Error().Err(err).Str("run_id", stats.RunID).Msg("cycle failed")
		if s.alerter != nil {
			s.alerter.NotifyError(ctx, err, errorStage)
		}
		return
	}
	s.log.Info().
		Str("run_id", stats.RunID).
		Int("total", stats.Total).
		Int("new", stats.New).
		Int("synced", stats.Synced).
		Bool("notified", stats.Notified).
		Msg("cycle done")
}
