package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailmanager/internal"
)

type scriptedRunner struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	cancel context.CancelFunc
	stopAt int
}

func (s *scriptedRunner) CheckAndProcess(context.Context) (internal.RunStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls >= s.stopAt {
		s.cancel()
	}
	var err error
	if s.calls <= len(s.errs) {
		err = s.errs[s.calls-1]
	}
	if err == nil {
		return internal.RunStats{RunID: "r", New: 1}, nil
	}
	if err == errPanic {
		panic("boom")
	}
	return internal.RunStats{}, err
}

var errPanic = errors.New("panic please")

type alerts struct {
	mu     sync.Mutex
	errors []string
}

func (a *alerts) NotifyError(_ context.Context, err error, stage string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, stage+": "+err.Error())
	return true
}

func TestRunContinuesAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &scriptedRunner{
		errs:   []error{errors.New("notion unreachable"), errPanic, nil},
		cancel: cancel,
		stopAt: 3,
	}
	a := &alerts{}
	s := NewService(runner, a, time.Millisecond, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, []string{"邮件处理: notion unreachable", "邮件处理: panic: boom"}, a.errors)
}

func TestCancelledCycleIsNotAlerted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &scriptedRunner{errs: []error{context.Canceled}, cancel: cancel, stopAt: 1}
	a := &alerts{}

	require.NoError(t, NewService(runner, a, time.Hour, zerolog.Nop()).Run(ctx))
	assert.Equal(t, 1, runner.calls)
	assert.Empty(t, a.errors)
}
