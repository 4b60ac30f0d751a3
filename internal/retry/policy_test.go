package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDoRetriesUntilSuccess(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Fixed(2 * time.Second),
		OnRetry:     func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) },
		sleep:       noSleep,
	}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waits)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: Fixed(time.Second), sleep: noSleep}
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return errors.New("still failing")
	})
	assert.EqualError(t, err, "still failing")
	assert.Equal(t, 3, calls)
}

func TestDoPermanentError(t *testing.T) {
	p := Policy{MaxAttempts: 5, sleep: noSleep}
	calls := 0
	base := errors.New("bad request")
	err := p.Do(context.Background(), func(int) error {
		calls++
		return Permanent(base)
	})
	assert.ErrorIs(t, err, base)
	assert.Equal(t, 1, calls)
}

func TestDoRetryableFilter(t *testing.T) {
	transient := errors.New("transient")
	p := Policy{
		MaxAttempts: 4,
		Retryable:   func(err error) bool { return errors.Is(err, transient) },
		sleep:       noSleep,
	}
	calls := 0
	_ = p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt == 1 {
			return transient
		}
		return errors.New("fatal")
	})
	assert.Equal(t, 2, calls)
}

func TestExponentialCapped(t *testing.T) {
	b := Exponential(time.Second, 3*time.Second)
	assert.GreaterOrEqual(t, b(1), time.Second)
	assert.Less(t, b(1), time.Second+100*time.Millisecond)
	assert.GreaterOrEqual(t, b(5), 3*time.Second)
	assert.Less(t, b(5), 3*time.Second+100*time.Millisecond)
}
