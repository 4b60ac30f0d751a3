package llm

import (
	"context"
	"time"
)

type Recorder interface {
	ObserveLLM(stage string, d time.Duration, err error)
}

type instrumented struct {
	next  Caller
	rec   Recorder
	stage string
}

// Instrument reports every call through rec under the given stage label.
func Instrument(next Caller, rec Recorder, stage string) Caller {
	if rec == nil {
		return next
	}
	return &instrumented{next: next, rec: rec, stage: stage}
}

func (i *instrumented) Call(ctx context.Context, system, user string, timeout time.Duration) (string, error) {
	start := time.Now()
	out, err := i.next.Call(ctx, system, user, timeout)
	i.rec.ObserveLLM(i.stage, time.Since(start), err)
	return out, err
}
