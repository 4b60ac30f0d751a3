// Package metrics holds the per-run metrics context. Each run builds its own
// registry so nothing leaks between poll iterations.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Run struct {
	registry *prometheus.Registry

	llmCalls       *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	emails         *prometheus.CounterVec
	remoteSyncs    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	notifications  *prometheus.CounterVec

	mu      sync.Mutex
	started time.Time
	phases  map[string]time.Duration
}

func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		registry: reg,
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "LLM calls by stage and outcome",
		}, []string{"stage", "status"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM call latency",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		emails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_processed_total",
			Help: "Processed emails by final stage-1 category",
		}, []string{"category"}),
		remoteSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_sync_total",
			Help: "Remote store writes by database and outcome",
		}, []string{"database", "status"}),
		remoteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remote_sync_duration_seconds",
			Help:    "Remote store request latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"database"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by outcome",
		}, []string{"status"}),
		started: time.Now(),
		phases:  make(map[string]time.Duration),
	}
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

func (r *Run) ObserveLLM(stage string, d time.Duration, err error) {
	r.llmCalls.WithLabelValues(stage, status(err)).Inc()
	r.llmDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Run) ObserveRemote(database string, d time.Duration, ok bool) {
	s := StatusOK
	if !ok {
		s = StatusError
	}
	r.remoteSyncs.WithLabelValues(database, s).Inc()
	r.remoteDuration.WithLabelValues(database).Observe(d.Seconds())
}

func (r *Run) CountEmails(category string, n int) {
	if n <= 0 {
		return
	}
	r.emails.WithLabelValues(category).Add(float64(n))
}

func (r *Run) ObserveNotification(ok bool) {
	s := StatusOK
	if !ok {
		s = StatusError
	}
	r.notifications.WithLabelValues(s).Inc()
}

// Phase records wall time for a named pipeline step. Repeated phases add up.
func (r *Run) Phase(name string, d time.Duration) {
	r.mu.Lock()
	r.phases[name] += d
	r.mu.Unlock()
}

// Time returns a func that records the elapsed time for name when called.
func (r *Run) Time(name string) func() {
	start := time.Now()
	return func() { r.Phase(name, time.Since(start)) }
}

type Snapshot struct {
	Timings map[string]float64
	Counts  map[string]int
}

// Snapshot flattens the registry into plain maps for persistence.
func (r *Run) Snapshot() Snapshot {
	snap := Snapshot{
		Timings: make(map[string]float64),
		Counts:  make(map[string]int),
	}

	r.mu.Lock()
	for name, d := range r.phases {
		snap.Timings[name] = d.Seconds()
	}
	r.mu.Unlock()
	snap.Timings["total"] = time.Since(r.started).Seconds()

	families, err := r.registry.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := metricKey(mf.GetName(), m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				snap.Counts[key] = int(m.GetCounter().GetValue())
			case dto.MetricType_HISTOGRAM:
				snap.Timings[key] = m.GetHistogram().GetSampleSum()
			}
		}
	}
	return snap
}

// metricKey joins the name with label values. Gather sorts labels by name.
func metricKey(name string, labels []*dto.LabelPair) string {
	parts := []string{strings.TrimSuffix(strings.TrimSuffix(name, "_total"), "_seconds")}
	for _, l := range labels {
		parts = append(parts, l.GetValue())
	}
	return strings.Join(parts, ".")
}

// Summary renders the snapshot as sorted key=value lines.
func (r *Run) Summary() string {
	snap := r.Snapshot()
	var lines []string
	for k, v := range snap.Counts {
		lines = append(lines, fmt.Sprintf("%s=%d", k, v))
	}
	for k, v := range snap.Timings {
		lines = append(lines, fmt.Sprintf("%s=%.2fs", k, v))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
