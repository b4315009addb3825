package qrecover

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

/*
Metrics tracks executor attempts and trial latency across runs. It keeps an in-process
snapshot for reports and mirrors every count into prometheus collectors registered on
its own registry, which the command serves over HTTP when asked to.
*/
type Metrics struct {
	mu sync.RWMutex

	TrialCount         int64
	AttemptCount       int64
	FailedAttempts     int64
	TotalTrialTime     time.Duration
	AverageTrialTime   time.Duration
	P95TrialLatency    time.Duration
	P99TrialLatency    time.Duration
	AttemptsPerTrial   float64
	AttemptSuccessRate float64

	latencyWindow []time.Duration
	windowSize    int

	registry *prometheus.Registry
	trials   *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates a metrics set with its own prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		latencyWindow: make([]time.Duration, 0, 1000),
		windowSize:    1000,
		registry:      prometheus.NewRegistry(),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrecover_trials_total",
			Help: "Trials completed, by experiment mode.",
		}, []string{"mode"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrecover_attempts_total",
			Help: "Executor attempts, by experiment mode and result.",
		}, []string{"mode", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrecover_trial_duration_seconds",
			Help:    "Wall time of a trial including retries.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"mode"}),
	}

	m.registry.MustRegister(m.trials, m.attempts, m.duration)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAttempt counts one executor attempt.
func (m *Metrics) RecordAttempt(mode Mode, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.attempts.WithLabelValues(mode.String(), result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.AttemptCount++
	if err != nil {
		m.FailedAttempts++
	}
	m.AttemptSuccessRate = float64(m.AttemptCount-m.FailedAttempts) / float64(m.AttemptCount)
	if m.TrialCount > 0 {
		m.AttemptsPerTrial = float64(m.AttemptCount) / float64(m.TrialCount)
	}
}

// RecordTrial records a completed trial and its latency.
func (m *Metrics) RecordTrial(mode Mode, duration time.Duration) {
	m.trials.WithLabelValues(mode.String()).Inc()
	m.duration.WithLabelValues(mode.String()).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.TrialCount++
	m.TotalTrialTime += duration
	m.AverageTrialTime = m.TotalTrialTime / time.Duration(m.TrialCount)
	m.AttemptsPerTrial = float64(m.AttemptCount) / float64(m.TrialCount)
	m.updateLatencyPercentiles(duration)
}

func (m *Metrics) updateLatencyPercentiles(duration time.Duration) {
	m.latencyWindow = append(m.latencyWindow, duration)
	if len(m.latencyWindow) > m.windowSize {
		m.latencyWindow = m.latencyWindow[1:]
	}

	sorted := make([]time.Duration, len(m.latencyWindow))
	copy(sorted, m.latencyWindow)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	p95Index := min(int(float64(len(sorted))*0.95), len(sorted)-1)
	p99Index := min(int(float64(len(sorted))*0.99), len(sorted)-1)

	m.P95TrialLatency = sorted[p95Index]
	m.P99TrialLatency = sorted[p99Index]
}

// ExportMetrics returns a snapshot for reporting.
func (m *Metrics) ExportMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"trials":             m.TrialCount,
		"attempts":           m.AttemptCount,
		"failed_attempts":    m.FailedAttempts,
		"attempts_per_trial": m.AttemptsPerTrial,
		"success_rate":       m.AttemptSuccessRate,
		"avg_latency":        m.AverageTrialTime.Milliseconds(),
		"p95_latency":        m.P95TrialLatency.Milliseconds(),
		"p99_latency":        m.P99TrialLatency.Milliseconds(),
	}
}
