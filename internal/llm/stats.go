package llm

import (
	"slices"
	"sync"
	"time"
)

type callSample struct {
	at         time.Time
	durationMs int64
	failed     bool
}

// StatsSnapshot aggregates backend calls inside the rolling window.
type StatsSnapshot struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	Retries  int     `json:"retries"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// Stats tracks backend call latency and outcome over a rolling window.
type Stats struct {
	mu      sync.Mutex
	window  time.Duration
	samples []callSample
	retries []time.Time
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{window: window, samples: make([]callSample, 0, 256)}
}

// Record adds one completed call.
func (s *Stats) Record(d time.Duration, failed bool) {
	ms := max(d.Milliseconds(), 0)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.samples = append(s.samples, callSample{at: now, durationMs: ms, failed: failed})
}

// RecordRetry counts one retry decision.
func (s *Stats) RecordRetry() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.retries = append(s.retries, now)
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	snap := StatsSnapshot{Retries: len(s.retries)}
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]int64, len(s.samples))
	var sum int64
	for i, sm := range s.samples {
		values[i] = sm.durationMs
		sum += sm.durationMs
		if sm.failed {
			snap.Failures++
		}
	}
	slices.Sort(values)

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(c callSample) bool { return c.at.Before(cutoff) })
	s.retries = slices.DeleteFunc(s.retries, func(t time.Time) bool { return t.Before(cutoff) })
}

// percentile interpolates linearly between closest ranks of sorted values.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	idx := float64(len(sorted)-1) * pct / 100
	lo := int(idx)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := idx - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*frac
}
