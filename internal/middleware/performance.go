// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/wagerdeck/sentinel/internal/logging"
)

// slowRequestThresholdMS flags calls that take long enough to matter on
// the synchronous detection path.
const slowRequestThresholdMS = 1000

// RequestSample is one observed request for the latency window.
type RequestSample struct {
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	DurationMS int64     `json:"duration_ms"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// EndpointStats aggregates latency for one endpoint.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int64   `json:"request_count"`
	AvgDuration  float64 `json:"avg_duration_ms"`
	P50Duration  int64   `json:"p50_ms"`
	P95Duration  int64   `json:"p95_ms"`
	P99Duration  int64   `json:"p99_ms"`
	MinDuration  int64   `json:"min_ms"`
	MaxDuration  int64   `json:"max_ms"`
}

// PerformanceMonitor keeps a rolling window of request latencies so the
// status endpoint can report per-endpoint percentiles.
type PerformanceMonitor struct {
	mu         sync.RWMutex
	samples    []RequestSample
	maxSamples int
}

// NewPerformanceMonitor creates a monitor retaining up to maxSamples.
func NewPerformanceMonitor(maxSamples int) *PerformanceMonitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &PerformanceMonitor{
		samples:    make([]RequestSample, 0, maxSamples),
		maxSamples: maxSamples,
	}
}

// Record adds a sample to the window.
func (pm *PerformanceMonitor) Record(sample RequestSample) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples = append(pm.samples, sample)
	if len(pm.samples) > pm.maxSamples {
		pm.samples = pm.samples[1:]
	}
}

// Stats returns aggregated per-endpoint statistics, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	byEndpoint := make(map[string][]int64)
	for _, s := range pm.samples {
		key := s.Method + " " + s.Path
		byEndpoint[key] = append(byEndpoint[key], s.DurationMS)
	}

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, durations := range byEndpoint {
		sorted := make([]int64, len(durations))
		copy(sorted, durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, d := range sorted {
			sum += d
		}

		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: int64(len(sorted)),
			AvgDuration:  float64(sum) / float64(len(sorted)),
			P50Duration:  percentile(sorted, 0.50),
			P95Duration:  percentile(sorted, 0.95),
			P99Duration:  percentile(sorted, 0.99),
			MinDuration:  sorted[0],
			MaxDuration:  sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].RequestCount > stats[j].RequestCount
	})
	return stats
}

// Middleware records a sample for every request and logs slow ones.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start).Milliseconds()
		pm.Record(RequestSample{
			Path:       r.URL.Path,
			Method:     r.Method,
			DurationMS: duration,
			StatusCode: wrapper.statusCode,
			Timestamp:  time.Now(),
		})

		if duration > slowRequestThresholdMS {
			logging.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int64("duration_ms", duration).
				Msg("slow request")
		}
	})
}

// percentile reads the p-th percentile from a sorted slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
