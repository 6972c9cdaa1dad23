// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// sampleSize is the rolling-buffer size for dispatch latency samples.
const sampleSize = 512

// Metrics tracks callback dispatch statistics for a loop. Collection is
// optional (WithMetrics) and adds a timestamp read per dispatch.
//
// All methods are safe for concurrent use, though under the cooperative
// model all writes come from the loop-driving goroutine.
type Metrics struct {
	dispatched      atomic.Uint64
	containedPanics atomic.Uint64

	// Latency tracks the distribution of host callback run times.
	Latency LatencyMetrics
}

// MetricsSnapshot is a point-in-time copy of a loop's metrics.
type MetricsSnapshot struct {
	// Dispatched counts successfully completed host callback invocations.
	Dispatched uint64
	// ContainedPanics counts callback panics caught at the dispatch
	// boundary.
	ContainedPanics uint64
	// Latency percentiles, computed over the rolling sample buffer.
	Latency LatencySnapshot
}

// snapshot computes percentiles and copies the counters.
func (m *Metrics) snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Dispatched:      m.dispatched.Load(),
		ContainedPanics: m.containedPanics.Load(),
	}
	s.Latency = m.Latency.sample()
	return s
}

// LatencyMetrics keeps a rolling buffer of dispatch latency samples.
type LatencyMetrics struct {
	mu          sync.Mutex
	sampleIdx   int
	sampleCount int
	sum         time.Duration
	samples     [sampleSize]time.Duration
}

// LatencySnapshot carries computed percentiles.
type LatencySnapshot struct {
	P50  time.Duration
	P90  time.Duration
	P99  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// Record adds a latency sample, displacing the oldest when the buffer is
// full.
func (l *LatencyMetrics) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sampleCount >= sampleSize {
		l.sum -= l.samples[l.sampleIdx]
	}
	l.samples[l.sampleIdx] = d
	l.sum += d
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// sample computes percentiles over the retained samples.
func (l *LatencyMetrics) sample() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s LatencySnapshot
	count := l.sampleCount
	if count == 0 {
		return s
	}

	sorted := make([]time.Duration, count)
	copy(sorted, l.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	s.P50 = sorted[percentileIndex(count, 50)]
	s.P90 = sorted[percentileIndex(count, 90)]
	s.P99 = sorted[percentileIndex(count, 99)]
	s.Max = sorted[count-1]
	s.Mean = l.sum / time.Duration(count)
	return s
}

// percentileIndex computes the sample index for a percentile (0-100).
func percentileIndex(n, p int) int {
	i := (p * n) / 100
	if i >= n {
		return n - 1
	}
	return i
}
