// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for streams and the reactor.
// Counters live in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"
)

// Well-known counter keys.
const (
	MetricWrites         = "stream.writes"
	MetricBytesWritten   = "stream.bytes_written"
	MetricShortWrites    = "stream.short_writes"
	MetricCancelled      = "stream.cancelled"
	MetricErrors         = "stream.errors"
	MetricCloses         = "stream.closes"
	MetricAsyncCompleted = "stream.async_completed"
	MetricSourcesAdded   = "reactor.sources_added"
	MetricDispatches     = "reactor.dispatches"
	MetricPanics         = "reactor.panics"
)

// MetricsRegistry holds int64 counters. A nil registry discards updates.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]int64
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]int64),
	}
}

// Add increments key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.metrics[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Inc increments key by one.
func (mr *MetricsRegistry) Inc(key string) { mr.Add(key, 1) }

// Get returns the current value of key.
func (mr *MetricsRegistry) Get(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.metrics[key]
}

// GetSnapshot returns a copy of all counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	if mr == nil {
		return map[string]int64{}
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated returns the time of the last update.
func (mr *MetricsRegistry) Updated() time.Time {
	if mr == nil {
		return time.Time{}
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
