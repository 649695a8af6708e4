// Package telemetry provides a default MetricRecorder implementation
// and a periodic sampler that logs accumulated counts on a cron
// schedule.
package telemetry

import (
	"sort"
	"sync"

	directive "github.com/aurora-voice/directive-core"
)

// Counter is an in-memory, goroutine-safe MetricRecorder that
// accumulates named counts. It is passed to a Sequencer with
// sequencer.WithMetricRecorder; a Sequencer built without that option
// records no metrics.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewCounter constructs an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int64)}
}

// RecordCount implements directive.MetricRecorder.
func (c *Counter) RecordCount(name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name] += value
}

// Snapshot returns a copy of the accumulated counts.
func (c *Counter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Reset zeroes every accumulated count.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int64)
}

var _ directive.MetricRecorder = (*Counter)(nil)

// SortedNames returns snapshot's keys in sorted order, for stable log
// output and assertions.
func SortedNames(snapshot map[string]int64) []string {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
