// Package metrics collects runtime observability data for the worker
// executor: invocation counters/latencies and oplog/durability counters.
// prometheus.go holds a separate set of Prometheus collectors, fed only by
// its own RecordPrometheus* functions; RecordInvocation and
// RecordOplogAppend do not update them.
//
// # Concurrency
//
// RecordInvocation is called on every invocation completion and must be
// cheap; it uses atomic increments only, matching the teacher's hot-path
// discipline of never taking a lock on the invocation path.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-process worker-executor counters, keyed per
// component the way the teacher keys per function.
type Metrics struct {
	TotalInvocations   atomic.Int64
	SuccessInvocations atomic.Int64
	TrappedInvocations atomic.Int64
	Retries            atomic.Int64

	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	OplogEntriesAppended atomic.Int64
	ReplayRestarts       atomic.Int64

	components sync.Map // component id -> *ComponentMetrics
	startTime  time.Time
}

// ComponentMetrics tracks counters for a single component.
type ComponentMetrics struct {
	Invocations atomic.Int64
	Errors      atomic.Int64
	LatencyMs   atomic.Int64
}

var global = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Global returns the process-wide metrics instance.
func Global() *Metrics { return global }

// StartTime returns when the metrics subsystem was initialized.
func StartTime() time.Time { return global.startTime }

// RecordInvocation records one completed invocation against componentID.
func (m *Metrics) RecordInvocation(componentID string, durationMs int64, success bool, retries int) {
	m.TotalInvocations.Add(1)
	if success {
		m.SuccessInvocations.Add(1)
	} else {
		m.TrappedInvocations.Add(1)
	}
	if retries > 0 {
		m.Retries.Add(int64(retries))
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	cm := m.componentMetrics(componentID)
	cm.Invocations.Add(1)
	if !success {
		cm.Errors.Add(1)
	}
	cm.LatencyMs.Add(durationMs)
}

// RecordOplogAppend records a successful oplog entry append.
func (m *Metrics) RecordOplogAppend() { m.OplogEntriesAppended.Add(1) }

// RecordReplayRestart records a worker replay-from-start.
func (m *Metrics) RecordReplayRestart() { m.ReplayRestarts.Add(1) }

func (m *Metrics) componentMetrics(componentID string) *ComponentMetrics {
	v, ok := m.components.Load(componentID)
	if !ok {
		v, _ = m.components.LoadOrStore(componentID, &ComponentMetrics{})
	}
	return v.(*ComponentMetrics)
}

// ComponentStats returns a point-in-time snapshot of counters, keyed by
// component id.
func (m *Metrics) ComponentStats() map[string]struct {
	Invocations int64
	Errors      int64
	LatencyMs   int64
} {
	type row = struct {
		Invocations int64
		Errors      int64
		LatencyMs   int64
	}
	out := make(map[string]row)
	m.components.Range(func(key, value any) bool {
		cm := value.(*ComponentMetrics)
		out[key.(string)] = row{
			Invocations: cm.Invocations.Load(),
			Errors:      cm.Errors.Load(),
			LatencyMs:   cm.LatencyMs.Load(),
		}
		return true
	})
	return out
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		cur := target.Load()
		if cur != 0 && cur <= value {
			return
		}
		if target.CompareAndSwap(cur, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		cur := target.Load()
		if cur >= value {
			return
		}
		if target.CompareAndSwap(cur, value) {
			return
		}
	}
}
