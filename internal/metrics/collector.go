// Package metrics provides in-memory timing statistics for batch stages.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Operation names recorded by the batch driver.
const (
	OpRow        = "row"
	OpLoad       = "load"
	OpName       = "name"
	OpTemplate   = "template"
	OpPlace      = "place"
	OpStructures = "structures"
	OpAudit      = "audit"
)

// OperationMetrics holds aggregated timings for one operation.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name        string
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot is the state of a collector at a point in time.
type Snapshot struct {
	ElapsedSeconds float64
	Operations     []OperationSnapshot
}

// Get returns the snapshot of op, or nil if it was never recorded.
func (s Snapshot) Get(op string) *OperationSnapshot {
	for i := range s.Operations {
		if s.Operations[i].Name == op {
			return &s.Operations[i]
		}
	}
	return nil
}

// Collector aggregates timings. All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	order     []string
}

// NewCollector creates a new collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones. Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
		c.order = append(c.order, op)
	}
	return m
}

// RecordTiming records one successful run of op.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, false)
}

// RecordFailure records one run of op that ended the row.
func (c *Collector) RecordFailure(op string, duration time.Duration) {
	c.record(op, duration, true)
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Snapshot returns all operations in first-recorded order.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{ElapsedSeconds: time.Since(c.startTime).Seconds()}
	for _, op := range c.order {
		m := c.ops[op]
		snap.Operations = append(snap.Operations, OperationSnapshot{
			Name:        op,
			Count:       m.Count,
			Failures:    m.Failures,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		})
	}
	return snap
}

// Slowest returns the n operations with the highest total time.
func (s Snapshot) Slowest(n int) []OperationSnapshot {
	ops := append([]OperationSnapshot(nil), s.Operations...)
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].TotalTimeMs > ops[j].TotalTimeMs })
	if n < len(ops) {
		ops = ops[:n]
	}
	return ops
}
