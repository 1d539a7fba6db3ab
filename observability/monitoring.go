// Package observability samples runtime and host metrics while the
// server runs and keeps live counters for the session workers.
package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Stats is one telemetry snapshot.
type Stats struct {
	ActiveSessions  int64   `json:"active_sessions"`
	TotalSessions   uint64  `json:"total_sessions"`
	RequestsServed  uint64  `json:"requests_served"`
	FlushCount      uint64  `json:"flush_count"`
	AllocMemMb      uint64  `json:"alloc_mem_mb"`
	NumGoroutine    int     `json:"num_goroutine"`
	NumGC           uint32  `json:"num_gc"`
	CPUPercent      float64 `json:"cpu_percent"`
	HostMemPercent  float64 `json:"host_mem_percent"`
	SampledAt       string  `json:"sampled_at"`
}

// Monitor aggregates counters fed by the server workers and periodically
// folds in process and host metrics.
type Monitor struct {
	log *slog.Logger

	mu     sync.RWMutex
	latest Stats

	// Counters bumped from worker goroutines.
	activeSessions int64
	totalSessions  uint64
	requestsServed uint64
	flushCount     uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log}
}

func (m *Monitor) SessionStarted() {
	atomic.AddInt64(&m.activeSessions, 1)
	atomic.AddUint64(&m.totalSessions, 1)
}

func (m *Monitor) SessionEnded() {
	atomic.AddInt64(&m.activeSessions, -1)
}

func (m *Monitor) RequestServed() {
	atomic.AddUint64(&m.requestsServed, 1)
}

func (m *Monitor) StateFlushed() {
	atomic.AddUint64(&m.flushCount, 1)
}

// Listen samples until ctx is cancelled.
func (m *Monitor) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := Stats{
		ActiveSessions: atomic.LoadInt64(&m.activeSessions),
		TotalSessions:  atomic.LoadUint64(&m.totalSessions),
		RequestsServed: atomic.LoadUint64(&m.requestsServed),
		FlushCount:     atomic.LoadUint64(&m.flushCount),
		AllocMemMb:     ms.Alloc / 1024 / 1024,
		NumGoroutine:   runtime.NumGoroutine(),
		NumGC:          ms.NumGC,
		SampledAt:      time.Now().Format("15:04:05"),
	}

	// Host metrics are best-effort; a sandboxed process may not see them.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.HostMemPercent = vm.UsedPercent
	}

	m.mu.Lock()
	m.latest = snap
	m.mu.Unlock()

	m.log.Debug("telemetry",
		"active_sessions", snap.ActiveSessions,
		"requests", snap.RequestsServed,
		"alloc_mb", snap.AllocMemMb,
		"goroutines", snap.NumGoroutine,
		"cpu_pct", snap.CPUPercent,
	)
}

func (m *Monitor) Latest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
