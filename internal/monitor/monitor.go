// Package monitor tracks agent health (API latency, error rate, memory) and
// serves /health, /status and /metrics over HTTP.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/liveagent/internal/metrics"
	"github.com/sawpanic/liveagent/internal/notify"
)

// Check is one tracked health dimension with a pass threshold.
type Check struct {
	Name      string    `json:"name"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"current_value"`
	OK        bool      `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// Status is the summary served on /status.
type Status struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	Healthy       bool             `json:"healthy"`
	Checks        map[string]Check `json:"health_checks"`
}

// Monitor owns the health check set. Alerts fire when a check transitions
// to failing.
type Monitor struct {
	mu      sync.Mutex
	start   time.Time
	checks  map[string]*Check
	sink    notify.Sink
	metrics metrics.Collector
}

const (
	CheckAPILatency  = "api_latency"
	CheckErrorRate   = "error_rate"
	CheckMemoryUsage = "memory_usage"
)

// New creates a monitor with the standard check set: API latency (ms),
// error rate (fraction) and memory usage (fraction).
func New(sink notify.Sink, collector metrics.Collector) *Monitor {
	if sink == nil {
		sink = notify.LogSink{}
	}
	if collector == nil {
		collector = metrics.NewMemCollector()
	}
	return &Monitor{
		start: time.Now(),
		checks: map[string]*Check{
			CheckAPILatency:  {Name: "API Latency", Threshold: 1000.0, OK: true},
			CheckErrorRate:   {Name: "Error Rate", Threshold: 0.1, OK: true},
			CheckMemoryUsage: {Name: "Memory Usage", Threshold: 0.9, OK: true},
		},
		sink:    sink,
		metrics: collector,
	}
}

// Update records a new observation for the named check and alerts if it
// crosses its threshold.
func (m *Monitor) Update(ctx context.Context, name string, value float64) {
	m.mu.Lock()
	check, ok := m.checks[name]
	if !ok {
		m.mu.Unlock()
		log.Warn().Str("check", name).Msg("Unknown health check")
		return
	}

	wasOK := check.OK
	check.Value = value
	check.LastCheck = time.Now()
	check.OK = value <= check.Threshold
	failing := !check.OK
	healthy := m.allHealthyLocked()
	m.mu.Unlock()

	m.metrics.SetSystemHealth(healthy)
	if failing && wasOK {
		m.sink.SendAlert(ctx, fmt.Sprintf("%s check failing: %.2f exceeds threshold %.2f", check.Name, value, check.Threshold))
	}
}

// Status returns a snapshot of uptime and all checks.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = *c
	}
	return Status{
		UptimeSeconds: time.Since(m.start).Seconds(),
		Healthy:       m.allHealthyLocked(),
		Checks:        checks,
	}
}

// Run refreshes the health gauge periodically until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := m.Status()
			m.metrics.SetSystemHealth(status.Healthy)
			log.Info().
				Float64("uptime_seconds", status.UptimeSeconds).
				Bool("healthy", status.Healthy).
				Msg("System status update")
		}
	}
}

func (m *Monitor) allHealthyLocked() bool {
	for _, c := range m.checks {
		if !c.OK {
			return false
		}
	}
	return true
}
