package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/liveagent/internal/metrics"
)

type captureSink struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureSink) SendAlert(_ context.Context, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestUpdateTriggersAlertOnThresholdCrossing(t *testing.T) {
	sink := &captureSink{}
	m := New(sink, metrics.NewMemCollector())
	ctx := context.Background()

	m.Update(ctx, CheckAPILatency, 500)
	assert.Equal(t, 0, sink.count())

	m.Update(ctx, CheckAPILatency, 1500)
	assert.Equal(t, 1, sink.count())

	// Still failing: no repeat alert until it recovers.
	m.Update(ctx, CheckAPILatency, 1600)
	assert.Equal(t, 1, sink.count())

	// Recover, then fail again: a fresh alert.
	m.Update(ctx, CheckAPILatency, 100)
	m.Update(ctx, CheckAPILatency, 2000)
	assert.Equal(t, 2, sink.count())
}

func TestStatusReflectsChecks(t *testing.T) {
	collector := metrics.NewMemCollector()
	m := New(nil, collector)

	m.Update(context.Background(), CheckErrorRate, 0.5)

	status := m.Status()
	assert.False(t, status.Healthy)
	assert.False(t, status.Checks[CheckErrorRate].OK)
	assert.True(t, status.Checks[CheckAPILatency].OK)
	assert.GreaterOrEqual(t, status.UptimeSeconds, 0.0)
	assert.False(t, collector.Healthy)
}

func TestServerEndpoints(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.NewPromCollector(registry)
	m := New(nil, metrics.NewMemCollector())
	server := NewServer(":0", m, registry)

	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Healthy)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnhealthyHealthEndpointReturns503(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(nil, metrics.NewMemCollector())
	m.Update(context.Background(), CheckMemoryUsage, 0.95)

	ts := httptest.NewServer(NewServer(":0", m, registry).Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
