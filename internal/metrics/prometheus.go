package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector implements Collector on a Prometheus registry.
type PromCollector struct {
	exposure     prometheus.Gauge
	stopLosses   prometheus.Counter
	tradeCount   prometheus.Counter
	tradeVolume  prometheus.Counter
	tradePnL     prometheus.Histogram
	errorCount   *prometheus.CounterVec
	recoveryRuns *prometheus.CounterVec
	systemHealth prometheus.Gauge
}

// NewPromCollector creates the core metric set and registers it with reg.
func NewPromCollector(reg prometheus.Registerer) *PromCollector {
	c := &PromCollector{
		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveagent_risk_exposure_percent",
			Help: "Current risk exposure as percentage of capital",
		}),
		stopLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveagent_stop_loss_triggered_total",
			Help: "Number of stop losses triggered",
		}),
		tradeCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveagent_trades_total",
			Help: "Total number of trades executed",
		}),
		tradeVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveagent_trade_volume_total",
			Help: "Total trading volume in quote currency",
		}),
		tradePnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liveagent_trade_pnl",
			Help:    "Realized trade PnL distribution in quote currency",
			Buckets: []float64{-1000, -500, -100, -50, -10, 0, 10, 50, 100, 500, 1000},
		}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveagent_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		recoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveagent_recovery_runs_total",
			Help: "Recovery passes by outcome",
		}, []string{"outcome"}),
		systemHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveagent_system_health",
			Help: "Overall system health status (1=healthy, 0=unhealthy)",
		}),
	}

	reg.MustRegister(
		c.exposure,
		c.stopLosses,
		c.tradeCount,
		c.tradeVolume,
		c.tradePnL,
		c.errorCount,
		c.recoveryRuns,
		c.systemHealth,
	)
	c.systemHealth.Set(1)
	return c
}

func (c *PromCollector) SetExposure(percent float64) {
	c.exposure.Set(percent)
}

func (c *PromCollector) StopLossTriggered() {
	c.stopLosses.Inc()
}

func (c *PromCollector) TradeOpened(volume float64) {
	c.tradeCount.Inc()
	c.tradeVolume.Add(volume)
}

func (c *PromCollector) TradeClosed(pnl float64) {
	c.tradePnL.Observe(pnl)
}

func (c *PromCollector) RecordError(kind string) {
	c.errorCount.WithLabelValues(kind).Inc()
}

func (c *PromCollector) RecoveryCompleted(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.recoveryRuns.WithLabelValues(outcome).Inc()
}

func (c *PromCollector) SetSystemHealth(healthy bool) {
	if healthy {
		c.systemHealth.Set(1)
	} else {
		c.systemHealth.Set(0)
	}
}
