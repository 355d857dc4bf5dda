// Package metrics implements the metrics and health surface:
// Prometheus counters/gauges/histograms, a threshold table, and
// uptime/error-rate aggregation for the business counters the rest of
// the engine instruments (markets tracked, signals generated,
// anomalies, alerts).
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the process-wide metrics collector.
type Collector struct {
	MarketsTracked   *prometheus.GaugeVec
	SignalsGenerated *prometheus.CounterVec
	AnomaliesFlagged *prometheus.CounterVec
	AlertsSent       *prometheus.CounterVec
	AlertsFiltered   *prometheus.CounterVec
	AlertsRateLimited *prometheus.CounterVec
	AlertsCooldown   *prometheus.CounterVec
	DataShapeErrors  *prometheus.CounterVec
	InternalRecovered *prometheus.CounterVec
	QueueDropped     *prometheus.CounterVec
	ScanDuration     *prometheus.HistogramVec
	WebhookLatency   *prometheus.HistogramVec
	HealthScore      prometheus.Gauge
	Uptime           prometheus.Gauge

	mu         sync.Mutex
	startedAt  time.Time
	errorTimes []time.Time

	registry *prometheus.Registry
	server   *http.Server
}

// NewCollector builds and registers every metric against a private
// registry (not the global default), so tests can build multiple
// independent collectors without collision.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		MarketsTracked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "surveil_markets_tracked",
			Help: "Number of markets currently tracked, by tier.",
		}, []string{"tier"}),
		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_signals_generated_total",
			Help: "Total signals emitted, by signal type.",
		}, []string{"signal_type"}),
		AnomaliesFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_anomalies_flagged_total",
			Help: "Total anomaly-consensus flags, by severity.",
		}, []string{"severity"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_alerts_sent_total",
			Help: "Total alerts successfully delivered, by priority.",
		}, []string{"priority"}),
		AlertsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_alerts_filtered_total",
			Help: "Total alerts rejected by the quality filter, by reason.",
		}, []string{"reason"}),
		AlertsRateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_alerts_rate_limited_total",
			Help: "Total alerts rejected by the hourly rate limiter, by priority.",
		}, []string{"priority"}),
		AlertsCooldown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_alerts_cooldown_total",
			Help: "Total alerts rejected for being within cooldown, by priority.",
		}, []string{"priority"}),
		DataShapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_data_shape_errors_total",
			Help: "Total malformed records skipped, by source.",
		}, []string{"source"}),
		InternalRecovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_internal_recovered_total",
			Help: "Total internal errors recovered with a neutral value, by component.",
		}, []string{"component"}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surveil_queue_dropped_items_total",
			Help: "Total items dropped from a bounded queue on overflow, by queue.",
		}, []string{"queue"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surveil_scan_duration_seconds",
			Help:    "Scan-loop tick duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),
		WebhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surveil_webhook_latency_seconds",
			Help:    "Webhook delivery attempt latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		HealthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "surveil_health_score",
			Help: "Aggregate application health score, 0-100.",
		}),
		Uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "surveil_uptime_seconds",
			Help: "Seconds since the orchestrator started.",
		}),
		startedAt: time.Now(),
		registry:  reg,
	}

	reg.MustRegister(
		c.MarketsTracked, c.SignalsGenerated, c.AnomaliesFlagged,
		c.AlertsSent, c.AlertsFiltered, c.AlertsRateLimited, c.AlertsCooldown,
		c.DataShapeErrors, c.InternalRecovered, c.QueueDropped,
		c.ScanDuration, c.WebhookLatency, c.HealthScore, c.Uptime,
	)
	return c
}

// RecordError appends an error observation to the sliding error-rate
// window; ErrorsPerMinute reports the rate over the trailing minute.
func (c *Collector) RecordError(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorTimes = append(c.errorTimes, t)
	cutoff := t.Add(-time.Minute)
	i := 0
	for i < len(c.errorTimes) && c.errorTimes[i].Before(cutoff) {
		i++
	}
	c.errorTimes = c.errorTimes[i:]
}

// ErrorsPerMinute returns the count of RecordError observations in
// the trailing 60s window.
func (c *Collector) ErrorsPerMinute() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-time.Minute)
	n := 0
	for _, t := range c.errorTimes {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}

// RefreshUptime updates the Uptime gauge from startedAt.
func (c *Collector) RefreshUptime(now time.Time) {
	c.Uptime.Set(now.Sub(c.startedAt).Seconds())
}

// Threshold pairs a metric's warning and critical levels. Inverted
// metrics (e.g. health score) warn/critical when the observed value
// falls *below* the threshold rather than above it.
type Threshold struct {
	Warn     float64
	Critical float64
	Inverted bool
}

// ThresholdTable is the fixed per-metric threshold set Check evaluates
// observed values against; the orchestrator's Health aggregation
// checks the health score and error rate with it.
var ThresholdTable = map[string]Threshold{
	"health_score":      {Warn: 70, Critical: 50, Inverted: true},
	"error_rate_per_min": {Warn: 5, Critical: 20},
	"event_loop_lag_ms": {Warn: 250, Critical: 1000},
}

// Level ladders how far an observed value has crossed its threshold.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarn     Level = "warn"
	LevelCritical Level = "critical"
)

// Check evaluates value against name's threshold, returning LevelOK
// when name has no registered threshold.
func Check(name string, value float64) Level {
	th, ok := ThresholdTable[name]
	if !ok {
		return LevelOK
	}
	if th.Inverted {
		switch {
		case value <= th.Critical:
			return LevelCritical
		case value <= th.Warn:
			return LevelWarn
		default:
			return LevelOK
		}
	}
	switch {
	case value >= th.Critical:
		return LevelCritical
	case value >= th.Warn:
		return LevelWarn
	default:
		return LevelOK
	}
}

// Handler returns the HTTP handler serving this collector's registry
// in the Prometheus exposition format, for mounting on the
// orchestrator's debug router.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts a dedicated metrics HTTP server on addr, independent of
// the orchestrator's debug router, for deployments that want metrics
// on their own port. Stop with the returned shutdown func.
func (c *Collector) Serve(addr string) (shutdown func(context.Context) error, err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	c.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = c.server.ListenAndServe() // errors surface via health checks, not here
	}()

	return c.server.Shutdown, nil
}
