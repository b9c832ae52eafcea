// Package metrics exposes protection counters for Prometheus scraping
// on a dedicated HTTP listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phishguard/internal/logger"
	"phishguard/pkg/models"
)

// Config configures the metrics endpoint.
type Config struct {
	Addr string
	Path string
}

// Metrics holds the registered collectors and the scrape server.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server

	requestsTotal  *prometheus.CounterVec
	reportsTotal   *prometheus.CounterVec
	queueErrors    prometheus.Counter
	reportsDropped prometheus.Counter

	networkScore       prometheus.Gauge
	fingerprintScore   prometheus.Gauge
	blacklistedDomains prometheus.Gauge
	protectionEnabled  prometheus.Gauge
}

// New registers the collectors on a private registry. The scrape
// server is not started until Start.
func New(cfg Config) *Metrics {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishguard_requests_total",
				Help: "Requests handled, by verdict action",
			},
			[]string{"action"},
		),
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishguard_reports_total",
				Help: "Threat reports emitted, by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		queueErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishguard_queue_errors_total",
				Help: "Event queue read or parse failures",
			},
		),
		reportsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishguard_reports_dropped_total",
				Help: "Reports dropped because the write buffer was full",
			},
		),
		networkScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishguard_network_score",
				Help: "Current network threat score (0-100)",
			},
		),
		fingerprintScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishguard_fingerprint_score",
				Help: "Current fingerprinting score (0-100)",
			},
		),
		blacklistedDomains: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishguard_blacklisted_domains",
				Help: "Domains on either blacklist",
			},
		),
		protectionEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishguard_protection_enabled",
				Help: "1 while protection is enabled",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.reportsTotal,
		m.queueErrors,
		m.reportsDropped,
		m.networkScore,
		m.fingerprintScore,
		m.blacklistedDomains,
		m.protectionEnabled,
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return m
}

// Start serves the scrape endpoint until Close.
func (m *Metrics) Start() {
	go func() {
		logger.Infof("metrics listening on %s", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server: %v", err)
		}
	}()
}

// Close shuts the scrape server down.
func (m *Metrics) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// ObserveRequest counts one handled request by its action.
func (m *Metrics) ObserveRequest(action string) {
	m.requestsTotal.WithLabelValues(action).Inc()
}

// ObserveReport counts one emitted report. Fingerprinting reports
// also publish their page score.
func (m *Metrics) ObserveReport(r models.Report) {
	m.reportsTotal.WithLabelValues(string(r.Kind), r.Severity.String()).Inc()
	if r.Kind == models.KindFingerprinting {
		m.fingerprintScore.Set(float64(r.Score))
	}
}

// ObserveQueueError counts one queue failure.
func (m *Metrics) ObserveQueueError() {
	m.queueErrors.Inc()
}

// ObserveReportDrop counts one report lost to a full write buffer.
func (m *Metrics) ObserveReportDrop() {
	m.reportsDropped.Inc()
}

// SetNetworkScore publishes the current network score.
func (m *Metrics) SetNetworkScore(score int) {
	m.networkScore.Set(float64(score))
}

// SetState publishes the aggregate gauges.
func (m *Metrics) SetState(stats models.Statistics) {
	m.blacklistedDomains.Set(float64(stats.BlacklistedDomains))
	if stats.ProtectionEnabled {
		m.protectionEnabled.Set(1)
	} else {
		m.protectionEnabled.Set(0)
	}
}

// Handler returns the scrape handler, used by tests to read the
// registry without a listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
