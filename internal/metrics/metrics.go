// Package metrics records sync run outcomes as Prometheus metrics and pushes
// them to a Pushgateway, since a batch job is gone before any scrape.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "newssync"

// Run is the outcome of one sync run.
type Run struct {
	State          string
	Duration       time.Duration
	Fetched        int
	UniqueArticles int
	Cached         int
	Generated      int
	Fallback       int
	Persisted      int
	Removed        int64
	Errors         int
}

// Metrics holds the run gauges on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	articles       *prometheus.GaugeVec
	removed        prometheus.Gauge
	errors         prometheus.Gauge
	duration       prometheus.Gauge
	lastSuccess    prometheus.Gauge
	runsTotal      *prometheus.CounterVec
	pushgatewayURL string
	job            string
}

// New registers the run metrics. An empty pushgatewayURL disables Push.
func New(pushgatewayURL, job string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry:       reg,
		pushgatewayURL: pushgatewayURL,
		job:            job,
		articles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "articles",
			Help:      "Articles handled by the last run, by stage",
		}, []string{"stage"}),
		removed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "articles_removed",
			Help:      "Stale articles deleted by the last run",
		}),
		errors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_errors",
			Help:      "Per-article errors in the last run",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without a fatal error",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by final state",
		}, []string{"state"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Enabled reports whether a Pushgateway is configured.
func (m *Metrics) Enabled() bool {
	return m.pushgatewayURL != ""
}

// Observe records r. finishedAt is used for the last-success gauge.
func (m *Metrics) Observe(r Run, finishedAt time.Time) {
	m.runsTotal.WithLabelValues(r.State).Inc()
	m.duration.Set(r.Duration.Seconds())
	if r.State != "done" {
		return
	}

	m.articles.WithLabelValues("fetched").Set(float64(r.Fetched))
	m.articles.WithLabelValues("unique").Set(float64(r.UniqueArticles))
	m.articles.WithLabelValues("cached").Set(float64(r.Cached))
	m.articles.WithLabelValues("generated").Set(float64(r.Generated))
	m.articles.WithLabelValues("fallback").Set(float64(r.Fallback))
	m.articles.WithLabelValues("persisted").Set(float64(r.Persisted))
	m.removed.Set(float64(r.Removed))
	m.errors.Set(float64(r.Errors))
	m.lastSuccess.Set(float64(finishedAt.Unix()))
}

// Push sends the registry to the Pushgateway. It is a no-op when disabled.
func (m *Metrics) Push(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	if err := push.New(m.pushgatewayURL, m.job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
