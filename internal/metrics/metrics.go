package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/*
Metrics exposes crawl progress as Prometheus gauges and counters over an
optional /metrics endpoint. A crawl that never sets MetricsAddr simply
never starts the listener; the counters still update in memory, they are
just never scraped.
*/

type Metrics struct {
	registry *prometheus.Registry

	PagesLeased    prometheus.Counter
	PagesCompleted *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	FetchErrors    *prometheus.CounterVec
	FrontierDepth  prometheus.Gauge
}

// New registers the crawler's metric set against a private registry, so
// tests (and multiple crawls in the same process) can construct
// independent instances without colliding on prometheus's default global
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PagesLeased: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "govsicrawl",
			Name:      "pages_leased_total",
			Help:      "Total number of frontier rows leased by a worker.",
		}),
		PagesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govsicrawl",
			Name:      "pages_completed_total",
			Help:      "Total number of pages that reached a terminal page_type_code.",
		}, []string{"page_type"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "govsicrawl",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent in a single page fetch, from dispatch to response.",
			Buckets:   prometheus.DefBuckets,
		}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govsicrawl",
			Name:      "fetch_errors_total",
			Help:      "Total number of fetch failures by action.",
		}, []string{"action"}),
		FrontierDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "govsicrawl",
			Name:      "frontier_depth",
			Help:      "Most recently observed count of unleased frontier rows.",
		}),
	}
}

// ObserveFetch records the wall-clock duration of a fetch attempt.
func (m *Metrics) ObserveFetch(d time.Duration) {
	m.FetchDuration.Observe(d.Seconds())
}

// RecordCompletion increments the per-page-type completion counter.
func (m *Metrics) RecordCompletion(pageType string) {
	m.PagesCompleted.WithLabelValues(pageType).Inc()
}

// RecordFetchError increments the fetch error counter for action.
func (m *Metrics) RecordFetchError(action string) {
	m.FetchErrors.WithLabelValues(action).Inc()
}

// Serve starts a /metrics HTTP server on addr and blocks until ctx is
// cancelled, then shuts the server down gracefully. A blank addr means
// metrics were not configured; Serve returns immediately in that case.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
