package promexporter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pior/emc/loadgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter manages Prometheus metrics export
type Exporter struct {
	registry *prometheus.Registry
	client   *ClientMetrics
	run      *RunMetrics
}

// NewExporter creates a new Prometheus exporter
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	return &Exporter{
		registry: registry,
		client:   NewClientMetrics(registry),
		run:      NewRunMetrics(registry),
	}
}

// ClientMetrics returns the client metrics collector
func (e *Exporter) ClientMetrics() *ClientMetrics {
	return e.client
}

// RunMetrics returns the run metrics collector
func (e *Exporter) RunMetrics() *RunMetrics {
	return e.run
}

// ObserveReport records a finished run and the client counters it accumulated.
func (e *Exporter) ObserveReport(r loadgen.Report) {
	e.run.RecordReport(r)
	e.client.AddClientStats(r.ClientStats)
}

// WatchPool samples the pool statistics of the current run until ctx is done.
func (e *Exporter) WatchPool(ctx context.Context, pool *loadgen.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats, ok := pool.PoolStats(); ok {
				e.client.SetPoolStats(stats)
			}
		}
	}
}

// Handler returns an HTTP handler for the /metrics endpoint
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP serves /metrics on addr until ctx is done.
func (e *Exporter) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
