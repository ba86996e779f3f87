// Package metrics holds the Prometheus instrumentation of the overlay core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one chart service.
type Metrics struct {
	registry *prometheus.Registry

	ProjectionPasses   *prometheus.CounterVec // labels: reason
	ProjectionDuration prometheus.Histogram
	OverlaysProjected  prometheus.Counter
	RenderSkips        *prometheus.CounterVec // labels: reason
	RendererFailures   *prometheus.CounterVec // labels: op
	HistoryResults     *prometheus.CounterVec // labels: op, result
	StoredDrawings     prometheus.Gauge
	MigratedDrawings   *prometheus.CounterVec // labels: result
}

// New creates the metrics and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProjectionPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_projection_passes_total",
			Help: "Full re-projection passes, by triggering event",
		}, []string{"reason"}),
		ProjectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlay_projection_duration_seconds",
			Help:    "Wall time of one projection pass",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.033, 0.1, 0.5},
		}),
		OverlaysProjected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_overlays_projected_total",
			Help: "Overlays pushed to the renderer by projection",
		}),
		RenderSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_render_skips_total",
			Help: "Overlays not rendered, by reason",
		}, []string{"reason"}),
		RendererFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_renderer_failures_total",
			Help: "Renderer calls that failed, by operation",
		}, []string{"op"}),
		HistoryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_history_results_total",
			Help: "Undo/redo attempts, by operation and result",
		}, []string{"op", "result"}),
		StoredDrawings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_stored_drawings",
			Help: "Drawings held by the drawing manager across all symbols",
		}),
		MigratedDrawings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_migrated_drawings_total",
			Help: "Legacy entries processed by migration, by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.ProjectionPasses,
		m.ProjectionDuration,
		m.OverlaysProjected,
		m.RenderSkips,
		m.RendererFailures,
		m.HistoryResults,
		m.StoredDrawings,
		m.MigratedDrawings,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveProjection(reason string, d time.Duration, projected int) {
	if m == nil {
		return
	}
	m.ProjectionPasses.WithLabelValues(reason).Inc()
	m.ProjectionDuration.Observe(d.Seconds())
	m.OverlaysProjected.Add(float64(projected))
}

func (m *Metrics) RenderSkipped(reason string) {
	if m == nil {
		return
	}
	m.RenderSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) RendererFailed(op string) {
	if m == nil {
		return
	}
	m.RendererFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) History(op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.HistoryResults.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetStoredDrawings(n int) {
	if m == nil {
		return
	}
	m.StoredDrawings.Set(float64(n))
}

func (m *Metrics) Migrated(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MigratedDrawings.WithLabelValues(result).Add(float64(n))
}
