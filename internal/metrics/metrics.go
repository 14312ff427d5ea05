// Package metrics exposes deploy pipeline and gate counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"deployhook/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "deployhook"

// Collector records pipeline lifecycle events and gate denials. It implements
// pipeline.Observer and uses its own registry.
type Collector struct {
	registry *prometheus.Registry

	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	StepResults      *prometheus.CounterVec
	ActivePipelines  prometheus.Gauge
	GateDenials      *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewCollector creates a Collector with all metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of deploy pipeline runs",
		}, []string{"status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of deploy pipeline runs in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_results_total",
			Help:      "Total number of executed deploy steps",
		}, []string{"step", "status"}),
		ActivePipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_pipelines",
			Help:      "Number of deploy pipelines currently running",
		}),
		GateDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "gate_denials_total",
			Help:      "Total number of rejected deploy requests",
		}, []string{"reason"}),
		started: make(map[string]time.Time),
		now:     time.Now,
	}

	reg.MustRegister(c.PipelineRuns, c.PipelineDuration, c.StepResults, c.ActivePipelines, c.GateDenials)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDenial counts a rejected request by reason.
func (c *Collector) RecordDenial(reason string) {
	c.GateDenials.WithLabelValues(reason).Inc()
}

func (c *Collector) OnPipelineStarting(_ context.Context, ev pipeline.PipelineStarting) {
	c.mu.Lock()
	c.started[ev.RunID] = c.now()
	c.mu.Unlock()
	c.ActivePipelines.Inc()
}

func (c *Collector) OnStepCompleted(_ context.Context, ev pipeline.StepCompleted) {
	c.StepResults.WithLabelValues(ev.Step, status(ev.Result.Success)).Inc()
}

func (c *Collector) OnPipelineCompleted(_ context.Context, ev pipeline.PipelineCompleted) {
	c.mu.Lock()
	start, ok := c.started[ev.RunID]
	delete(c.started, ev.RunID)
	c.mu.Unlock()

	c.ActivePipelines.Dec()
	c.PipelineRuns.WithLabelValues(status(ev.Success)).Inc()
	if ok {
		c.PipelineDuration.Observe(c.now().Sub(start).Seconds())
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
