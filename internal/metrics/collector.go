// Package metrics exposes run and node execution metrics in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/pkg/schema"
)

const namespace = "flowrun"

// Collector records run metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry
	now      func() time.Time

	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	nodesExecuted  *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	variablesSet   prometheus.Counter
	cycleFallbacks prometheus.Counter
}

// NewCollector creates a Collector. When withRuntime is set the Go runtime
// and process collectors are registered as well.
func NewCollector(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		now:      time.Now,
		runsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs started",
		}),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of runs finished, by terminal status",
		}, []string{"status"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of runs currently executing",
		}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"status"}),
		nodesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions, by app and status",
		}, []string{"app", "status"}),
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"app"}),
		variablesSet: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variables_set_total",
			Help:      "Total number of workflow variables set",
		}),
		cycleFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_cycle_fallbacks_total",
			Help:      "Runs scheduled in discovery order because of a cycle",
		}),
	}
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RunStarted(context.Context, engine.RunInfo) {
	c.runsStarted.Inc()
	c.activeRuns.Inc()
}

func (c *Collector) NodeStarted(context.Context, engine.RunInfo, engine.Node) {}

func (c *Collector) NodeFinished(_ context.Context, _ engine.RunInfo, node engine.Node, rec schema.NodeExecutionRecord) {
	app := appLabel(node)
	c.nodesExecuted.WithLabelValues(app, string(rec.Status)).Inc()
	c.nodeDuration.WithLabelValues(app).Observe(rec.Duration().Seconds())
}

func (c *Collector) VariableSet(context.Context, engine.RunInfo, string, any) {
	c.variablesSet.Inc()
}

func (c *Collector) CycleFallback(context.Context, engine.RunInfo, []string) {
	c.cycleFallbacks.Inc()
}

func (c *Collector) RunFinished(_ context.Context, run engine.RunInfo, result *schema.RunResult, _ error) {
	c.activeRuns.Dec()
	status := string(schema.RunStatusAborted)
	if result != nil {
		status = string(result.Status)
	}
	c.runsFinished.WithLabelValues(status).Inc()

	if !run.StartedAt.IsZero() {
		c.runDuration.WithLabelValues(status).Observe(c.now().Sub(run.StartedAt).Seconds())
	}
}

func appLabel(node engine.Node) string {
	if node.Kind == schema.NodeKindTrigger {
		return "trigger"
	}
	if node.AppID == "" {
		return "none"
	}
	return node.AppID
}

var _ engine.Observer = (*Collector)(nil)
