// Package telemetry exposes the service's Prometheus collectors.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blockfarm"

// Registry holds the collectors on a private Prometheus registry. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	transitions         *prometheus.CounterVec
	aggregationDuration *prometheus.HistogramVec
	tasksCreated        *prometheus.CounterVec
	tasksCancelled      *prometheus.CounterVec
	harvestsRecorded    prometheus.Counter
	harvestQuantity     prometheus.Counter
}

// NewRegistry creates and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Block state transitions by source state, target state and result",
			},
			[]string{"from", "to", "result"},
		),
		aggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dashboard",
				Name:      "aggregation_duration_seconds",
				Help:      "Time spent building dashboards",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"scope", "result"},
		),
		tasksCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "created_total",
				Help:      "Generated tasks by type",
			},
			[]string{"type"},
		),
		tasksCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "cancelled_total",
				Help:      "Stale tasks cancelled by type",
			},
			[]string{"type"},
		),
		harvestsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "harvests_recorded_total",
			Help:      "Harvest records appended to the ledger",
		}),
		harvestQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "harvest_quantity_total",
			Help:      "Sum of recorded harvest quantities",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.transitions,
		r.aggregationDuration,
		r.tasksCreated,
		r.tasksCancelled,
		r.harvestsRecorded,
		r.harvestQuantity,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordTransition counts one transition attempt.
func (r *Registry) RecordTransition(from, to, result string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to, result).Inc()
}

// ObserveAggregation records how long a dashboard took to build.
func (r *Registry) ObserveAggregation(scope, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.aggregationDuration.WithLabelValues(scope, result).Observe(elapsed.Seconds())
}

// RecordTaskCreated counts a generated task.
func (r *Registry) RecordTaskCreated(taskType string) {
	if r == nil {
		return
	}
	r.tasksCreated.WithLabelValues(taskType).Inc()
}

// RecordTaskCancelled counts a cancelled stale task.
func (r *Registry) RecordTaskCancelled(taskType string) {
	if r == nil {
		return
	}
	r.tasksCancelled.WithLabelValues(taskType).Inc()
}

// RecordHarvest counts a ledger append and its quantity.
func (r *Registry) RecordHarvest(quantity float64) {
	if r == nil {
		return
	}
	r.harvestsRecorded.Inc()
	r.harvestQuantity.Add(quantity)
}
