// Package metrics exposes convergence run metrics in the Prometheus text
// format. A run writes its registry to a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the metrics of convergence runs.
type Registry struct {
	reg *prometheus.Registry

	ResourcesTotal     *prometheus.CounterVec
	NotificationsFired *prometheus.CounterVec
	RunDuration        prometheus.Gauge
	LastRun            prometheus.Gauge
	RunSuccess         prometheus.Gauge
}

// New returns a Registry backed by its own prometheus registry rather than
// the global one.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.ResourcesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "converge_resources_total",
		Help: "Resources processed, by type and outcome",
	}, []string{"type", "status"})

	r.NotificationsFired = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "converge_notifications_fired_total",
		Help: "Notifications fired, by timing",
	}, []string{"timing"})

	r.RunDuration = factory.NewGauge(prometheus.GaugeOpts{
		Name: "converge_run_duration_seconds",
		Help: "Duration of the last convergence run",
	})

	r.LastRun = factory.NewGauge(prometheus.GaugeOpts{
		Name: "converge_last_run_timestamp_seconds",
		Help: "Unix timestamp of the end of the last convergence run",
	})

	r.RunSuccess = factory.NewGauge(prometheus.GaugeOpts{
		Name: "converge_run_success",
		Help: "1 if the last convergence run completed without error",
	})

	return r
}

// RecordResource counts one processed resource.
func (r *Registry) RecordResource(typ, status string) {
	r.ResourcesTotal.WithLabelValues(typ, status).Inc()
}

// RecordNotification counts one fired notification.
func (r *Registry) RecordNotification(timing string) {
	r.NotificationsFired.WithLabelValues(timing).Inc()
}

// RecordRun sets the run gauges.
func (r *Registry) RecordRun(finished time.Time, duration time.Duration, err error) {
	r.RunDuration.Set(duration.Seconds())
	r.LastRun.Set(float64(finished.Unix()))
	if err != nil {
		r.RunSuccess.Set(0)
	} else {
		r.RunSuccess.Set(1)
	}
}

// WriteTextfile writes every metric to path for the node exporter's
// textfile collector. The write is atomic.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
