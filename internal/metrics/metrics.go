// Package metrics records per-run counters and writes them in the
// Prometheus text format, for pickup by a node_exporter textfile collector.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/timelogbot/internal/domain"
)

// Project outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Recorder holds the metrics of one run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	projects             *prometheus.CounterVec
	milestones           *prometheus.CounterVec
	notificationFailures prometheus.Counter
	hours                *prometheus.GaugeVec
	lastRun              prometheus.Gauge
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		projects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timelogbot_projects_total",
				Help: "Projects processed, by outcome.",
			},
			[]string{"outcome"},
		),
		milestones: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timelogbot_milestones_total",
				Help: "Milestones newly crossed, by milestone.",
			},
			[]string{"milestone"},
		),
		notificationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "timelogbot_notification_failures_total",
				Help: "Milestone notifications that could not be delivered.",
			},
		),
		hours: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "timelogbot_project_hours",
				Help: "Total hours logged per project.",
			},
			[]string{"project"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "timelogbot_last_run_timestamp_seconds",
				Help: "Unix time the last run finished.",
			},
		),
	}

	r.registry.MustRegister(r.projects, r.milestones, r.notificationFailures, r.hours, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ProjectDone counts one processed project.
func (r *Recorder) ProjectDone(outcome string) {
	if r == nil {
		return
	}
	r.projects.WithLabelValues(outcome).Inc()
}

// MilestonesFired counts newly crossed milestones.
func (r *Recorder) MilestonesFired(crossed []domain.Milestone) {
	if r == nil {
		return
	}
	for _, m := range crossed {
		r.milestones.WithLabelValues(string(m)).Inc()
	}
}

// NotificationFailed counts one undelivered notification.
func (r *Recorder) NotificationFailed() {
	if r == nil {
		return
	}
	r.notificationFailures.Inc()
}

// ProjectHours records the current total hours of project.
func (r *Recorder) ProjectHours(project string, hours float64) {
	if r == nil {
		return
	}
	r.hours.WithLabelValues(project).Set(hours)
}

// RunFinished records the completion time of the run in Unix seconds.
func (r *Recorder) RunFinished(unixSeconds float64) {
	if r == nil {
		return
	}
	r.lastRun.Set(unixSeconds)
}

// WriteFile writes all metrics to path atomically, as the textfile
// collector expects.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
