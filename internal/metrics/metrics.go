// Package metrics exposes Prometheus instruments for credential, connection
// and background task activity. All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// Metrics provides observability for fiscalkeeper.
type Metrics struct {
	// Connection test outcomes by resulting status and step
	ConnectionTests *prometheus.CounterVec

	// Sweep counters by outcome: checked, expired, expiring_soon, notified, error
	SweepCompanies *prometheus.CounterVec
	SweepDuration  prometheus.Histogram

	// Notifications emitted and suppressed by category
	Notifications *prometheus.CounterVec

	// Background task runs by task and result
	TaskRuns *prometheus.CounterVec

	// 1 while the cipher runs on a generated key
	EphemeralKey prometheus.Gauge
}

// New registers all instruments with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionTests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalkeeper_connection_tests_total",
			Help: "Total connection tests by resulting status and remediation step",
		}, []string{"status", "step"}),

		SweepCompanies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalkeeper_certificate_sweep_companies_total",
			Help: "Companies processed by the certificate expiration sweep by outcome",
		}, []string{"outcome"}),

		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fiscalkeeper_certificate_sweep_duration_seconds",
			Help:    "Duration of a full certificate expiration sweep",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalkeeper_notifications_total",
			Help: "Notifications by category and result (sent, deduplicated)",
		}, []string{"category", "result"}),

		TaskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalkeeper_task_runs_total",
			Help: "Background task runs by task name and result",
		}, []string{"task", "result"}),

		EphemeralKey: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fiscalkeeper_encryption_key_ephemeral",
			Help: "Set to 1 when credentials are encrypted with a generated, non-persistent key",
		}),
	}
}

// IncrementConnectionTest records the outcome of one connection test.
func (m *Metrics) IncrementConnectionTest(status model.ConnectionStatus, step model.Step) {
	if m != nil {
		m.ConnectionTests.WithLabelValues(string(status), string(step)).Inc()
	}
}

// ObserveSweep adds a finished sweep's report to the counters.
func (m *Metrics) ObserveSweep(report model.SweepReport, d time.Duration) {
	if m == nil {
		return
	}
	m.SweepCompanies.WithLabelValues("checked").Add(float64(report.Total))
	m.SweepCompanies.WithLabelValues("expired").Add(float64(report.Expired))
	m.SweepCompanies.WithLabelValues("expiring_soon").Add(float64(report.ExpiringSoon))
	m.SweepCompanies.WithLabelValues("notified").Add(float64(report.NotificationsSent))
	m.SweepCompanies.WithLabelValues("error").Add(float64(report.Errors))
	m.SweepDuration.Observe(d.Seconds())
}

// IncrementNotification records a sent or suppressed notification.
func (m *Metrics) IncrementNotification(category model.NotificationCategory, sent bool) {
	if m == nil {
		return
	}
	result := "deduplicated"
	if sent {
		result = "sent"
	}
	m.Notifications.WithLabelValues(string(category), result).Inc()
}

// IncrementTaskRun records one background task run.
func (m *Metrics) IncrementTaskRun(task string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TaskRuns.WithLabelValues(task, result).Inc()
}

// SetEphemeralKey exports whether the cipher key is ephemeral.
func (m *Metrics) SetEphemeralKey(ephemeral bool) {
	if m == nil {
		return
	}
	if ephemeral {
		m.EphemeralKey.Set(1)
		return
	}
	m.EphemeralKey.Set(0)
}
