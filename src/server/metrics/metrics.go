// Package metrics provides Prometheus collectors for the installer
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberkit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memberkit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memberkit_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memberkit_http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)

	// Wizard metrics
	InstallStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberkit_install_steps_total",
			Help: "Wizard step submissions by outcome",
		},
		[]string{"step", "outcome"},
	)

	InstallStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memberkit_install_step_duration_seconds",
			Help:    "Time spent handling a wizard step",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	SchemaInstallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberkit_schema_installs_total",
			Help: "Schema install attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	ConstraintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberkit_constraints_total",
			Help: "Foreign key constraint outcomes",
		},
		[]string{"outcome"},
	)

	ModulesInstalledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberkit_modules_installed_total",
			Help: "Module installs by module and outcome",
		},
		[]string{"module", "outcome"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memberkit_install_sessions_active",
			Help: "Number of live installation sessions",
		},
	)

	// Application info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memberkit_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_date", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memberkit_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

var (
	initOnce  sync.Once
	startTime time.Time
)

// Init records build info and starts the uptime updater
func Init(version, commit, buildDate string) {
	initOnce.Do(func() {
		startTime = time.Now()
		AppInfo.WithLabelValues(version, commit, buildDate, runtime.Version()).Set(1)

		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				AppUptime.Set(time.Since(startTime).Seconds())
			}
		}()
	})
}

// RecordStep records one wizard step submission
func RecordStep(step, outcome string, duration time.Duration) {
	InstallStepsTotal.WithLabelValues(step, outcome).Inc()
	InstallStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordSchemaInstall records a schema install attempt
func RecordSchemaInstall(strategy, outcome string) {
	SchemaInstallsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordConstraint records one constraint outcome
func RecordConstraint(outcome string) {
	ConstraintsTotal.WithLabelValues(outcome).Inc()
}

// RecordModuleInstall records one module install
func RecordModuleInstall(module, outcome string) {
	ModulesInstalledTotal.WithLabelValues(module, outcome).Inc()
}
