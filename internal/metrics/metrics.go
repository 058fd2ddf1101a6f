// Package metrics holds the Prometheus collectors of the control plane.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Job metrics
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinless",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total number of finished jobs by name and terminal state",
		},
		[]string{"name", "state"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spinless",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of jobs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"name"},
	)

	jobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spinless",
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Number of jobs currently running",
		},
	)

	// Deployment metrics
	deployTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinless",
			Subsystem: "deploy",
			Name:      "tasks_total",
			Help:      "Total number of processed deployment tasks by result",
		},
		[]string{"result"},
	)

	deployTaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spinless",
			Subsystem: "deploy",
			Name:      "task_duration_seconds",
			Help:      "Duration of a single service deployment in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		},
	)

	deployQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spinless",
			Subsystem: "deploy",
			Name:      "queue_depth",
			Help:      "Number of deployment tasks waiting for the processor",
		},
	)

	// Provisioning metrics
	provisioningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinless",
			Subsystem: "provisioning",
			Name:      "runs_total",
			Help:      "Total number of provisioning runs by resource type, action and result",
		},
		[]string{"type", "action", "result"},
	)

	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinless",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route pattern, method and status code",
		},
		[]string{"route", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		jobsTotal,
		jobDuration,
		jobsRunning,
		deployTasksTotal,
		deployTaskDuration,
		deployQueueDepth,
		provisioningTotal,
		httpRequestsTotal,
	)
}

// JobStarted marks a job as running.
func JobStarted() {
	jobsRunning.Inc()
}

// JobFinished records a terminal job.
func JobFinished(name, state string, d time.Duration) {
	jobsRunning.Dec()
	jobsTotal.WithLabelValues(name, state).Inc()
	jobDuration.WithLabelValues(name).Observe(d.Seconds())
}

// DeployTask records one processed deployment task.
func DeployTask(success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	deployTasksTotal.WithLabelValues(result).Inc()
	deployTaskDuration.Observe(d.Seconds())
}

// SetDeployQueueDepth reports the number of queued deployment tasks.
func SetDeployQueueDepth(n int) {
	deployQueueDepth.Set(float64(n))
}

// ProvisioningRun records a finished create or destroy.
func ProvisioningRun(resourceType, action string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	provisioningTotal.WithLabelValues(resourceType, action, result).Inc()
}

// HTTPRequest records a served API request. route is the matched pattern,
// not the raw path, to keep the label set bounded.
func HTTPRequest(route, method string, code int) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}
