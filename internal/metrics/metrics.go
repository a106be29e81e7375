package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultPartial  = "partial"
)

var (
	// TaskOperationsTotal counts task store calls by operation and outcome.
	TaskOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasksync_task_operations_total",
			Help: "Total number of task store operations",
		},
		[]string{"op", "result"},
	)

	// ImageUploadsTotal counts uploads by kind ("binary", "base64") and outcome.
	ImageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasksync_image_uploads_total",
			Help: "Total number of image uploads",
		},
		[]string{"kind", "result"},
	)

	ImageBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasksync_image_bytes_total",
			Help: "Total number of image bytes written to the blob store",
		},
	)

	ProvisionStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasksync_provision_steps_total",
			Help: "Total number of provisioning steps by resource and outcome",
		},
		[]string{"resource", "result"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasksync_events_consumed_total",
			Help: "Total number of task events read from the queue",
		},
		[]string{"type"},
	)
)
