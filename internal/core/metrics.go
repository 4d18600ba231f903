package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Save outcome labels.
const (
	saveOK    = "ok"
	saveQuota = "quota_exceeded"
	saveError = "error"
)

var (
	saveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventario_state_saves_total",
		Help: "State document saves by trigger and result",
	}, []string{"trigger", "result"})

	readOnlyTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventario_read_only_transitions_total",
		Help: "Sessions forced into read-only mode by a quota rejection",
	})

	blobOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventario_blob_operations_total",
		Help: "Blob store operations issued by the state manager by operation and status",
	}, []string{"operation", "status"})
)

func observeBlob(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	blobOperationsTotal.WithLabelValues(operation, status).Inc()
}
