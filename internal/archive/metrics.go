package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventario_archive_build_duration_seconds",
		Help:    "Duration of session archive builds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"})

	restoreDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventario_archive_restore_duration_seconds",
		Help:    "Duration of session archive restores",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"result"})

	restoredBlobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventario_archive_restored_blobs_total",
		Help: "Blobs written by archive restores and photo reconciliation by partition",
	}, []string{"partition"})

	skippedPhotosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventario_archive_skipped_photos_total",
		Help: "Photos skipped during reconciliation by reason",
	}, []string{"reason"})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventario_archive_rollbacks_total",
		Help: "Restores aborted and rolled back before the document write",
	})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
