package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackupsTotal counts finished backup attempts by origin and final status.
	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_runs_total",
		Help: "Total backup attempts by origin and final status",
	}, []string{"origin", "status"})

	// BackupDuration observes wall time of whole backup runs.
	BackupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backup_duration_seconds",
		Help:    "Duration of backup runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// RestoresTotal counts finished restore attempts by result.
	RestoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restore_runs_total",
		Help: "Total restore attempts by result",
	}, []string{"result"})

	// RescanRegistered counts registry rows rebuilt from disk by the reconciler.
	RescanRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_rescan_registered_total",
		Help: "Backup rows inserted by registry reconciliation",
	})

	// RetentionDeleted counts backups removed by retention cleanup.
	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_retention_deleted_total",
		Help: "Backups deleted by retention cleanup",
	})
)
