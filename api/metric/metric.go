package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Upload subsystem metrics.
var (
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultbox",
		Subsystem: "upload",
		Name:      "sessions_created_total",
		Help:      "Number of upload sessions created.",
	})
	SessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultbox",
		Subsystem: "upload",
		Name:      "sessions_completed_total",
		Help:      "Number of upload sessions finalized into a file.",
	})
	SessionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultbox",
		Subsystem: "upload",
		Name:      "sessions_failed_total",
		Help:      "Number of upload sessions that failed during finalize.",
	})
	SessionsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultbox",
		Subsystem: "upload",
		Name:      "sessions_cancelled_total",
		Help:      "Number of upload sessions cancelled by the client.",
	})
	SessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultbox",
		Subsystem: "upload",
		Name:      "sessions_expired_total",
		Help:      "Number of upload sessions purged by the janitor.",
	})
	ChunksStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultbox",
		Subsystem: "upload",
		Name:      "chunks_stored_total",
		Help:      "Number of chunk store operations, retries included.",
	})
)

func init() {
	prometheus.MustRegister(
		SessionsCreated,
		SessionsCompleted,
		SessionsFailed,
		SessionsCancelled,
		SessionsExpired,
		ChunksStored,
	)
}
