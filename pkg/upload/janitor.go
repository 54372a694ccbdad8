package upload

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/db/model"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
)

// Janitor sweeps expired, never-completed upload sessions and purges their
// staged chunks. Sessions it marked expired on an earlier sweep have had
// their retention window, the next sweep drops the row entirely.
type Janitor struct {
	registry *Registry
	store    storage.ChunkStorage
	onSweep  func(SweepReport)
}

// NewJanitor new janitor
func NewJanitor(registry *Registry, store storage.ChunkStorage) *Janitor {
	return &Janitor{registry: registry, store: store}
}

// OnSweep register a hook invoked after every sweep, periodic ones included.
func (j *Janitor) OnSweep(fn func(SweepReport)) {
	j.onSweep = fn
}

// SweepReport counts of one sweep run.
type SweepReport struct {
	Scanned int
	Expired int
	Deleted int
	Failed  int
}

// Sweep purge every expired incomplete session. A failure on one session is
// logged and does not stop the sweep.
func (j *Janitor) Sweep() SweepReport {
	var report SweepReport
	sessions, err := j.registry.ListExpired()
	if err != nil {
		logrus.Errorf("janitor failed to list expired sessions: %v", err)
		return report
	}
	report.Scanned = len(sessions)
	for _, session := range sessions {
		if session.Status == model.SessionStatusExpired {
			if err := j.registry.DeleteSession(session.ID); err != nil {
				logrus.Errorf("janitor failed to delete session %s: %v", session.ID, err)
				report.Failed++
				continue
			}
			report.Deleted++
			continue
		}
		if err := j.store.CleanupChunks(session.ID); err != nil {
			logrus.Errorf("janitor failed to purge chunks of session %s: %v", session.ID, err)
			report.Failed++
			continue
		}
		if err := j.registry.MarkExpired(session.ID); err != nil {
			logrus.Errorf("janitor failed to mark session %s expired: %v", session.ID, err)
			report.Failed++
			continue
		}
		report.Expired++
	}
	if report.Scanned > 0 {
		logrus.Infof("janitor sweep done, scanned %d, expired %d, deleted %d, failed %d",
			report.Scanned, report.Expired, report.Deleted, report.Failed)
	}
	if j.onSweep != nil {
		j.onSweep(report)
	}
	return report
}

// Run sweep on the given interval until the context is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}
