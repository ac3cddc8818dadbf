// Package maintenance runs the out-of-band cleanup of expired sessions and
// rate limit records. Nothing here schedules itself; a cron job calls the
// admin endpoint or the sweep command.
package maintenance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type RecordPurger interface {
	Purge() int
}

type CleanupManager struct {
	sessions SessionSweeper
	limiter  RecordPurger
	metrics  *MetricsCollector
	logger   *zap.Logger
}

// NewCleanupManager accepts a nil limiter for processes that hold no rate
// limit state, such as the sweep command.
func NewCleanupManager(sessions SessionSweeper, limiter RecordPurger, metrics *MetricsCollector, logger *zap.Logger) *CleanupManager {
	return &CleanupManager{
		sessions: sessions,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run performs one sweep and returns its metrics.
func (cm *CleanupManager) Run(ctx context.Context) (SweepMetrics, error) {
	sweepID := uuid.NewString()
	cm.metrics.StartSweep(sweepID)

	var purged int
	if cm.limiter != nil {
		purged = cm.limiter.Purge()
	}

	removed, err := cm.sessions.SweepExpired(ctx)
	if err != nil {
		cm.logger.Error("failed to sweep expired sessions",
			zap.String("sweep_id", sweepID),
			zap.Error(err))
		err = fmt.Errorf("sweep expired sessions: %w", err)
	}

	cm.metrics.EndSweep(sweepID, removed, purged, err)
	cm.logger.Info("maintenance sweep finished",
		zap.String("sweep_id", sweepID),
		zap.Int64("sessions_removed", removed),
		zap.Int("records_purged", purged))

	run, _ := cm.metrics.Get(sweepID)
	return run, err
}

func (cm *CleanupManager) Stats() Stats {
	return cm.metrics.Snapshot()
}
