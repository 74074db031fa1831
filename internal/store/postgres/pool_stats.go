package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type statsProvider interface {
	Stats() sql.DBStats
}

type poolStatsGauges struct {
	open         *prometheus.GaugeVec
	inUse        *prometheus.GaugeVec
	idle         *prometheus.GaugeVec
	waitCount    *prometheus.GaugeVec
	waitDuration *prometheus.GaugeVec
}

func defaultPoolStatsGauges() poolStatsGauges {
	return poolStatsGauges{
		open:         metrics.DBPoolOpen,
		inUse:        metrics.DBPoolInUse,
		idle:         metrics.DBPoolIdle,
		waitCount:    metrics.DBPoolWaitCount,
		waitDuration: metrics.DBPoolWaitDurationSeconds,
	}
}

func collectPoolStats(db statsProvider, owner string, gauges poolStatsGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return fmt.Errorf("db stats provider is nil")
	}

	stats := db.Stats()
	gauges.open.WithLabelValues(owner).Set(float64(stats.OpenConnections))
	gauges.inUse.WithLabelValues(owner).Set(float64(stats.InUse))
	gauges.idle.WithLabelValues(owner).Set(float64(stats.Idle))
	gauges.waitCount.WithLabelValues(owner).Set(float64(stats.WaitCount))
	gauges.waitDuration.WithLabelValues(owner).Set(stats.WaitDuration.Seconds())
	return nil
}

// StartPoolStatsPump samples pool statistics into the DBPool gauges every
// interval until ctx is done. owner labels the series.
func StartPoolStatsPump(ctx context.Context, db statsProvider, owner string, interval time.Duration, logger *slog.Logger) {
	if db == nil || interval <= 0 {
		return
	}
	gauges := defaultPoolStatsGauges()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		if err := collectPoolStats(db, owner, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				if err := collectPoolStats(db, owner, gauges); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}
