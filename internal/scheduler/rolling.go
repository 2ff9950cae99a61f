package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

// DayWindow is the rolling-volume window in seconds.
const DayWindow = 86400

// RollingScheduler sweeps daily-volume checkpoint series: evicting stale
// entries, recomputing 24h aggregates, and propagating them to Pool and
// Asset records. Per-tick cost is bounded to recently-active pools
// because swept-empty pools leave the active set.
type RollingScheduler struct {
	chainID  uint64
	store    store.Store
	interval time.Duration
	logger   *zap.Logger
}

func NewRollingScheduler(chainID uint64, st store.Store, interval time.Duration, logger *zap.Logger) *RollingScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollingScheduler{chainID: chainID, store: st, interval: interval, logger: logger}
}

// Run executes sweeps on the configured cadence until ctx is done.
func (s *RollingScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx, time.Now().Unix()); err != nil {
				s.logger.Warn("rolling sweep failed", zap.Uint64("chain_id", s.chainID), zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass over every active pool whose oldest unswept
// checkpoint predates the window. A per-pool failure defers that pool to
// the next tick; it never fails the pass.
func (s *RollingScheduler) Sweep(ctx context.Context, now int64) error {
	active, err := s.store.LoadActivePools(ctx, s.chainID)
	if err != nil {
		return fmt.Errorf("load active pools: %w", err)
	}

	cutoff := now - DayWindow
	changed := false
	for poolID, earliest := range active {
		if earliest >= cutoff {
			continue
		}

		oldest, err := s.sweepPool(ctx, poolID, cutoff)
		if err != nil {
			s.logger.Warn("pool sweep deferred",
				zap.Uint64("chain_id", s.chainID),
				zap.String("pool", poolID),
				zap.Error(err),
			)
			continue
		}

		if oldest == 0 {
			delete(active, poolID)
		} else {
			active[poolID] = oldest
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return s.store.SaveActivePools(ctx, s.chainID, active)
}

func (s *RollingScheduler) sweepPool(ctx context.Context, poolID string, cutoff int64) (int64, error) {
	checkpoints, err := s.store.LoadVolumeCheckpoints(ctx, s.chainID, poolID)
	if err != nil {
		return 0, fmt.Errorf("load checkpoints: %w", err)
	}

	aggregate, percentChange, oldest := checkpoints.Sweep(cutoff)
	if err := s.store.SaveVolumeCheckpoints(ctx, s.chainID, poolID, checkpoints); err != nil {
		return 0, fmt.Errorf("save checkpoints: %w", err)
	}

	pool, err := s.store.FindPool(ctx, s.chainID, poolID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("active pool has no record", zap.Uint64("chain_id", s.chainID), zap.String("pool", poolID))
			return oldest, nil
		}
		return 0, fmt.Errorf("find pool: %w", err)
	}

	pool.VolumeUSD = aggregate
	pool.PercentDayChange = percentChange
	if err := s.store.UpdatePool(ctx, pool); err != nil {
		return 0, fmt.Errorf("update pool: %w", err)
	}

	asset, err := s.store.FindAsset(ctx, s.chainID, pool.BaseToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return oldest, nil
		}
		return 0, fmt.Errorf("find asset: %w", err)
	}
	asset.DayVolumeUSD = aggregate
	asset.PercentDayChange = percentChange
	if err := s.store.UpdateAsset(ctx, asset); err != nil {
		return 0, fmt.Errorf("update asset: %w", err)
	}

	return oldest, nil
}
