// Package scheduler hosts the two periodic passes that refresh derived
// metrics even without trades.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/oracle"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/pricing"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

// PoolFilter reports pools that must never be refreshed. The invalid-pool
// cache satisfies it.
type PoolFilter interface {
	Contains(chainID uint64, poolID string) bool
}

// EpochScheduler refreshes bonding-curve pools once per epoch boundary so
// schedule-driven price moves surface even without trades.
type EpochScheduler struct {
	chainID  uint64
	store    store.Store
	quoter   Quoter
	oracle   *oracle.Oracle
	invalid  PoolFilter
	interval time.Duration
	logger   *zap.Logger
}

func NewEpochScheduler(chainID uint64, st store.Store, quoter Quoter, priceOracle *oracle.Oracle, invalid PoolFilter, interval time.Duration, logger *zap.Logger) *EpochScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpochScheduler{
		chainID:  chainID,
		store:    st,
		quoter:   quoter,
		oracle:   priceOracle,
		invalid:  invalid,
		interval: interval,
		logger:   logger,
	}
}

// Run executes sweeps on the configured cadence until ctx is done.
func (s *EpochScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx, time.Now().Unix()); err != nil {
				s.logger.Warn("epoch sweep failed", zap.Uint64("chain_id", s.chainID), zap.Error(err))
			}
		}
	}
}

type quoteResult struct {
	poolID string
	pool   *model.Pool
	quote  *Quote
	err    error
}

// Sweep runs one pass: expired entries are removed, and every pool whose
// epoch index advanced since its last refresh is re-quoted. Quotes for all
// due pools are fanned out concurrently within the pass. A failed quote
// permanently drops the pool from tracking.
func (s *EpochScheduler) Sweep(ctx context.Context, now int64) error {
	checkpoints, err := s.store.LoadEpochCheckpoints(ctx, s.chainID)
	if err != nil {
		return fmt.Errorf("load epoch checkpoints: %w", err)
	}

	changed := false
	due := make([]model.EpochCheckpoint, 0, len(checkpoints))
	for poolID, entry := range checkpoints {
		if entry.Expired(now) {
			delete(checkpoints, poolID)
			changed = true
			s.logger.Info("bonding window ended, untracking pool",
				zap.Uint64("chain_id", s.chainID),
				zap.String("pool", poolID),
			)
			continue
		}
		if s.invalid != nil && s.invalid.Contains(s.chainID, poolID) {
			delete(checkpoints, poolID)
			changed = true
			s.logger.Info("pool flagged invalid, untracking",
				zap.Uint64("chain_id", s.chainID),
				zap.String("pool", poolID),
			)
			continue
		}
		if entry.ShouldRefresh(now) {
			due = append(due, entry)
		}
	}

	results := make([]quoteResult, len(due))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range due {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = s.quotePool(gctx, entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, result := range results {
		entry := due[i]
		if result.err != nil {
			// single failure is terminal: a drained pool never quotes again
			delete(checkpoints, entry.PoolID)
			changed = true
			s.logger.Info("quote failed, dropping pool from epoch tracking",
				zap.Uint64("chain_id", s.chainID),
				zap.String("pool", entry.PoolID),
				zap.Error(result.err),
			)
			continue
		}

		if err := s.refresh(ctx, entry, result, now); err != nil {
			// store or oracle hiccup: keep the entry, defer to next pass
			s.logger.Warn("epoch refresh failed",
				zap.Uint64("chain_id", s.chainID),
				zap.String("pool", entry.PoolID),
				zap.Error(err),
			)
			continue
		}

		entry.LastUpdated = now
		checkpoints[entry.PoolID] = entry
		changed = true
	}

	if !changed {
		return nil
	}
	return s.store.SaveEpochCheckpoints(ctx, s.chainID, checkpoints)
}

func (s *EpochScheduler) quotePool(ctx context.Context, entry model.EpochCheckpoint) quoteResult {
	result := quoteResult{poolID: entry.PoolID}

	pool, err := s.store.FindPool(ctx, s.chainID, entry.PoolID)
	if err != nil {
		result.err = fmt.Errorf("find pool: %w", err)
		return result
	}
	result.pool = pool

	quote, err := s.quoter.Quote(ctx, pool)
	if err != nil {
		result.err = fmt.Errorf("quote: %w", err)
		return result
	}
	result.quote = quote
	return result
}

func (s *EpochScheduler) refresh(ctx context.Context, entry model.EpochCheckpoint, result quoteResult, now int64) error {
	pool := result.pool
	quote := result.quote

	quoteUSD, err := s.oracle.USDPrice(ctx, s.chainID, pool.QuoteToken, now)
	if err != nil {
		return fmt.Errorf("quote usd price: %w", err)
	}

	price, priceDefined := pricing.PriceFromSqrtPrice(quote.SqrtPriceX96, entry.IsToken0, entry.AssetDecimals, entry.QuoteDecimals)

	totalSupply, ok := new(big.Int).SetString(entry.TotalSupply, 10)
	if !ok {
		return errors.New("malformed total supply")
	}

	marketCap := pool.MarketCapUSD
	if priceDefined {
		marketCap = pricing.MarketCap(price, quoteUSD, totalSupply, entry.AssetDecimals)
		pool.Price = price
	}
	liquidityUSD := pricing.LiquidityUSD(quote.AssetBalance, quote.QuoteBalance, pool.Price, quoteUSD, entry.AssetDecimals, entry.QuoteDecimals)

	pool.SqrtPriceX96 = quote.SqrtPriceX96
	pool.Tick = quote.Tick
	pool.MarketCapUSD = marketCap
	pool.DollarLiquidity = liquidityUSD
	pool.LastRefreshed = now
	if err := s.store.UpdatePool(ctx, pool); err != nil {
		return fmt.Errorf("update pool: %w", err)
	}

	asset, err := s.store.FindAsset(ctx, s.chainID, entry.Asset)
	if err == nil {
		asset.MarketCapUSD = marketCap
		asset.LiquidityUSD = liquidityUSD
		if err := s.store.UpdateAsset(ctx, asset); err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("find asset: %w", err)
	}

	if priceDefined {
		point := &model.PricePoint{
			ChainID:   s.chainID,
			PoolID:    entry.PoolID,
			Token:     entry.Asset,
			Timestamp: now,
			Price:     price,
		}
		if err := s.store.InsertPricePoint(ctx, point); err != nil {
			return fmt.Errorf("insert price point: %w", err)
		}
	}

	return nil
}
