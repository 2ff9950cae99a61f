// Package engine is the single funnel every protocol-specific trade
// handler calls through to apply a swap to derived state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/pricing"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

// Orchestrator applies canonical trade records to Pool, Asset, Swap, and
// checkpoint state. One instance per indexing process; the delivery
// harness serializes all calls for one chain in arrival order.
type Orchestrator struct {
	store  store.Store
	logger *zap.Logger
}

func NewOrchestrator(st store.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{store: st, logger: logger}
}

// ApplyTrade records one swap and refreshes every derived metric it
// touches. The independent writes are dispatched concurrently and jointly
// awaited before returning, so a crash between events never leaves a
// half-applied trade. A missing Pool or Asset is logged and swallowed; it
// must never interrupt the event stream.
func (o *Orchestrator) ApplyTrade(ctx context.Context, env SwapEnvelope, swapType model.SwapType, metrics TradeMetrics) error {
	pool, err := o.store.FindPool(ctx, env.ChainID, env.PoolID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("trade for unknown pool",
				zap.Uint64("chain_id", env.ChainID),
				zap.String("pool", env.PoolID),
				zap.String("tx", env.TxHash),
			)
			return nil
		}
		return fmt.Errorf("find pool: %w", err)
	}
	if pool.Migrated {
		// migrated records are read-only to the trading path
		o.logger.Warn("trade for migrated pool ignored",
			zap.Uint64("chain_id", env.ChainID),
			zap.String("pool", env.PoolID),
			zap.String("tx", env.TxHash),
		)
		return nil
	}

	asset, err := o.store.FindAsset(ctx, env.ChainID, env.Asset)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("trade for unknown asset",
				zap.Uint64("chain_id", env.ChainID),
				zap.String("asset", env.Asset),
				zap.String("tx", env.TxHash),
			)
			return nil
		}
		return fmt.Errorf("find asset: %w", err)
	}

	volumeUSD := pricing.VolumeUSD(env.AmountIn, env.AmountOut, metrics.QuotePriceUSD, env.QuoteIsIn, metrics.QuoteDecimals)

	marketCap := pool.MarketCapUSD
	if metrics.Price != nil {
		marketCap = pricing.MarketCap(metrics.Price, metrics.QuotePriceUSD, metrics.TotalSupply, metrics.AssetDecimals)
	}

	assetReserve, quoteReserve := metrics.AssetReserves(pool.IsToken0)
	price := metrics.Price
	if price == nil {
		price = pool.Price
	}
	liquidityUSD := pricing.LiquidityUSD(assetReserve, quoteReserve, price, metrics.QuotePriceUSD, metrics.AssetDecimals, metrics.QuoteDecimals)

	// The insert decides whether this delivery counts: a replayed tx hash
	// is a no-op and must not add volume again.
	swap := &model.Swap{
		TxHash:    env.TxHash,
		ChainID:   env.ChainID,
		Timestamp: env.Timestamp,
		PoolID:    env.PoolID,
		Asset:     env.Asset,
		Type:      swapType,
		User:      env.Sender,
		AmountIn:  env.AmountIn,
		AmountOut: env.AmountOut,
		USDValue:  volumeUSD,
	}
	inserted, err := o.store.InsertSwap(ctx, swap)
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.updatePool(gctx, pool, env, metrics, marketCap, liquidityUSD, volumeUSD, inserted)
	})
	g.Go(func() error {
		return o.updateAsset(gctx, asset, marketCap, liquidityUSD, volumeUSD, inserted)
	})
	if inserted {
		g.Go(func() error {
			return o.updateCheckpoints(gctx, env, volumeUSD, marketCap)
		})
	}
	if metrics.Price != nil {
		point := &model.PricePoint{
			ChainID:   env.ChainID,
			PoolID:    env.PoolID,
			Token:     env.Asset,
			Timestamp: env.Timestamp,
			Price:     metrics.Price,
		}
		g.Go(func() error {
			return o.store.InsertPricePoint(gctx, point)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("apply trade %s: %w", env.TxHash, err)
	}
	return nil
}

func (o *Orchestrator) updatePool(ctx context.Context, pool *model.Pool, env SwapEnvelope, metrics TradeMetrics, marketCap, liquidityUSD, volumeUSD *big.Int, inserted bool) error {
	if metrics.Price != nil {
		pool.Price = metrics.Price
	}
	if metrics.SqrtPriceX96 != nil {
		pool.SqrtPriceX96 = metrics.SqrtPriceX96
		pool.Tick = metrics.Tick
	}
	if metrics.Reserves0 != nil {
		pool.Reserves0 = metrics.Reserves0
	}
	if metrics.Reserves1 != nil {
		pool.Reserves1 = metrics.Reserves1
	}
	if metrics.Liquidity != nil {
		pool.Liquidity = metrics.Liquidity
	}
	pool.MarketCapUSD = marketCap
	pool.DollarLiquidity = liquidityUSD
	// fees and volume accumulate, so only a first delivery may add them
	if inserted {
		pool.Fees0 = addBig(pool.Fees0, metrics.FeeDelta0)
		pool.Fees1 = addBig(pool.Fees1, metrics.FeeDelta1)
		pool.VolumeUSD = addBig(pool.VolumeUSD, volumeUSD)
	}
	pool.LastSwapAt = env.Timestamp

	switch pool.Variant {
	case model.VariantBondingV4:
		if metrics.GraduationBalance != nil {
			pool.GraduationBalance = metrics.GraduationBalance
			pool.GraduationPercent = pricing.GraduationPercent(metrics.GraduationBalance, pool.MaxThreshold)
		}
	case model.VariantBondingV3:
		pool.GraduationPercent = pricing.GraduationPercentFromTicks(metrics.Tick, pool.StartTick, pool.EndTick)
	}

	return o.store.UpdatePool(ctx, pool)
}

func (o *Orchestrator) updateAsset(ctx context.Context, asset *model.Asset, marketCap, liquidityUSD, volumeUSD *big.Int, countVolume bool) error {
	asset.MarketCapUSD = marketCap
	asset.LiquidityUSD = liquidityUSD
	if countVolume {
		asset.DayVolumeUSD = addBig(asset.DayVolumeUSD, volumeUSD)
	}
	return o.store.UpdateAsset(ctx, asset)
}

func (o *Orchestrator) updateCheckpoints(ctx context.Context, env SwapEnvelope, volumeUSD, marketCap *big.Int) error {
	checkpoints, err := o.store.LoadVolumeCheckpoints(ctx, env.ChainID, env.PoolID)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	checkpoints.Add(env.Timestamp, volumeUSD, marketCap)
	if err := o.store.SaveVolumeCheckpoints(ctx, env.ChainID, env.PoolID, checkpoints); err != nil {
		return fmt.Errorf("save checkpoints: %w", err)
	}

	active, err := o.store.LoadActivePools(ctx, env.ChainID)
	if err != nil {
		return fmt.Errorf("load active pools: %w", err)
	}
	if active.Register(env.PoolID, env.Timestamp) {
		if err := o.store.SaveActivePools(ctx, env.ChainID, active); err != nil {
			return fmt.Errorf("save active pools: %w", err)
		}
	}
	return nil
}

func addBig(current, delta *big.Int) *big.Int {
	sum := new(big.Int)
	if current != nil {
		sum.Set(current)
	}
	if delta != nil {
		sum.Add(sum, delta)
	}
	return sum
}
