package migrate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/cache"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/pricing"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

// ChainReader is the slice of chain access the reconciler needs to
// bootstrap a successor pool's initial state. chain.Client satisfies it.
type ChainReader interface {
	V2Reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error)
	Slot0(ctx context.Context, pool common.Address) (*big.Int, int32, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Event carries one graduation notice: the bonding-curve pool that
// completed, plus whatever the emitting contract told us about the
// successor venue. Reserve fields are optional; when absent the
// reconciler reads fresh state from the chain.
type Event struct {
	ChainID    uint64
	ParentPool string
	Timestamp  int64

	// Successor identity. Address-deployed venues carry SuccessorAddress;
	// hook-based venues instead carry the key fields the pool id is
	// derived from, plus the migrator contract that holds its balances.
	SuccessorAddress string
	Currency0        string
	Currency1        string
	Fee              uint32
	TickSpacing      int32
	Hooks            string
	Migrator         string

	Reserves0 *big.Int
	Reserves1 *big.Int
}

type strategy interface {
	variant() model.PoolVariant
	bootstrap(ctx context.Context, r *Reconciler, parent *model.Pool, ev Event) (*model.Pool, error)
}

// strategies is the closed set of successor venue types, in the order
// they are consulted. Adding a venue generation means adding an entry
// here, nowhere else.
var strategies = []strategy{
	v2Strategy{},
	v3Strategy{},
	v4Strategy{},
}

// Reconciler turns graduation events into linked parent/successor pool
// records.
type Reconciler struct {
	store    store.Store
	chain    ChainReader
	migrated *cache.MigrationPoolCache
	logger   *zap.Logger
}

func NewReconciler(st store.Store, chain ChainReader, migrated *cache.MigrationPoolCache, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, chain: chain, migrated: migrated, logger: logger}
}

// Reconcile processes one graduation event end to end: it bootstraps the
// successor pool record, retires the parent, and repoints the asset.
// Replays of an already-reconciled event are no-ops.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) error {
	parentID := strings.ToLower(ev.ParentPool)

	parent, err := r.store.FindPool(ctx, ev.ChainID, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("migration for unknown pool",
				zap.Uint64("chain_id", ev.ChainID),
				zap.String("pool", parentID),
			)
			return nil
		}
		return fmt.Errorf("find parent pool: %w", err)
	}
	if parent.Migrated {
		// an earlier delivery may have died between the parent flip and
		// the asset or flag writes; replay finishes the cross-link
		return r.completeCrossLink(ctx, parent, parent.MigratedToPool, parent.MigratedAt)
	}

	strat := r.strategyFor(parent.SuccessorVariant)
	if strat == nil {
		r.logger.Warn("pool has no recognized successor variant",
			zap.Uint64("chain_id", ev.ChainID),
			zap.String("pool", parentID),
			zap.String("successor_variant", string(parent.SuccessorVariant)),
		)
		return nil
	}

	successor, err := strat.bootstrap(ctx, r, parent, ev)
	if err != nil {
		return fmt.Errorf("bootstrap %s successor for %s: %w", strat.variant(), parentID, err)
	}

	successor.ChainID = ev.ChainID
	successor.Variant = strat.variant()
	successor.BaseToken = parent.BaseToken
	successor.QuoteToken = parent.QuoteToken
	successor.ParentPool = parent.PoolID
	// USD figures carry over so the asset's market cap does not blink to
	// zero between the last bonding trade and the first successor trade.
	successor.MarketCapUSD = parent.MarketCapUSD
	successor.DollarLiquidity = parent.DollarLiquidity
	successor.VolumeUSD = new(big.Int)
	successor.CreatedAt = ev.Timestamp
	successor.LastRefreshed = ev.Timestamp

	if err := r.store.UpsertPool(ctx, successor); err != nil {
		return fmt.Errorf("upsert successor pool: %w", err)
	}

	// the parent flip comes last so a failure anywhere above leaves it
	// unmigrated and a replay reruns the whole pass
	if err := r.crossLinkAsset(ctx, parent, successor.PoolID, ev.Timestamp); err != nil {
		return err
	}

	parent.Migrated = true
	parent.MigratedAt = ev.Timestamp
	parent.MigratedToPool = successor.PoolID
	if err := r.store.UpdatePool(ctx, parent); err != nil {
		return fmt.Errorf("retire parent pool: %w", err)
	}

	if err := r.flagMigrated(ctx, parent); err != nil {
		return err
	}

	r.logger.Info("pool migrated",
		zap.Uint64("chain_id", ev.ChainID),
		zap.String("parent", parent.PoolID),
		zap.String("successor", successor.PoolID),
		zap.String("variant", string(successor.Variant)),
	)
	return nil
}

func (r *Reconciler) crossLinkAsset(ctx context.Context, parent *model.Pool, successorID string, migratedAt int64) error {
	asset, err := r.store.FindAsset(ctx, parent.ChainID, parent.BaseToken)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("find asset: %w", err)
		}
		r.logger.Warn("migrated pool has no asset record",
			zap.Uint64("chain_id", parent.ChainID),
			zap.String("asset", parent.BaseToken),
		)
		return nil
	}
	if asset.Migrated && asset.MigrationPoolID == successorID {
		return nil
	}

	asset.Migrated = true
	asset.MigratedAt = migratedAt
	asset.MigrationPoolID = successorID
	asset.PoolID = successorID
	if err := r.store.UpdateAsset(ctx, asset); err != nil {
		return fmt.Errorf("repoint asset: %w", err)
	}
	return nil
}

func (r *Reconciler) flagMigrated(ctx context.Context, parent *model.Pool) error {
	if r.migrated == nil {
		return nil
	}
	if err := r.migrated.Add(ctx, parent.ChainID, parent.PoolID); err != nil {
		return fmt.Errorf("flag migrated pool: %w", err)
	}
	return nil
}

// completeCrossLink reconverges the asset record and the migrated flag
// for a parent that is already retired.
func (r *Reconciler) completeCrossLink(ctx context.Context, parent *model.Pool, successorID string, migratedAt int64) error {
	if err := r.crossLinkAsset(ctx, parent, successorID, migratedAt); err != nil {
		return err
	}
	return r.flagMigrated(ctx, parent)
}

func (r *Reconciler) strategyFor(variant model.PoolVariant) strategy {
	for _, strat := range strategies {
		if strat.variant() == variant {
			return strat
		}
	}
	return nil
}

// legDecimals reads decimals for both tokens of the parent's pair, with
// the base token mapped to the right leg.
func (r *Reconciler) legDecimals(ctx context.Context, parent *model.Pool) (base uint8, quote uint8, err error) {
	base, err = r.chain.TokenDecimals(ctx, common.HexToAddress(parent.BaseToken))
	if err != nil {
		return 0, 0, fmt.Errorf("base decimals: %w", err)
	}
	quoteAddr := common.HexToAddress(parent.QuoteToken)
	if quoteAddr == (common.Address{}) {
		// Native currency has no decimals() to call.
		return base, 18, nil
	}
	quote, err = r.chain.TokenDecimals(ctx, quoteAddr)
	if err != nil {
		return 0, 0, fmt.Errorf("quote decimals: %w", err)
	}
	return base, quote, nil
}

// baseIsToken0 reports whether the parent's base token sorts into the
// successor's token0 leg.
func baseIsToken0(parent *model.Pool, currency0 string) bool {
	if currency0 != "" {
		return strings.EqualFold(currency0, parent.BaseToken)
	}
	return parent.IsToken0
}

type v2Strategy struct{}

func (v2Strategy) variant() model.PoolVariant { return model.VariantV2 }

func (v2Strategy) bootstrap(ctx context.Context, r *Reconciler, parent *model.Pool, ev Event) (*model.Pool, error) {
	if ev.SuccessorAddress == "" {
		return nil, errors.New("missing successor pair address")
	}
	pairAddr := common.HexToAddress(ev.SuccessorAddress)

	reserve0, reserve1 := ev.Reserves0, ev.Reserves1
	if reserve0 == nil || reserve1 == nil {
		var err error
		reserve0, reserve1, err = r.chain.V2Reserves(ctx, pairAddr)
		if err != nil {
			return nil, fmt.Errorf("read reserves: %w", err)
		}
	}

	baseDec, quoteDec, err := r.legDecimals(ctx, parent)
	if err != nil {
		return nil, err
	}

	isToken0 := baseIsToken0(parent, ev.Currency0)
	assetReserve, quoteReserve := reserve0, reserve1
	if !isToken0 {
		assetReserve, quoteReserve = reserve1, reserve0
	}

	return &model.Pool{
		PoolID:    strings.ToLower(ev.SuccessorAddress),
		IsToken0:  isToken0,
		Price:     pricing.PriceFromReserves(assetReserve, quoteReserve, baseDec, quoteDec),
		Reserves0: reserve0,
		Reserves1: reserve1,
	}, nil
}

type v3Strategy struct{}

func (v3Strategy) variant() model.PoolVariant { return model.VariantV3 }

func (v3Strategy) bootstrap(ctx context.Context, r *Reconciler, parent *model.Pool, ev Event) (*model.Pool, error) {
	if ev.SuccessorAddress == "" {
		return nil, errors.New("missing successor pool address")
	}
	poolAddr := common.HexToAddress(ev.SuccessorAddress)

	sqrtPrice, tick, err := r.chain.Slot0(ctx, poolAddr)
	if err != nil {
		return nil, fmt.Errorf("read slot0: %w", err)
	}

	baseDec, quoteDec, err := r.legDecimals(ctx, parent)
	if err != nil {
		return nil, err
	}

	isToken0 := baseIsToken0(parent, ev.Currency0)
	price, _ := pricing.PriceFromSqrtPrice(sqrtPrice, isToken0, baseDec, quoteDec)

	reserve0, reserve1 := ev.Reserves0, ev.Reserves1
	if reserve0 == nil || reserve1 == nil {
		reserve0, err = r.chain.TokenBalance(ctx, common.HexToAddress(parent.BaseToken), poolAddr)
		if err != nil {
			return nil, fmt.Errorf("read base balance: %w", err)
		}
		reserve1, err = r.chain.TokenBalance(ctx, common.HexToAddress(parent.QuoteToken), poolAddr)
		if err != nil {
			return nil, fmt.Errorf("read quote balance: %w", err)
		}
		if !isToken0 {
			reserve0, reserve1 = reserve1, reserve0
		}
	}

	return &model.Pool{
		PoolID:       strings.ToLower(ev.SuccessorAddress),
		IsToken0:     isToken0,
		Price:        price,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Reserves0:    reserve0,
		Reserves1:    reserve1,
		Fee:          ev.Fee,
	}, nil
}

type v4Strategy struct{}

func (v4Strategy) variant() model.PoolVariant { return model.VariantV4 }

func (v4Strategy) bootstrap(ctx context.Context, r *Reconciler, parent *model.Pool, ev Event) (*model.Pool, error) {
	if ev.Currency0 == "" || ev.Currency1 == "" {
		return nil, errors.New("missing pool key currencies")
	}

	poolID := DerivePoolID(
		common.HexToAddress(ev.Currency0),
		common.HexToAddress(ev.Currency1),
		ev.Fee,
		ev.TickSpacing,
		common.HexToAddress(ev.Hooks),
	)

	reserve0, reserve1 := ev.Reserves0, ev.Reserves1
	if reserve0 == nil || reserve1 == nil {
		if ev.Migrator == "" {
			return nil, errors.New("no reserves in payload and no migrator to read from")
		}
		var err error
		reserve0, reserve1, err = readMigratorBalances(ctx, r.chain,
			common.HexToAddress(ev.Migrator), common.HexToAddress(parent.BaseToken))
		if err != nil {
			return nil, err
		}
	}

	baseDec, quoteDec, err := r.legDecimals(ctx, parent)
	if err != nil {
		return nil, err
	}

	isToken0 := baseIsToken0(parent, ev.Currency0)
	assetReserve, quoteReserve := reserve0, reserve1
	if !isToken0 {
		assetReserve, quoteReserve = reserve1, reserve0
	}

	return &model.Pool{
		PoolID:    strings.ToLower(poolID.Hex()),
		IsToken0:  isToken0,
		Price:     pricing.PriceFromReserves(assetReserve, quoteReserve, baseDec, quoteDec),
		Reserves0: reserve0,
		Reserves1: reserve1,
		Fee:       ev.Fee,
	}, nil
}
