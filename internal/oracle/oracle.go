// Package oracle resolves the USD price of a pool's quote currency.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/pricing"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

const (
	// DefaultStep is the backward-walk interval between attempts.
	DefaultStep = 300 * time.Second
	// DefaultMaxAttempts caps the backward walk before the live read.
	DefaultMaxAttempts = 10
)

// LiveReader performs the on-demand chain read used when the persisted
// series has no usable observation.
type LiveReader interface {
	USDPrice(ctx context.Context, chainID uint64, token common.Address) (*big.Int, error)
}

// Config controls oracle lookup behavior.
type Config struct {
	Step        time.Duration
	MaxAttempts int
	// Stablecoins maps chain id to addresses that always price at $1.
	Stablecoins map[uint64][]string
}

// Oracle answers quote-USD price lookups: stablecoins short-circuit to
// 1e18, otherwise the persisted series is probed at the requested time and
// then backward in fixed steps up to a hard attempt ceiling, falling back
// to a live chain read.
type Oracle struct {
	prices  store.PriceStore
	live    LiveReader
	step    int64
	ceiling int
	stables map[uint64]map[string]struct{}
	logger  *zap.Logger
}

func New(prices store.PriceStore, live LiveReader, cfg Config, logger *zap.Logger) *Oracle {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stables := make(map[uint64]map[string]struct{}, len(cfg.Stablecoins))
	for chainID, addrs := range cfg.Stablecoins {
		set := make(map[string]struct{}, len(addrs))
		for _, addr := range addrs {
			set[strings.ToLower(addr)] = struct{}{}
		}
		stables[chainID] = set
	}

	return &Oracle{
		prices:  prices,
		live:    live,
		step:    int64(cfg.Step / time.Second),
		ceiling: cfg.MaxAttempts,
		stables: stables,
		logger:  logger,
	}
}

// USDPrice returns the USD price (1e18 scale) of token at ts.
func (o *Oracle) USDPrice(ctx context.Context, chainID uint64, token string, ts int64) (*big.Int, error) {
	if o.isStablecoin(chainID, token) {
		return new(big.Int).Set(pricing.Wad), nil
	}

	for attempt := 0; attempt < o.ceiling; attempt++ {
		price, err := o.prices.FindUSDPriceAt(ctx, chainID, token, ts-int64(attempt)*o.step)
		if err == nil {
			return price, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("usd price lookup: %w", err)
		}
	}

	o.logger.Debug("no persisted usd price, falling back to live read",
		zap.Uint64("chain_id", chainID),
		zap.String("token", token),
		zap.Int64("ts", ts),
	)

	if o.live == nil {
		return nil, store.ErrNotFound
	}
	price, err := o.live.USDPrice(ctx, chainID, common.HexToAddress(token))
	if err != nil {
		return nil, fmt.Errorf("live usd price: %w", err)
	}
	return price, nil
}

func (o *Oracle) isStablecoin(chainID uint64, token string) bool {
	set, ok := o.stables[chainID]
	if !ok {
		return false
	}
	_, ok = set[strings.ToLower(token)]
	return ok
}
