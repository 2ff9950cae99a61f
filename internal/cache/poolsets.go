package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
)

// CodeProber answers whether an address holds deployed contract code.
// chain.Client satisfies it.
type CodeProber interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}

type flagScanner func(ctx context.Context) ([]model.PoolKey, error)
type flagInserter func(ctx context.Context, key model.PoolKey) error

// poolSet is a full-precompute set cache over a pool flag: bulk-loaded
// once at process start, then answering every lookup in memory. New
// entries update both the set and the store the instant they are
// discovered.
type poolSet struct {
	mu     sync.RWMutex
	keys   map[model.PoolKey]struct{}
	scan   flagScanner
	insert flagInserter
	logger *zap.Logger
}

func newPoolSet(scan flagScanner, insert flagInserter, logger *zap.Logger) *poolSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &poolSet{
		keys:   make(map[model.PoolKey]struct{}),
		scan:   scan,
		insert: insert,
		logger: logger,
	}
}

// Preload bulk-scans the store into the in-memory set.
func (s *poolSet) Preload(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return fmt.Errorf("preload pool set: %w", err)
	}

	s.mu.Lock()
	for _, key := range keys {
		s.keys[key] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// Contains answers without a store round-trip.
func (s *poolSet) Contains(chainID uint64, poolID string) bool {
	s.mu.RLock()
	_, ok := s.keys[model.PoolKey{ChainID: chainID, PoolID: poolID}]
	s.mu.RUnlock()
	return ok
}

// Add marks a pool in both the set and the store. Idempotent.
func (s *poolSet) Add(ctx context.Context, chainID uint64, poolID string) error {
	key := model.PoolKey{ChainID: chainID, PoolID: poolID}

	s.mu.Lock()
	_, existed := s.keys[key]
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	if existed {
		return nil
	}

	return s.insert(ctx, key)
}

func (s *poolSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// InvalidPoolCache tracks pools that must be permanently skipped.
type InvalidPoolCache struct {
	*poolSet
}

func NewInvalidPoolCache(scan flagScanner, insert flagInserter, logger *zap.Logger) *InvalidPoolCache {
	return &InvalidPoolCache{poolSet: newPoolSet(scan, insert, logger)}
}

// MarkInvalidIfEOA probes each currency leg once for deployed code and
// marks the pool invalid when either leg resolves to an externally-owned
// account. The zero address denotes the chain's native currency and is
// never probed. Returns whether the pool was (or already is) invalid.
func (c *InvalidPoolCache) MarkInvalidIfEOA(ctx context.Context, prober CodeProber, chainID uint64, poolID string, currency0, currency1 string) (bool, error) {
	if c.Contains(chainID, poolID) {
		return true, nil
	}

	for _, currency := range []string{currency0, currency1} {
		addr := common.HexToAddress(currency)
		if addr == (common.Address{}) {
			continue
		}
		hasCode, err := prober.HasCode(ctx, addr)
		if err != nil {
			return false, fmt.Errorf("code probe %s: %w", currency, err)
		}
		if !hasCode {
			c.logger.Info("pool leg is an externally-owned account, marking invalid",
				zap.Uint64("chain_id", chainID),
				zap.String("pool", poolID),
				zap.String("currency", currency),
			)
			if err := c.Add(ctx, chainID, poolID); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	return false, nil
}

// MigrationPoolCache tracks pools that have migrated, so trade handlers
// can treat the parent address as read-only without a store lookup.
type MigrationPoolCache struct {
	*poolSet
}

func NewMigrationPoolCache(scan flagScanner, insert flagInserter, logger *zap.Logger) *MigrationPoolCache {
	return &MigrationPoolCache{poolSet: newPoolSet(scan, insert, logger)}
}
