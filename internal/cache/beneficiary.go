package cache

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

// DefaultBeneficiaryCapacity bounds the beneficiary LRU. The key space is
// effectively unbounded and rarely queried, so this cache is deliberately
// not bulk-loaded.
const DefaultBeneficiaryCapacity = 500

type beneficiaryKey struct {
	chainID uint64
	address string
}

// BeneficiaryCache is a bounded LRU over beneficiary records. A cached nil
// entry records a known-absent address, so repeated misses don't hit the
// store.
type BeneficiaryCache struct {
	store   store.BeneficiaryStore
	entries *lru.Cache[beneficiaryKey, *model.Beneficiary]
	logger  *zap.Logger
}

func NewBeneficiaryCache(backing store.BeneficiaryStore, capacity int, logger *zap.Logger) (*BeneficiaryCache, error) {
	if capacity <= 0 {
		capacity = DefaultBeneficiaryCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := lru.New[beneficiaryKey, *model.Beneficiary](capacity)
	if err != nil {
		return nil, fmt.Errorf("beneficiary lru: %w", err)
	}
	return &BeneficiaryCache{store: backing, entries: entries, logger: logger}, nil
}

// Lookup returns the beneficiary for (chainID, address), or nil when the
// address is known to have no record. Misses fall through to the store and
// populate the cache either way.
func (c *BeneficiaryCache) Lookup(ctx context.Context, chainID uint64, address string) (*model.Beneficiary, error) {
	key := beneficiaryKey{chainID: chainID, address: address}
	if entry, ok := c.entries.Get(key); ok {
		return entry, nil
	}

	beneficiary, err := c.store.FindBeneficiary(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.entries.Add(key, nil)
			return nil, nil
		}
		return nil, err
	}

	c.entries.Add(key, beneficiary)
	return beneficiary, nil
}

// Put records a beneficiary discovered on the write path.
func (c *BeneficiaryCache) Put(chainID uint64, beneficiary *model.Beneficiary) {
	if beneficiary == nil {
		return
	}
	c.entries.Add(beneficiaryKey{chainID: chainID, address: beneficiary.Address}, beneficiary)
}

// Len reports the number of cached entries.
func (c *BeneficiaryCache) Len() int {
	return c.entries.Len()
}
