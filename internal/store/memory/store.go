// Package memory provides an in-memory Store used by tests.
package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

type swapKey struct {
	txHash  string
	chainID uint64
}

type blobKey struct {
	chainID uint64
	poolID  string
}

type priceKey struct {
	chainID uint64
	token   string
	bucket  int64
}

// Store is a map-backed store.Store implementation.
type Store struct {
	mu sync.Mutex

	pools         map[model.PoolKey]*model.Pool
	assets        map[model.AssetKey]*model.Asset
	swaps         map[swapKey]*model.Swap
	activePools   map[uint64]model.ActivePools
	epochs        map[uint64]model.EpochCheckpoints
	checkpoints   map[blobKey]model.VolumeCheckpoints
	pricePoints   []*model.PricePoint
	usdPrices     map[priceKey]*big.Int
	beneficiaries map[model.AssetKey]*model.Beneficiary
	invalidPools  map[model.PoolKey]struct{}
	migratedPools map[model.PoolKey]struct{}

	// PriceBucket mirrors the oracle's lookup granularity.
	PriceBucket int64
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		pools:         make(map[model.PoolKey]*model.Pool),
		assets:        make(map[model.AssetKey]*model.Asset),
		swaps:         make(map[swapKey]*model.Swap),
		activePools:   make(map[uint64]model.ActivePools),
		epochs:        make(map[uint64]model.EpochCheckpoints),
		checkpoints:   make(map[blobKey]model.VolumeCheckpoints),
		usdPrices:     make(map[priceKey]*big.Int),
		beneficiaries: make(map[model.AssetKey]*model.Beneficiary),
		invalidPools:  make(map[model.PoolKey]struct{}),
		migratedPools: make(map[model.PoolKey]struct{}),
		PriceBucket:   300,
	}
}

func (s *Store) FindPool(_ context.Context, chainID uint64, poolID string) (*model.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[model.PoolKey{ChainID: chainID, PoolID: poolID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *pool
	return &clone, nil
}

func (s *Store) UpsertPool(_ context.Context, pool *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *pool
	s.pools[pool.Key()] = &clone
	return nil
}

func (s *Store) UpdatePool(ctx context.Context, pool *model.Pool) error {
	return s.UpsertPool(ctx, pool)
}

func (s *Store) FindAsset(_ context.Context, chainID uint64, address string) (*model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[model.AssetKey{ChainID: chainID, Address: address}]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *asset
	return &clone, nil
}

func (s *Store) UpsertAsset(_ context.Context, asset *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *asset
	s.assets[asset.Key()] = &clone
	return nil
}

func (s *Store) UpdateAsset(ctx context.Context, asset *model.Asset) error {
	return s.UpsertAsset(ctx, asset)
}

func (s *Store) InsertSwap(_ context.Context, swap *model.Swap) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := swapKey{txHash: swap.TxHash, chainID: swap.ChainID}
	if _, ok := s.swaps[key]; ok {
		return false, nil
	}
	clone := *swap
	s.swaps[key] = &clone
	return true, nil
}

// SwapCount reports the number of stored swap rows.
func (s *Store) SwapCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.swaps)
}

func (s *Store) LoadActivePools(_ context.Context, chainID uint64) (model.ActivePools, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pools := make(model.ActivePools, len(s.activePools[chainID]))
	for id, ts := range s.activePools[chainID] {
		pools[id] = ts
	}
	return pools, nil
}

func (s *Store) SaveActivePools(_ context.Context, chainID uint64, pools model.ActivePools) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := make(model.ActivePools, len(pools))
	for id, ts := range pools {
		clone[id] = ts
	}
	s.activePools[chainID] = clone
	return nil
}

func (s *Store) LoadEpochCheckpoints(_ context.Context, chainID uint64) (model.EpochCheckpoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoints := make(model.EpochCheckpoints, len(s.epochs[chainID]))
	for id, entry := range s.epochs[chainID] {
		checkpoints[id] = entry
	}
	return checkpoints, nil
}

func (s *Store) SaveEpochCheckpoints(_ context.Context, chainID uint64, checkpoints model.EpochCheckpoints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := make(model.EpochCheckpoints, len(checkpoints))
	for id, entry := range checkpoints {
		clone[id] = entry
	}
	s.epochs[chainID] = clone
	return nil
}

func (s *Store) LoadVolumeCheckpoints(_ context.Context, chainID uint64, poolID string) (model.VolumeCheckpoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := blobKey{chainID: chainID, poolID: poolID}
	checkpoints := make(model.VolumeCheckpoints, len(s.checkpoints[key]))
	for ts, entry := range s.checkpoints[key] {
		checkpoints[ts] = entry
	}
	return checkpoints, nil
}

func (s *Store) SaveVolumeCheckpoints(_ context.Context, chainID uint64, poolID string, checkpoints model.VolumeCheckpoints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := make(model.VolumeCheckpoints, len(checkpoints))
	for ts, entry := range checkpoints {
		clone[ts] = entry
	}
	s.checkpoints[blobKey{chainID: chainID, poolID: poolID}] = clone
	return nil
}

func (s *Store) InsertPricePoint(_ context.Context, point *model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *point
	s.pricePoints = append(s.pricePoints, &clone)
	return nil
}

// PricePoints returns the recorded price history.
func (s *Store) PricePoints() []*model.PricePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := make([]*model.PricePoint, len(s.pricePoints))
	copy(points, s.pricePoints)
	return points
}

// SetUSDPrice seeds a USD price observation for FindUSDPriceAt.
func (s *Store) SetUSDPrice(chainID uint64, token string, ts int64, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := priceKey{chainID: chainID, token: token, bucket: ts / s.PriceBucket}
	s.usdPrices[key] = new(big.Int).Set(price)
}

func (s *Store) FindUSDPriceAt(_ context.Context, chainID uint64, token string, ts int64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.usdPrices[priceKey{chainID: chainID, token: token, bucket: ts / s.PriceBucket}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return new(big.Int).Set(price), nil
}

// SetBeneficiary seeds a beneficiary record.
func (s *Store) SetBeneficiary(chainID uint64, beneficiary *model.Beneficiary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *beneficiary
	s.beneficiaries[model.AssetKey{ChainID: chainID, Address: beneficiary.Address}] = &clone
}

func (s *Store) FindBeneficiary(_ context.Context, chainID uint64, address string) (*model.Beneficiary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	beneficiary, ok := s.beneficiaries[model.AssetKey{ChainID: chainID, Address: address}]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *beneficiary
	return &clone, nil
}

func (s *Store) ScanInvalidPools(_ context.Context) ([]model.PoolKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]model.PoolKey, 0, len(s.invalidPools))
	for key := range s.invalidPools {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) InsertInvalidPool(_ context.Context, key model.PoolKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidPools[key] = struct{}{}
	return nil
}

func (s *Store) ScanMigratedPools(_ context.Context) ([]model.PoolKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]model.PoolKey, 0, len(s.migratedPools))
	for key := range s.migratedPools {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) InsertMigratedPool(_ context.Context, key model.PoolKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migratedPools[key] = struct{}{}
	return nil
}
