package store

import (
	"context"
	"errors"
	"math/big"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
)

// ErrNotFound reports an absent record for find-by-key lookups.
var ErrNotFound = errors.New("record not found")

// PoolStore persists pool records.
type PoolStore interface {
	FindPool(ctx context.Context, chainID uint64, poolID string) (*model.Pool, error)
	UpsertPool(ctx context.Context, pool *model.Pool) error
	UpdatePool(ctx context.Context, pool *model.Pool) error
}

// AssetStore persists asset records.
type AssetStore interface {
	FindAsset(ctx context.Context, chainID uint64, address string) (*model.Asset, error)
	UpsertAsset(ctx context.Context, asset *model.Asset) error
	UpdateAsset(ctx context.Context, asset *model.Asset) error
}

// SwapStore persists append-only trade records. InsertSwap reports false
// when the (txHash, chainID) key already existed, so replayed deliveries
// never double-count.
type SwapStore interface {
	InsertSwap(ctx context.Context, swap *model.Swap) (bool, error)
}

// BlobStore persists the per-chain singleton blobs and per-pool checkpoint
// series.
type BlobStore interface {
	LoadActivePools(ctx context.Context, chainID uint64) (model.ActivePools, error)
	SaveActivePools(ctx context.Context, chainID uint64, pools model.ActivePools) error
	LoadEpochCheckpoints(ctx context.Context, chainID uint64) (model.EpochCheckpoints, error)
	SaveEpochCheckpoints(ctx context.Context, chainID uint64, checkpoints model.EpochCheckpoints) error
	LoadVolumeCheckpoints(ctx context.Context, chainID uint64, poolID string) (model.VolumeCheckpoints, error)
	SaveVolumeCheckpoints(ctx context.Context, chainID uint64, poolID string, checkpoints model.VolumeCheckpoints) error
}

// PriceStore persists price history and answers bucketed USD price
// lookups for the oracle.
type PriceStore interface {
	InsertPricePoint(ctx context.Context, point *model.PricePoint) error
	// FindUSDPriceAt returns the recorded USD price for token in the
	// bucket containing ts, or ErrNotFound.
	FindUSDPriceAt(ctx context.Context, chainID uint64, token string, ts int64) (*big.Int, error)
}

// BeneficiaryStore resolves fee beneficiaries by address.
type BeneficiaryStore interface {
	FindBeneficiary(ctx context.Context, chainID uint64, address string) (*model.Beneficiary, error)
}

// FlagStore persists the invalid- and migrated-pool flag sets and supports
// the raw bulk scans the precompute caches preload from.
type FlagStore interface {
	ScanInvalidPools(ctx context.Context) ([]model.PoolKey, error)
	InsertInvalidPool(ctx context.Context, key model.PoolKey) error
	ScanMigratedPools(ctx context.Context) ([]model.PoolKey, error)
	InsertMigratedPool(ctx context.Context, key model.PoolKey) error
}

// Store is the full persisted key-addressed store the engine consumes.
type Store interface {
	PoolStore
	AssetStore
	SwapStore
	BlobStore
	PriceStore
	BeneficiaryStore
	FlagStore
}
