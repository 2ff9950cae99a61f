package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store"
)

// priceBucket is the width in seconds of a USD price lookup bucket.
const priceBucket = 300

// Store is the Postgres-backed persistence layer. Records keep their
// primary keys in columns and the rest of the document in JSONB, so new
// model fields never need a schema change.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pools (
		chain_id BIGINT NOT NULL,
		pool_id TEXT NOT NULL,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, pool_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS swaps (
		tx_hash TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		data JSONB NOT NULL,
		PRIMARY KEY (tx_hash, chain_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chain_blobs (
		chain_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS volume_checkpoints (
		chain_id BIGINT NOT NULL,
		pool_id TEXT NOT NULL,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, pool_id)
	)`,
	`CREATE TABLE IF NOT EXISTS price_points (
		chain_id BIGINT NOT NULL,
		pool_id TEXT NOT NULL,
		token TEXT NOT NULL,
		ts BIGINT NOT NULL,
		price NUMERIC NOT NULL,
		PRIMARY KEY (chain_id, pool_id, token, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS price_points_token_ts
		ON price_points (chain_id, token, ts)`,
	`CREATE TABLE IF NOT EXISTS beneficiaries (
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		shares TEXT NOT NULL,
		PRIMARY KEY (chain_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS invalid_pools (
		chain_id BIGINT NOT NULL,
		pool_id TEXT NOT NULL,
		PRIMARY KEY (chain_id, pool_id)
	)`,
	`CREATE TABLE IF NOT EXISTS migrated_pools (
		chain_id BIGINT NOT NULL,
		pool_id TEXT NOT NULL,
		PRIMARY KEY (chain_id, pool_id)
	)`,
}

// Init creates the schema if absent. Safe to run on every start.
func (s *Store) Init(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, stmt := range schema {
		batch.Queue(stmt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range schema {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) FindPool(ctx context.Context, chainID uint64, poolID string) (*model.Pool, error) {
	var pool model.Pool
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM pools WHERE chain_id=$1 AND pool_id=$2`,
		int64(chainID), poolID)
	if err := row.Scan(&pool); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pool, nil
}

func (s *Store) UpsertPool(ctx context.Context, pool *model.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (chain_id, pool_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, pool_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, int64(pool.ChainID), pool.PoolID, pool)
	return err
}

func (s *Store) UpdatePool(ctx context.Context, pool *model.Pool) error {
	return s.UpsertPool(ctx, pool)
}

func (s *Store) FindAsset(ctx context.Context, chainID uint64, address string) (*model.Asset, error) {
	var asset model.Asset
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM assets WHERE chain_id=$1 AND address=$2`,
		int64(chainID), address)
	if err := row.Scan(&asset); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (s *Store) UpsertAsset(ctx context.Context, asset *model.Asset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assets (chain_id, address, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, address)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, int64(asset.ChainID), asset.Address, asset)
	return err
}

func (s *Store) UpdateAsset(ctx context.Context, asset *model.Asset) error {
	return s.UpsertAsset(ctx, asset)
}

// InsertSwap is conflict-tolerant: a replayed delivery hits the primary
// key and reports inserted=false without an error.
func (s *Store) InsertSwap(ctx context.Context, swap *model.Swap) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO swaps (tx_hash, chain_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (tx_hash, chain_id) DO NOTHING
	`, swap.TxHash, int64(swap.ChainID), swap)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) loadBlob(ctx context.Context, chainID uint64, name string, dest interface{}) error {
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM chain_blobs WHERE chain_id=$1 AND name=$2`,
		int64(chainID), name)
	if err := row.Scan(dest); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return nil
}

func (s *Store) saveBlob(ctx context.Context, chainID uint64, name string, blob interface{}) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chain_blobs (chain_id, name, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, name)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, int64(chainID), name, blob)
	return err
}

func (s *Store) LoadActivePools(ctx context.Context, chainID uint64) (model.ActivePools, error) {
	pools := make(model.ActivePools)
	if err := s.loadBlob(ctx, chainID, "active_pools", &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

func (s *Store) SaveActivePools(ctx context.Context, chainID uint64, pools model.ActivePools) error {
	return s.saveBlob(ctx, chainID, "active_pools", pools)
}

func (s *Store) LoadEpochCheckpoints(ctx context.Context, chainID uint64) (model.EpochCheckpoints, error) {
	checkpoints := make(model.EpochCheckpoints)
	if err := s.loadBlob(ctx, chainID, "epoch_checkpoints", &checkpoints); err != nil {
		return nil, err
	}
	return checkpoints, nil
}

func (s *Store) SaveEpochCheckpoints(ctx context.Context, chainID uint64, checkpoints model.EpochCheckpoints) error {
	return s.saveBlob(ctx, chainID, "epoch_checkpoints", checkpoints)
}

func (s *Store) LoadVolumeCheckpoints(ctx context.Context, chainID uint64, poolID string) (model.VolumeCheckpoints, error) {
	checkpoints := make(model.VolumeCheckpoints)
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM volume_checkpoints WHERE chain_id=$1 AND pool_id=$2`,
		int64(chainID), poolID)
	if err := row.Scan(&checkpoints); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return checkpoints, nil
}

func (s *Store) SaveVolumeCheckpoints(ctx context.Context, chainID uint64, poolID string, checkpoints model.VolumeCheckpoints) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO volume_checkpoints (chain_id, pool_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, pool_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, int64(chainID), poolID, checkpoints)
	return err
}

// Two tokens of one pool can tick in the same second, so the price key
// carries the token alongside the pool.
const insertPricePointSQL = `
	INSERT INTO price_points (chain_id, pool_id, token, ts, price)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (chain_id, pool_id, token, ts)
	DO UPDATE SET price = EXCLUDED.price
`

func (s *Store) InsertPricePoint(ctx context.Context, point *model.PricePoint) error {
	_, err := s.pool.Exec(ctx, insertPricePointSQL,
		int64(point.ChainID), point.PoolID, point.Token, point.Timestamp, point.Price.String())
	return err
}

// FindUSDPriceAt answers from the fixed-width bucket containing ts,
// preferring the latest point inside it.
func (s *Store) FindUSDPriceAt(ctx context.Context, chainID uint64, token string, ts int64) (*big.Int, error) {
	bucketStart := (ts / priceBucket) * priceBucket

	var raw string
	row := s.pool.QueryRow(ctx, `
		SELECT price::text FROM price_points
		WHERE chain_id=$1 AND token=$2 AND ts >= $3 AND ts < $4
		ORDER BY ts DESC LIMIT 1
	`, int64(chainID), token, bucketStart, bucketStart+priceBucket)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	price, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed price %q", raw)
	}
	return price, nil
}

func (s *Store) FindBeneficiary(ctx context.Context, chainID uint64, address string) (*model.Beneficiary, error) {
	beneficiary := model.Beneficiary{Address: address}
	row := s.pool.QueryRow(ctx,
		`SELECT shares FROM beneficiaries WHERE chain_id=$1 AND address=$2`,
		int64(chainID), address)
	if err := row.Scan(&beneficiary.Shares); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &beneficiary, nil
}

func (s *Store) scanFlags(ctx context.Context, table string) ([]model.PoolKey, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT chain_id, pool_id FROM %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.PoolKey
	for rows.Next() {
		var chainID int64
		var poolID string
		if err := rows.Scan(&chainID, &poolID); err != nil {
			return nil, err
		}
		keys = append(keys, model.PoolKey{ChainID: uint64(chainID), PoolID: poolID})
	}
	return keys, rows.Err()
}

func (s *Store) insertFlag(ctx context.Context, table string, key model.PoolKey) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (chain_id, pool_id) VALUES ($1, $2)
		ON CONFLICT (chain_id, pool_id) DO NOTHING
	`, table), int64(key.ChainID), key.PoolID)
	return err
}

func (s *Store) ScanInvalidPools(ctx context.Context) ([]model.PoolKey, error) {
	return s.scanFlags(ctx, "invalid_pools")
}

func (s *Store) InsertInvalidPool(ctx context.Context, key model.PoolKey) error {
	return s.insertFlag(ctx, "invalid_pools", key)
}

func (s *Store) ScanMigratedPools(ctx context.Context) ([]model.PoolKey, error) {
	return s.scanFlags(ctx, "migrated_pools")
}

func (s *Store) InsertMigratedPool(ctx context.Context, key model.PoolKey) error {
	return s.insertFlag(ctx, "migrated_pools", key)
}

var _ store.Store = (*Store)(nil)
