package model

import "math/big"

// Asset is the logical token behind one or more pools, keyed by
// (ChainID, Address). It is decoupled from Pool because one asset may span
// a bonding-curve pool and then a migration pool.
type Asset struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"address"`

	Numeraire       string `json:"numeraire"`
	PoolID          string `json:"pool_id"`
	MigrationPoolID string `json:"migration_pool_id,omitempty"`

	Migrated   bool  `json:"migrated"`
	MigratedAt int64 `json:"migrated_at,omitempty"`

	MarketCapUSD     *big.Int `json:"market_cap_usd"` // 1e18 USD
	LiquidityUSD     *big.Int `json:"liquidity_usd"`  // 1e18 USD
	DayVolumeUSD     *big.Int `json:"day_volume_usd"` // 1e18 USD
	PercentDayChange float64  `json:"percent_day_change"`
	HolderCount      uint64   `json:"holder_count"`

	CreatedAt int64 `json:"created_at"`
}

// AssetKey identifies an asset record.
type AssetKey struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"address"`
}

// Key returns the asset's storage key.
func (a *Asset) Key() AssetKey {
	return AssetKey{ChainID: a.ChainID, Address: a.Address}
}
