package model

import "math/big"

// PoolVariant tags the protocol generation a pool belongs to.
type PoolVariant string

const (
	// Bonding-curve phases. BondingV3 graduates on tick distance,
	// BondingV4 on a quote-balance threshold.
	VariantBondingV3 PoolVariant = "bonding_v3"
	VariantBondingV4 PoolVariant = "bonding_v4"

	// Terminal AMM pools a bonding curve migrates into.
	VariantV2 PoolVariant = "v2"
	VariantV3 PoolVariant = "v3"
	VariantV4 PoolVariant = "v4"
)

// Beneficiary is an address entitled to a share of a pool's protocol fees.
type Beneficiary struct {
	Address string `json:"address"`
	Shares  string `json:"shares"`
}

// Pool is one trading venue on one chain, keyed by (ChainID, PoolID).
// PoolID is a lowercase hex contract address, or for hook-based venues a
// 0x-prefixed 32-byte id derived from the pool's immutable key fields.
type Pool struct {
	ChainID uint64      `json:"chain_id"`
	PoolID  string      `json:"pool_id"`
	Variant PoolVariant `json:"variant"`

	BaseToken  string `json:"base_token"`
	QuoteToken string `json:"quote_token"`
	// IsToken0 records whether the base token is the token0 leg. Fixed at
	// creation, never mutated.
	IsToken0 bool `json:"is_token0"`

	Price        *big.Int `json:"price"` // quote per base, 1e18 scale
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Tick         int32    `json:"tick"`
	Reserves0    *big.Int `json:"reserves0"`
	Reserves1    *big.Int `json:"reserves1"`
	Liquidity    *big.Int `json:"liquidity"`
	Fee          uint32   `json:"fee"`
	Fees0        *big.Int `json:"fees0"`
	Fees1        *big.Int `json:"fees1"`

	DollarLiquidity  *big.Int `json:"dollar_liquidity"` // 1e18 USD
	MarketCapUSD     *big.Int `json:"market_cap_usd"`   // 1e18 USD
	VolumeUSD        *big.Int `json:"volume_usd"`       // 1e18 USD, 24h rolling
	PercentDayChange float64  `json:"percent_day_change"`

	// Bonding-curve graduation state.
	GraduationBalance *big.Int `json:"graduation_balance"`
	GraduationPercent *big.Int `json:"graduation_percent"`
	MinThreshold      *big.Int `json:"min_threshold"`
	MaxThreshold      *big.Int `json:"max_threshold"`
	StartTick         int32    `json:"start_tick"`
	EndTick           int32    `json:"end_tick"`

	// Lifecycle. Once Migrated flips, the trading path treats the record
	// as read-only; all further price-affecting mutation targets the
	// successor pool.
	SuccessorVariant PoolVariant `json:"successor_variant,omitempty"`
	Migrated         bool        `json:"migrated"`
	MigratedAt       int64       `json:"migrated_at,omitempty"`
	MigratedToPool   string      `json:"migrated_to_pool,omitempty"`
	ParentPool       string      `json:"parent_pool,omitempty"`

	HolderCount   uint64        `json:"holder_count"`
	Beneficiaries []Beneficiary `json:"beneficiaries,omitempty"`

	LastSwapAt    int64 `json:"last_swap_at"`
	LastRefreshed int64 `json:"last_refreshed"`
	CreatedAt     int64 `json:"created_at"`
}

// PoolKey identifies a pool record.
type PoolKey struct {
	ChainID uint64 `json:"chain_id"`
	PoolID  string `json:"pool_id"`
}

// Key returns the pool's storage key.
func (p *Pool) Key() PoolKey {
	return PoolKey{ChainID: p.ChainID, PoolID: p.PoolID}
}

// IsBondingCurve reports whether the pool prices via a bonding schedule.
func (p *Pool) IsBondingCurve() bool {
	return p.Variant == VariantBondingV3 || p.Variant == VariantBondingV4
}
