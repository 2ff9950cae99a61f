package model

import "math/big"

// SwapType classifies a trade from the asset's point of view.
type SwapType string

const (
	SwapTypeBuy  SwapType = "buy"
	SwapTypeSell SwapType = "sell"
)

// Swap is an append-only trade record keyed by (TxHash, ChainID).
// Inserts are conflict-tolerant so redelivery of the same event never
// creates a duplicate or double-counts volume.
type Swap struct {
	TxHash  string `json:"tx_hash"`
	ChainID uint64 `json:"chain_id"`

	Timestamp int64    `json:"timestamp"`
	PoolID    string   `json:"pool_id"`
	Asset     string   `json:"asset"`
	Type      SwapType `json:"type"`
	User      string   `json:"user"`

	AmountIn  *big.Int `json:"amount_in"`
	AmountOut *big.Int `json:"amount_out"`
	USDValue  *big.Int `json:"usd_value"` // 1e18 USD
}

// PricePoint is one entry of a pool's append-only price history.
type PricePoint struct {
	ChainID   uint64   `json:"chain_id"`
	PoolID    string   `json:"pool_id"`
	Token     string   `json:"token"`
	Timestamp int64    `json:"timestamp"`
	Price     *big.Int `json:"price"` // 1e18
}
