package engine

import (
	"math/big"
	"strings"
)

// SwapEnvelope is the immutable canonical record every protocol-specific
// trade handler funnels into the orchestrator.
type SwapEnvelope struct {
	ChainID     uint64
	PoolID      string
	TxHash      string
	Sender      string
	BlockNumber uint64
	Timestamp   int64

	Asset string
	Quote string

	AmountIn  *big.Int
	AmountOut *big.Int
	// QuoteIsIn records which leg the quote currency moved on, selecting
	// the leg USD volume is computed from.
	QuoteIsIn bool
}

// BuildSwapEnvelope constructs the canonical trade record. Addresses and
// ids are normalized to lowercase so records key consistently.
func BuildSwapEnvelope(chainID uint64, poolID, txHash, sender string, blockNumber uint64, timestamp int64, asset, quote string, amountIn, amountOut *big.Int, quoteIsIn bool) SwapEnvelope {
	return SwapEnvelope{
		ChainID:     chainID,
		PoolID:      strings.ToLower(poolID),
		TxHash:      strings.ToLower(txHash),
		Sender:      strings.ToLower(sender),
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
		Asset:       strings.ToLower(asset),
		Quote:       strings.ToLower(quote),
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		QuoteIsIn:   quoteIsIn,
	}
}

// TradeMetrics carries the post-trade pool state a handler decoded from
// the event or read from the chain before calling ApplyTrade.
type TradeMetrics struct {
	// Price is the base asset's quote-denominated price, 1e18 scale. nil
	// records that the price is undefined at this tick range; the
	// previously known market cap is kept in that case.
	Price        *big.Int
	SqrtPriceX96 *big.Int
	Tick         int32

	Reserves0 *big.Int
	Reserves1 *big.Int
	Liquidity *big.Int

	// Fee deltas accrued by this trade, per side.
	FeeDelta0 *big.Int
	FeeDelta1 *big.Int

	TotalSupply   *big.Int
	QuotePriceUSD *big.Int
	AssetDecimals uint8
	QuoteDecimals uint8

	// GraduationBalance is the bonding curve's cumulative quote proceeds
	// after this trade (balance-threshold variants only).
	GraduationBalance *big.Int
}

// AssetReserves splits the reserve pair into (asset, quote) legs according
// to the pool's fixed token ordering.
func (m TradeMetrics) AssetReserves(isToken0 bool) (*big.Int, *big.Int) {
	if isToken0 {
		return m.Reserves0, m.Reserves1
	}
	return m.Reserves1, m.Reserves0
}
