package pricing

import (
	"math/big"
	"sync"
)

// Wad is the 1e18 fixed-point scale all prices and USD values use.
var Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var twoPow192 = new(big.Int).Lsh(big.NewInt(1), 192)

// maxSqrtRatio is the sqrt price at the maximum usable tick. Concentrated
// liquidity pools report it when the price has left the usable range, so a
// ratio at or beyond it carries no price information.
var maxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

var (
	pow10Mu    sync.RWMutex
	pow10Cache = map[uint8]*big.Int{}
)

func pow10(decimals uint8) *big.Int {
	pow10Mu.RLock()
	cached, ok := pow10Cache[decimals]
	pow10Mu.RUnlock()
	if ok {
		return cached
	}

	val := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	pow10Mu.Lock()
	pow10Cache[decimals] = val
	pow10Mu.Unlock()
	return val
}

// PriceFromSqrtPrice converts a sqrtPriceX96 reading into the base asset's
// price denominated in the quote asset, 1e18 scale. isToken0 is true when
// the base asset is the token0 leg; the ratio is inverted otherwise.
//
// The second return is false when the reading is at or beyond the maximum
// tick's sqrt ratio, where no price is defined. Callers must keep the
// previously known market cap instead of recomputing from such a reading.
func PriceFromSqrtPrice(sqrtPriceX96 *big.Int, isToken0 bool, baseDecimals, quoteDecimals uint8) (*big.Int, bool) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return new(big.Int), true
	}
	if sqrtPriceX96.Cmp(maxSqrtRatio) >= 0 {
		return nil, false
	}

	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	var num, den *big.Int
	if isToken0 {
		// raw token1/token0 ratio, decimal-adjusted to human units.
		num = new(big.Int).Mul(squared, Wad)
		num.Mul(num, pow10(baseDecimals))
		den = new(big.Int).Mul(twoPow192, pow10(quoteDecimals))
	} else {
		num = new(big.Int).Mul(twoPow192, Wad)
		num.Mul(num, pow10(baseDecimals))
		den = new(big.Int).Mul(squared, pow10(quoteDecimals))
	}

	return num.Div(num, den), true
}

// PriceFromReserves computes the base asset's price in the quote asset from
// a reserve pair, 1e18 scale. A zero asset balance yields 0, not an error.
func PriceFromReserves(assetBalance, quoteBalance *big.Int, assetDecimals, quoteDecimals uint8) *big.Int {
	if assetBalance == nil || quoteBalance == nil || assetBalance.Sign() == 0 {
		return new(big.Int)
	}

	num := new(big.Int).Mul(quoteBalance, Wad)
	num.Mul(num, pow10(assetDecimals))
	den := new(big.Int).Mul(assetBalance, pow10(quoteDecimals))
	return num.Div(num, den)
}
