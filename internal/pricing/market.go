package pricing

import "math/big"

// MarketCap computes the USD market capitalization (1e18 scale) of an
// asset from its quote-denominated price (1e18), the quote asset's USD
// price (1e18), and the asset's raw total supply.
func MarketCap(price, quotePriceUSD, totalSupply *big.Int, decimals uint8) *big.Int {
	if price == nil || quotePriceUSD == nil || totalSupply == nil {
		return new(big.Int)
	}

	mcap := new(big.Int).Mul(price, quotePriceUSD)
	mcap.Mul(mcap, totalSupply)
	mcap.Div(mcap, Wad)
	mcap.Div(mcap, pow10(decimals))
	return mcap
}

// LiquidityUSD sums the USD value (1e18 scale) of both legs of a pool:
// the asset leg valued through its quote price, and the quote leg valued
// directly.
func LiquidityUSD(assetBalance, quoteBalance, price, quotePriceUSD *big.Int, assetDecimals, quoteDecimals uint8) *big.Int {
	total := new(big.Int)
	if quotePriceUSD == nil {
		return total
	}

	if assetBalance != nil && price != nil {
		// bal(10^dec) * price(1e18) * usd(1e18) scales by 1e36; one Wad
		// divide and the decimal divide leave a 1e18 USD figure
		assetLeg := new(big.Int).Mul(assetBalance, price)
		assetLeg.Mul(assetLeg, quotePriceUSD)
		assetLeg.Div(assetLeg, Wad)
		assetLeg.Div(assetLeg, pow10(assetDecimals))
		total.Add(total, assetLeg)
	}

	if quoteBalance != nil {
		quoteLeg := new(big.Int).Mul(quoteBalance, quotePriceUSD)
		quoteLeg.Div(quoteLeg, pow10(quoteDecimals))
		total.Add(total, quoteLeg)
	}

	return total
}

// VolumeUSD computes the USD notional (1e18 scale) of one swap from its
// quote leg. quoteIsIn selects which leg the quote asset moved on.
func VolumeUSD(amountIn, amountOut, quotePriceUSD *big.Int, quoteIsIn bool, quoteDecimals uint8) *big.Int {
	if quotePriceUSD == nil {
		return new(big.Int)
	}

	leg := amountOut
	if quoteIsIn {
		leg = amountIn
	}
	if leg == nil {
		return new(big.Int)
	}

	vol := new(big.Int).Abs(leg)
	vol.Mul(vol, quotePriceUSD)
	vol.Div(vol, pow10(quoteDecimals))
	return vol
}
