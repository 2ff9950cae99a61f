package pricing

import (
	"math/big"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
)

// ClassifySwap classifies a reserve-pair trade from the pool's signed
// asset-leg delta: the pool paying out the asset (negative delta) is a buy.
func ClassifySwap(assetDelta *big.Int) model.SwapType {
	if assetDelta != nil && assetDelta.Sign() < 0 {
		return model.SwapTypeBuy
	}
	return model.SwapTypeSell
}

// ClassifySwapV4 classifies a bonding-curve trade by comparing cumulative
// quote proceeds with the previous observation: proceeds growing is a buy.
func ClassifySwapV4(prevProceeds, newProceeds *big.Int) model.SwapType {
	if prevProceeds == nil || newProceeds == nil {
		return model.SwapTypeSell
	}
	if newProceeds.Cmp(prevProceeds) > 0 {
		return model.SwapTypeBuy
	}
	return model.SwapTypeSell
}

var hundred = big.NewInt(100)

// GraduationPercent computes bonding-curve progress as the percentage of
// the graduation balance against its maximum threshold. A zero threshold
// yields 0.
func GraduationPercent(balance, maxThreshold *big.Int) *big.Int {
	if balance == nil || maxThreshold == nil || maxThreshold.Sign() == 0 {
		return new(big.Int)
	}

	pct := new(big.Int).Mul(balance, hundred)
	pct.Div(pct, maxThreshold)
	if pct.Cmp(hundred) > 0 {
		pct.Set(hundred)
	}
	if pct.Sign() < 0 {
		pct.SetInt64(0)
	}
	return pct
}

// GraduationPercentFromTicks computes bonding-curve progress as the
// current tick's distance along the curve's tick range. The range may run
// in either direction; a degenerate range yields 0.
func GraduationPercentFromTicks(currentTick, startTick, endTick int32) *big.Int {
	span := int64(endTick) - int64(startTick)
	if span == 0 {
		return new(big.Int)
	}

	progress := (int64(currentTick) - int64(startTick)) * 100 / span
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return big.NewInt(progress)
}
