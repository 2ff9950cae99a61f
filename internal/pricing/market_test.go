package pricing

import (
	"math/big"
	"testing"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
)

func TestMarketCap(t *testing.T) {
	// price 2 quote/asset, quote at $3, supply 1000 tokens
	mcap := MarketCap(wadTimes(2), wadTimes(3), wadTimes(1000), 18)
	if mcap.Cmp(wadTimes(6000)) != 0 {
		t.Fatalf("mcap = %s, want %s", mcap, wadTimes(6000))
	}
}

func TestMarketCapMonotonicInPrice(t *testing.T) {
	supply := wadTimes(1_000_000)
	quoteUSD := wadTimes(2)

	prev := new(big.Int).Neg(big.NewInt(1))
	for _, price := range []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		wadTimes(1),
		wadTimes(7),
		wadTimes(7_000_000),
	} {
		mcap := MarketCap(price, quoteUSD, supply, 18)
		if mcap.Cmp(prev) < 0 {
			t.Fatalf("market cap decreased: price %s gave %s after %s", price, mcap, prev)
		}
		prev = mcap
	}
}

func TestLiquidityUSDSumsBothLegs(t *testing.T) {
	// 100 asset at 2 quote each, 50 quote, quote at $3:
	// asset leg $600 + quote leg $150
	liq := LiquidityUSD(wadTimes(100), wadTimes(50), wadTimes(2), wadTimes(3), 18, 18)
	if liq.Cmp(wadTimes(750)) != 0 {
		t.Fatalf("liquidity = %s, want %s", liq, wadTimes(750))
	}
}

func TestVolumeUSDSelectsQuoteLeg(t *testing.T) {
	in := wadTimes(10)
	out := new(big.Int).Neg(wadTimes(400))
	quoteUSD := wadTimes(2)

	vol := VolumeUSD(in, out, quoteUSD, true, 18)
	if vol.Cmp(wadTimes(20)) != 0 {
		t.Fatalf("quote-in volume = %s, want %s", vol, wadTimes(20))
	}

	vol = VolumeUSD(in, out, quoteUSD, false, 18)
	if vol.Cmp(wadTimes(800)) != 0 {
		t.Fatalf("quote-out volume = %s, want %s", vol, wadTimes(800))
	}
}

func TestClassifySwap(t *testing.T) {
	if got := ClassifySwap(big.NewInt(-5)); got != model.SwapTypeBuy {
		t.Fatalf("negative asset delta = %s, want buy", got)
	}
	if got := ClassifySwap(big.NewInt(5)); got != model.SwapTypeSell {
		t.Fatalf("positive asset delta = %s, want sell", got)
	}
}

func TestClassifySwapV4(t *testing.T) {
	if got := ClassifySwapV4(wadTimes(10), wadTimes(11)); got != model.SwapTypeBuy {
		t.Fatalf("growing proceeds = %s, want buy", got)
	}
	if got := ClassifySwapV4(wadTimes(11), wadTimes(10)); got != model.SwapTypeSell {
		t.Fatalf("shrinking proceeds = %s, want sell", got)
	}
}

func TestGraduationPercent(t *testing.T) {
	pct := GraduationPercent(wadTimes(500), wadTimes(1000))
	if pct.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("graduation = %s, want 50", pct)
	}

	if pct := GraduationPercent(wadTimes(500), big.NewInt(0)); pct.Sign() != 0 {
		t.Fatalf("zero threshold graduation = %s, want 0", pct)
	}

	if pct := GraduationPercent(wadTimes(2000), wadTimes(1000)); pct.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("overshoot graduation = %s, want clamp to 100", pct)
	}
}

func TestGraduationPercentFromTicks(t *testing.T) {
	if pct := GraduationPercentFromTicks(0, -100, 100); pct.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("mid-range graduation = %s, want 50", pct)
	}
	// descending tick ranges progress in the other direction
	if pct := GraduationPercentFromTicks(-50, 0, -100); pct.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("descending graduation = %s, want 50", pct)
	}
	if pct := GraduationPercentFromTicks(5, 10, 10); pct.Sign() != 0 {
		t.Fatalf("degenerate range graduation = %s, want 0", pct)
	}
}
