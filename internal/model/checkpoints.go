package model

import "math/big"

// VolumeCheckpoint is one sparse time-series entry of a pool's daily
// volume series.
type VolumeCheckpoint struct {
	VolumeUSD    string `json:"volume_usd"`     // 1e18 USD, big integer string
	MarketCapUSD string `json:"market_cap_usd"` // 1e18 USD, big integer string
}

// VolumeCheckpoints is a pool's sparse series of volume checkpoints keyed
// by unix timestamp. It is persisted as a JSONB column; the JSON contract
// is the default integer-keyed map encoding and no key ordering is ever
// assumed.
type VolumeCheckpoints map[int64]VolumeCheckpoint

// Add accumulates volume into the checkpoint bucket at ts. The market cap
// observation for the bucket is overwritten with the latest value.
func (c VolumeCheckpoints) Add(ts int64, volumeUSD, marketCapUSD *big.Int) {
	entry, ok := c[ts]
	vol := new(big.Int)
	if ok {
		vol.SetString(entry.VolumeUSD, 10)
	}
	if volumeUSD != nil {
		vol.Add(vol, volumeUSD)
	}
	mcap := "0"
	if marketCapUSD != nil {
		mcap = marketCapUSD.String()
	}
	c[ts] = VolumeCheckpoint{VolumeUSD: vol.String(), MarketCapUSD: mcap}
}

// Sweep evicts every entry older than cutoff and recomputes the series
// aggregates from what remains. It returns the aggregate volume (sum of
// retained entries), the day percent change derived from the oldest and
// newest retained market caps (0 when either endpoint is absent or zero),
// and the oldest retained timestamp (0 when the series is now empty).
func (c VolumeCheckpoints) Sweep(cutoff int64) (*big.Int, float64, int64) {
	for ts := range c {
		if ts < cutoff {
			delete(c, ts)
		}
	}

	aggregate := new(big.Int)
	if len(c) == 0 {
		return aggregate, 0, 0
	}

	var oldest, newest int64
	for ts, entry := range c {
		if vol, ok := new(big.Int).SetString(entry.VolumeUSD, 10); ok {
			aggregate.Add(aggregate, vol)
		}
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
		if ts > newest {
			newest = ts
		}
	}

	return aggregate, percentChange(c[oldest].MarketCapUSD, c[newest].MarketCapUSD), oldest
}

func percentChange(oldMcap, newMcap string) float64 {
	oldVal, okOld := new(big.Int).SetString(oldMcap, 10)
	newVal, okNew := new(big.Int).SetString(newMcap, 10)
	if !okOld || !okNew || oldVal.Sign() == 0 {
		return 0
	}

	delta := new(big.Float).Sub(new(big.Float).SetInt(newVal), new(big.Float).SetInt(oldVal))
	ratio := new(big.Float).Quo(delta, new(big.Float).SetInt(oldVal))
	pct, _ := new(big.Float).Mul(ratio, big.NewFloat(100)).Float64()
	return pct
}
