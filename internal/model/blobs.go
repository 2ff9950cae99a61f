package model

// ActivePools is the per-chain singleton map of pool id to the earliest
// trade timestamp not yet swept by the rolling-window scheduler. A pool
// enters on its first qualifying trade and stays until its checkpoint
// series empties. Persisted as a JSONB column.
type ActivePools map[string]int64

// Register adds a pool with its first-trade timestamp. It is insert-once:
// registering a pool that is already present is a no-op and returns false.
func (a ActivePools) Register(poolID string, ts int64) bool {
	if _, ok := a[poolID]; ok {
		return false
	}
	a[poolID] = ts
	return true
}

// EpochCheckpoint tracks one bonding-curve pool for the epoch scheduler.
type EpochCheckpoint struct {
	PoolID        string `json:"pool_id"`
	Asset         string `json:"asset"`
	IsToken0      bool   `json:"is_token0"`
	TotalSupply   string `json:"total_supply"` // big integer string
	AssetDecimals uint8  `json:"asset_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals"`
	StartingTime  int64  `json:"starting_time"`
	EndingTime    int64  `json:"ending_time"`
	EpochLength   int64  `json:"epoch_length"`
	LastUpdated   int64  `json:"last_updated"`
}

// Expired reports whether the pool's bonding window has ended.
func (e EpochCheckpoint) Expired(now int64) bool {
	return e.EndingTime <= now
}

// ShouldRefresh reports whether a refresh is due at now. A refresh
// triggers at most once per epoch boundary: only while the window is
// active and only when the integer epoch index has strictly advanced
// since LastUpdated.
func (e EpochCheckpoint) ShouldRefresh(now int64) bool {
	if now < e.StartingTime || e.Expired(now) {
		return false
	}
	if e.EpochLength <= 0 {
		return false
	}
	return e.epochIndex(now) > e.epochIndex(e.LastUpdated)
}

func (e EpochCheckpoint) epochIndex(t int64) int64 {
	if t < e.StartingTime {
		return -1
	}
	return (t - e.StartingTime) / e.EpochLength
}

// EpochCheckpoints is the per-chain singleton map of tracked bonding-curve
// pools, keyed by pool id. Persisted as a JSONB column.
type EpochCheckpoints map[string]EpochCheckpoint
