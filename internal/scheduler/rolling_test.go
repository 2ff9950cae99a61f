package scheduler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store/memory"
)

func seedActivePool(t *testing.T, st *memory.Store, checkpoints model.VolumeCheckpoints, earliest int64) {
	t.Helper()
	require.NoError(t, st.UpsertPool(context.Background(), &model.Pool{
		ChainID:   1,
		PoolID:    "0xpool",
		BaseToken: "0xasset",
		VolumeUSD: new(big.Int),
	}))
	require.NoError(t, st.UpsertAsset(context.Background(), &model.Asset{
		ChainID: 1,
		Address: "0xasset",
	}))
	require.NoError(t, st.SaveVolumeCheckpoints(context.Background(), 1, "0xpool", checkpoints))
	require.NoError(t, st.SaveActivePools(context.Background(), 1, model.ActivePools{"0xpool": earliest}))
}

func TestRollingSweepEvictsAndRecomputes(t *testing.T) {
	st := memory.NewStore()
	now := int64(200_000)

	checkpoints := model.VolumeCheckpoints{}
	checkpoints.Add(now-90_000, wad(5), wad(100)) // stale
	checkpoints.Add(now-50_000, wad(7), wad(100))
	checkpoints.Add(now-10_000, wad(3), wad(150))
	seedActivePool(t, st, checkpoints, now-90_000)

	s := NewRollingScheduler(1, st, time.Second, nil)
	require.NoError(t, s.Sweep(context.Background(), now))

	retained, err := st.LoadVolumeCheckpoints(context.Background(), 1, "0xpool")
	require.NoError(t, err)
	require.Len(t, retained, 2)

	// aggregate equals exactly the sum of retained entries
	pool, err := st.FindPool(context.Background(), 1, "0xpool")
	require.NoError(t, err)
	require.Zero(t, pool.VolumeUSD.Cmp(wad(10)))
	// market cap went 100 -> 150
	require.InDelta(t, 50.0, pool.PercentDayChange, 0.0001)

	asset, err := st.FindAsset(context.Background(), 1, "0xasset")
	require.NoError(t, err)
	require.Zero(t, asset.DayVolumeUSD.Cmp(wad(10)))
	require.InDelta(t, 50.0, asset.PercentDayChange, 0.0001)

	// earliest-unswept pointer advanced to the oldest retained entry
	active, err := st.LoadActivePools(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, now-50_000, active["0xpool"])
}

func TestRollingSweepRemovesEmptiedPool(t *testing.T) {
	st := memory.NewStore()
	now := int64(200_000)

	checkpoints := model.VolumeCheckpoints{}
	checkpoints.Add(now-90_000, wad(5), wad(100))
	seedActivePool(t, st, checkpoints, now-90_000)

	s := NewRollingScheduler(1, st, time.Second, nil)
	require.NoError(t, s.Sweep(context.Background(), now))

	active, err := st.LoadActivePools(context.Background(), 1)
	require.NoError(t, err)
	require.NotContains(t, active, "0xpool")

	pool, err := st.FindPool(context.Background(), 1, "0xpool")
	require.NoError(t, err)
	require.Zero(t, pool.VolumeUSD.Sign())
	require.Zero(t, pool.PercentDayChange)
}

func TestRollingSweepSkipsFreshPools(t *testing.T) {
	st := memory.NewStore()
	now := int64(200_000)

	checkpoints := model.VolumeCheckpoints{}
	checkpoints.Add(now-1000, wad(5), wad(100))
	seedActivePool(t, st, checkpoints, now-1000)

	s := NewRollingScheduler(1, st, time.Second, nil)
	require.NoError(t, s.Sweep(context.Background(), now))

	// nothing stale: checkpoint series untouched
	retained, err := st.LoadVolumeCheckpoints(context.Background(), 1, "0xpool")
	require.NoError(t, err)
	require.Len(t, retained, 1)

	active, err := st.LoadActivePools(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, now-1000, active["0xpool"])
}

func TestRollingSweepDegeneratePercentChange(t *testing.T) {
	st := memory.NewStore()
	now := int64(200_000)

	checkpoints := model.VolumeCheckpoints{}
	checkpoints.Add(now-50_000, wad(7), new(big.Int)) // zero market cap endpoint
	checkpoints.Add(now-10_000, wad(3), wad(150))
	seedActivePool(t, st, checkpoints, now-90_000)

	s := NewRollingScheduler(1, st, time.Second, nil)
	require.NoError(t, s.Sweep(context.Background(), now))

	pool, err := st.FindPool(context.Background(), 1, "0xpool")
	require.NoError(t, err)
	require.Zero(t, pool.PercentDayChange)
	require.Zero(t, pool.VolumeUSD.Cmp(wad(10)))
}
