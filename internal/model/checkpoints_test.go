package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVolumeCheckpointsAddAccumulates(t *testing.T) {
	checkpoints := make(VolumeCheckpoints)

	checkpoints.Add(1000, big.NewInt(5), big.NewInt(100))
	checkpoints.Add(1000, big.NewInt(7), big.NewInt(150))

	require.Len(t, checkpoints, 1)
	require.Equal(t, "12", checkpoints[1000].VolumeUSD)
	// same-bucket market cap is last write wins
	require.Equal(t, "150", checkpoints[1000].MarketCapUSD)
}

func TestVolumeCheckpointsSweep(t *testing.T) {
	checkpoints := make(VolumeCheckpoints)
	checkpoints.Add(500, big.NewInt(9), big.NewInt(80))   // stale
	checkpoints.Add(1500, big.NewInt(4), big.NewInt(100)) // oldest retained
	checkpoints.Add(2500, big.NewInt(6), big.NewInt(125)) // newest retained

	aggregate, pct, oldest := checkpoints.Sweep(1000)

	require.Len(t, checkpoints, 2)
	require.Equal(t, big.NewInt(10), aggregate)
	require.InDelta(t, 25.0, pct, 1e-9)
	require.Equal(t, int64(1500), oldest)
}

func TestVolumeCheckpointsSweepToEmpty(t *testing.T) {
	checkpoints := make(VolumeCheckpoints)
	checkpoints.Add(500, big.NewInt(9), big.NewInt(80))

	aggregate, pct, oldest := checkpoints.Sweep(1000)

	require.Empty(t, checkpoints)
	require.Zero(t, aggregate.Sign())
	require.Zero(t, pct)
	require.Zero(t, oldest)
}

func TestVolumeCheckpointsPercentChangeDegenerate(t *testing.T) {
	checkpoints := make(VolumeCheckpoints)
	checkpoints.Add(1500, big.NewInt(4), big.NewInt(0))
	checkpoints.Add(2500, big.NewInt(6), big.NewInt(125))

	_, pct, _ := checkpoints.Sweep(1000)
	require.Zero(t, pct)
}

func TestActivePoolsRegisterInsertOnce(t *testing.T) {
	pools := make(ActivePools)

	require.True(t, pools.Register("0xpool", 1000))
	require.False(t, pools.Register("0xpool", 2000))
	require.Equal(t, int64(1000), pools["0xpool"])
}

func TestEpochCheckpointShouldRefresh(t *testing.T) {
	checkpoint := EpochCheckpoint{
		StartingTime: 1000,
		EndingTime:   10_000,
		EpochLength:  100,
		LastUpdated:  1000,
	}

	require.False(t, checkpoint.ShouldRefresh(900), "before window")
	require.False(t, checkpoint.ShouldRefresh(1050), "same epoch as last update")
	require.True(t, checkpoint.ShouldRefresh(1100), "next epoch boundary")
	require.False(t, checkpoint.ShouldRefresh(10_000), "window ended")
	require.True(t, checkpoint.Expired(10_000))
	require.False(t, checkpoint.Expired(9_999))

	degenerate := checkpoint
	degenerate.EpochLength = 0
	require.False(t, degenerate.ShouldRefresh(1100))
}
