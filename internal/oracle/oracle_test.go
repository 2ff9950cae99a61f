package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/pricing"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store/memory"
)

type fakeLive struct {
	price *big.Int
	calls int
}

func (f *fakeLive) USDPrice(_ context.Context, _ uint64, _ common.Address) (*big.Int, error) {
	f.calls++
	return new(big.Int).Set(f.price), nil
}

func TestUSDPriceStablecoinShortCircuits(t *testing.T) {
	o := New(memory.NewStore(), nil, Config{
		Stablecoins: map[uint64][]string{1: {"0xAbCd"}},
	}, nil)

	price, err := o.USDPrice(context.Background(), 1, "0xabcd", 1000)
	require.NoError(t, err)
	require.Zero(t, price.Cmp(pricing.Wad))
}

func TestUSDPriceWalksBackward(t *testing.T) {
	st := memory.NewStore()
	now := int64(100_000)
	// only observation sits three steps back
	st.SetUSDPrice(1, "0xtoken", now-3*300, big.NewInt(42))

	live := &fakeLive{price: big.NewInt(7)}
	o := New(st, live, Config{Step: 300 * time.Second, MaxAttempts: 10}, nil)

	price, err := o.USDPrice(context.Background(), 1, "0xtoken", now)
	require.NoError(t, err)
	require.EqualValues(t, 42, price.Int64())
	require.Zero(t, live.calls)
}

func TestUSDPriceFallsBackToLiveReadAfterCeiling(t *testing.T) {
	st := memory.NewStore()
	now := int64(100_000)
	// observation beyond the attempt ceiling must not be reached
	st.SetUSDPrice(1, "0xtoken", now-20*300, big.NewInt(42))

	live := &fakeLive{price: big.NewInt(7)}
	o := New(st, live, Config{Step: 300 * time.Second, MaxAttempts: 10}, nil)

	price, err := o.USDPrice(context.Background(), 1, "0xtoken", now)
	require.NoError(t, err)
	require.EqualValues(t, 7, price.Int64())
	require.Equal(t, 1, live.calls)
}
