package scheduler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/oracle"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/pricing"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store/memory"
)

type fakeQuoter struct {
	quote *Quote
	err   error
	calls int
}

func (q *fakeQuoter) Quote(_ context.Context, _ *model.Pool) (*Quote, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return q.quote, nil
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pricing.Wad)
}

func seedEpochPool(t *testing.T, st *memory.Store, entry model.EpochCheckpoint) {
	t.Helper()
	require.NoError(t, st.UpsertPool(context.Background(), &model.Pool{
		ChainID:      1,
		PoolID:       entry.PoolID,
		Variant:      model.VariantBondingV4,
		BaseToken:    entry.Asset,
		QuoteToken:   "0xquote",
		IsToken0:     entry.IsToken0,
		Price:        wad(1),
		MarketCapUSD: wad(100),
	}))
	require.NoError(t, st.UpsertAsset(context.Background(), &model.Asset{
		ChainID: 1,
		Address: entry.Asset,
	}))
	require.NoError(t, st.SaveEpochCheckpoints(context.Background(), 1,
		model.EpochCheckpoints{entry.PoolID: entry}))
}

func testEntry() model.EpochCheckpoint {
	return model.EpochCheckpoint{
		PoolID:        "0xpool",
		Asset:         "0xasset",
		IsToken0:      true,
		TotalSupply:   wad(1000).String(),
		AssetDecimals: 18,
		QuoteDecimals: 18,
		StartingTime:  1000,
		EndingTime:    100_000,
		EpochLength:   100,
		LastUpdated:   1000,
	}
}

func newTestOracle(st *memory.Store) *oracle.Oracle {
	return oracle.New(st, nil, oracle.Config{
		Stablecoins: map[uint64][]string{1: {"0xquote"}},
	}, nil)
}

func unitQuote() *Quote {
	return &Quote{
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Tick:         0,
		AssetBalance: wad(100),
		QuoteBalance: wad(50),
	}
}

func TestEpochSweepRefreshesDuePool(t *testing.T) {
	st := memory.NewStore()
	entry := testEntry()
	seedEpochPool(t, st, entry)

	quoter := &fakeQuoter{quote: unitQuote()}
	s := NewEpochScheduler(1, st, quoter, newTestOracle(st), nil, time.Second, nil)

	now := int64(1250) // two epochs past LastUpdated
	require.NoError(t, s.Sweep(context.Background(), now))
	require.Equal(t, 1, quoter.calls)

	pool, err := st.FindPool(context.Background(), 1, "0xpool")
	require.NoError(t, err)
	require.Zero(t, pool.Price.Cmp(wad(1)))
	require.Zero(t, pool.MarketCapUSD.Cmp(wad(1000)))
	require.Zero(t, pool.DollarLiquidity.Cmp(wad(150)))
	require.EqualValues(t, now, pool.LastRefreshed)

	checkpoints, err := st.LoadEpochCheckpoints(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, now, checkpoints["0xpool"].LastUpdated)

	require.Len(t, st.PricePoints(), 1)
}

func TestEpochSweepRefreshesAtMostOncePerEpoch(t *testing.T) {
	st := memory.NewStore()
	entry := testEntry()
	seedEpochPool(t, st, entry)

	quoter := &fakeQuoter{quote: unitQuote()}
	s := NewEpochScheduler(1, st, quoter, newTestOracle(st), nil, time.Second, nil)

	// first tick crosses an epoch boundary, the next two stay inside it
	require.NoError(t, s.Sweep(context.Background(), 1110))
	require.NoError(t, s.Sweep(context.Background(), 1150))
	require.NoError(t, s.Sweep(context.Background(), 1190))
	require.Equal(t, 1, quoter.calls)

	// crossing the next boundary quotes again
	require.NoError(t, s.Sweep(context.Background(), 1210))
	require.Equal(t, 2, quoter.calls)
}

func TestEpochSweepSkipsScheduledPool(t *testing.T) {
	st := memory.NewStore()
	entry := testEntry()
	entry.StartingTime = 5000
	entry.LastUpdated = 0
	seedEpochPool(t, st, entry)

	quoter := &fakeQuoter{quote: unitQuote()}
	s := NewEpochScheduler(1, st, quoter, newTestOracle(st), nil, time.Second, nil)

	require.NoError(t, s.Sweep(context.Background(), 2000))
	require.Zero(t, quoter.calls)

	checkpoints, err := st.LoadEpochCheckpoints(context.Background(), 1)
	require.NoError(t, err)
	require.Contains(t, checkpoints, "0xpool")
}

func TestEpochSweepRemovesExpiredPool(t *testing.T) {
	st := memory.NewStore()
	entry := testEntry()
	seedEpochPool(t, st, entry)

	quoter := &fakeQuoter{quote: unitQuote()}
	s := NewEpochScheduler(1, st, quoter, newTestOracle(st), nil, time.Second, nil)

	require.NoError(t, s.Sweep(context.Background(), entry.EndingTime))

	checkpoints, err := st.LoadEpochCheckpoints(context.Background(), 1)
	require.NoError(t, err)
	require.NotContains(t, checkpoints, "0xpool")
	require.Zero(t, quoter.calls)
}

type fakeFilter struct {
	flagged map[string]struct{}
}

func (f *fakeFilter) Contains(_ uint64, poolID string) bool {
	_, ok := f.flagged[poolID]
	return ok
}

func TestEpochSweepUntracksInvalidPool(t *testing.T) {
	st := memory.NewStore()
	entry := testEntry()
	seedEpochPool(t, st, entry)

	quoter := &fakeQuoter{quote: unitQuote()}
	invalid := &fakeFilter{flagged: map[string]struct{}{"0xpool": {}}}
	s := NewEpochScheduler(1, st, quoter, newTestOracle(st), invalid, time.Second, nil)

	require.NoError(t, s.Sweep(context.Background(), 1250))
	require.Zero(t, quoter.calls)

	checkpoints, err := st.LoadEpochCheckpoints(context.Background(), 1)
	require.NoError(t, err)
	require.NotContains(t, checkpoints, "0xpool")
}

func TestEpochSweepDropsPoolOnFailedQuote(t *testing.T) {
	st := memory.NewStore()
	entry := testEntry()
	seedEpochPool(t, st, entry)

	quoter := &fakeQuoter{err: errors.New("execution reverted")}
	s := NewEpochScheduler(1, st, quoter, newTestOracle(st), nil, time.Second, nil)

	require.NoError(t, s.Sweep(context.Background(), 1250))

	checkpoints, err := st.LoadEpochCheckpoints(context.Background(), 1)
	require.NoError(t, err)
	require.NotContains(t, checkpoints, "0xpool")

	// dropped permanently: later sweeps never retry
	require.NoError(t, s.Sweep(context.Background(), 1350))
	require.Equal(t, 1, quoter.calls)
}
