package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store/memory"
)

type fakeProber struct {
	code   map[common.Address]bool
	probes map[common.Address]int
}

func newFakeProber() *fakeProber {
	return &fakeProber{code: make(map[common.Address]bool), probes: make(map[common.Address]int)}
}

func (p *fakeProber) HasCode(_ context.Context, addr common.Address) (bool, error) {
	p.probes[addr]++
	return p.code[addr], nil
}

func TestBeneficiaryCacheLookupAndKnownAbsent(t *testing.T) {
	st := memory.NewStore()
	st.SetBeneficiary(1, &model.Beneficiary{Address: "0xbene", Shares: "100"})

	c, err := NewBeneficiaryCache(st, 10, nil)
	require.NoError(t, err)

	got, err := c.Lookup(context.Background(), 1, "0xbene")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "100", got.Shares)

	// unknown address becomes a cached known-absent entry
	got, err = c.Lookup(context.Background(), 1, "0xnobody")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 2, c.Len())
}

func TestBeneficiaryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	st := memory.NewStore()
	c, err := NewBeneficiaryCache(st, 3, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		addr := fmt.Sprintf("0x%040x", i)
		st.SetBeneficiary(1, &model.Beneficiary{Address: addr, Shares: "1"})
		_, err := c.Lookup(context.Background(), 1, addr)
		require.NoError(t, err)
	}

	require.Equal(t, 3, c.Len())
}

func TestMarkInvalidIfEOA(t *testing.T) {
	st := memory.NewStore()
	c := NewInvalidPoolCache(st.ScanInvalidPools, st.InsertInvalidPool, nil)

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	eoa := common.HexToAddress("0x2222222222222222222222222222222222222222")

	prober := newFakeProber()
	prober.code[contract] = true

	invalid, err := c.MarkInvalidIfEOA(context.Background(), prober, 1, "0xpool", contract.Hex(), eoa.Hex())
	require.NoError(t, err)
	require.True(t, invalid)
	require.True(t, c.Contains(1, "0xpool"))

	// replayed creation event answers from the set without re-probing
	invalid, err = c.MarkInvalidIfEOA(context.Background(), prober, 1, "0xpool", contract.Hex(), eoa.Hex())
	require.NoError(t, err)
	require.True(t, invalid)
	require.Equal(t, 1, prober.probes[contract])
	require.Equal(t, 1, prober.probes[eoa])

	// the flag reached the store for the next process's preload
	keys, err := st.ScanInvalidPools(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestMarkInvalidIfEOASkipsNativeCurrency(t *testing.T) {
	st := memory.NewStore()
	c := NewInvalidPoolCache(st.ScanInvalidPools, st.InsertInvalidPool, nil)

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	prober := newFakeProber()
	prober.code[contract] = true

	invalid, err := c.MarkInvalidIfEOA(context.Background(), prober, 1, "0xpool", common.Address{}.Hex(), contract.Hex())
	require.NoError(t, err)
	require.False(t, invalid)
}

func TestPoolSetPreload(t *testing.T) {
	st := memory.NewStore()
	require.NoError(t, st.InsertMigratedPool(context.Background(), model.PoolKey{ChainID: 1, PoolID: "0xold"}))

	c := NewMigrationPoolCache(st.ScanMigratedPools, st.InsertMigratedPool, nil)
	require.NoError(t, c.Preload(context.Background()))
	require.True(t, c.Contains(1, "0xold"))
	require.False(t, c.Contains(1, "0xnew"))
}
