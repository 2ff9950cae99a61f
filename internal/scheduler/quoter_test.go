package scheduler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
)

func TestChainQuoterRejectsHookPoolID(t *testing.T) {
	q := NewChainQuoter(nil)

	pool := &model.Pool{
		ChainID: 1,
		PoolID:  "0x" + strings.Repeat("ab", 32),
		Variant: model.VariantBondingV4,
	}
	_, err := q.Quote(context.Background(), pool)
	require.ErrorIs(t, err, ErrNotQuotable)
}
