package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/chain"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/model"
)

const (
	quoteRetries      = 2
	quoteRetryBackoff = 250 * time.Millisecond
)

// ErrNotQuotable marks a pool whose id is not a deployed contract
// address, so no read-only quote can ever succeed against it.
var ErrNotQuotable = errors.New("pool has no quotable contract address")

// Quote is one authoritative read-only observation of a pool's state.
type Quote struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	AssetBalance *big.Int
	QuoteBalance *big.Int
}

// Quoter issues the authoritative read-only quote the epoch scheduler
// refreshes from.
type Quoter interface {
	Quote(ctx context.Context, pool *model.Pool) (*Quote, error)
}

// ChainQuoter quotes a pool directly from chain state: current sqrt price
// plus the pool's balances of both legs.
type ChainQuoter struct {
	client *chain.Client
}

func NewChainQuoter(client *chain.Client) *ChainQuoter {
	return &ChainQuoter{client: client}
}

func (q *ChainQuoter) Quote(ctx context.Context, pool *model.Pool) (*Quote, error) {
	// hook-based venues key pools by a 32-byte id with no deployed
	// contract behind it; HexToAddress would silently truncate that
	if !common.IsHexAddress(pool.PoolID) {
		return nil, fmt.Errorf("pool %s: %w", pool.PoolID, ErrNotQuotable)
	}
	poolAddr := common.HexToAddress(pool.PoolID)

	var quote Quote
	err := chain.WithRetry(ctx, quoteRetries, quoteRetryBackoff, func(ctx context.Context) error {
		observed, err := q.client.QuotePool(ctx, poolAddr,
			common.HexToAddress(pool.BaseToken), common.HexToAddress(pool.QuoteToken))
		if err != nil {
			return err
		}
		quote = Quote{
			SqrtPriceX96: observed.SqrtPriceX96,
			Tick:         observed.Tick,
			AssetBalance: observed.BaseBalance,
			QuoteBalance: observed.QuoteBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
