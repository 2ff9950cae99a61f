package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const erc20ABIJSON = `[
  {"inputs": [{"type": "address", "name": "account"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

const v3PoolABIJSON = `[
  {
    "inputs": [],
    "name": "slot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
      {"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
      {"internalType": "bool", "name": "unlocked", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {"inputs": [], "name": "liquidity", "outputs": [{"type": "uint128"}], "stateMutability": "view", "type": "function"}
]`

const v2PairABIJSON = `[
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint112", "name": "reserve0", "type": "uint112"},
      {"internalType": "uint112", "name": "reserve1", "type": "uint112"},
      {"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	contractABIs    map[string]abi.ABI
	contractABIOnce sync.Once
	contractABIErr  error
)

func parsedABI(name string) (abi.ABI, error) {
	contractABIOnce.Do(func() {
		contractABIs = make(map[string]abi.ABI, 3)
		for label, raw := range map[string]string{
			"erc20":  erc20ABIJSON,
			"v3pool": v3PoolABIJSON,
			"v2pair": v2PairABIJSON,
		} {
			parsed, err := abi.JSON(strings.NewReader(raw))
			if err != nil {
				contractABIErr = fmt.Errorf("parse %s abi: %w", label, err)
				return
			}
			contractABIs[label] = parsed
		}
	})
	if contractABIErr != nil {
		return abi.ABI{}, contractABIErr
	}
	return contractABIs[name], nil
}

func (c *Client) callMethod(ctx context.Context, target common.Address, abiName, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := parsedABI(abiName)
	if err != nil {
		return nil, err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := c.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// TokenBalance reads token.balanceOf(owner).
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := c.callMethod(ctx, token, "erc20", "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// TokenDecimals reads token.decimals().
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := c.callMethod(ctx, token, "erc20", "decimals")
	if err != nil {
		return 0, err
	}
	switch v := values[0].(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported decimals type %T", values[0])
	}
}

// Slot0 reads a concentrated-liquidity pool's current sqrt price and tick.
func (c *Client) Slot0(ctx context.Context, pool common.Address) (*big.Int, int32, error) {
	values, err := c.callMethod(ctx, pool, "v3pool", "slot0")
	if err != nil {
		return nil, 0, err
	}
	if len(values) < 2 {
		return nil, 0, fmt.Errorf("slot0 return size %d", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, 0, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := asBigInt(values[1])
	if err != nil {
		return nil, 0, fmt.Errorf("tick: %w", err)
	}
	return sqrtPrice, int32(tick.Int64()), nil
}

// V2Reserves reads a paired-reserve pool's reserves.
func (c *Client) V2Reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	values, err := c.callMethod(ctx, pair, "v2pair", "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("getReserves return size %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, err
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, err
	}
	return reserve0, reserve1, nil
}

// PoolQuote is one read-only observation of a pool, taken in a single
// batched round trip.
type PoolQuote struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	BaseBalance  *big.Int
	QuoteBalance *big.Int
}

// QuotePool reads a pool's slot0 and both leg balances through one
// batched eth_call fan-out.
func (c *Client) QuotePool(ctx context.Context, pool, base, quote common.Address) (*PoolQuote, error) {
	v3ABI, err := parsedABI("v3pool")
	if err != nil {
		return nil, err
	}
	erc20ABI, err := parsedABI("erc20")
	if err != nil {
		return nil, err
	}

	slotData, err := v3ABI.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("pack slot0: %w", err)
	}
	balanceData, err := erc20ABI.Pack("balanceOf", pool)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	slotResult := new(hexutil.Bytes)
	elems := []rpc.BatchElem{{
		Method: "eth_call",
		Args: []interface{}{
			map[string]interface{}{
				"to":   pool,
				"data": hexutil.Bytes(slotData),
			},
			"latest",
		},
		Result: slotResult,
	}}

	// a zero-address leg is the native currency: its pool balance comes
	// from eth_getBalance, not an ERC20 call
	legs := []common.Address{base, quote}
	legCalls := make([]*hexutil.Bytes, len(legs))
	legNative := make([]*hexutil.Big, len(legs))
	for i, token := range legs {
		if token == (common.Address{}) {
			legNative[i] = new(hexutil.Big)
			elems = append(elems, rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []interface{}{pool, "latest"},
				Result: legNative[i],
			})
			continue
		}
		legCalls[i] = new(hexutil.Bytes)
		elems = append(elems, rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   token,
					"data": hexutil.Bytes(balanceData),
				},
				"latest",
			},
			Result: legCalls[i],
		})
	}

	if err := c.BatchCall(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch call: %w", err)
	}
	for i := range elems {
		if elems[i].Error != nil {
			return nil, fmt.Errorf("%s elem %d: %w", elems[i].Method, i, elems[i].Error)
		}
	}

	slotValues, err := v3ABI.Unpack("slot0", *slotResult)
	if err != nil {
		return nil, fmt.Errorf("unpack slot0: %w", err)
	}
	if len(slotValues) < 2 {
		return nil, fmt.Errorf("slot0 return size %d", len(slotValues))
	}
	sqrtPrice, err := asBigInt(slotValues[0])
	if err != nil {
		return nil, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := asBigInt(slotValues[1])
	if err != nil {
		return nil, fmt.Errorf("tick: %w", err)
	}

	balances := make([]*big.Int, len(legs))
	for i := range legs {
		if legNative[i] != nil {
			balances[i] = (*big.Int)(legNative[i])
			continue
		}
		values, err := erc20ABI.Unpack("balanceOf", *legCalls[i])
		if err != nil {
			return nil, fmt.Errorf("unpack balanceOf %s: %w", legs[i].Hex(), err)
		}
		balances[i], err = asBigInt(values[0])
		if err != nil {
			return nil, err
		}
	}

	return &PoolQuote{
		SqrtPriceX96: sqrtPrice,
		Tick:         int32(tick.Int64()),
		BaseBalance:  balances[0],
		QuoteBalance: balances[1],
	}, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
