package migrate

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Hook-venue migrator deployments expose the migrated pool's balances
// under different method names depending on deployment generation. The
// variants below are tried in order; the first one whose return data
// decodes cleanly is authoritative.
type migratorInterface struct {
	label   string
	method  string
	abiJSON string
}

var migratorInterfaces = []migratorInterface{
	{
		label:  "migratorV2",
		method: "getAssetData",
		abiJSON: `[{"inputs": [{"type": "address", "name": "asset"}], "name": "getAssetData", "outputs": [{"type": "uint256", "name": "balance0"}, {"type": "uint256", "name": "balance1"}], "stateMutability": "view", "type": "function"}]`,
	},
	{
		label:  "migratorV1",
		method: "assetBalances",
		abiJSON: `[{"inputs": [{"type": "address", "name": "asset"}], "name": "assetBalances", "outputs": [{"type": "uint256", "name": "balance0"}, {"type": "uint256", "name": "balance1"}], "stateMutability": "view", "type": "function"}]`,
	},
}

var (
	migratorABIs    []abi.ABI
	migratorABIOnce sync.Once
	migratorABIErr  error
)

func parsedMigratorABIs() ([]abi.ABI, error) {
	migratorABIOnce.Do(func() {
		migratorABIs = make([]abi.ABI, len(migratorInterfaces))
		for i, variant := range migratorInterfaces {
			parsed, err := abi.JSON(strings.NewReader(variant.abiJSON))
			if err != nil {
				migratorABIErr = fmt.Errorf("parse %s abi: %w", variant.label, err)
				return
			}
			migratorABIs[i] = parsed
		}
	})
	if migratorABIErr != nil {
		return nil, migratorABIErr
	}
	return migratorABIs, nil
}

func readMigratorBalances(ctx context.Context, chain ChainReader, migrator, asset common.Address) (*big.Int, *big.Int, error) {
	abis, err := parsedMigratorABIs()
	if err != nil {
		return nil, nil, err
	}

	var lastErr error
	for i, variant := range migratorInterfaces {
		data, err := abis[i].Pack(variant.method, asset)
		if err != nil {
			lastErr = fmt.Errorf("pack %s: %w", variant.method, err)
			continue
		}
		resp, err := chain.CallContract(ctx, ethereum.CallMsg{To: &migrator, Data: data}, nil)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", variant.label, err)
			continue
		}
		values, err := abis[i].Unpack(variant.method, resp)
		if err != nil || len(values) < 2 {
			lastErr = fmt.Errorf("%s: decode: %w", variant.label, err)
			continue
		}
		balance0, ok0 := values[0].(*big.Int)
		balance1, ok1 := values[1].(*big.Int)
		if !ok0 || !ok1 {
			lastErr = fmt.Errorf("%s: unexpected return types %T, %T", variant.label, values[0], values[1])
			continue
		}
		return new(big.Int).Set(balance0), new(big.Int).Set(balance1), nil
	}
	return nil, nil, fmt.Errorf("no migrator interface matched %s: %w", migrator.Hex(), lastErr)
}
