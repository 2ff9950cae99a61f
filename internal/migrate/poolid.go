package migrate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// DerivePoolID computes the 32-byte pool id a hook-based venue uses in
// place of a deployed contract address: the keccak hash of the pool's
// abi-encoded immutable key fields. Currencies are normalized to
// ascending order first, matching the venue's canonical key.
func DerivePoolID(currency0, currency1 common.Address, fee uint32, tickSpacing int32, hooks common.Address) common.Hash {
	if currency0.Cmp(currency1) > 0 {
		currency0, currency1 = currency1, currency0
	}

	enc := make([]byte, 0, 160)
	enc = append(enc, common.LeftPadBytes(currency0.Bytes(), 32)...)
	enc = append(enc, common.LeftPadBytes(currency1.Bytes(), 32)...)
	enc = append(enc, common.LeftPadBytes(new(big.Int).SetUint64(uint64(fee)).Bytes(), 32)...)
	// int24 tick spacing encodes as a two's-complement 32-byte word
	enc = append(enc, math.U256Bytes(big.NewInt(int64(tickSpacing)))...)
	enc = append(enc, common.LeftPadBytes(hooks.Bytes(), 32)...)

	return crypto.Keccak256Hash(enc)
}
