package ethereum

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI covers the token methods the keepers use.
const ERC20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ExchangeABI is the on-chain order book. Orders are ID-addressed; the
// book is enumerated by scanning 1..lastOrderId and skipping inactive
// entries.
const ExchangeABI = `[
	{"name":"lastOrderId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"orders","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"sellAmt","type":"uint256"},{"name":"sellGem","type":"address"},{"name":"buyAmt","type":"uint256"},{"name":"buyGem","type":"address"},{"name":"owner","type":"address"},{"name":"active","type":"bool"},{"name":"timestamp","type":"uint64"}]},
	{"name":"make","type":"function","stateMutability":"nonpayable","inputs":[{"name":"sellAmt","type":"uint256"},{"name":"sellGem","type":"address"},{"name":"buyAmt","type":"uint256"},{"name":"buyGem","type":"address"}],"outputs":[{"name":"id","type":"uint256"}]},
	{"name":"cancel","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"take","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"quantity","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// PoolABI is the stablecoin system's fixed-rate mint/redeem pool.
// Rates are wads: target units per source unit scaled by 1e18.
const PoolABI = `[
	{"name":"mintRate","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"redeemRate","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"mintable","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"redeemable","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"mint","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]},
	{"name":"redeem","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
]`

// VaultABI is the collateral vault engine. Cups are ID-addressed
// collateral positions; safety is the engine's own judgement.
const VaultABI = `[
	{"name":"cupCount","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"cups","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"owner","type":"address"},{"name":"ink","type":"uint256"}]},
	{"name":"tab","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"safe","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"liquidationRatio","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"collateralPrice","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"bite","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"lock","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"wad","type":"uint256"}],"outputs":[]}
]`

// OracleABI is the classic two-value oracle read: a fixed-point price
// and a validity flag.
const OracleABI = `[
	{"name":"peek","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"value","type":"bytes32"},{"name":"valid","type":"bool"}]}
]`

// BatchABI is the batching executor. execute reverts as a whole if any
// inner call fails.
const BatchABI = `[
	{"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"execute","type":"function","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"data","type":"bytes"},{"name":"value","type":"uint256"}]}],"outputs":[]}
]`

// batchCall mirrors the executor's call tuple for ABI packing.
type batchCall struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// contractABIs holds the parsed ABIs for every contract the gateway talks to.
type contractABIs struct {
	erc20    abi.ABI
	exchange abi.ABI
	pool     abi.ABI
	vault    abi.ABI
	oracle   abi.ABI
	batch    abi.ABI
}

func parseABIs() (*contractABIs, error) {
	parsed := &contractABIs{}
	for _, c := range []struct {
		raw  string
		dest *abi.ABI
	}{
		{ERC20ABI, &parsed.erc20},
		{ExchangeABI, &parsed.exchange},
		{PoolABI, &parsed.pool},
		{VaultABI, &parsed.vault},
		{OracleABI, &parsed.oracle},
		{BatchABI, &parsed.batch},
	} {
		a, err := abi.JSON(strings.NewReader(c.raw))
		if err != nil {
			return nil, err
		}
		*c.dest = a
	}
	return parsed, nil
}
