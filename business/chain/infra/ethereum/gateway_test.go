package ethereum

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dexkeep/keeperbot/business/chain/domain"
)

func TestClassifyReceipt(t *testing.T) {
	hash := common.HexToHash("0xabc123")

	tests := []struct {
		name        string
		receipt     *types.Receipt
		wantOutcome domain.ConfirmationOutcome
		wantSuccess bool
	}{
		{
			name: "mined_success",
			receipt: &types.Receipt{
				TxHash:      hash,
				Status:      types.ReceiptStatusSuccessful,
				BlockNumber: big.NewInt(19_000_000),
				GasUsed:     84_000,
			},
			wantOutcome: domain.ConfirmationSuccess,
			wantSuccess: true,
		},
		{
			name: "mined_revert",
			receipt: &types.Receipt{
				TxHash:      hash,
				Status:      types.ReceiptStatusFailed,
				BlockNumber: big.NewInt(19_000_001),
				GasUsed:     31_000,
			},
			wantOutcome: domain.ConfirmationRevert,
			wantSuccess: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyReceipt(tt.receipt, 3*time.Second)

			if result.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %s, want %s", result.Outcome, tt.wantOutcome)
			}
			if result.Receipt == nil {
				t.Fatal("Receipt = nil, want populated")
			}
			if result.Receipt.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", result.Receipt.Success, tt.wantSuccess)
			}
			if result.Receipt.TxHash != hash {
				t.Errorf("TxHash = %s, want %s", result.Receipt.TxHash, hash)
			}
			if result.Receipt.BlockNumber != tt.receipt.BlockNumber.Uint64() {
				t.Errorf("BlockNumber = %d, want %d", result.Receipt.BlockNumber, tt.receipt.BlockNumber.Uint64())
			}
			if result.Elapsed != 3*time.Second {
				t.Errorf("Elapsed = %s, want 3s", result.Elapsed)
			}
		})
	}
}

func TestWadToDecimal(t *testing.T) {
	tests := []struct {
		wad  string
		want string
	}{
		{"1040000000000000000", "1.04"},
		{"1000000000000000000", "1"},
		{"0", "0"},
		{"250000000000000000000", "250"},
	}

	for _, tt := range tests {
		wad, ok := new(big.Int).SetString(tt.wad, 10)
		if !ok {
			t.Fatalf("bad wad literal %q", tt.wad)
		}
		got := wadToDecimal(wad)
		if got.String() != tt.want {
			t.Errorf("wadToDecimal(%s) = %s, want %s", tt.wad, got, tt.want)
		}
	}
}

func TestParseABIs(t *testing.T) {
	abis, err := parseABIs()
	if err != nil {
		t.Fatalf("parseABIs() error: %v", err)
	}

	for _, check := range []struct {
		contract string
		method   string
	}{
		{"erc20", "approve"},
		{"exchange", "orders"},
		{"exchange", "take"},
		{"pool", "mint"},
		{"vault", "bite"},
		{"oracle", "peek"},
		{"batch", "execute"},
	} {
		if _, ok := abis.abiFor(check.contract).Methods[check.method]; !ok {
			t.Errorf("%s ABI is missing %s", check.contract, check.method)
		}
	}
}

// Encode contract outputs and decode them the way readOrder does, so
// the ABI strings and the type assertions stay in sync.
func TestOrdersResultDecoding(t *testing.T) {
	abis, err := parseABIs()
	if err != nil {
		t.Fatalf("parseABIs() error: %v", err)
	}

	sellGem := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	buyGem := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	maker := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	outs := abis.exchange.Methods["orders"].Outputs
	encoded, err := outs.Pack(
		big.NewInt(1_000_000_000_000_000_000), // 1 WETH
		sellGem,
		new(big.Int).Mul(big.NewInt(250), big.NewInt(1e18)), // 250 DAI
		buyGem,
		maker,
		true,
		uint64(1_700_000_000),
	)
	if err != nil {
		t.Fatalf("packing orders outputs: %v", err)
	}

	results, err := abis.exchange.Unpack("orders", encoded)
	if err != nil {
		t.Fatalf("unpacking orders outputs: %v", err)
	}

	if _, ok := results[0].(*big.Int); !ok {
		t.Errorf("sellAmt decoded as %T, want *big.Int", results[0])
	}
	if got, ok := results[1].(common.Address); !ok || got != sellGem {
		t.Errorf("sellGem decoded as %T %v, want %s", results[1], results[1], sellGem)
	}
	if got, ok := results[5].(bool); !ok || !got {
		t.Errorf("active decoded as %T %v, want true", results[5], results[5])
	}
}

func TestOraclePeekDecoding(t *testing.T) {
	abis, err := parseABIs()
	if err != nil {
		t.Fatalf("parseABIs() error: %v", err)
	}

	var value [32]byte
	price := new(big.Int).Mul(big.NewInt(250), big.NewInt(1e18))
	price.FillBytes(value[:])

	outs := abis.oracle.Methods["peek"].Outputs
	encoded, err := outs.Pack(value, true)
	if err != nil {
		t.Fatalf("packing peek outputs: %v", err)
	}

	results, err := abis.oracle.Unpack("peek", encoded)
	if err != nil {
		t.Fatalf("unpacking peek outputs: %v", err)
	}

	decoded, ok := results[0].([32]byte)
	if !ok {
		t.Fatalf("value decoded as %T, want [32]byte", results[0])
	}
	if got := new(big.Int).SetBytes(decoded[:]); got.Cmp(price) != 0 {
		t.Errorf("value = %s, want %s", got, price)
	}
	if valid, ok := results[1].(bool); !ok || !valid {
		t.Errorf("valid decoded as %T %v, want true", results[1], results[1])
	}
}

func TestBatchExecutePacking(t *testing.T) {
	abis, err := parseABIs()
	if err != nil {
		t.Fatalf("parseABIs() error: %v", err)
	}

	calls := []batchCall{
		{Target: common.HexToAddress("0x1"), Data: []byte{0xde, 0xad}, Value: big.NewInt(0)},
		{Target: common.HexToAddress("0x2"), Data: []byte{0xbe, 0xef}, Value: big.NewInt(1)},
	}

	data, err := abis.batch.Pack("execute", calls)
	if err != nil {
		t.Fatalf("packing execute: %v", err)
	}
	if len(data) < 4 {
		t.Fatalf("packed data too short: %d bytes", len(data))
	}

	method, err := abis.batch.MethodById(data[:4])
	if err != nil {
		t.Fatalf("resolving selector: %v", err)
	}
	if method.Name != "execute" {
		t.Errorf("selector resolves to %s, want execute", method.Name)
	}
}

func TestUnlimitedAllowanceIsMaxUint256(t *testing.T) {
	if unlimitedAllowance.BitLen() != 256 {
		t.Errorf("BitLen = %d, want 256", unlimitedAllowance.BitLen())
	}
	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	if unlimitedAllowance.Cmp(limit) >= 0 {
		t.Error("unlimited allowance does not fit in uint256")
	}
}
