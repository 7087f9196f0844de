package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDSepolia  = 11155111
)

// Mainnet addresses of the stablecoin system tokens and the common
// collateral. Other deployments register their tokens from config.
var (
	AddrDAIEthereum  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrMKREthereum  = common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	AddrPETHEthereum = common.HexToAddress("0xf53AD2c6851052A81B42133467480961B2321C09")
	AddrWETHEthereum = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

// Well-known AssetIDs on Ethereum mainnet.
var (
	IDEthereumETH  = NewNativeAssetID(ChainIDEthereum)
	IDEthereumDAI  = NewTokenAssetID(ChainIDEthereum, AddrDAIEthereum)
	IDEthereumMKR  = NewTokenAssetID(ChainIDEthereum, AddrMKREthereum)
	IDEthereumPETH = NewTokenAssetID(ChainIDEthereum, AddrPETHEthereum)
	IDEthereumWETH = NewTokenAssetID(ChainIDEthereum, AddrWETHEthereum)
	IDEthereumUSDC = NewTokenAssetID(ChainIDEthereum, AddrUSDCEthereum)
)

// Pre-built mainnet assets. Tests lean on these; production registries
// come out of DefaultRegistry plus the configured token list.
var (
	ETH  = NewAsset(IDEthereumETH, "ETH", "Ethereum", 18)
	DAI  = NewAsset(IDEthereumDAI, "DAI", "Dai Stablecoin", 18)
	MKR  = NewAsset(IDEthereumMKR, "MKR", "Maker", 18)
	PETH = NewAsset(IDEthereumPETH, "PETH", "Pooled Ether", 18)
	WETH = NewAsset(IDEthereumWETH, "WETH", "Wrapped Ether", 18)
	USDC = NewAsset(IDEthereumUSDC, "USDC", "USD Coin", 6)
)

// DefaultRegistry returns a registry pre-populated with the mainnet
// assets above.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ETH)
	r.Register(DAI)
	r.Register(MKR)
	r.Register(PETH)
	r.Register(WETH)
	r.Register(USDC)
	return r
}

// MustNewToken builds a token asset from explicit metadata.
func MustNewToken(chainID uint64, address common.Address, symbol, name string, decimals uint8) *Asset {
	return NewAsset(NewTokenAssetID(chainID, address), symbol, name, decimals)
}

// MustNewNative builds a native coin asset from explicit metadata.
func MustNewNative(chainID uint64, symbol, name string, decimals uint8) *Asset {
	return NewAsset(NewNativeAssetID(chainID), symbol, name, decimals)
}
