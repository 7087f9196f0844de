package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies an asset by chain and contract address. The
// native coin uses the zero address. Two deployments of the same
// symbol on different chains are different assets.
type AssetID struct {
	chainID uint64
	address common.Address
}

// NewNativeAssetID returns the ID of a chain's native coin.
func NewNativeAssetID(chainID uint64) AssetID {
	return AssetID{chainID: chainID}
}

// NewTokenAssetID returns the ID of a contract token. Panics on the
// zero address; the native coin goes through NewNativeAssetID.
func NewTokenAssetID(chainID uint64, addr common.Address) AssetID {
	if addr == (common.Address{}) {
		panic("asset: zero token address")
	}
	return AssetID{chainID: chainID, address: addr}
}

// ChainID returns the chain the asset lives on.
func (id AssetID) ChainID() uint64 {
	return id.chainID
}

// Address returns the contract address, zero for the native coin.
func (id AssetID) Address() common.Address {
	return id.address
}

// IsNative reports whether this is the chain's native coin.
func (id AssetID) IsNative() bool {
	return id.address == (common.Address{})
}

// IsToken reports whether this is a contract token.
func (id AssetID) IsToken() bool {
	return id.address != (common.Address{})
}

// Equals compares chain and address.
func (id AssetID) Equals(other AssetID) bool {
	return id.chainID == other.chainID && id.address == other.address
}

func (id AssetID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("chain:%d/native", id.chainID)
	}
	return fmt.Sprintf("chain:%d/%s", id.chainID, id.address.Hex())
}
