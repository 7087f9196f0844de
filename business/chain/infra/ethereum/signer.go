package ethereum

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dexkeep/keeperbot/internal/apperror"
)

// Signer signs transactions locally with the keeper's private key.
// It is bound to one chain ID; signatures do not replay across chains.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewSigner parses a hex private key, with or without the 0x prefix.
func NewSigner(hexKey string, chainID *big.Int) (*Signer, error) {
	if hexKey == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("private key is required for signing"))
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "parse private key")
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the account address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for the bound chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTxSubmitFailed, "sign transaction")
	}
	return signed, nil
}
