package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Call is a single contract invocation.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int // nil means zero
}

// TxRequest is a transaction to be submitted.
type TxRequest struct {
	Call
	GasLimit uint64 // 0 asks the gateway to estimate
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash        common.Hash
	Nonce       uint64
	GasPriceWei *big.Int
	SubmittedAt time.Time
}

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// ConfirmationOutcome classifies how waiting for a receipt ended.
type ConfirmationOutcome string

const (
	ConfirmationSuccess ConfirmationOutcome = "success"
	ConfirmationRevert  ConfirmationOutcome = "revert"
	ConfirmationTimeout ConfirmationOutcome = "timeout"
)

// ConfirmationResult is the outcome of waiting for a transaction receipt.
// Receipt is nil when the outcome is a timeout.
type ConfirmationResult struct {
	Outcome ConfirmationOutcome
	Receipt *Receipt
	Elapsed time.Duration
}

// Succeeded reports whether the transaction was mined successfully.
func (r ConfirmationResult) Succeeded() bool {
	return r.Outcome == ConfirmationSuccess
}
