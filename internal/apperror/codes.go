// Package apperror defines the coded errors shared by the keeper
// modules.
package apperror

// Code classifies an error. The strategy loop keys its retry and
// stop decisions off the code, never the message.
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField Code = "REQUIRED_FIELD"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeNotFound      Code = "NOT_FOUND"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Keeper-specific error codes
const (
	// Chain read path
	CodeChainRead             Code = "CHAIN_READ_ERROR"
	CodeChainConnectionFailed Code = "CHAIN_CONNECTION_FAILED"
	CodeChainSubscribeFailed  Code = "CHAIN_SUBSCRIBE_FAILED"
	CodeNodeNotSynced         Code = "NODE_NOT_SYNCED"
	CodeContractCallFailed    Code = "CONTRACT_CALL_FAILED"
	CodeGasEstimationFailed   Code = "GAS_ESTIMATION_FAILED"

	// Chain write path
	CodeTxSubmitFailed      Code = "TX_SUBMIT_FAILED"
	CodeTxRevert            Code = "TRANSACTION_REVERT"
	CodeConfirmationTimeout Code = "CONFIRMATION_TIMEOUT"
	CodeBatchNotOwned       Code = "BATCH_CONTRACT_NOT_OWNED"

	// Execution planning
	CodeQuoteStale            Code = "QUOTE_STALE"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"

	// Order management
	CodeOrderCreateFailed Code = "ORDER_CREATE_FAILED"
	CodeOrderCancelFailed Code = "ORDER_CANCEL_FAILED"
	CodeInvalidOrderbook  Code = "INVALID_ORDERBOOK"

	// Price feed errors
	CodeFeedUnavailable Code = "FEED_UNAVAILABLE"
	CodeFeedStale       Code = "FEED_STALE"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Journal errors
	CodeJournalWriteFailed Code = "JOURNAL_WRITE_FAILED"

	// Cache errors
	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)

// transientCodes are swallowed at the cycle boundary; the next poll is the retry.
var transientCodes = map[Code]struct{}{
	CodeChainRead:                {},
	CodeChainConnectionFailed:    {},
	CodeChainSubscribeFailed:     {},
	CodeContractCallFailed:       {},
	CodeGasEstimationFailed:      {},
	CodeFeedUnavailable:          {},
	CodeFeedStale:                {},
	CodeServiceTimeout:           {},
	CodeServiceUnavailable:       {},
	CodeRateLimitExceeded:        {},
	CodeCircuitOpen:              {},
	CodeCircuitHalfOpen:          {},
	CodeCacheExpired:             {},
	CodeWebSocketConnectionError: {},
	CodeWebSocketReconnecting:    {},
}

// fatalCodes terminate the process so the supervisor can restart it clean.
var fatalCodes = map[Code]struct{}{
	CodeConfigurationError: {},
	CodeBatchNotOwned:      {},
	CodeNodeNotSynced:      {},
}

// IsTransient reports whether the error should abort only the current cycle.
func IsTransient(err error) bool {
	_, ok := transientCodes[GetCode(err)]
	return ok
}

// IsFatal reports whether the error must terminate the process.
func IsFatal(err error) bool {
	_, ok := fatalCodes[GetCode(err)]
	return ok
}
