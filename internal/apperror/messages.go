package apperror

// messages is the default message catalog. New falls back to the code
// itself for anything missing here.
var messages = map[Code]string{
	// General validation
	CodeRequiredField: "Required field is missing",
	CodeInvalidInput:  "Invalid input provided",
	CodeInvalidState:  "Invalid state for this operation",
	CodeNotFound:      "Resource not found",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Chain read path
	CodeChainRead:             "Chain state read failed",
	CodeChainConnectionFailed: "Failed to connect to chain node",
	CodeChainSubscribeFailed:  "Failed to subscribe to chain events",
	CodeNodeNotSynced:         "Chain node is not synced",
	CodeContractCallFailed:    "Smart contract call failed",
	CodeGasEstimationFailed:   "Gas estimation failed",

	// Chain write path
	CodeTxSubmitFailed:      "Transaction submission failed",
	CodeTxRevert:            "Transaction reverted",
	CodeConfirmationTimeout: "Transaction confirmation timed out",
	CodeBatchNotOwned:       "Batching contract is not owned by the keeper account",

	// Execution planning
	CodeQuoteStale:            "Quote no longer profitable at current state",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInsufficientBalance:   "Insufficient balance",

	// Order management
	CodeOrderCreateFailed: "Failed to create order",
	CodeOrderCancelFailed: "Failed to cancel order",
	CodeInvalidOrderbook:  "Invalid orderbook data",

	// Price feed errors
	CodeFeedUnavailable: "Price feed unavailable",
	CodeFeedStale:       "Price feed data is stale",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Journal errors
	CodeJournalWriteFailed: "Failed to write journal record",

	// Cache errors
	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
