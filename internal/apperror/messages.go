package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",
	CodeUnknownAsset:       "Unknown asset symbol",
	CodeInvalidPair:        "Malformed trading pair",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Feed errors
	CodeFeedConnectionFailed: "Failed to connect to exchange feed",
	CodeFeedSubscribeFailed:  "Failed to subscribe to exchange channel",
	CodeFeedParseError:       "Failed to parse feed message",
	CodeFeedTerminated:       "Exchange feed terminated",
	CodeUnsupportedPair:      "Pair not listed on exchange",
	CodeSnapshotFetchFailed:  "Failed to fetch orderbook snapshot",
	CodeInvalidBookSlice:     "Invalid orderbook slice",

	// Merger errors
	CodeIngressClosed: "Merger ingress channel closed",

	// RPC errors
	CodeRPCBindFailed:    "Failed to bind RPC listener",
	CodeStreamClosed:     "Client stream closed",
	CodeSubscriberClosed: "Subscriber channel closed",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
