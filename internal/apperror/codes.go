package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeUnknownAsset       Code = "UNKNOWN_ASSET"
	CodeInvalidPair        Code = "INVALID_PAIR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Aggregator-specific error codes
const (
	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Feed errors
	CodeFeedConnectionFailed Code = "FEED_CONNECTION_FAILED"
	CodeFeedSubscribeFailed  Code = "FEED_SUBSCRIBE_FAILED"
	CodeFeedParseError       Code = "FEED_PARSE_ERROR"
	CodeFeedTerminated       Code = "FEED_TERMINATED"
	CodeUnsupportedPair      Code = "UNSUPPORTED_PAIR"
	CodeSnapshotFetchFailed  Code = "SNAPSHOT_FETCH_FAILED"
	CodeInvalidBookSlice     Code = "INVALID_BOOK_SLICE"

	// Merger errors
	CodeIngressClosed Code = "INGRESS_CLOSED"

	// RPC errors
	CodeRPCBindFailed    Code = "RPC_BIND_FAILED"
	CodeStreamClosed     Code = "STREAM_CLOSED"
	CodeSubscriberClosed Code = "SUBSCRIBER_CLOSED"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
