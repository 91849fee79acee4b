package api

// Error codes carried in ErrorMessage.Code
const (
	// ErrCodeMalformed indicates a payload that could not be decoded; non-retryable
	ErrCodeMalformed = "malformed_message"

	// ErrCodeUnknownType indicates an unrecognized envelope type; non-retryable
	ErrCodeUnknownType = "unknown_message_type"

	// ErrCodeStorage indicates a transient storage fault; retryable
	ErrCodeStorage = "storage_error"
)

// Websocket close codes in the application-reserved 4000-4999 range.
// They let clients distinguish "retry with backoff" (idle timeout,
// quota) from "never retry" (bad credentials).
const (
	CloseAuthFailed    = 4001
	CloseQuotaExceeded = 4002
	CloseIdleTimeout   = 4003
	CloseOverloaded    = 4004
)
