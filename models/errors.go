package models

// Error codes used in API responses.
const (
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeRenderFailed      = "RENDER_FAILED"
	ErrCodeFetchExhausted    = "FETCH_EXHAUSTED"
	ErrCodeBlocked           = "BLOCKED"
	ErrCodePaginationStopped = "PAGINATION_STOPPED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Kind is the typed error kind, e.g. "timeout" or "cycle-detected".
	Kind string `json:"kind,omitempty"`
}

// ErrorResponse wraps an ErrorDetail for endpoints without a richer body.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
