package errors

import (
	"net/http"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidJSON      ErrorCode = "40003"

	// Authentication errors (401xx)
	ErrInvalidCredentials ErrorCode = "40101"
	ErrTokenExpired       ErrorCode = "40102"
	ErrNotAuthenticated   ErrorCode = "40104"

	// Resource errors (404xx)
	ErrNotFound             ErrorCode = "40401"
	ErrReferralCodeNotFound ErrorCode = "40402"
	ErrLedgerNotFound       ErrorCode = "40403"

	// Conflict errors (409xx)
	ErrTransactionConflict ErrorCode = "40901"
	ErrRequestInFlight     ErrorCode = "40902"
	ErrLedgerExists        ErrorCode = "40903"
	ErrReferralRejected    ErrorCode = "40904"

	// Rate limit errors (429xx)
	ErrRateLimited ErrorCode = "42902"

	// Server errors (500xx)
	ErrInternalServer      ErrorCode = "50001"
	ErrAdSignalFailed      ErrorCode = "50201"
	ErrAdSignalUnavailable ErrorCode = "50302"
	ErrAdSignalTimeout     ErrorCode = "50402"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         APIError `json:"error"`
	RequestID     string   `json:"request_id"`
	CorrelationID string   `json:"correlation_id"`
	Path          string   `json:"path,omitempty"`
	Method        string   `json:"method,omitempty"`
}

// NewErrorResponse builds the response body for an API error
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) ErrorResponse {
	body := *err
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if body.HTTPStatus == 0 {
		body.HTTPStatus = GetHTTPStatusFromCode(body.Code)
	}
	if correlationID == "" {
		correlationID = requestID
	}
	return ErrorResponse{
		Error:         body,
		RequestID:     requestID,
		CorrelationID: correlationID,
		Path:          path,
		Method:        method,
	}
}

// GetHTTPStatusFromCode maps an error code to its HTTP status
func GetHTTPStatusFromCode(code ErrorCode) int {
	if len(code) < 3 {
		return http.StatusInternalServerError
	}
	switch code[:3] {
	case "400":
		return http.StatusBadRequest
	case "401":
		return http.StatusUnauthorized
	case "403":
		return http.StatusForbidden
	case "404":
		return http.StatusNotFound
	case "409":
		return http.StatusConflict
	case "429":
		return http.StatusTooManyRequests
	case "502":
		return http.StatusBadGateway
	case "503":
		return http.StatusServiceUnavailable
	case "504":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Common errors
var (
	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid or missing access token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrNotAuthenticatedError = &APIError{
		Code:       ErrNotAuthenticated,
		Message:    "No signed-in user",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrLedgerNotFoundError = &APIError{
		Code:       ErrLedgerNotFound,
		Message:    "Reward ledger not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrReferralCodeNotFoundError = &APIError{
		Code:       ErrReferralCodeNotFound,
		Message:    "Referral code not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrTransactionConflictError = &APIError{
		Code:       ErrTransactionConflict,
		Message:    "Ledger is busy, try again",
		HTTPStatus: http.StatusConflict,
	}

	ErrRequestInFlightError = &APIError{
		Code:       ErrRequestInFlight,
		Message:    "A request with this idempotency key is still in progress",
		HTTPStatus: http.StatusConflict,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrAdSignalFailedError = &APIError{
		Code:       ErrAdSignalFailed,
		Message:    "Ad was not completed. Try again.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrAdSignalUnavailableError = &APIError{
		Code:       ErrAdSignalUnavailable,
		Message:    "Ad verification is unavailable. Try again later.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrAdSignalTimeoutError = &APIError{
		Code:       ErrAdSignalTimeout,
		Message:    "Ad verification timed out. Try again.",
		HTTPStatus: http.StatusGatewayTimeout,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConflictError creates a conflict error with a specific code
func NewConflictError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// IsRetryable reports whether the client may retry the same request later
func IsRetryable(err *APIError) bool {
	switch err.Code {
	case ErrTransactionConflict, ErrRequestInFlight, ErrRateLimited,
		ErrAdSignalUnavailable, ErrAdSignalTimeout:
		return true
	}
	return false
}

// IsClientError reports whether the error is caused by the request
func IsClientError(err *APIError) bool {
	return err.HTTPStatus >= 400 && err.HTTPStatus < 500
}

// IsServerError reports whether the error is caused by the service
func IsServerError(err *APIError) bool {
	return err.HTTPStatus >= 500 && err.HTTPStatus < 600
}
