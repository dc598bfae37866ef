package errors

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

var allCodes = []ErrorCode{
	ErrInvalidRequest, ErrValidationFailed, ErrInvalidJSON,
	ErrInvalidCredentials, ErrTokenExpired, ErrNotAuthenticated,
	ErrNotFound, ErrReferralCodeNotFound, ErrLedgerNotFound,
	ErrTransactionConflict, ErrRequestInFlight, ErrLedgerExists, ErrReferralRejected,
	ErrRateLimited,
	ErrInternalServer, ErrAdSignalFailed, ErrAdSignalUnavailable, ErrAdSignalTimeout,
}

// TestProperty_ErrorResponse_StandardFormat tests that all error responses follow the standard format
// *For any* API error, the error response SHALL include code, message, timestamp, request_id, and correlation_id.
func TestProperty_ErrorResponse_StandardFormat(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		code := rapid.SampledFrom(allCodes).Draw(rt, "code")
		message := rapid.StringMatching(`[a-zA-Z0-9 .,!?]{10,100}`).Draw(rt, "message")
		requestID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(rt, "requestID")
		correlationID := rapid.StringMatching(`([a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12})?`).Draw(rt, "correlationID")
		path := rapid.SampledFrom([]string{"/api/v1/mining/claim", "/api/v1/boost/claim", "/api/v1/ledger"}).Draw(rt, "path")
		method := rapid.SampledFrom([]string{"GET", "POST"}).Draw(rt, "method")

		apiErr := &APIError{Code: code, Message: message}
		response := NewErrorResponse(apiErr, requestID, correlationID, path, method)

		if response.Error.Code == "" {
			rt.Fatal("PROPERTY VIOLATION: Error response must have error code")
		}
		if response.Error.Message != message {
			rt.Fatal("PROPERTY VIOLATION: Error response must keep the message")
		}
		if _, err := time.Parse(time.RFC3339, response.Error.Timestamp); err != nil {
			rt.Fatalf("PROPERTY VIOLATION: Timestamp must be valid RFC3339 format: %v", err)
		}
		if response.RequestID != requestID {
			rt.Fatal("PROPERTY VIOLATION: Error response must have request_id")
		}
		if response.CorrelationID == "" {
			rt.Fatal("PROPERTY VIOLATION: Error response must have correlation_id")
		}
		if response.Error.HTTPStatus != GetHTTPStatusFromCode(code) {
			rt.Fatalf("PROPERTY VIOLATION: Status should be derived from code %s", code)
		}
		if response.Path != path || response.Method != method {
			rt.Fatal("PROPERTY VIOLATION: Path and method should be included")
		}
		if apiErr.Timestamp != "" {
			rt.Fatal("PROPERTY VIOLATION: Building a response must not mutate the shared error")
		}
	})
}

// TestProperty_ErrorResponse_HTTPStatusMapping tests that error codes map to their category status
// *For any* error code, the HTTP status SHALL share the code's three-digit prefix class.
func TestProperty_ErrorResponse_HTTPStatusMapping(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		code := rapid.SampledFrom(allCodes).Draw(rt, "code")
		status := GetHTTPStatusFromCode(code)

		if string(code[0]) == "4" && (status < 400 || status >= 500) {
			rt.Fatalf("PROPERTY VIOLATION: Client error code %s should map to 4xx status, got %d", code, status)
		}
		if string(code[0]) == "5" && (status < 500 || status >= 600) {
			rt.Fatalf("PROPERTY VIOLATION: Server error code %s should map to 5xx status, got %d", code, status)
		}
	})
}

func TestPredefinedErrors_StatusMatchesCode(t *testing.T) {
	predefined := []*APIError{
		ErrInvalidCredentialsError, ErrTokenExpiredError, ErrNotAuthenticatedError,
		ErrLedgerNotFoundError, ErrReferralCodeNotFoundError,
		ErrTransactionConflictError, ErrRequestInFlightError, ErrRateLimitedError,
		ErrInternalServerError, ErrAdSignalFailedError, ErrAdSignalUnavailableError, ErrAdSignalTimeoutError,
	}

	for _, err := range predefined {
		if err.HTTPStatus != GetHTTPStatusFromCode(err.Code) {
			t.Errorf("Error %s has status %d, code implies %d", err.Code, err.HTTPStatus, GetHTTPStatusFromCode(err.Code))
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []*APIError{
		ErrTransactionConflictError,
		ErrRequestInFlightError,
		ErrRateLimitedError,
		ErrAdSignalUnavailableError,
		ErrAdSignalTimeoutError,
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("Error %s should be retryable", err.Code)
		}
	}

	notRetryable := []*APIError{
		ErrInvalidCredentialsError,
		ErrNotAuthenticatedError,
		ErrLedgerNotFoundError,
		ErrAdSignalFailedError,
		ErrInternalServerError,
	}
	for _, err := range notRetryable {
		if IsRetryable(err) {
			t.Errorf("Error %s should NOT be retryable", err.Code)
		}
	}
}

// TestProperty_ErrorResponse_ClientServerClassification tests client/server error classification
// *For any* error status, the error SHALL be exactly one of client or server error.
func TestProperty_ErrorResponse_ClientServerClassification(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.IntRange(400, 599).Draw(rt, "status")
		apiErr := &APIError{Code: ErrInternalServer, Message: "Test error", HTTPStatus: status}

		isClient := IsClientError(apiErr)
		isServer := IsServerError(apiErr)

		if isClient == isServer {
			rt.Fatalf("PROPERTY VIOLATION: Status %d must be exactly one of client or server error", status)
		}
		if status < 500 && !isClient {
			rt.Fatalf("PROPERTY VIOLATION: Status %d should be client error", status)
		}
	})
}
