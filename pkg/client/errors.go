package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrCredentialsDeclined is returned by a CredentialProvider when the user
	// refuses to supply proxy credentials.
	ErrCredentialsDeclined = errors.New("proxy credentials declined")

	// ErrSchema is returned when a 200 response does not match the batch it answers.
	ErrSchema = errors.New("response does not match request")

	// ErrEmptyBatch is returned when ExecuteBatch is called without tickets.
	ErrEmptyBatch = errors.New("empty batch")
)

// ErrorClass represents a classification of transport failures.
type ErrorClass string

const (
	// ErrorClassTransportUnavailable means no response was received at all.
	ErrorClassTransportUnavailable ErrorClass = "transport_unavailable"

	// ErrorClassAuthRejected represents 401 and 403 responses.
	ErrorClassAuthRejected ErrorClass = "auth_rejected"

	// ErrorClassProxyAuthRequired represents 407 responses.
	ErrorClassProxyAuthRequired ErrorClass = "proxy_auth_required"

	// ErrorClassRateLimited represents 429 responses.
	ErrorClassRateLimited ErrorClass = "rate_limited"

	// ErrorClassBadRequest represents 400 responses.
	ErrorClassBadRequest ErrorClass = "bad_request"

	// ErrorClassSchema represents 200 responses that cannot be matched to the batch.
	ErrorClassSchema ErrorClass = "schema_error"

	// ErrorClassHTTPStatus represents every other non-200 status.
	ErrorClassHTTPStatus ErrorClass = "http_status"
)

// Transient reports whether an attempt failing with this class is retried.
func (c ErrorClass) Transient() bool {
	switch c {
	case ErrorClassRateLimited, ErrorClassProxyAuthRequired:
		return true
	default:
		return false
	}
}

// Messages recorded on failed records. They are shown to end users.
const (
	msgNoResponse        = "Server did not provide a response"
	msgBadRequest        = "Bad Request. Please check the query parameters"
	msgUnauthorized      = "Invalid API Key. Please verify the configured API key"
	msgForbidden         = "Unauthorized Access. The API key is not allowed to use this service"
	msgProxyAuthRequired = "Proxy Authentication Required. Please verify if proxy is configured correctly."
	msgInadequate        = "Query did not provide an adequate response"
)

// classifyStatus maps a non-200 status code to its class and user-facing message.
func classifyStatus(status int) (ErrorClass, string) {
	switch status {
	case http.StatusBadRequest:
		return ErrorClassBadRequest, msgBadRequest
	case http.StatusUnauthorized:
		return ErrorClassAuthRejected, msgUnauthorized
	case http.StatusForbidden:
		return ErrorClassAuthRejected, msgForbidden
	case http.StatusProxyAuthRequired:
		return ErrorClassProxyAuthRequired, msgProxyAuthRequired
	case http.StatusTooManyRequests:
		return ErrorClassRateLimited, fmt.Sprintf("Server is overloaded (%d %s)", status, http.StatusText(status))
	default:
		return ErrorClassHTTPStatus, fmt.Sprintf("Invalid HTTP response (%d)", status)
	}
}

// APIError represents a failed batch attempt with additional context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partmatch %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("partmatch %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// newStatusError builds the APIError for a non-200 response.
func newStatusError(status int) *APIError {
	class, msg := classifyStatus(status)
	return &APIError{StatusCode: status, Class: class, Message: msg}
}

// shouldRetry determines if an attempt error should be retried.
func shouldRetry(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(apiErr.Err, ErrCredentialsDeclined) {
		return false
	}
	return apiErr.Class.Transient()
}

// RecordMessage returns the text written to failed records for err.
func RecordMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrContextCancelled) {
		return "Lookup was cancelled"
	}
	return err.Error()
}
