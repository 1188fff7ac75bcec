package directory

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory is the normalized failure taxonomy for directory calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the remote service took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the remote service returned a document we could not decode
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorNotFound indicates the contact or feed does not exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorConflict indicates a stale edit locator or concurrent modification
	ErrorConflict ErrorCategory = "conflict"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorRejected indicates the remote service refused the document we sent
	ErrorRejected ErrorCategory = "rejected"

	// ErrorProviderOutage indicates the remote service failed (5xx or network)
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorUnavailable indicates calls are short-circuited locally
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorCanceled indicates the caller gave up before the remote service answered
	ErrorCanceled ErrorCategory = "canceled"

	// ErrorBadRequest indicates the caller supplied unusable input
	ErrorBadRequest ErrorCategory = "bad_request"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps a directory failure with its category and, when the remote
// service answered, the HTTP status it returned.
type Error struct {
	Op       string
	Category ErrorCategory
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("directory %s [%s]: %s", e.Op, e.Category, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("directory %s [%s] status %d: %s", e.Op, e.Category, e.Status, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call could succeed.
func (e *Error) Retryable() bool {
	switch e.Category {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited, ErrorUnavailable:
		return true
	}
	return false
}

// NewError builds a categorized directory error.
func NewError(op string, category ErrorCategory, message string, err error) *Error {
	return &Error{Op: op, Category: category, Message: message, Err: err}
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}

// GetCategory extracts the error category, defaulting to ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}
	return ErrorInternal
}

// maxErrorBody bounds how much of a failed response body lands in an error.
const maxErrorBody = 512

// statusError converts an unexpected HTTP status into a categorized error.
func statusError(op string, resp *Response) *Error {
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &Error{
		Op:       op,
		Category: categoryForStatus(resp.StatusCode),
		Status:   resp.StatusCode,
		Message:  fmt.Sprintf("unexpected status: %s", string(body)),
	}
}

func categoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusNotFound, status == http.StatusGone:
		return ErrorNotFound
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return ErrorConflict
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return ErrorTimeout
	case status >= 500:
		return ErrorProviderOutage
	case status >= 400:
		return ErrorRejected
	}
	return ErrorInternal
}
