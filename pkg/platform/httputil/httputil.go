// Package httputil holds the JSON response and request helpers shared by the
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"contactdir/internal/directory"
	dErrors "contactdir/pkg/domain-errors"
)

// maxRequestBody bounds decoded JSON request bodies.
const maxRequestBody = 1 << 20

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Validatable is implemented by request types that check their own fields.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that trim or canonicalize
// input before validation.
type Normalizable interface {
	Normalize()
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and JSON error body. Internal failures never
// expose their message.
func WriteError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	resp := ErrorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.ErrorDescription = errorMessage(err)
	}
	WriteJSON(w, StatusForCode(code), resp)
}

// ErrorCode classifies err. Coded domain errors keep their code; directory
// errors are translated by category; anything else is internal.
func ErrorCode(err error) dErrors.Code {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Code
	}
	var dirErr *directory.Error
	if errors.As(err, &dirErr) {
		return codeForCategory(dirErr.Category)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.CodeTimeout
	}
	return dErrors.CodeInternal
}

// StatusForCode returns the HTTP status for a domain error code.
func StatusForCode(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeBadGateway:
		return http.StatusBadGateway
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func codeForCategory(category directory.ErrorCategory) dErrors.Code {
	switch category {
	case directory.ErrorBadRequest:
		return dErrors.CodeBadRequest
	case directory.ErrorNotFound:
		return dErrors.CodeNotFound
	case directory.ErrorConflict:
		return dErrors.CodeConflict
	case directory.ErrorTimeout, directory.ErrorCanceled:
		return dErrors.CodeTimeout
	case directory.ErrorUnavailable, directory.ErrorRateLimited:
		return dErrors.CodeUnavailable
	case directory.ErrorBadData, directory.ErrorAuthentication, directory.ErrorRejected, directory.ErrorProviderOutage:
		return dErrors.CodeBadGateway
	default:
		return dErrors.CodeInternal
	}
}

func errorMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// DecodeAndPrepare decodes the JSON body into a T, normalizes and validates
// it, and writes a 400 on failure. The boolean reports whether the handler
// should continue.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON in request body"))
		return nil, false
	}

	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request",
				"request_id", requestID,
				"error", err,
			)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
