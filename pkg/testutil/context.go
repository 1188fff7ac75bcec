package testutil

import (
	"net/http"

	"contactdir/pkg/platform/middleware/admin"
	"contactdir/pkg/requestcontext"
)

// WithRequestID adds a request ID to the request context, as the request
// middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithAdminToken sets the operator token header checked on mutating routes.
func WithAdminToken(req *http.Request, token string) *http.Request {
	req.Header.Set(admin.HeaderAdminToken, token)
	return req
}
