package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"contactdir/internal/contacts/codec"
)

// Request is one call against the remote address book.
type Request struct {
	Method string
	URL    string
	Body   []byte
}

// Response is the remote service's answer. Status interpretation is left to
// the caller.
type Response struct {
	StatusCode int
	Body       []byte
}

//go:generate mockgen -source=transport.go -destination=mocks/mocks.go -package=mocks

// Transport sends XML to the remote service and returns its XML reply.
// Implementations own authentication.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// TokenSource supplies bearer tokens for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

const (
	gdataVersion    = "3.0"
	maxResponseBody = 16 << 20
)

// HTTPTransport is the production Transport: bearer-authenticated GData
// requests over net/http, guarded by a circuit breaker.
type HTTPTransport struct {
	client  *http.Client
	tokens  TokenSource
	breaker *circuitBreaker
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithCircuitBreaker overrides the breaker thresholds.
func WithCircuitBreaker(failures, successes int, cooldown time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.breaker = newCircuitBreaker(failures, successes, cooldown)
	}
}

// NewHTTPTransport builds a transport using client (http.DefaultClient when
// nil) and tokens for the Authorization header.
func NewHTTPTransport(client *http.Client, tokens TokenSource, opts ...HTTPOption) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	t := &HTTPTransport{
		client:  client,
		tokens:  tokens,
		breaker: newCircuitBreaker(5, 2, 30*time.Second),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if !t.breaker.Allow() {
		return nil, NewError("transport", ErrorUnavailable, "circuit open after repeated upstream failures", nil)
	}

	token, err := t.tokens.Token(ctx)
	if err != nil {
		return nil, NewError("transport", ErrorAuthentication, "obtain access token", err)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, NewError("transport", ErrorBadRequest, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("GData-Version", gdataVersion)
	httpReq.Header.Set("Content-Type", codec.ContentType)

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.failure(ctx, fmt.Sprintf("%s %s", req.Method, req.URL), err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, t.failure(ctx, "read response body", err)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		t.breaker.RecordFailure()
	} else {
		t.breaker.RecordSuccess()
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: respBody}, nil
}

// failure categorizes a failed exchange. Only upstream faults count against
// the breaker; a caller that cancelled or ran out of time says nothing about
// the remote service.
func (t *HTTPTransport) failure(ctx context.Context, msg string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return NewError("transport", ErrorTimeout, msg, err)
		}
		return NewError("transport", ErrorCanceled, msg, err)
	}

	t.breaker.RecordFailure()
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError("transport", ErrorTimeout, msg, err)
	}
	return NewError("transport", ErrorProviderOutage, msg, err)
}
