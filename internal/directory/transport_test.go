package directory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactdir/internal/contacts/codec"
)

type staticToken struct {
	token string
	err   error
	calls int
}

func (s *staticToken) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestHTTPTransportSendsGDataHeaders(t *testing.T) {
	gotBody := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "3.0", r.Header.Get("GData-Version"))
		assert.Equal(t, codec.ContentType, r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		gotBody <- string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("<entry/>"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), &staticToken{token: "tok-123"})
	resp, err := tr.Do(context.Background(), Request{Method: http.MethodPost, URL: server.URL + "/feed", Body: []byte("<entry/>")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "<entry/>", string(resp.Body))
	assert.Equal(t, "<entry/>", <-gotBody)
}

func TestHTTPTransportPassesStatusThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), &staticToken{token: "t"})
	resp, err := tr.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, tr.breaker.IsOpen(), "client errors do not count against the upstream")
}

func TestHTTPTransportTokenFailure(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), &staticToken{err: errors.New("key revoked")})
	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, ErrorAuthentication, GetCategory(err))
	assert.False(t, called.Load())
}

func TestHTTPTransportOpensCircuitOnUpstreamFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tokens := &staticToken{token: "t"}
	tr := NewHTTPTransport(server.Client(), tokens, WithCircuitBreaker(2, 1, time.Hour))
	for range 2 {
		resp, err := tr.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}

	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, ErrorUnavailable, GetCategory(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 2, tokens.calls, "no token minted while the circuit is open")
}

func TestHTTPTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), &staticToken{token: "t"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Do(ctx, Request{Method: http.MethodGet, URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, GetCategory(err))
	assert.False(t, tr.breaker.IsOpen())
}

func TestHTTPTransportCallerCancellationKeepsCircuitClosed(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<feed/>"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), &staticToken{token: "t"}, WithCircuitBreaker(2, 1, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 5 {
		_, err := tr.Do(ctx, Request{Method: http.MethodGet, URL: server.URL})
		require.Error(t, err)
		assert.Equal(t, ErrorCanceled, GetCategory(err))
		assert.False(t, IsRetryable(err))
	}
	assert.False(t, tr.breaker.IsOpen())

	resp, err := tr.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPTransportNetworkFailureCountsAgainstCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tr := NewHTTPTransport(&http.Client{Timeout: time.Second}, &staticToken{token: "t"}, WithCircuitBreaker(2, 1, time.Hour))
	for range 2 {
		_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, URL: url})
		require.Error(t, err)
		assert.Equal(t, ErrorProviderOutage, GetCategory(err))
	}
	assert.True(t, tr.breaker.IsOpen())
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	body := make([]byte, 4096)
	for i := range body {
		body[i] = 'x'
	}
	err := statusError("fetch", &Response{StatusCode: http.StatusBadGateway, Body: body})
	assert.Equal(t, ErrorProviderOutage, err.Category)
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.Less(t, len(err.Error()), 700)
	assert.True(t, err.Retryable())
}

func TestCategoryForStatus(t *testing.T) {
	tests := map[int]ErrorCategory{
		http.StatusUnauthorized:        ErrorAuthentication,
		http.StatusForbidden:           ErrorAuthentication,
		http.StatusNotFound:            ErrorNotFound,
		http.StatusGone:                ErrorNotFound,
		http.StatusConflict:            ErrorConflict,
		http.StatusPreconditionFailed:  ErrorConflict,
		http.StatusTooManyRequests:     ErrorRateLimited,
		http.StatusGatewayTimeout:      ErrorTimeout,
		http.StatusInternalServerError: ErrorProviderOutage,
		http.StatusBadRequest:          ErrorRejected,
		http.StatusFound:               ErrorInternal,
	}
	for status, want := range tests {
		assert.Equal(t, want, categoryForStatus(status), http.StatusText(status))
	}
}
