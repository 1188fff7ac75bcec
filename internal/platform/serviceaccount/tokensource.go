package serviceaccount

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"contactdir/internal/platform/serviceaccount/metrics"
	"contactdir/pkg/platform/sentinel"
)

const (
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
	// refreshSkew retires cached tokens this long before they actually expire.
	refreshSkew      = time.Minute
	refreshTimeout   = 30 * time.Second
	maxTokenResponse = 1 << 20
)

// Config names the delegated identity and requested scope.
type Config struct {
	Subject string // the administrator the service account acts as
	Scope   string
}

// TokenSource exchanges signed JWT assertions for access tokens and caches
// them until shortly before expiry. Safe for concurrent use; concurrent
// refreshes for the same identity are coalesced.
type TokenSource struct {
	key      *Key
	cfg      Config
	cacheKey string
	client   *http.Client
	cache    Cache
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	group    singleflight.Group
}

// Option configures a TokenSource.
type Option func(*TokenSource)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(ts *TokenSource) { ts.client = c }
}

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(ts *TokenSource) { ts.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ts *TokenSource) { ts.logger = l }
}

// WithMetrics sets the metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ts *TokenSource) { ts.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(ts *TokenSource) { ts.now = now }
}

// NewTokenSource builds a token source for key acting as cfg.Subject.
func NewTokenSource(key *Key, cfg Config, opts ...Option) (*TokenSource, error) {
	if key == nil || key.signer == nil {
		return nil, fmt.Errorf("a parsed service account key is required")
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if cfg.Scope == "" {
		return nil, fmt.Errorf("scope is required")
	}

	sum := sha256.Sum256([]byte(key.ClientEmail + "\x00" + cfg.Subject + "\x00" + cfg.Scope))
	ts := &TokenSource{
		key:      key,
		cfg:      cfg,
		cacheKey: hex.EncodeToString(sum[:16]),
		client:   http.DefaultClient,
		cache:    NewMemoryCache(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts, nil
}

// Token returns a valid access token, refreshing it when the cached one is
// missing or about to expire.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	tok, err := ts.cache.Get(ctx, ts.cacheKey)
	switch {
	case err == nil && tok.Valid(ts.now()):
		ts.metrics.IncrementCacheHit()
		return tok.AccessToken, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		ts.logger.WarnContext(ctx, "token cache read failed; refreshing",
			"error", err,
		)
	}

	// Waiters share one refresh; it runs detached from the caller that started it.
	ch := ts.group.DoChan(ts.cacheKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return ts.refresh(rctx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Token).AccessToken, nil
	}
}

func (ts *TokenSource) refresh(ctx context.Context) (Token, error) {
	tok, err := ts.exchange(ctx)
	if err != nil {
		ts.metrics.IncrementRefresh("error")
		return Token{}, err
	}
	ts.metrics.IncrementRefresh("success")

	if err := ts.cache.Set(ctx, ts.cacheKey, tok); err != nil {
		ts.logger.WarnContext(ctx, "token cache write failed",
			"error", err,
		)
	}
	ts.logger.InfoContext(ctx, "access token refreshed",
		"client_email", ts.key.ClientEmail,
		"subject", ts.cfg.Subject,
		"expires_at", tok.Expiry,
	)
	return tok, nil
}

// Assertion signs the JWT presented to the token endpoint.
func (ts *TokenSource) Assertion() (string, error) {
	now := ts.now()
	claims := jwt.MapClaims{
		"iss":   ts.key.ClientEmail,
		"sub":   ts.cfg.Subject,
		"scope": ts.cfg.Scope,
		"aud":   ts.key.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ts.key.PrivateKeyID != "" {
		token.Header["kid"] = ts.key.PrivateKeyID
	}
	signed, err := token.SignedString(ts.key.signer)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (ts *TokenSource) exchange(ctx context.Context) (Token, error) {
	assertion, err := ts.Assertion()
	if err != nil {
		return Token{}, err
	}
	form := url.Values{
		"grant_type": {grantTypeJWTBearer},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.key.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("token endpoint returned status %d with undecodable body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || tr.Error != "" {
		return Token{}, fmt.Errorf("token endpoint returned status %d: %s %s", resp.StatusCode, tr.Error, tr.ErrorDescription)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return Token{}, fmt.Errorf("token endpoint returned an incomplete token")
	}

	return Token{
		AccessToken: tr.AccessToken,
		Expiry:      ts.now().Add(time.Duration(tr.ExpiresIn)*time.Second - refreshSkew),
	}, nil
}
