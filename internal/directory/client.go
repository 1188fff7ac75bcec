// Package directory is the shared-contacts client: it composes the XML codec
// and the duplicate detector with an injected Transport to read and mutate the
// remote address book.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"contactdir/internal/contacts"
	"contactdir/internal/contacts/codec"
	"contactdir/internal/contacts/duplicates"
	"contactdir/internal/directory/metrics"
	"contactdir/pkg/requestcontext"
)

const (
	opFetch      = "fetch"
	opCreate     = "create"
	opUpdate     = "update"
	opDelete     = "delete"
	opDuplicates = "duplicates"
	opHealth     = "health"

	// DefaultBaseURL is the public shared-contacts endpoint.
	DefaultBaseURL = "https://www.google.com"

	removeConcurrency = 4
)

// Config locates the remote feed.
type Config struct {
	BaseURL  string
	Domain   string
	PageSize int // max-results per feed page; 0 leaves the service default
	MaxPages int // upper bound on pages followed per fetch; 0 means 1
}

// FeedURL returns the full-projection feed URL for a domain.
func FeedURL(baseURL, domain string) string {
	return fmt.Sprintf("%s/m8/feeds/contacts/%s/full", strings.TrimRight(baseURL, "/"), url.PathEscape(domain))
}

// Client talks to the remote address book.
type Client struct {
	transport Transport
	cfg       Config
	feedURL   string
	baseHost  string
	detector  *duplicates.Detector
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the client's metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDetector replaces the default duplicate detector.
func WithDetector(d *duplicates.Detector) Option {
	return func(c *Client) { c.detector = d }
}

// NewClient validates cfg and builds a client over transport.
func NewClient(transport Transport, cfg Config, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if cfg.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.PageSize < 0 || cfg.MaxPages < 0 {
		return nil, fmt.Errorf("page size and max pages must not be negative")
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 1
	}

	detector, err := duplicates.NewDetector(duplicates.DefaultConfig())
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
		feedURL:   FeedURL(cfg.BaseURL, cfg.Domain),
		baseHost:  base.Host,
		detector:  detector,
		logger:    slog.Default(),
		tracer:    otel.Tracer("contactdir/internal/directory"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Domain returns the directory's domain.
func (c *Client) Domain() string {
	return c.cfg.Domain
}

// FeedURL returns the feed this client reads and posts to.
func (c *Client) FeedURL() string {
	return c.feedURL
}

// Fetch retrieves every contact in the shared directory, following next links
// up to the configured page limit.
func (c *Client) Fetch(ctx context.Context) (cs []contacts.Contact, err error) {
	ctx, span := c.tracer.Start(ctx, "directory.Fetch")
	start := time.Now()
	defer func() { c.finish(ctx, span, opFetch, start, err) }()

	next := c.firstPageURL()
	pages := 0
	cs = []contacts.Contact{}
	for next != "" && pages < c.cfg.MaxPages {
		resp, err := c.transport.Do(ctx, Request{Method: http.MethodGet, URL: next})
		if err != nil {
			return nil, fmt.Errorf("fetch contacts: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, statusError(opFetch, resp)
		}
		page, err := codec.DecodeFeedPage(resp.Body)
		if err != nil {
			return nil, NewError(opFetch, ErrorBadData, "decode feed", err)
		}
		cs = append(cs, page.Contacts...)
		pages++
		if page.Next == "" {
			next = ""
			break
		}
		next, err = c.resolveNext(next, page.Next)
		if err != nil {
			return nil, err
		}
	}
	if next != "" {
		c.logger.WarnContext(ctx, "contact feed truncated at page limit",
			"request_id", requestcontext.RequestID(ctx),
			"max_pages", c.cfg.MaxPages,
			"fetched", len(cs),
		)
	}

	span.SetAttributes(attribute.Int("contacts.count", len(cs)), attribute.Int("contacts.pages", pages))
	c.metrics.ObserveContactsFetched(len(cs))
	c.logger.InfoContext(ctx, "contacts fetched",
		"request_id", requestcontext.RequestID(ctx),
		"count", len(cs),
		"pages", pages,
	)
	return cs, nil
}

// Create posts a new contact and returns the service's view of it, including
// its id and edit locator.
func (c *Client) Create(ctx context.Context, draft contacts.Draft) (created contacts.Contact, err error) {
	ctx, span := c.tracer.Start(ctx, "directory.Create")
	start := time.Now()
	defer func() { c.finish(ctx, span, opCreate, start, err) }()

	body, err := codec.EncodeDraft(draft)
	if err != nil {
		return contacts.Contact{}, NewError(opCreate, ErrorInternal, "encode draft", err)
	}
	resp, err := c.transport.Do(ctx, Request{Method: http.MethodPost, URL: c.feedURL, Body: body})
	if err != nil {
		return contacts.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return contacts.Contact{}, statusError(opCreate, resp)
	}
	created, err = codec.Decode(resp.Body)
	if err != nil {
		return contacts.Contact{}, NewError(opCreate, ErrorBadData, "decode created entry", err)
	}

	c.logger.InfoContext(ctx, "contact created",
		"request_id", requestcontext.RequestID(ctx),
		"contact_id", created.ID,
	)
	return created, nil
}

// Update replaces the contact at editURL with draft.
func (c *Client) Update(ctx context.Context, editURL string, draft contacts.Draft) (updated contacts.Contact, err error) {
	ctx, span := c.tracer.Start(ctx, "directory.Update")
	start := time.Now()
	defer func() { c.finish(ctx, span, opUpdate, start, err) }()

	if err := c.checkEditURL(opUpdate, editURL); err != nil {
		return contacts.Contact{}, err
	}
	body, err := codec.EncodeDraft(draft)
	if err != nil {
		return contacts.Contact{}, NewError(opUpdate, ErrorInternal, "encode draft", err)
	}
	resp, err := c.transport.Do(ctx, Request{Method: http.MethodPut, URL: editURL, Body: body})
	if err != nil {
		return contacts.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return contacts.Contact{}, statusError(opUpdate, resp)
	}
	updated, err = codec.Decode(resp.Body)
	if err != nil {
		return contacts.Contact{}, NewError(opUpdate, ErrorBadData, "decode updated entry", err)
	}

	c.logger.InfoContext(ctx, "contact updated",
		"request_id", requestcontext.RequestID(ctx),
		"contact_id", updated.ID,
	)
	return updated, nil
}

// Delete removes the contact at editURL.
func (c *Client) Delete(ctx context.Context, editURL string) (err error) {
	ctx, span := c.tracer.Start(ctx, "directory.Delete")
	start := time.Now()
	defer func() { c.finish(ctx, span, opDelete, start, err) }()

	if err := c.checkEditURL(opDelete, editURL); err != nil {
		return err
	}
	resp, err := c.transport.Do(ctx, Request{Method: http.MethodDelete, URL: editURL})
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(opDelete, resp)
	}

	c.logger.InfoContext(ctx, "contact deleted",
		"request_id", requestcontext.RequestID(ctx),
		"edit_url", editURL,
	)
	return nil
}

// FindDuplicates fetches the current directory and reports pairs scoring at
// or above threshold.
func (c *Client) FindDuplicates(ctx context.Context, threshold float64) (pairs []contacts.DuplicatePair, err error) {
	if err := duplicates.ValidateThreshold(threshold); err != nil {
		return nil, NewError(opDuplicates, ErrorBadRequest, "invalid threshold", err)
	}

	ctx, span := c.tracer.Start(ctx, "directory.FindDuplicates")
	start := time.Now()
	defer func() { c.finish(ctx, span, opDuplicates, start, err) }()

	cs, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err = c.detector.Find(ctx, cs, threshold)
	if err != nil {
		return nil, NewError(opDuplicates, ErrorInternal, "scan contacts", err)
	}

	span.SetAttributes(attribute.Int("duplicates.pairs", len(pairs)), attribute.Float64("duplicates.threshold", threshold))
	c.metrics.ObserveDuplicatePairs(len(pairs))
	c.logger.InfoContext(ctx, "duplicate scan complete",
		"request_id", requestcontext.RequestID(ctx),
		"contacts", len(cs),
		"pairs", len(pairs),
		"threshold", threshold,
	)
	return pairs, nil
}

// Removal is the outcome of deleting one contact during a bulk removal.
type Removal struct {
	EditURL string
	Err     error
}

// RemoveDuplicates deletes each edit locator independently; one failure does
// not stop the others. Results follow the input order.
func (c *Client) RemoveDuplicates(ctx context.Context, editURLs []string) []Removal {
	results := make([]Removal, len(editURLs))
	var g errgroup.Group
	g.SetLimit(removeConcurrency)
	for i, editURL := range editURLs {
		g.Go(func() error {
			results[i] = Removal{EditURL: editURL, Err: c.Delete(ctx, editURL)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Health probes the feed with a single-entry read.
func (c *Client) Health(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "directory.Health")
	start := time.Now()
	defer func() { c.finish(ctx, span, opHealth, start, err) }()

	resp, err := c.transport.Do(ctx, Request{Method: http.MethodGet, URL: c.feedURL + "?max-results=1"})
	if err != nil {
		return fmt.Errorf("probe feed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(opHealth, resp)
	}
	return nil
}

func (c *Client) firstPageURL() string {
	if c.cfg.PageSize == 0 {
		return c.feedURL
	}
	return c.feedURL + "?max-results=" + strconv.Itoa(c.cfg.PageSize)
}

// checkEditURL refuses locators that point away from the configured service,
// since the bearer token travels with the request.
func (c *Client) checkEditURL(op, editURL string) error {
	if editURL == "" {
		return NewError(op, ErrorBadRequest, "edit URL is required", nil)
	}
	u, err := url.Parse(editURL)
	if err != nil {
		return NewError(op, ErrorBadRequest, "edit URL is not a valid URL", err)
	}
	if !c.ownsURL(u) {
		return NewError(op, ErrorBadRequest, fmt.Sprintf("edit URL host %q does not belong to the directory service", u.Host), nil)
	}
	return nil
}

// resolveNext resolves a feed's next link against the page it came from and
// refuses links to any other host. The service controls the link, so a
// foreign host is bad data rather than a bad request.
func (c *Client) resolveNext(current, next string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", NewError(opFetch, ErrorInternal, "parse feed page URL", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", NewError(opFetch, ErrorBadData, "feed next link is not a valid URL", err)
	}
	u := base.ResolveReference(ref)
	if !c.ownsURL(u) {
		return "", NewError(opFetch, ErrorBadData, fmt.Sprintf("feed next link host %q does not belong to the directory service", u.Host), nil)
	}
	return u.String(), nil
}

func (c *Client) ownsURL(u *url.URL) bool {
	return (u.Scheme == "https" || u.Scheme == "http") && strings.EqualFold(u.Host, c.baseHost)
}

func (c *Client) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	defer span.End()
	c.metrics.ObserveOperation(op, time.Since(start))
	if err == nil {
		return
	}
	category := GetCategory(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(category))
	c.metrics.IncrementError(op, string(category))
	c.logger.WarnContext(ctx, "directory operation failed",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"category", category,
		"error", err,
	)
}
