package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"contactdir/internal/contacts"
	"contactdir/internal/contacts/codec"
	"contactdir/pkg/platform/sentinel"
)

const defaultMemoryPageSize = 25

// MemoryTransport emulates the remote feed in process. It speaks the same XML
// as the real service, so the client, codec and handlers run unchanged
// against it. Useful for local runs and tests.
type MemoryTransport struct {
	mu       sync.Mutex
	feedURL  string
	seq      int
	contacts []contacts.Contact
}

// NewMemoryTransport serves feedURL from memory, optionally pre-populated.
// Seeded contacts without an id or edit locator get one assigned.
func NewMemoryTransport(feedURL string, seed ...contacts.Contact) *MemoryTransport {
	m := &MemoryTransport{feedURL: feedURL}
	for _, c := range seed {
		m.insert(c)
	}
	return m
}

// Do implements Transport.
func (m *MemoryTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError("transport", ErrorTimeout, "memory transport", err)
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, NewError("transport", ErrorBadRequest, "parse url", err)
	}
	target := u.Scheme + "://" + u.Host + u.Path

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case target == m.feedURL && req.Method == http.MethodGet:
		return m.list(u.Query())
	case target == m.feedURL && req.Method == http.MethodPost:
		return m.create(req.Body)
	case strings.HasPrefix(target, m.feedURL+"/") && req.Method == http.MethodPut:
		return m.update(target, req.Body)
	case strings.HasPrefix(target, m.feedURL+"/") && req.Method == http.MethodDelete:
		return m.remove(target)
	case target == m.feedURL || strings.HasPrefix(target, m.feedURL+"/"):
		return textResponse(http.StatusMethodNotAllowed, "method not allowed"), nil
	}
	return textResponse(http.StatusNotFound, "unknown feed"), nil
}

// Len reports how many contacts are stored.
func (m *MemoryTransport) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contacts)
}

func (m *MemoryTransport) list(q url.Values) (*Response, error) {
	start := queryInt(q, "start-index", 1)
	size := queryInt(q, "max-results", defaultMemoryPageSize)
	if start < 1 || size < 1 {
		return textResponse(http.StatusBadRequest, "invalid paging parameters"), nil
	}

	from := min(start-1, len(m.contacts))
	to := min(from+size, len(m.contacts))
	page := codec.FeedPage{
		Contacts:     m.contacts[from:to],
		TotalResults: len(m.contacts),
	}
	if to < len(m.contacts) {
		page.Next = fmt.Sprintf("%s?start-index=%d&max-results=%d", m.feedURL, to+1, size)
	}

	body, err := codec.EncodeFeedPage(page)
	if err != nil {
		return nil, NewError("transport", ErrorInternal, "encode feed", err)
	}
	return &Response{StatusCode: http.StatusOK, Body: body}, nil
}

func (m *MemoryTransport) create(body []byte) (*Response, error) {
	c, err := codec.Decode(body)
	if err != nil {
		return textResponse(http.StatusBadRequest, err.Error()), nil
	}
	c.ID, c.EditURL = "", ""
	return m.entryResponse(http.StatusCreated, m.insert(c))
}

func (m *MemoryTransport) update(editURL string, body []byte) (*Response, error) {
	idx, err := m.find(editURL)
	if err != nil {
		return textResponse(http.StatusNotFound, "contact not found"), nil
	}
	c, err := codec.Decode(body)
	if err != nil {
		return textResponse(http.StatusBadRequest, err.Error()), nil
	}
	c.ID, c.EditURL = m.contacts[idx].ID, m.contacts[idx].EditURL
	m.contacts[idx] = c
	return m.entryResponse(http.StatusOK, c)
}

func (m *MemoryTransport) remove(editURL string) (*Response, error) {
	idx, err := m.find(editURL)
	if err != nil {
		return textResponse(http.StatusNotFound, "contact not found"), nil
	}
	m.contacts = append(m.contacts[:idx], m.contacts[idx+1:]...)
	return &Response{StatusCode: http.StatusOK}, nil
}

func (m *MemoryTransport) insert(c contacts.Contact) contacts.Contact {
	m.seq++
	if c.ID == "" {
		c.ID = fmt.Sprintf("%s/%d", strings.Replace(m.feedURL, "/full", "/base", 1), m.seq)
	}
	if c.EditURL == "" {
		c.EditURL = fmt.Sprintf("%s/%d", m.feedURL, m.seq)
	}
	m.contacts = append(m.contacts, c)
	return c
}

func (m *MemoryTransport) find(editURL string) (int, error) {
	for i, c := range m.contacts {
		if c.EditURL == editURL {
			return i, nil
		}
	}
	return -1, sentinel.ErrNotFound
}

func (m *MemoryTransport) entryResponse(status int, c contacts.Contact) (*Response, error) {
	body, err := codec.EncodeContact(c)
	if err != nil {
		return nil, NewError("transport", ErrorInternal, "encode entry", err)
	}
	return &Response{StatusCode: status, Body: body}, nil
}

func textResponse(status int, msg string) *Response {
	return &Response{StatusCode: status, Body: []byte(msg)}
}

func queryInt(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
