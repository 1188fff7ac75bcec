package directory_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"contactdir/internal/contacts"
	"contactdir/internal/contacts/codec"
	"contactdir/internal/directory"
	"contactdir/internal/directory/metrics"
	"contactdir/internal/directory/mocks"
)

const (
	baseURL = "https://contacts.example.test"
	feedURL = "https://contacts.example.test/m8/feeds/contacts/example.com/full"
	editURL = "https://contacts.example.test/m8/feeds/contacts/example.com/full/42"
)

type ClientSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	transport *mocks.MockTransport
	metrics   *metrics.Metrics
	client    *directory.Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.transport = mocks.NewMockTransport(s.ctrl)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())

	client, err := directory.NewClient(s.transport,
		directory.Config{BaseURL: baseURL, Domain: "example.com", MaxPages: 3},
		directory.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		directory.WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.client = client
}

func (s *ClientSuite) feed(page codec.FeedPage) *directory.Response {
	body, err := codec.EncodeFeedPage(page)
	s.Require().NoError(err)
	return &directory.Response{StatusCode: http.StatusOK, Body: body}
}

func (s *ClientSuite) entry(status int, c contacts.Contact) *directory.Response {
	body, err := codec.EncodeContact(c)
	s.Require().NoError(err)
	return &directory.Response{StatusCode: status, Body: body}
}

func (s *ClientSuite) TestFeedURL() {
	s.Equal(feedURL, s.client.FeedURL())
	s.Equal("example.com", s.client.Domain())
}

func (s *ClientSuite) TestFetchFollowsNextLinks() {
	next := feedURL + "?start-index=2"
	gomock.InOrder(
		s.transport.EXPECT().
			Do(gomock.Any(), directory.Request{Method: http.MethodGet, URL: feedURL}).
			Return(s.feed(codec.FeedPage{Contacts: []contacts.Contact{{ID: "1"}}, Next: next}), nil),
		s.transport.EXPECT().
			Do(gomock.Any(), directory.Request{Method: http.MethodGet, URL: next}).
			Return(s.feed(codec.FeedPage{Contacts: []contacts.Contact{{ID: "2"}}}), nil),
	)

	cs, err := s.client.Fetch(context.Background())
	s.Require().NoError(err)
	s.Require().Len(cs, 2)
	s.Equal("1", cs[0].ID)
	s.Equal("2", cs[1].ID)
}

func (s *ClientSuite) TestFetchStopsAtPageLimit() {
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(s.feed(codec.FeedPage{Contacts: []contacts.Contact{{ID: "x"}}, Next: feedURL + "?start-index=9"}), nil).
		Times(3)

	cs, err := s.client.Fetch(context.Background())
	s.Require().NoError(err)
	s.Len(cs, 3)
}

func (s *ClientSuite) TestFetchRefusesForeignNextLink() {
	s.transport.EXPECT().
		Do(gomock.Any(), directory.Request{Method: http.MethodGet, URL: feedURL}).
		Return(s.feed(codec.FeedPage{
			Contacts: []contacts.Contact{{ID: "1"}},
			Next:     "https://collector.example.net/m8/feeds/contacts/example.com/full?start-index=2",
		}), nil)

	cs, err := s.client.Fetch(context.Background())
	s.Require().Error(err)
	s.Nil(cs)
	s.Equal(directory.ErrorBadData, directory.GetCategory(err))
	s.Contains(err.Error(), "collector.example.net")
}

func (s *ClientSuite) TestFetchResolvesRelativeNextLink() {
	gomock.InOrder(
		s.transport.EXPECT().
			Do(gomock.Any(), directory.Request{Method: http.MethodGet, URL: feedURL}).
			Return(s.feed(codec.FeedPage{Contacts: []contacts.Contact{{ID: "1"}}, Next: "full?start-index=2"}), nil),
		s.transport.EXPECT().
			Do(gomock.Any(), directory.Request{Method: http.MethodGet, URL: feedURL + "?start-index=2"}).
			Return(s.feed(codec.FeedPage{Contacts: []contacts.Contact{{ID: "2"}}}), nil),
	)

	cs, err := s.client.Fetch(context.Background())
	s.Require().NoError(err)
	s.Len(cs, 2)
}

func (s *ClientSuite) TestFetchStatusErrors() {
	cases := []struct {
		status   int
		category directory.ErrorCategory
	}{
		{http.StatusUnauthorized, directory.ErrorAuthentication},
		{http.StatusForbidden, directory.ErrorAuthentication},
		{http.StatusNotFound, directory.ErrorNotFound},
		{http.StatusTooManyRequests, directory.ErrorRateLimited},
		{http.StatusBadGateway, directory.ErrorProviderOutage},
		{http.StatusBadRequest, directory.ErrorRejected},
	}
	for _, tc := range cases {
		s.Run(http.StatusText(tc.status), func() {
			s.transport.EXPECT().
				Do(gomock.Any(), gomock.Any()).
				Return(&directory.Response{StatusCode: tc.status, Body: []byte("nope")}, nil)

			cs, err := s.client.Fetch(context.Background())
			s.Nil(cs)
			s.Require().Error(err)
			s.Equal(tc.category, directory.GetCategory(err))

			var de *directory.Error
			s.Require().ErrorAs(err, &de)
			s.Equal(tc.status, de.Status)
			s.Contains(de.Error(), "nope")
		})
	}
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.OperationErrors.WithLabelValues("fetch", "authentication")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OperationErrors.WithLabelValues("fetch", "not_found")))
}

func (s *ClientSuite) TestFetchMalformedFeed() {
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(&directory.Response{StatusCode: http.StatusOK, Body: []byte("<feed")}, nil)

	_, err := s.client.Fetch(context.Background())
	s.Require().Error(err)
	s.Equal(directory.ErrorBadData, directory.GetCategory(err))

	var decErr *codec.DecodeError
	s.ErrorAs(err, &decErr)
}

func (s *ClientSuite) TestFetchTransportFailure() {
	boom := directory.NewError("transport", directory.ErrorProviderOutage, "dial", errors.New("connection refused"))
	s.transport.EXPECT().Do(gomock.Any(), gomock.Any()).Return(nil, boom)

	_, err := s.client.Fetch(context.Background())
	s.ErrorIs(err, boom)
	s.True(directory.IsRetryable(err))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OperationErrors.WithLabelValues("fetch", "provider_outage")))
}

func (s *ClientSuite) TestCreate() {
	draft := contacts.Draft{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req directory.Request) (*directory.Response, error) {
			s.Equal(http.MethodPost, req.Method)
			s.Equal(feedURL, req.URL)
			posted, err := codec.Decode(req.Body)
			s.Require().NoError(err)
			s.Equal("Ada", posted.FirstName)
			s.Equal("ada@example.com", posted.PrimaryEmail())

			posted.ID = "new-id"
			posted.EditURL = editURL
			return s.entry(http.StatusCreated, posted), nil
		})

	created, err := s.client.Create(context.Background(), draft)
	s.Require().NoError(err)
	s.Equal("new-id", created.ID)
	s.Equal(editURL, created.EditURL)
	s.Equal("Ada Lovelace", created.FullName)
}

func (s *ClientSuite) TestCreateRequires201() {
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(s.entry(http.StatusOK, contacts.Contact{ID: "x"}), nil)

	_, err := s.client.Create(context.Background(), contacts.Draft{})
	s.Require().Error(err)
	s.Equal(directory.ErrorInternal, directory.GetCategory(err))
}

func (s *ClientSuite) TestUpdate() {
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req directory.Request) (*directory.Response, error) {
			s.Equal(http.MethodPut, req.Method)
			s.Equal(editURL, req.URL)
			return s.entry(http.StatusOK, contacts.Contact{ID: "42", EditURL: editURL, FirstName: "Updated"}), nil
		})

	updated, err := s.client.Update(context.Background(), editURL, contacts.Draft{FirstName: "Updated"})
	s.Require().NoError(err)
	s.Equal("Updated", updated.FirstName)
}

func (s *ClientSuite) TestUpdateConflict() {
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(&directory.Response{StatusCode: http.StatusPreconditionFailed}, nil)

	_, err := s.client.Update(context.Background(), editURL, contacts.Draft{})
	s.Equal(directory.ErrorConflict, directory.GetCategory(err))
}

// The bearer token travels with every request, so locators pointing at other
// hosts never reach the transport.
func (s *ClientSuite) TestEditURLMustBelongToService() {
	for _, bad := range []string{"", "://nope", "https://attacker.example/m8/feeds/x", "ftp://contacts.example.test/x"} {
		s.Run(bad, func() {
			err := s.client.Delete(context.Background(), bad)
			s.Equal(directory.ErrorBadRequest, directory.GetCategory(err))

			_, err = s.client.Update(context.Background(), bad, contacts.Draft{})
			s.Equal(directory.ErrorBadRequest, directory.GetCategory(err))
		})
	}
}

func (s *ClientSuite) TestDelete() {
	s.transport.EXPECT().
		Do(gomock.Any(), directory.Request{Method: http.MethodDelete, URL: editURL}).
		Return(&directory.Response{StatusCode: http.StatusOK}, nil)

	s.NoError(s.client.Delete(context.Background(), editURL))
}

func (s *ClientSuite) TestFindDuplicates() {
	cs := []contacts.Contact{
		{ID: "1", FirstName: "John", LastName: "Smith", Emails: []contacts.Email{{Address: "j@x.com", Primary: true}}},
		{ID: "2", FirstName: "Jon", LastName: "Smith", Emails: []contacts.Email{{Address: "j@x.com", Primary: true}}},
		{ID: "3", FirstName: "Mary", LastName: "Jones", Emails: []contacts.Email{{Address: "m@x.com", Primary: true}}},
	}
	s.transport.EXPECT().Do(gomock.Any(), gomock.Any()).Return(s.feed(codec.FeedPage{Contacts: cs}), nil)

	pairs, err := s.client.FindDuplicates(context.Background(), 0.8)
	s.Require().NoError(err)
	s.Require().Len(pairs, 1)
	s.Equal("1", pairs[0].ContactA.ID)
	s.Equal("2", pairs[0].ContactB.ID)
	s.GreaterOrEqual(pairs[0].Similarity, 0.8)
}

func (s *ClientSuite) TestFindDuplicatesRejectsThreshold() {
	_, err := s.client.FindDuplicates(context.Background(), 1.5)
	s.Equal(directory.ErrorBadRequest, directory.GetCategory(err))
}

func (s *ClientSuite) TestRemoveDuplicatesContinuesPastFailures() {
	other := feedURL + "/7"
	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req directory.Request) (*directory.Response, error) {
			if strings.HasSuffix(req.URL, "/42") {
				return &directory.Response{StatusCode: http.StatusNotFound}, nil
			}
			return &directory.Response{StatusCode: http.StatusOK}, nil
		}).
		Times(2)

	results := s.client.RemoveDuplicates(context.Background(), []string{editURL, other, "https://evil.example/1"})
	s.Require().Len(results, 3)
	s.Equal(editURL, results[0].EditURL)
	s.Equal(directory.ErrorNotFound, directory.GetCategory(results[0].Err))
	s.Equal(other, results[1].EditURL)
	s.NoError(results[1].Err)
	s.Equal(directory.ErrorBadRequest, directory.GetCategory(results[2].Err))
}

func TestNewClientValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	tests := map[string]struct {
		transport directory.Transport
		cfg       directory.Config
	}{
		"nil transport":  {nil, directory.Config{Domain: "example.com"}},
		"missing domain": {transport, directory.Config{}},
		"bad base url":   {transport, directory.Config{Domain: "example.com", BaseURL: "not a url"}},
		"negative pages": {transport, directory.Config{Domain: "example.com", MaxPages: -1}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := directory.NewClient(tc.transport, tc.cfg)
			if err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func (s *ClientSuite) TestHealth() {
	s.transport.EXPECT().
		Do(gomock.Any(), directory.Request{Method: http.MethodGet, URL: feedURL + "?max-results=1"}).
		Return(s.feed(codec.FeedPage{}), nil)
	s.NoError(s.client.Health(context.Background()))

	s.transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(&directory.Response{StatusCode: http.StatusUnauthorized}, nil)
	s.Equal(directory.ErrorAuthentication, directory.GetCategory(s.client.Health(context.Background())))
}
