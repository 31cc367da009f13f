package tap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClover serves canned JSON bodies by request path.
type fakeClover struct {
	mu       sync.Mutex
	server   *httptest.Server
	requests []*http.Request
	handle   func(w http.ResponseWriter, r *http.Request)
}

func newFakeClover(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) *fakeClover {
	f := &fakeClover{handle: handle}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.mu.Unlock()
		f.handle(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeClover) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClover) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]string, len(f.requests))
	for i, r := range f.requests {
		result[i] = r.URL.Path
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func testStream(t *testing.T, def StreamDefinition, baseURL string, opts StreamOptions) *Stream {
	policy := zeroDelay(FetchRetryPolicy())
	opts.BaseURL = baseURL
	if opts.Authenticator == nil {
		opts.Authenticator = NewAPIKeyAuthenticator("test-token")
	}
	opts.RetryPolicy = &policy
	stream, err := NewStream(def, opts)
	require.NoError(t, err)
	return stream
}

func collect(t *testing.T, stream *Stream, sctx Context, start any) ([]Record, error) {
	var result []Record
	err := stream.Sync(context.Background(), sctx, start, func(r Record) error {
		result = append(result, r)
		return nil
	})
	return result, err
}

func paymentsDefinition(t *testing.T) StreamDefinition {
	graph, err := NewStreamGraph(CloverStreams())
	require.NoError(t, err)
	def, ok := graph.Definition("payments")
	require.True(t, ok)
	return def
}

func TestStream_URLParams(t *testing.T) {
	stream := testStream(t, paymentsDefinition(t), "https://api.clover.com", StreamOptions{PageSize: 100})

	params, err := stream.URLParams(0, nil)
	require.NoError(t, err)
	assert.False(t, params.Has("offset"))
	assert.Equal(t, "100", params.Get("limit"))
	assert.Contains(t, params.Get("expand"), "cardTransaction")
	assert.False(t, params.Has("filter"))

	params, err = stream.URLParams(200, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "200", params.Get("offset"))
	assert.Equal(t, "modifiedTime>=[1704067200]]", params.Get("filter"))
	assert.Equal(t, "modifiedTime DESC", params.Get("orderBy"))

	params, err = stream.URLParams(0, float64(1704067200))
	require.NoError(t, err)
	assert.Equal(t, "modifiedTime>=[1704067200]]", params.Get("filter"))

	_, err = stream.URLParams(0, "last tuesday")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestStream_URLParamsWithoutReplicationKey(t *testing.T) {
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees"}
	stream := testStream(t, def, "https://api.clover.com", StreamOptions{})

	params, err := stream.URLParams(0, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, url.Values{"limit": {strconv.Itoa(DefaultPageSize)}}, params)
}

func TestStream_SyncPaginates(t *testing.T) {
	pages := map[string]string{
		"":  `{"elements":[{"id":"E1"},{"id":"E2"}]}`,
		"2": `{"elements":[{"id":"E3"}]}`,
		"4": `{"elements":[]}`,
	}
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, pages[r.URL.Query().Get("offset")])
	})
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees", PrimaryKeys: byIDInMerchant}
	stream := testStream(t, def, fake.server.URL, StreamOptions{PageSize: 2})

	records, err := collect(t, stream, NewContext("merchant_id", "M1"), nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "E3", records[2]["id"])
	assert.Equal(t, "M1", records[0]["merchant_id"])
	assert.Equal(t, 3, fake.hits())
	assert.Equal(t, "/v3/merchants/M1/employees", fake.paths()[0])
}

func TestStream_SyncTreatsClientErrorsAsEmpty(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
	})
	def := StreamDefinition{Name: "merchant_gateways", Path: "/v3/merchants/{merchant_id}/gateway"}
	stream := testStream(t, def, fake.server.URL, StreamOptions{})

	records, err := collect(t, stream, NewContext("merchant_id", "M1"), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, fake.hits())
}

func TestStream_SyncRetriesServerErrors(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees"}
	stream := testStream(t, def, fake.server.URL, StreamOptions{})

	_, err := collect(t, stream, NewContext("merchant_id", "M1"), nil)
	var apiErr *RetriableAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, FetchMaxAttempts, fake.hits())
}

func TestStream_SyncRecoversFromRateLimit(t *testing.T) {
	var calls int
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeJSON(w, http.StatusTooManyRequests, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"elements":[]}`)
	})
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees"}
	stream := testStream(t, def, fake.server.URL, StreamOptions{})

	_, err := collect(t, stream, NewContext("merchant_id", "M1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.hits())
}

func TestStream_SyncAuthErrorMakesNoRequest(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"elements":[]}`)
	})
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees"}
	stream := testStream(t, def, fake.server.URL, StreamOptions{Authenticator: NewAPIKeyAuthenticator("")})

	_, err := collect(t, stream, NewContext("merchant_id", "M1"), nil)
	assert.True(t, IsFatal(err))
	assert.Zero(t, fake.hits())
}

func TestStream_SyncMissingContextKey(t *testing.T) {
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees"}
	stream := testStream(t, def, "https://api.clover.com", StreamOptions{})

	_, err := collect(t, stream, Context{}, nil)
	assert.ErrorIs(t, err, ErrMissingContextKey)
}

func TestStream_SyncParsesSingleObjectsAndRecordsPath(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/merchants/M1":
			writeJSON(w, http.StatusOK, `{"id":"M1","name":"Corner Cafe","address":{"city":"Austin"}}`)
		case "/v3/merchants/M1/properties":
			writeJSON(w, http.StatusOK, `{"data":[{"tipsEnabled":true},"junk"]}`)
		default:
			http.NotFound(w, r)
		}
	})

	merchants := testStream(t, StreamDefinition{Name: "merchants", Path: "/v3/merchants/{merchant_id}"}, fake.server.URL, StreamOptions{})
	records, err := collect(t, merchants, NewContext("merchant_id", "M1"), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Austin", records[0]["address_city"])
	assert.Equal(t, "M1", records[0]["merchant_id"])

	properties := testStream(t, StreamDefinition{
		Name:        "merchant_properties",
		Path:        "/v3/merchants/{merchant_id}/properties",
		RecordsPath: "data",
	}, fake.server.URL, StreamOptions{})
	records, err = collect(t, properties, NewContext("merchant_id", "M1"), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0]["tipsEnabled"])
}

func TestStream_SyncAppliesFieldTransforms(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("offset") {
			writeJSON(w, http.StatusOK, `{"elements":[]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"elements":[
			{"id":"P1","amount":1050,"modifiedTime":1704067200000,"tender":{"label":"Cash"}},
			{"id":"P2","amount":-99,"modifiedTime":1704067300000}
		]}`)
	})
	stream := testStream(t, paymentsDefinition(t), fake.server.URL, StreamOptions{
		FieldTransforms: map[string]string{
			"amount_decimal": "amount|@currency:CLOVER_2DP",
			"modified_at":    "modifiedTime|@timestamp",
			"source":         "`clover`",
		},
	})

	records, err := collect(t, stream, NewContext("merchant_id", "M1"), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, json.Number("10.50"), records[0]["amount_decimal"])
	assert.Equal(t, json.Number("-0.99"), records[1]["amount_decimal"])
	assert.Equal(t, json.Number("1050"), records[0]["amount"])
	assert.Equal(t, "2024-01-01T00:00:00Z", records[0]["modified_at"])
	assert.Equal(t, "clover", records[1]["source"])
	assert.Equal(t, "Cash", records[0]["tender_label"])
}

func TestStream_SyncStopsOnEmitError(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"elements":[{"id":"E1"},{"id":"E2"}]}`)
	})
	def := StreamDefinition{Name: "employees", Path: "/v3/merchants/{merchant_id}/employees"}
	stream := testStream(t, def, fake.server.URL, StreamOptions{})

	boom := errors.New("boom")
	emitted := 0
	err := stream.Sync(context.Background(), NewContext("merchant_id", "M1"), nil, func(Record) error {
		emitted++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, emitted)
	assert.Equal(t, 1, fake.hits())
}

func TestStream_ChildContextsDoNotLeak(t *testing.T) {
	fake := newFakeClover(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("offset") {
			writeJSON(w, http.StatusOK, `{"elements":[]}`)
			return
		}
		switch r.URL.Path {
		case "/v3/merchants":
			writeJSON(w, http.StatusOK, `{"elements":[{"id":"M1"},{"id":"M2"}]}`)
		case "/v3/merchants/M1/orders":
			writeJSON(w, http.StatusOK, `{"elements":[{"id":"O1"}]}`)
		case "/v3/merchants/M2/orders":
			writeJSON(w, http.StatusOK, `{"elements":[{"id":"O2"},{"id":"O3"}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	parent := testStream(t, StreamDefinition{
		Name:         "merchants",
		Path:         "/v3/merchants",
		ChildContext: []ContextField{{Key: "merchant_id", RecordField: "id"}},
	}, fake.server.URL, StreamOptions{})
	child := testStream(t, StreamDefinition{
		Name:   "orders",
		Path:   "/v3/merchants/{merchant_id}/orders",
		Parent: "merchants",
		ChildContext: []ContextField{
			{Key: "merchant_id"},
			{Key: "order_id", RecordField: "id"},
		},
	}, fake.server.URL, StreamOptions{})

	var contexts []Context
	ordersByMerchant := map[string][]string{}
	err := parent.Sync(context.Background(), Context{}, nil, func(record Record) error {
		sctx, err := parent.ChildContext(record, Context{})
		require.NoError(t, err)
		contexts = append(contexts, sctx)
		return child.Sync(context.Background(), sctx, nil, func(order Record) error {
			merchant := order["merchant_id"].(string)
			ordersByMerchant[merchant] = append(ordersByMerchant[merchant], order["id"].(string))

			orderContext, err := child.ChildContext(order, sctx)
			require.NoError(t, err)
			assert.Equal(t, NewContext("merchant_id", merchant, "order_id", order["id"].(string)), orderContext)
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, []Context{NewContext("merchant_id", "M1"), NewContext("merchant_id", "M2")}, contexts)
	assert.Equal(t, map[string][]string{"M1": {"O1"}, "M2": {"O2", "O3"}}, ordersByMerchant)
}

func TestStream_ChildContextMissingField(t *testing.T) {
	def := StreamDefinition{
		Name:         "orders",
		Path:         "/v3/merchants/{merchant_id}/orders",
		ChildContext: []ContextField{{Key: "merchant_id"}, {Key: "order_id", RecordField: "id"}},
	}
	stream := testStream(t, def, "https://api.clover.com", StreamOptions{})

	_, err := stream.ChildContext(Record{"total": 10}, NewContext("merchant_id", "M1"))
	assert.ErrorIs(t, err, ErrMissingContextKey)

	_, err = stream.ChildContext(Record{"id": "O1"}, Context{})
	assert.ErrorIs(t, err, ErrMissingContextKey)
}
