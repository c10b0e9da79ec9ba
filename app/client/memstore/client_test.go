package memstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"souqlive/app/config"
	"souqlive/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Memory.BaseURL = srv.URL

	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Memory.CallTimeout(),
		},
		breaker: NewBreaker(cfg.Memory.CircuitFailureThreshold, cfg.Memory.CircuitCooldown()),
		baseURL: srv.URL,
	}

	return client, srv
}

func userTurn(content string) model.Turn {
	return model.Turn{
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func TestWriteSkipsDegenerateContent(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	for _, tc := range []struct {
		content string
		reason  string
	}{
		{"", SkipReasonEmpty},
		{" ", SkipReasonEmpty},
		{"\t\n", SkipReasonEmpty},
		{"a", SkipReasonTooShort},
	} {
		res := client.Write(context.Background(), "t1", userTurn(tc.content))
		assert.Equal(t, StatusSkipped, res.Status, "content %q", tc.content)
		assert.Equal(t, tc.reason, res.Reason, "content %q", tc.content)
	}

	assert.Equal(t, int64(0), hits.Load(), "degenerate writes must never reach the service")
}

func TestWriteSucceeds(t *testing.T) {
	var got writeRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/threads/t1/memories", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))

	res := client.Write(context.Background(), "t1", userTurn("looking for a villa"))

	assert.Equal(t, StatusWritten, res.Status)
	assert.Equal(t, "looking for a villa", got.Content)
	assert.Equal(t, "user", got.Role)
	assert.NotEmpty(t, got.ID)
}

func TestQueryReturnsFragments(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(queryResponse{Fragments: []Fragment{
			{Content: "user likes Kyrenia", Score: 0.9},
			{Content: "budget around 700", Score: 0.7},
		}})
	}))

	fragments := client.Query(context.Background(), "t1", 5)

	require.Len(t, fragments, 2)
	assert.Equal(t, "user likes Kyrenia", fragments[0].Content)
}

func TestQueryEmptyForNewThread(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(queryResponse{})
	}))

	assert.Empty(t, client.Query(context.Background(), "fresh", 5))
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for range 5 {
		client.Query(context.Background(), "t1", 5)
	}
	require.Equal(t, int64(5), hits.Load())
	require.Equal(t, StateOpen, client.BreakerState())

	// 6th call short-circuits without a network attempt
	start := time.Now()
	assert.Empty(t, client.Query(context.Background(), "t1", 5))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(5), hits.Load())
}

func TestCircuitProbesAfterCooldown(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 5 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(queryResponse{Fragments: []Fragment{{Content: "hi"}}})
	}))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.breaker.now = func() time.Time { return now }

	for range 5 {
		client.Query(context.Background(), "t1", 5)
	}
	require.Equal(t, StateOpen, client.BreakerState())

	// still open inside cooldown
	client.Query(context.Background(), "t1", 5)
	require.Equal(t, int64(5), hits.Load())

	now = now.Add(31 * time.Second)

	fragments := client.Query(context.Background(), "t1", 5)
	assert.Equal(t, int64(6), hits.Load())
	require.Len(t, fragments, 1)
	assert.Equal(t, StateClosed, client.BreakerState())
}

func TestTimeoutCountsTowardCircuitThreshold(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// drain the body so the server can detect the client hanging up
		_, _ = io.Copy(io.Discard, r.Body)
		// hold the request until the caller gives up
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Memory.BaseURL = srv.URL
	cfg.Memory.CallTimeoutSeconds = 1
	cfg.Memory.CircuitFailureThreshold = 2

	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Memory.CallTimeout(),
		},
		breaker: NewBreaker(cfg.Memory.CircuitFailureThreshold, cfg.Memory.CircuitCooldown()),
		baseURL: srv.URL,
	}

	res := client.Write(context.Background(), "t1", userTurn("a write that will hang"))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StateClosed, client.BreakerState())

	// the second timeout trips the threshold, same as a hard error
	client.Query(context.Background(), "t1", 5)
	require.Equal(t, StateOpen, client.BreakerState())
	require.Equal(t, int64(2), hits.Load())

	// while open, calls short-circuit instead of waiting out a timeout
	start := time.Now()
	assert.Empty(t, client.Query(context.Background(), "t1", 5))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(2), hits.Load())
}

func TestWriteShortCircuitsWhenOpen(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for range 5 {
		client.Query(context.Background(), "t1", 5)
	}
	require.Equal(t, StateOpen, client.BreakerState())

	res := client.Write(context.Background(), "t1", userTurn("still here"))

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, SkipReasonCircuitOpen, res.Reason)
	assert.Equal(t, int64(5), hits.Load())
}

func TestDocumentRoundTrip(t *testing.T) {
	docs := map[string]json.RawMessage{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		switch r.Method {
		case http.MethodPut:
			var doc json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
			docs[key] = doc
		case http.MethodGet:
			doc, ok := docs[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(doc)
		}
	}))

	_, found, err := client.GetDocument(context.Background(), "snapshot:t1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.PutDocument(context.Background(), "snapshot:t1", json.RawMessage(`{"a":1}`)))

	doc, found, err := client.GetDocument(context.Background(), "snapshot:t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"a":1}`, string(doc))
}
