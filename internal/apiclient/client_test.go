// ABOUTME: Tests for the knowledge API client
// ABOUTME: Covers header injection, body parsing, retry counts, linear backoff and timeouts

package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client whose backoff waits are recorded instead of slept.
func newTestClient(t *testing.T, srv *httptest.Server, retries int) (*Client, *[]time.Duration) {
	t.Helper()
	c := New(Config{
		BaseURL:    srv.URL,
		Credential: "employee-myproject-secret123",
		Retries:    retries,
		RetryDelay: 100 * time.Millisecond,
		Timeout:    2 * time.Second,
	})
	var mu sync.Mutex
	waits := []time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, d)
		return ctx.Err()
	}
	return c, &waits
}

func TestRequest_InjectsHeadersAndParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "employee-myproject-secret123", r.Header.Get(CredentialHeader))
		assert.Equal(t, DefaultClientID, r.Header.Get(ClientIDHeader))
		assert.Equal(t, "/api/projects/myproject/notes/5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"data":{"id":5,"title":"hello"}}`))
	}))
	defer srv.Close()

	c, waits := newTestClient(t, srv, 3)
	resp, err := c.Request(context.Background(), "/api/projects/myproject/notes/5", RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, resp.Attempts)
	assert.True(t, resp.IsJSON())
	assert.JSONEq(t, `{"id":5,"title":"hello"}`, string(resp.Data().(json.RawMessage)))
	assert.Empty(t, *waits)
}

func TestRequest_SendsBodyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "x", r.URL.Query().Get("folder"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"t"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 0)
	resp, err := c.Request(context.Background(), "/notes", RequestOptions{
		Method: http.MethodPost,
		Query:  url.Values{"folder": {"x"}},
		Body:   map[string]string{"title": "t"},
	})
	require.NoError(t, err)

	// no data field: the whole body is the data
	assert.JSONEq(t, `{"id":1}`, string(resp.Data().(json.RawMessage)))
}

func TestRequest_TextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 0)
	resp, err := c.Request(context.Background(), "/ping", RequestOptions{})
	require.NoError(t, err)

	assert.False(t, resp.IsJSON())
	assert.Equal(t, "pong", resp.Text)
	assert.Equal(t, "pong", resp.Data())
	assert.Error(t, resp.Decode(&map[string]any{}))
}

func TestRequest_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, waits := newTestClient(t, srv, 3)
	resp, err := c.Request(context.Background(), "/stats", RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *waits)
}

func TestRequest_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"database unavailable"}`))
	}))
	defer srv.Close()

	c, waits := newTestClient(t, srv, 3)
	_, err := c.Request(context.Background(), "/stats", RequestOptions{})
	require.Error(t, err)

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, *waits)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "database unavailable", apiErr.Message)
	assert.Equal(t, 4, apiErr.Attempts)
	assert.ErrorIs(t, err, ErrAPI)
}

func TestRequest_ClientErrorsAreRetriedToo(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such note", http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 2)
	_, err := c.Request(context.Background(), "/notes/404", RequestOptions{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "no such note", apiErr.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequest_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 3)
	_, err := c.Request(context.Background(), "/health", RequestOptions{SingleAttempt: true})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequest_MalformedJSONIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [1, 2`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 3)
	_, err := c.Request(context.Background(), "/notes", RequestOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrMalformedResponse)
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, `{"data": [1, 2`, malformed.Raw)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequest_AttemptTimeoutTriggersRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 1)
	c.timeout = 50 * time.Millisecond

	_, err := c.Request(context.Background(), "/slow", RequestOptions{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, 2, apiErr.Attempts)
	assert.Contains(t, apiErr.Message, "timed out")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequest_CancelledContextStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, waits := newTestClient(t, srv, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Request(ctx, "/notes", RequestOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *waits)
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestRegisterAndUnregisterWebhook(t *testing.T) {
	type seen struct {
		method string
		body   map[string]any
	}
	var mu sync.Mutex
	var requests []seen

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/webhooks", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		requests = append(requests, seen{r.Method, body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 0)
	ctx := context.Background()

	require.NoError(t, c.RegisterWebhook(ctx, WebhookRegistration{
		URL:     "http://127.0.0.1:4567/webhook",
		Events:  []string{"created", "deleted"},
		Timeout: 10 * time.Second,
		Secret:  "s",
	}))
	require.NoError(t, c.UnregisterWebhook(ctx, "http://127.0.0.1:4567/webhook"))

	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPost, requests[0].method)
	assert.Equal(t, "http://127.0.0.1:4567/webhook", requests[0].body["url"])
	assert.Equal(t, []any{"created", "deleted"}, requests[0].body["events"])
	assert.Equal(t, map[string]any{"timeout": float64(10000), "secret": "s"}, requests[0].body["config"])

	assert.Equal(t, http.MethodDelete, requests[1].method)
	assert.Equal(t, map[string]any{"url": "http://127.0.0.1:4567/webhook"}, requests[1].body)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 3)
	report, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, report.Status)
	assert.Equal(t, srv.URL, c.BaseURL())
}
