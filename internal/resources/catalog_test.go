// ABOUTME: Tests for the resource catalog and the health document
// ABOUTME: Uses a fake API server and an in-memory journal

package resources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
	"github.com/2389/knowledge-bridge/internal/providers"
	"github.com/2389/knowledge-bridge/internal/store"
)

func newCatalog(t *testing.T, cfg Config) *Catalog {
	t.Helper()
	sess, err := identity.NewSession("https://notes.example.com", "employee-myproject-secret123", "")
	require.NoError(t, err)
	reg := packs.NewRegistry(nil)
	require.NoError(t, reg.RegisterAll(providers.All(nil)...))

	cfg.Session = sess
	cfg.Registry = reg
	c := NewCatalog(cfg)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func readJSON(t *testing.T, c *Catalog, uri string) map[string]any {
	t.Helper()
	contents, err := c.Read(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, uri, contents.URI)
	assert.Equal(t, "application/json", contents.MimeType)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &doc))
	return doc
}

func TestList(t *testing.T) {
	c := newCatalog(t, Config{})
	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, ProjectURI, list[0].URI)
	assert.Equal(t, HealthURI, list[1].URI)
	assert.Equal(t, PortableURI, list[2].URI)
}

func TestRead_UnknownURI(t *testing.T) {
	c := newCatalog(t, Config{})
	_, err := c.Read(context.Background(), "knowledge://nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownResource))

	var unknown *UnknownResourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "knowledge://nope", unknown.URI)
}

func TestRead_Project(t *testing.T) {
	c := newCatalog(t, Config{Webhook: func() WebhookStatus {
		return WebhookStatus{Enabled: true, State: "listening", URL: "http://127.0.0.1:4000/webhook", Registered: true}
	}})

	doc := readJSON(t, c, ProjectURI)
	assert.Equal(t, "myproject", doc["project_id"])
	assert.Equal(t, "https://notes.example.com", doc["base_url"])
	webhook := doc["webhook"].(map[string]any)
	assert.Equal(t, "http://127.0.0.1:4000/webhook", webhook["url"])
	assert.Equal(t, true, webhook["registered"])
	assert.NotContains(t, contentsOf(t, c, ProjectURI), "secret123")
}

func contentsOf(t *testing.T, c *Catalog, uri string) string {
	t.Helper()
	contents, err := c.Read(context.Background(), uri)
	require.NoError(t, err)
	return contents.Text
}

func TestRead_Portable(t *testing.T) {
	c := newCatalog(t, Config{Version: "1.2.3"})

	doc := readJSON(t, c, PortableURI)
	assert.Equal(t, "knowledge-bridge", doc["name"])
	assert.Equal(t, "1.2.3", doc["version"])

	provs := doc["providers"].([]any)
	require.Len(t, provs, 5)
	first := provs[0].(map[string]any)
	assert.Equal(t, "notes", first["id"])
	assert.Contains(t, first["tools"], "create_note")

	assert.Len(t, doc["resources"], 3)
	caps := doc["capabilities"].(map[string]any)
	assert.Equal(t, true, caps["tools"])
	assert.Equal(t, false, caps["webhooks"])
}

func TestHealth_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	journal, err := store.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer journal.Close()
	require.NoError(t, journal.Record(context.Background(), &store.WebhookRecord{
		ID: "r1", Event: "created", Recognized: true, Payload: json.RawMessage(`{}`), ReceivedAt: time.Now(),
	}))

	c := newCatalog(t, Config{
		Prober:  apiclient.New(apiclient.Config{BaseURL: srv.URL}),
		Journal: journal,
		Metrics: func(ctx context.Context) (map[string]float64, error) {
			return map[string]float64{"tools.calls": 4}, nil
		},
	})

	doc := c.Health(context.Background())
	assert.Equal(t, StatusHealthy, doc.Status)
	assert.True(t, doc.API.Reachable)
	assert.Equal(t, http.StatusOK, doc.API.Status)
	require.NotNil(t, doc.Journal)
	assert.Equal(t, int64(1), doc.Journal.Events)
	assert.NotEmpty(t, doc.Journal.LastEventAt)
	assert.Equal(t, 4.0, doc.Metrics["tools.calls"])
	assert.Equal(t, "2026-03-01T12:00:00Z", doc.Timestamp)
}

func TestHealth_DegradedWhenProbeFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newCatalog(t, Config{Prober: apiclient.New(apiclient.Config{BaseURL: srv.URL, Retries: 3})})

	doc := readJSON(t, c, HealthURI)
	assert.Equal(t, StatusDegraded, doc["status"])
	api := doc["api"].(map[string]any)
	assert.Equal(t, false, api["reachable"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), api["status"])
	assert.NotEmpty(t, api["error"])
	assert.Equal(t, 1, calls, "health probe must not retry")
}

func TestHealth_DegradedWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newCatalog(t, Config{Prober: apiclient.New(apiclient.Config{BaseURL: url})})
	doc := c.Health(context.Background())
	assert.Equal(t, StatusDegraded, doc.Status)
	assert.False(t, doc.API.Reachable)
}

func TestHealth_DegradedWhenWebhookUnregistered(t *testing.T) {
	c := newCatalog(t, Config{
		Prober: proberFunc(func(ctx context.Context) (*apiclient.HealthReport, error) {
			return &apiclient.HealthReport{Status: 200}, nil
		}),
		Webhook: func() WebhookStatus {
			return WebhookStatus{Enabled: true, State: "listening", URL: "http://127.0.0.1:1/webhook"}
		},
	})
	assert.Equal(t, StatusDegraded, c.Health(context.Background()).Status)
}

func TestHealth_PanickingProberIsDegraded(t *testing.T) {
	c := newCatalog(t, Config{
		Prober: proberFunc(func(ctx context.Context) (*apiclient.HealthReport, error) {
			panic("boom")
		}),
	})

	var doc *HealthDoc
	require.NotPanics(t, func() { doc = c.Health(context.Background()) })
	assert.Equal(t, StatusDegraded, doc.Status)
	assert.Contains(t, doc.API.Error, "boom")
}

type proberFunc func(ctx context.Context) (*apiclient.HealthReport, error)

func (f proberFunc) Health(ctx context.Context) (*apiclient.HealthReport, error) { return f(ctx) }
