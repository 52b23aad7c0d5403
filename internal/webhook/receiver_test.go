// ABOUTME: Tests for the webhook receiver lifecycle and delivery handling
// ABOUTME: Runs a real listener on an ephemeral port and observes the event bus

package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/knowledge-bridge/internal/events"
	"github.com/2389/knowledge-bridge/internal/store"
)

func startReceiver(t *testing.T, cfg Config, opts ...Option) (*Receiver, <-chan events.Event) {
	t.Helper()
	bus := events.NewBus(nil)
	ch, _ := bus.Subscribe(t.Context())

	r := NewReceiver(cfg, bus, opts...)
	require.NoError(t, r.Start(t.Context()))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	return r, ch
}

func post(t *testing.T, url, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestReceiver_Lifecycle(t *testing.T) {
	r := NewReceiver(Config{Port: 0}, events.NewBus(nil))
	assert.Equal(t, StateStopped, r.State())
	assert.Empty(t, r.URL())

	require.NoError(t, r.Start(t.Context()))
	assert.Equal(t, StateListening, r.State())
	assert.True(t, strings.HasPrefix(r.URL(), "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(r.URL(), "/webhook"))
	assert.NotContains(t, r.URL(), ":0/")

	assert.ErrorIs(t, r.Start(t.Context()), ErrNotStopped)

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, StateStopped, r.State())
	assert.Empty(t, r.URL())
	assert.Nil(t, r.Addr())

	// stopping twice is a no-op
	require.NoError(t, r.Stop(context.Background()))

	// and it can start again
	require.NoError(t, r.Start(t.Context()))
	require.NoError(t, r.Stop(context.Background()))
}

func TestReceiver_StartFailureReturnsToStopped(t *testing.T) {
	first, _ := startReceiver(t, Config{})
	port := first.Addr().(*net.TCPAddr).Port

	second := NewReceiver(Config{Port: port}, events.NewBus(nil))
	err := second.Start(t.Context())
	require.Error(t, err)
	assert.Equal(t, StateStopped, second.State())
	assert.Empty(t, second.URL())
}

func TestReceiver_RecognizedEventEmitsNoteThenGeneric(t *testing.T) {
	r, ch := startReceiver(t, Config{})

	resp, body := post(t, r.URL(), `{"event":"created","data":{"id":1}}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, body)

	got := drain(ch)
	require.Len(t, got, 2)

	assert.Equal(t, events.KindNoteCreated, got[0].Kind)
	assert.JSONEq(t, `{"id":1}`, string(got[0].Payload.(events.NoteChange).Data))

	assert.Equal(t, events.KindWebhookReceived, got[1].Kind)
	generic := got[1].Payload.(events.WebhookReceived)
	assert.Equal(t, "created", generic.Event)
	assert.JSONEq(t, `{"event":"created","data":{"id":1}}`, string(generic.Raw))
}

func TestReceiver_AllNoteKinds(t *testing.T) {
	r, ch := startReceiver(t, Config{})

	for change, kind := range map[string]events.Kind{
		"created": events.KindNoteCreated,
		"updated": events.KindNoteUpdated,
		"deleted": events.KindNoteDeleted,
	} {
		resp, _ := post(t, r.URL(), `{"event":"`+change+`","data":{"id":7}}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		got := drain(ch)
		require.Len(t, got, 2, change)
		assert.Equal(t, kind, got[0].Kind)
	}
}

func TestReceiver_InvalidJSONEmitsNothing(t *testing.T) {
	r, ch := startReceiver(t, Config{})

	for _, body := range []string{`{"event":"created",`, ``, `[1,2]`, `"created"`} {
		resp, respBody := post(t, r.URL(), body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Empty(t, respBody)
	}
	assert.Empty(t, drain(ch))
}

func TestReceiver_UnrecognizedEventEmitsGenericOnly(t *testing.T) {
	r, ch := startReceiver(t, Config{})

	resp, body := post(t, r.URL(), `{"event":"archived","data":{"id":3}}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, body)

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindWebhookReceived, got[0].Kind)
	assert.Equal(t, "archived", got[0].Payload.(events.WebhookReceived).Event)
}

func TestReceiver_OnlyPostOnConfiguredPath(t *testing.T) {
	r, ch := startReceiver(t, Config{Path: "/hooks/kb"})
	base := strings.TrimSuffix(r.URL(), "/hooks/kb")

	resp, err := http.Get(r.URL())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = post(t, base+"/webhook", `{"event":"created","data":{}}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Empty(t, drain(ch))
}

func TestReceiver_DuplicateDeliveryIsAcknowledgedOnce(t *testing.T) {
	r, ch := startReceiver(t, Config{})
	headers := map[string]string{DeliveryHeader: "delivery-42"}

	resp, _ := post(t, r.URL(), `{"event":"updated","data":{"id":1}}`, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := post(t, r.URL(), `{"event":"updated","data":{"id":1}}`, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"duplicate":true}`, body)

	assert.Len(t, drain(ch), 2)

	// envelope id works the same way
	resp, _ = post(t, r.URL(), `{"id":"env-1","event":"deleted","data":{"id":1}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, r.URL(), `{"id":"env-1","event":"deleted","data":{"id":1}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, drain(ch), 2)
}

func TestReceiver_Signature(t *testing.T) {
	r, ch := startReceiver(t, Config{Secret: "shh"})
	body := `{"event":"created","data":{"id":9}}`

	resp, _ := post(t, r.URL(), body, map[string]string{SignatureHeader: Sign("shh", []byte(body))})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, drain(ch), 2)

	resp, _ = post(t, r.URL(), body, map[string]string{SignatureHeader: Sign("wrong", []byte(body))})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, drain(ch))

	resp, _ = post(t, r.URL(), body, map[string]string{SignatureHeader: "md5=abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = post(t, r.URL(), `{"event":"deleted","data":{"id":42}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, drain(ch))
}

func TestReceiver_UnsignedAcceptedWithoutSecret(t *testing.T) {
	r, ch := startReceiver(t, Config{})

	resp, _ := post(t, r.URL(), `{"event":"deleted","data":{"id":42}}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, drain(ch), 2)
}

func TestReceiver_RedeliveredUnrecognizedEventIsRejectedAgain(t *testing.T) {
	r, ch := startReceiver(t, Config{})
	headers := map[string]string{DeliveryHeader: "delivery-7"}

	for i := 0; i < 2; i++ {
		resp, body := post(t, r.URL(), `{"event":"archived","data":{"id":3}}`, headers)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "delivery %d", i+1)
		assert.Empty(t, body)
	}
	assert.Len(t, drain(ch), 2)
}

func TestReceiver_PublicURL(t *testing.T) {
	r, _ := startReceiver(t, Config{PublicURL: "https://hooks.example.com/kb"})
	assert.Equal(t, "https://hooks.example.com/kb", r.URL())
	assert.NotNil(t, r.Addr())
}

func TestReceiver_Journal(t *testing.T) {
	j, err := store.NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	r, _ := startReceiver(t, Config{}, WithJournal(j))

	post(t, r.URL(), `{"event":"created","data":{"id":1}}`, map[string]string{DeliveryHeader: "d-1"})
	post(t, r.URL(), `{"event":"mystery","data":{}}`, nil)
	post(t, r.URL(), `not json`, nil)

	recs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byEvent := map[string]*store.WebhookRecord{}
	for _, rec := range recs {
		byEvent[rec.Event] = rec
	}
	assert.True(t, byEvent["created"].Recognized)
	assert.Equal(t, "d-1", byEvent["created"].DeliveryID)
	assert.False(t, byEvent["mystery"].Recognized)

	var env Envelope
	require.NoError(t, json.Unmarshal(byEvent["created"].Payload, &env))
	assert.Equal(t, "created", env.Event)
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(` {"event":"deleted","data":{"id":"n1"},"id":"x"} `))
	require.NoError(t, err)
	assert.Equal(t, "deleted", env.Event)
	assert.Equal(t, "x", env.ID)

	_, err = ParseEnvelope([]byte(`{"event":`))
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseEnvelope([]byte(`{"event": 5}`))
	assert.ErrorIs(t, err, ErrParse)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "listening", StateListening.String())
}
