// ABOUTME: Tests for the newline-delimited stdio transport
// ABOUTME: Feeds scripted input and checks every reply line

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func replies(t *testing.T, out string) map[string]map[string]any {
	t.Helper()
	byID := make(map[string]map[string]any)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg), "line %q", scanner.Text())
		id, _ := json.Marshal(msg["id"])
		byID[string(id)] = msg
	}
	return byID
}

func TestServeStdio(t *testing.T) {
	s := newTestServer(t, Config{})

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
		`garbage`,
	}, "\n") + "\n"

	var out syncBuffer
	err := s.ServeStdio(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)

	got := replies(t, out.String())
	require.Len(t, got, 4, "initialize, tools/list, tools/call and the parse error")

	assert.Equal(t, "2025-06-18", got["1"]["result"].(map[string]any)["protocolVersion"])
	assert.Len(t, got["2"]["result"].(map[string]any)["tools"], 1)
	assert.NotContains(t, got["3"]["result"].(map[string]any), "isError")
	assert.Equal(t, float64(JSONRPCParseError), got["null"]["error"].(map[string]any)["code"])
}

func TestServeStdio_OversizedLineKeepsSessionOpen(t *testing.T) {
	s := newTestServer(t, Config{})

	huge := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"message":"` +
		strings.Repeat("x", MaxRequestBodySize) + `"}}}`
	in := huge + "\n" + `{"jsonrpc":"2.0","id":8,"method":"ping"}` + "\n"

	var out syncBuffer
	err := s.ServeStdio(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)

	got := replies(t, out.String())
	require.Len(t, got, 2)
	assert.Equal(t, float64(JSONRPCInvalidRequest), got["null"]["error"].(map[string]any)["code"])
	assert.Equal(t, map[string]any{}, got["8"]["result"])
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("short\n"+strings.Repeat("a", 40)+"\nlast"), 16)

	line, tooLong, err := readLine(r, 10)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "short\n", string(line))

	line, tooLong, err = readLine(r, 10)
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Nil(t, line)

	line, tooLong, err = readLine(r, 10)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, tooLong)
	assert.Equal(t, "last", string(line))
}

func TestServeStdio_StopsOnCancel(t *testing.T) {
	s := newTestServer(t, Config{})
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var out syncBuffer
	go func() { done <- s.ServeStdio(ctx, pr, &out) }()

	_, err := pw.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"id":1`) }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ServeStdio did not return after cancel")
	}
}
