package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer имитирует OpenAI-совместимый API.
type fakeServer struct {
	status   atomic.Int32
	content  string
	requests atomic.Int32

	mu       sync.Mutex
	lastBody map[string]any
}

func (f *fakeServer) body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func newFakeServer(t *testing.T, content string) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{content: content}
	f.status.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		_ = json.Unmarshal(body, &f.lastBody)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if code := int(f.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"rate_limit"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1716206400,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": f.content},
				"finish_reason": "stop",
			}},
		})
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if code := int(f.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		Name:    "test",
		BaseURL: srv.URL + "/v1",
		APIKey:  "sk-test-key",
		Model:   "test-model",
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestClient_CompleteJSON(t *testing.T) {
	f, srv := newFakeServer(t, `{"events": []}`)
	c := newTestClient(srv)

	out, err := c.CompleteJSON(context.Background(), "system prompt", `[{"id":"1"}]`)
	require.NoError(t, err)
	assert.Equal(t, `{"events": []}`, out)
	assert.Equal(t, "test", c.ID())

	body := f.body()
	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, `[{"id":"1"}]`, messages[1].(map[string]any)["content"])
}

func TestClient_Health(t *testing.T) {
	f, srv := newFakeServer(t, "{}")
	c := newTestClient(srv)

	require.NoError(t, c.Health(context.Background()))

	f.status.Store(http.StatusServiceUnavailable)
	assert.Error(t, c.Health(context.Background()))
}

func TestClient_RateLimit(t *testing.T) {
	f, srv := newFakeServer(t, "{}")
	c := newTestClient(srv)
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.rateLimitPause = time.Minute

	f.status.Store(http.StatusTooManyRequests)
	_, err := c.CompleteJSON(context.Background(), "s", "u")
	require.Error(t, err)

	// Пока пауза не истекла, запросы не уходят на сервер.
	f.status.Store(http.StatusOK)
	before := f.requests.Load()
	_, err = c.CompleteJSON(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, c.Health(context.Background()), ErrRateLimited)
	assert.Equal(t, before, f.requests.Load())

	now = now.Add(2 * time.Minute)
	_, err = c.CompleteJSON(context.Background(), "s", "u")
	assert.NoError(t, err)
}

func TestClient_ServerError(t *testing.T) {
	f, srv := newFakeServer(t, "{}")
	c := newTestClient(srv)
	f.status.Store(http.StatusInternalServerError)

	_, err := c.CompleteJSON(context.Background(), "s", "u")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)

	// 500 не включает паузу
	f.status.Store(http.StatusOK)
	_, err = c.CompleteJSON(context.Background(), "s", "u")
	assert.NoError(t, err)
}
