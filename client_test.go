package bud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Keep-alive connections from httptest servers may linger briefly.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// mockServer creates an httptest server that mimics the gateway API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(
		WithBaseURL(serverURL),
		WithAPIKey("test-key"),
		WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(WithAPIKey("k"))
	assert.Error(t, err)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(WithBaseURL("http://localhost:1"))
	assert.Error(t, err)
}

func TestRequestHeaders(t *testing.T) {
	var mu sync.Mutex
	var got http.Header
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/models": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			got = r.Header.Clone()
			mu.Unlock()
			writeJSON(w, http.StatusOK, ModelList{Object: "list"})
		},
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Models.List(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer test-key", got.Get("Authorization"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Equal(t, Version, got.Get("X-Bud-SDK-Version"))
}

func TestErrorResponseParsing(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/models/missing": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-ID", "req-123")
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{
					"code":    "model_not_found",
					"message": "no such model",
				},
			})
		},
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Models.Get(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "model_not_found", apiErr.Code)
	assert.Equal(t, "no such model", apiErr.Message)
	assert.Equal(t, "req-123", apiErr.RequestID)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRateLimited(err))
}

func TestErrorResponseNonJSONBody(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/models": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		},
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Models.List(context.Background())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.True(t, IsServerError(err))
}

func TestChatCompletionCreate(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			var req ChatCompletionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			assert.False(t, req.Stream)

			writeJSON(w, http.StatusOK, ChatCompletion{
				ID:    "cmpl-1",
				Model: "test-model",
				Choices: []ChatCompletionChoice{{
					Message:      ChatMessage{Role: "assistant", Content: "hi"},
					FinishReason: "stop",
				}},
				Usage: Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
			})
		},
	})

	c := newTestClient(t, srv.URL)
	resp, err := c.Chat.Completions.Create(context.Background(), &ChatCompletionRequest{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi", resp.Choices[0].Message.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestChatCompletionValidation(t *testing.T) {
	c := newTestClient(t, "http://localhost:1")

	tests := []struct {
		name string
		req  *ChatCompletionRequest
	}{
		{"missing model", &ChatCompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "x"}},
		}},
		{"no messages", &ChatCompletionRequest{Model: "m"}},
		{"too many messages", &ChatCompletionRequest{
			Model:    "m",
			Messages: make([]ChatMessage, maxChatMessages+1),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Chat.Completions.Create(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestChatCompletionCreateRejectsStreamFlag(t *testing.T) {
	c := newTestClient(t, "http://localhost:1")
	_, err := c.Chat.Completions.Create(context.Background(), &ChatCompletionRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: "user", Content: "x"}},
		Stream:   true,
	})
	assert.Error(t, err)
}

func TestChatCompletionStream(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			var req ChatCompletionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Stream, "CreateStream must force the stream flag")

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w,
				`data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":"he"}}]}`+"\n\n"+
					`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"llo"},"finish_reason":"stop"}]}`+"\n\n"+
					"data: [DONE]\n\n")
		},
	})

	c := newTestClient(t, srv.URL)
	stream, err := c.Chat.Completions.CreateStream(context.Background(), &ChatCompletionRequest{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var content string
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		for _, choice := range chunk.Choices {
			content += choice.Delta.Content
		}
	}
	assert.Equal(t, "hello", content)
}

func TestChatCompletionStreamErrorStatus(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"code": "rate_limited", "message": "slow down"},
			})
		},
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Chat.Completions.CreateStream(context.Background(), &ChatCompletionRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestEmbeddingsCreate(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/embeddings": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, EmbeddingResponse{
				Object: "list",
				Model:  "embed-model",
				Data:   []Embedding{{Index: 0, Embedding: []float64{0.1, 0.2}}},
				Usage:  Usage{PromptTokens: 2, TotalTokens: 2},
			})
		},
	})

	c := newTestClient(t, srv.URL)
	resp, err := c.Embeddings.Create(context.Background(), &EmbeddingRequest{
		Model: "embed-model",
		Input: []string{"hello"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, []float64{0.1, 0.2}, resp.Data[0].Embedding)
}

func TestEmbeddingsCreateBatches(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/embeddings": func(w http.ResponseWriter, r *http.Request) {
			var req EmbeddingRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			data := make([]Embedding, len(req.Input))
			for i, input := range req.Input {
				data[i] = Embedding{Index: i, Embedding: []float64{float64(len(input))}}
			}
			writeJSON(w, http.StatusOK, EmbeddingResponse{
				Object: "list",
				Model:  req.Model,
				Data:   data,
				Usage:  Usage{PromptTokens: len(req.Input), TotalTokens: len(req.Input)},
			})
		},
	})

	c := newTestClient(t, srv.URL)
	inputs := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	resp, err := c.Embeddings.CreateBatches(context.Background(), &EmbeddingRequest{
		Model: "embed-model",
		Input: inputs,
	}, BatchOptions{BatchSize: 2, Concurrency: 2})
	require.NoError(t, err)

	require.Len(t, resp.Data, len(inputs))
	for i, input := range inputs {
		assert.Equal(t, i, resp.Data[i].Index, "results must be merged in input order")
		assert.Equal(t, float64(len(input)), resp.Data[i].Embedding[0])
	}
	assert.Equal(t, len(inputs), resp.Usage.PromptTokens, "usage must be summed across batches")
}

func TestEmbeddingsCreateBatchesPropagatesFailure(t *testing.T) {
	var calls sync.Map
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/embeddings": func(w http.ResponseWriter, r *http.Request) {
			var req EmbeddingRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if _, failed := calls.LoadOrStore("first", true); !failed {
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error": map[string]any{"code": "boom", "message": "boom"},
				})
				return
			}
			writeJSON(w, http.StatusOK, EmbeddingResponse{Object: "list", Model: req.Model})
		},
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Embeddings.CreateBatches(context.Background(), &EmbeddingRequest{
		Model: "m",
		Input: []string{"a", "b", "c", "d"},
	}, BatchOptions{BatchSize: 1, Concurrency: 1})
	assert.Error(t, err)
}

func TestModelsGet(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/models/llama": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, Model{ID: "llama", OwnedBy: "bud"})
		},
	})

	c := newTestClient(t, srv.URL)
	m, err := c.Models.Get(context.Background(), "llama")
	require.NoError(t, err)
	assert.Equal(t, "llama", m.ID)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BUD_BASE_URL", "https://gateway.example")
	t.Setenv("BUD_API_KEY", "env-key")
	t.Setenv("BUD_TIMEOUT", "90s")

	cfg := ConfigFromEnv()
	assert.Equal(t, "https://gateway.example", cfg.BaseURL)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}
