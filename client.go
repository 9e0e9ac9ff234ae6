// Package bud is the Go client SDK for the Bud inference gateway.
//
// The root package provides the HTTP client and the OpenAI-compatible
// resource surface (chat completions, embeddings, models). The
// observability package layers declarative tracing on top of it:
//
//	client, err := bud.NewClient(bud.WithAPIKey("bud_client_xxx"))
//	if err != nil { ... }
//	resp, err := client.Chat.Completions.Create(ctx, &bud.ChatCompletionRequest{
//	    Model:    "gpt-4",
//	    Messages: []bud.ChatMessage{{Role: "user", Content: "Hello!"}},
//	})
package bud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is an HTTP client for the Bud inference gateway.
// All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       AuthProvider
	logger     *slog.Logger

	// Chat provides chat-completion operations, including streaming.
	Chat *ChatService
	// Embeddings provides embedding operations.
	Embeddings *EmbeddingsService
	// Models lists and retrieves available models.
	Models *ModelsService
}

// NewClient creates a Client. Settings default from BUD_* environment
// variables and can be overridden with options. Either an API key or an
// explicit AuthProvider is required, along with a base URL.
func NewClient(opts ...Option) (*Client, error) {
	o := resolvedOptions{cfg: ConfigFromEnv()}
	for _, fn := range opts {
		fn(&o)
	}

	if o.cfg.BaseURL == "" {
		return nil, fmt.Errorf("bud: base URL is required (set BUD_BASE_URL or use WithBaseURL)")
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := o.httpClient
	if httpClient == nil {
		timeout := o.cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	auth := o.auth
	if auth == nil {
		if o.cfg.APIKey == "" {
			return nil, fmt.Errorf("bud: credentials are required (set BUD_API_KEY, use WithAPIKey, or use WithAuth)")
		}
		auth = &APIKeyAuth{APIKey: o.cfg.APIKey}
	}

	c := &Client{
		baseURL:    strings.TrimRight(o.cfg.BaseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		logger:     logger,
	}
	c.Chat = &ChatService{Completions: &ChatCompletionsService{impl: &chatCompletions{client: c}}}
	c.Embeddings = &EmbeddingsService{client: c}
	c.Models = &ModelsService{client: c}
	return c, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("bud: create request: %w", err)
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bud: marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("bud: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) prepare(ctx context.Context, req *http.Request) error {
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Bud-SDK-Version", Version)
	if err := c.auth.Apply(ctx, req); err != nil {
		return fmt.Errorf("bud: authenticate request: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	if err := c.prepare(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bud: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bud: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp, bodyBytes)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("bud: decode response: %w", err)
	}
	return nil
}

// postStream issues a POST and hands the response body to a Stream without
// reading it eagerly. Error statuses are drained and converted as usual.
func postStream[T any](ctx context.Context, c *Client, path string, body any) (*Stream[T], error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if err := c.prepare(ctx, req); err != nil {
		return nil, err
	}

	// Streaming responses must not be subject to the whole-request timeout;
	// the caller controls lifetime through ctx and Stream.Close.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bud: %s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("bud: read error response: %w", err)
		}
		return nil, parseErrorResponse(resp, bodyBytes)
	}

	return newStream[T](resp.Body, c.logger), nil
}

// apiErrorEnvelope is the gateway's OpenAI-compatible error wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseErrorResponse(resp *http.Response, body []byte) *Error {
	apiErr := &Error{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = string(body)
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
