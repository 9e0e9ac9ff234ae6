package bud

import (
	"context"
	"fmt"
)

// maxChatMessages caps the number of messages accepted in a single
// chat completion request.
const maxChatMessages = 1000

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and its JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

// ToolDefinition describes a callable function to the model.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ChatCompletionRequest is the request body for chat completions.
type ChatCompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	User             string        `json:"user,omitempty"`
	Tools            []Tool        `json:"tools,omitempty"`
	ToolChoice       any           `json:"tool_choice,omitempty"`
}

func (r *ChatCompletionRequest) validate() error {
	if r.Model == "" {
		return fmt.Errorf("bud: chat completion: model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("bud: chat completion: at least one message is required")
	}
	if len(r.Messages) > maxChatMessages {
		return fmt.Errorf("bud: chat completion: too many messages (%d > %d)", len(r.Messages), maxChatMessages)
	}
	return nil
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChoice is one generated alternative.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the response to a non-streaming chat completion.
type ChatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ChatCompletionDelta is the incremental content of a streamed chunk.
type ChatCompletionDelta struct {
	Role             string     `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionChunkChoice is one alternative within a streamed chunk.
type ChatCompletionChunkChoice struct {
	Index        int                 `json:"index"`
	Delta        ChatCompletionDelta `json:"delta"`
	FinishReason string              `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is a single server-sent event in a streamed completion.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	Usage   *Usage                      `json:"usage,omitempty"`
}

// ChatStream yields chunks of a streamed chat completion. Next returns
// io.EOF when the stream is exhausted. Close releases the underlying
// connection and is safe to call more than once.
type ChatStream interface {
	Next() (ChatCompletionChunk, error)
	Close() error
}

// ChatCompleter executes chat completions. Instrumentation layers wrap this
// interface to observe calls without the transport knowing about them.
type ChatCompleter interface {
	Create(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletion, error)
	CreateStream(ctx context.Context, req *ChatCompletionRequest) (ChatStream, error)
}

// ChatService groups chat-related resources.
type ChatService struct {
	Completions *ChatCompletionsService
}

// ChatCompletionsService creates chat completions against the gateway.
type ChatCompletionsService struct {
	impl ChatCompleter
}

// Create executes a non-streaming chat completion.
func (s *ChatCompletionsService) Create(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletion, error) {
	return s.impl.Create(ctx, req)
}

// CreateStream executes a streaming chat completion. The caller must drain
// or close the returned stream.
func (s *ChatCompletionsService) CreateStream(ctx context.Context, req *ChatCompletionRequest) (ChatStream, error) {
	return s.impl.CreateStream(ctx, req)
}

// Instrument replaces the underlying completer with wrap(current). It allows
// observability layers to intercept every completion without the service
// changing its public surface.
func (s *ChatCompletionsService) Instrument(wrap func(ChatCompleter) ChatCompleter) {
	if wrap == nil {
		return
	}
	if next := wrap(s.impl); next != nil {
		s.impl = next
	}
}

// Completer returns the current underlying completer. Instrumentation uses
// it to detect double wrapping.
func (s *ChatCompletionsService) Completer() ChatCompleter {
	return s.impl
}

// chatCompletions is the transport-level completer.
type chatCompletions struct {
	client *Client
}

func (c *chatCompletions) Create(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletion, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Stream {
		return nil, fmt.Errorf("bud: chat completion: use CreateStream for streaming requests")
	}
	var out ChatCompletion
	if err := c.client.post(ctx, "/v1/chat/completions", req, &out); err != nil {
		return nil, fmt.Errorf("bud: chat completion: %w", err)
	}
	return &out, nil
}

func (c *chatCompletions) CreateStream(ctx context.Context, req *ChatCompletionRequest) (ChatStream, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body := *req
	body.Stream = true
	stream, err := postStream[ChatCompletionChunk](ctx, c.client, "/v1/chat/completions", &body)
	if err != nil {
		return nil, fmt.Errorf("bud: chat completion stream: %w", err)
	}
	return stream, nil
}
