package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	bud "github.com/budecosystem/bud-go"
)

const (
	chatSpanName       = "bud.chat.completions"
	chatStreamSpanName = "bud.chat.completions.stream"
)

// InferenceOption customizes chat-completion instrumentation.
type InferenceOption func(*inferenceConfig)

type inferenceConfig struct {
	tracerName   string
	inputFields  FieldCapture
	outputFields FieldCapture

	inputs  fieldSet
	outputs fieldSet
}

// WithInputFields directs which request fields are recorded. The default
// captures request shape (model, sampling parameters) but not message
// content.
func WithInputFields(fc FieldCapture) InferenceOption {
	return func(c *inferenceConfig) { c.inputFields = fc }
}

// WithOutputFields directs which response fields are recorded. The default
// captures response metadata (model, finish reason, usage, id) but not
// generated text.
func WithOutputFields(fc FieldCapture) InferenceOption {
	return func(c *inferenceConfig) { c.outputFields = fc }
}

// WithInferenceTracerName sets the instrumentation scope for inference
// spans.
func WithInferenceTracerName(name string) InferenceOption {
	return func(c *inferenceConfig) { c.tracerName = name }
}

// TrackChatCompletions instruments a client's chat completions: every
// Create gets a span with gen_ai.* request/response attributes, every
// CreateStream returns a traced stream whose span finalizes when the stream
// does. Instrumenting an already-instrumented client is a no-op.
func TrackChatCompletions(client *bud.Client, opts ...InferenceOption) {
	client.Chat.Completions.Instrument(func(inner bud.ChatCompleter) bud.ChatCompleter {
		return WrapChatCompleter(inner, opts...)
	})
}

// WrapChatCompleter wraps any ChatCompleter with inference tracing. Field
// directives resolve once here, not per call.
func WrapChatCompleter(inner bud.ChatCompleter, opts ...InferenceOption) bud.ChatCompleter {
	if _, ok := inner.(*tracedChatCompleter); ok {
		stateLogger().Debug("chat completions already instrumented, skipping")
		return inner
	}
	cfg := inferenceConfig{tracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.inputs = cfg.inputFields.resolve(defaultInputFields)
	cfg.outputs = cfg.outputFields.resolve(defaultOutputFields)
	return &tracedChatCompleter{inner: inner, cfg: cfg}
}

type tracedChatCompleter struct {
	inner bud.ChatCompleter
	cfg   inferenceConfig
}

func (t *tracedChatCompleter) Create(ctx context.Context, req *bud.ChatCompletionRequest) (*bud.ChatCompletion, error) {
	if !IsConfigured() {
		return t.inner.Create(ctx, req)
	}
	ctx, span := GetTracer(t.cfg.tracerName).Start(ctx, chatSpanName)
	defer span.End()
	span.SetAttributes(baseInferenceAttrs(false)...)
	span.SetAttributes(chatRequestAttrs(req, t.cfg.inputs)...)

	resp, err := t.inner.Create(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(chatResponseAttrs(resp, t.cfg.outputs)...)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (t *tracedChatCompleter) CreateStream(ctx context.Context, req *bud.ChatCompletionRequest) (bud.ChatStream, error) {
	if !IsConfigured() {
		return t.inner.CreateStream(ctx, req)
	}
	ctx, span := GetTracer(t.cfg.tracerName).Start(ctx, chatStreamSpanName)
	span.SetAttributes(baseInferenceAttrs(true)...)
	span.SetAttributes(chatRequestAttrs(req, t.cfg.inputs)...)

	stream, err := t.inner.CreateStream(ctx, req)
	if err != nil {
		recordError(span, err)
		span.End()
		return nil, err
	}

	var streamOpts []StreamOption[bud.ChatCompletionChunk]
	if !t.cfg.outputs.empty() {
		outputs := t.cfg.outputs
		streamOpts = append(streamOpts, WithStreamAggregator(
			func(chunks []bud.ChatCompletionChunk) []attribute.KeyValue {
				return aggregateChunkAttrs(chunks, outputs)
			}))
	}
	return NewTracedStream(stream, span, streamOpts...), nil
}

func baseInferenceAttrs(stream bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrGenAISystem, "bud"),
		attribute.String(attrInferenceOperation, "chat"),
		attribute.Bool(attrInferenceStream, stream),
	}
}

func chatRequestAttrs(req *bud.ChatCompletionRequest, fields fieldSet) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if fields.allows(FieldModel) && req.Model != "" {
		attrs = append(attrs, attribute.String(attrGenAIRequestModel, req.Model))
	}
	if fields.allows(FieldTemperature) && req.Temperature != nil {
		attrs = append(attrs, attribute.Float64(attrGenAIRequestTemp, *req.Temperature))
	}
	if fields.allows(FieldTopP) && req.TopP != nil {
		attrs = append(attrs, attribute.Float64(attrGenAIRequestTopP, *req.TopP))
	}
	if fields.allows(FieldMaxTokens) && req.MaxTokens > 0 {
		attrs = append(attrs, attribute.Int(attrGenAIRequestMaxTokens, req.MaxTokens))
	}
	if fields.allows(FieldMessages) {
		attrs = append(attrs, attribute.String(attrGenAIPrompt, safeRender(req.Messages)))
	}
	return attrs
}

func chatResponseAttrs(resp *bud.ChatCompletion, fields fieldSet) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if fields.allows(FieldResponseID) && resp.ID != "" {
		attrs = append(attrs, attribute.String(attrGenAIResponseID, resp.ID))
	}
	if fields.allows(FieldModel) && resp.Model != "" {
		attrs = append(attrs, attribute.String(attrGenAIResponseModel, resp.Model))
	}
	if fields.allows(FieldFinishReason) && len(resp.Choices) > 0 {
		reasons := make([]string, 0, len(resp.Choices))
		for _, ch := range resp.Choices {
			reasons = append(reasons, ch.FinishReason)
		}
		attrs = append(attrs, attribute.StringSlice(attrGenAIFinishReasons, reasons))
	}
	if fields.allows(FieldUsage) {
		attrs = append(attrs,
			attribute.Int(attrGenAIUsageInputTokens, resp.Usage.PromptTokens),
			attribute.Int(attrGenAIUsageOutputTokens, resp.Usage.CompletionTokens),
		)
	}
	if fields.allows(FieldContent) && len(resp.Choices) > 0 {
		attrs = append(attrs, attribute.String(attrGenAICompletion, truncate(resp.Choices[0].Message.Content)))
	}
	return attrs
}

// aggregateChunkAttrs reconstructs response metadata from accumulated
// stream chunks: concatenated first-choice content, the last finish reason,
// usage from the terminal usage chunk, id and model from the first chunk
// that carries them.
func aggregateChunkAttrs(chunks []bud.ChatCompletionChunk, fields fieldSet) []attribute.KeyValue {
	var (
		content strings.Builder
		finish  string
		usage   *bud.Usage
		id      string
		model   string
	)
	for _, c := range chunks {
		if id == "" {
			id = c.ID
		}
		if model == "" {
			model = c.Model
		}
		if c.Usage != nil {
			usage = c.Usage
		}
		for _, choice := range c.Choices {
			if choice.Index != 0 {
				continue
			}
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
	}

	var attrs []attribute.KeyValue
	if fields.allows(FieldResponseID) && id != "" {
		attrs = append(attrs, attribute.String(attrGenAIResponseID, id))
	}
	if fields.allows(FieldModel) && model != "" {
		attrs = append(attrs, attribute.String(attrGenAIResponseModel, model))
	}
	if fields.allows(FieldFinishReason) && finish != "" {
		attrs = append(attrs, attribute.StringSlice(attrGenAIFinishReasons, []string{finish}))
	}
	if fields.allows(FieldUsage) && usage != nil {
		attrs = append(attrs,
			attribute.Int(attrGenAIUsageInputTokens, usage.PromptTokens),
			attribute.Int(attrGenAIUsageOutputTokens, usage.CompletionTokens),
		)
	}
	if fields.allows(FieldContent) && content.Len() > 0 {
		attrs = append(attrs, attribute.String(attrGenAICompletion, truncate(content.String())))
	}
	return attrs
}
