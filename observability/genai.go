package observability

// GenAI semantic-convention attribute keys used on inference spans.
const (
	attrGenAISystem            = "gen_ai.system"
	attrGenAIRequestModel      = "gen_ai.request.model"
	attrGenAIRequestMaxTokens  = "gen_ai.request.max_tokens"
	attrGenAIRequestTemp       = "gen_ai.request.temperature"
	attrGenAIRequestTopP       = "gen_ai.request.top_p"
	attrGenAIResponseID        = "gen_ai.response.id"
	attrGenAIResponseModel     = "gen_ai.response.model"
	attrGenAIFinishReasons     = "gen_ai.response.finish_reasons"
	attrGenAIUsageInputTokens  = "gen_ai.usage.input_tokens"
	attrGenAIUsageOutputTokens = "gen_ai.usage.output_tokens"
	attrGenAIPrompt            = "gen_ai.prompt"
	attrGenAICompletion        = "gen_ai.completion"
)

// Bud inference attribute keys.
const (
	attrInferenceOperation       = "bud.inference.operation"
	attrInferenceStream          = "bud.inference.stream"
	attrInferenceTTFTMs          = "bud.inference.ttft_ms"
	attrInferenceChunks          = "bud.inference.chunks"
	attrInferenceStreamCompleted = "bud.inference.stream_completed"
)

// Field names accepted by the inference tracker's FieldCapture directives.
const (
	FieldMessages     = "messages"
	FieldModel        = "model"
	FieldTemperature  = "temperature"
	FieldTopP         = "top_p"
	FieldMaxTokens    = "max_tokens"
	FieldContent      = "content"
	FieldFinishReason = "finish_reason"
	FieldUsage        = "usage"
	FieldResponseID   = "response_id"
)

// Safe defaults: request shape without message content, response metadata
// without generated text. Prompt and completion text are captured only when
// explicitly requested.
var (
	defaultInputFields = []string{
		FieldModel, FieldTemperature, FieldTopP, FieldMaxTokens,
	}
	defaultOutputFields = []string{
		FieldModel, FieldFinishReason, FieldUsage, FieldResponseID,
	}
)
