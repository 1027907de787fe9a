package domain

import (
	"context"
	"encoding/json"
)

// PromptSpec describes one model invocation: which stage is asking, the
// prompt text, and the schema the structured JSON response must satisfy.
type PromptSpec struct {
	Stage     string
	Prompt    string
	MaxTokens int
	Schema    ResponseSchema
}

// ResponseSchema validates a structured model response for one stage
// before the adapter hands it back to the caller.
type ResponseSchema interface {
	Validate(raw json.RawMessage) error
}

// ModelClient is the opaque provider boundary: prompt in, raw text out.
// Implementations classify their failures as transient or permanent via
// ModelError so the call adapter can decide what to retry.
type ModelClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ModelCaller is the contract stages use to reach the model provider.
// The single implementation lives in the llm package and owns retries,
// rate limiting, and schema validation.
type ModelCaller interface {
	Invoke(ctx context.Context, spec PromptSpec) (json.RawMessage, error)
}

// EmbeddingClient produces a vector embedding for a piece of text.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
