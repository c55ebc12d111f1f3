package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any reasoning-model backend.
// The board assigns one client per member; the system prompt carries that
// member's persona and changes per call, so it is an explicit argument
// rather than client state.
type LLMClient interface {
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}
