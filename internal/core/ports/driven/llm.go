package driven

import "context"

// LLMProvider is the capability interface every model vendor implements.
//
// Implementations:
//   - OpenAI (chat, streaming, embeddings)
//   - Anthropic (chat, streaming; no embeddings)
//   - Gemini (chat, streaming, embeddings)
//   - Ollama (local models)
type LLMProvider interface {
	// Complete produces a response for a message list.
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (*Completion, error)

	// Stream produces a response incrementally, calling onDelta for each text fragment.
	// The returned Completion carries the accumulated text.
	Stream(ctx context.Context, messages []ChatMessage, opts CompletionOptions, onDelta func(string) error) (*Completion, error)

	// Embed generates one vector per text. An empty model uses the provider default.
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)

	// ModelName returns the default chat model.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompletionOptions configures generation behaviour.
type CompletionOptions struct {
	// Model overrides the provider's default model.
	Model string

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// TokenUsage reports tokens consumed by a call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is a generated response.
type Completion struct {
	Content string
	Usage   TokenUsage
	Model   string
}

// SplitSystem separates system messages from the conversation.
// Providers with a dedicated system field use this.
func SplitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system string
	rest := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
