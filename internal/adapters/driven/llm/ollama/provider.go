// Package ollama provides an LLM provider adapter for a local Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.LLMProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL        = "http://localhost:11434"
	DefaultModel          = "llama3.2"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultTimeout        = 120 * time.Second
)

// Config holds configuration for the Ollama provider.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model (default: llama3.2).
	Model string

	// EmbeddingModel is the default embedding model (default: nomic-embed-text).
	EmbeddingModel string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Provider talks to Ollama over its HTTP API.
type Provider struct {
	client         *http.Client
	baseURL        string
	model          string
	embeddingModel string
}

// options holds generation parameters.
type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is one /api/chat response object. Streaming sends one per line.
type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error,omitempty"`
}

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// New creates a new Ollama provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Complete produces a response for a message list.
func (p *Provider) Complete(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions,
) (*driven.Completion, error) {
	resp, err := p.post(ctx, "/api/chat", p.chatRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return completion(chatResp, chatResp.Message.Content), nil
}

// Stream produces a response incrementally from the newline-delimited stream.
func (p *Provider) Stream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions, onDelta func(string) error,
) (*driven.Completion, error) {
	resp, err := p.post(ctx, "/api/chat", p.chatRequest(messages, opts, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		content bytes.Buffer
		last    chatResponse
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var part chatResponse
		if err := json.Unmarshal(line, &part); err != nil {
			return nil, fmt.Errorf("decode stream: %w", err)
		}
		if part.Error != "" {
			return nil, fmt.Errorf("ollama stream error: %s", part.Error)
		}
		if part.Message.Content != "" {
			content.WriteString(part.Message.Content)
			if onDelta != nil {
				if err := onDelta(part.Message.Content); err != nil {
					return nil, err
				}
			}
		}
		last = part
		if part.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return completion(last, content.String()), nil
}

// Embed generates one vector per text.
func (p *Provider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = p.embeddingModel
	}

	resp, err := p.post(ctx, "/api/embed", embedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(texts), len(embedResp.Embeddings))
	}
	return embedResp.Embeddings, nil
}

// ModelName returns the default chat model.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
// This is a lightweight check that validates connectivity without running inference.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ollama: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) chatRequest(messages []driven.ChatMessage, opts driven.CompletionOptions, stream bool) chatRequest {
	chatMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}
	req := chatRequest{Model: model, Messages: chatMessages, Stream: stream}
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		req.Options = &options{NumPredict: opts.MaxTokens, Temperature: opts.Temperature}
	}
	return req
}

// post sends a JSON body and returns the response when the status is 200.
func (p *Provider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func completion(resp chatResponse, content string) *driven.Completion {
	return &driven.Completion{
		Content: content,
		Model:   resp.Model,
		Usage: driven.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
}
