package domain

import "time"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// SupportsEmbeddings returns true if the provider can generate embeddings.
func (p AIProvider) SupportsEmbeddings() bool {
	return p != AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// ProviderSettings configures one AI provider connection.
type ProviderSettings struct {
	// Provider is the service provider.
	Provider AIProvider `validate:"omitempty,oneof=ollama openai anthropic gemini"`

	// Model is the model name.
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string `validate:"omitempty,url"`

	// APIKey is the API key for cloud providers.
	APIKey string
}

// IsConfigured returns true if the provider is set up.
func (p ProviderSettings) IsConfigured() bool {
	if !p.Provider.IsValid() {
		return false
	}
	if p.Provider.RequiresAPIKey() && p.APIKey == "" {
		return false
	}
	return true
}

// EmbeddingSettings configures embedding generation.
type EmbeddingSettings struct {
	ProviderSettings

	// BatchSize is the number of chunks per provider call (1-100).
	BatchSize int `validate:"min=1,max=100"`

	// BatchPause is the pause between batches when more than one is needed.
	BatchPause time.Duration `validate:"min=0"`
}

// LLMSettings configures chat completion.
type LLMSettings struct {
	ProviderSettings

	// MaxTokens caps the completion length.
	MaxTokens int `validate:"min=1"`

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64 `validate:"min=0,max=2"`
}

// ChunkingSettings configures the chunker.
type ChunkingSettings struct {
	Size    int `validate:"min=50"`
	Overlap int `validate:"min=0,ltfield=Size"`
}

// RetrievalSettings configures context retrieval.
type RetrievalSettings struct {
	MaxResults       int     `validate:"min=1,max=100"`
	MinSimilarity    float64 `validate:"min=-1,max=1"`
	DedupThreshold   float64 `validate:"gt=0,max=1"`
	Rerank           bool
	ContextWindow    int `validate:"min=0,max=10"`
	UnscopedFallback bool
}

// CacheSettings configures the cache backend and TTLs.
type CacheSettings struct {
	Dir          string
	EmbeddingTTL time.Duration `validate:"min=0"`
	SearchTTL    time.Duration `validate:"min=0"`
	ContextTTL   time.Duration `validate:"min=0"`
	HistoryTTL   time.Duration `validate:"min=0"`
}

// ChatSettings configures response generation.
type ChatSettings struct {
	MaxConversationTurns int `validate:"min=1"`
	BannedKeywords       []string
	SiteName             string
}

// RateLimitSettings configures per-identity caps. Zero means unlimited.
type RateLimitSettings struct {
	TokenLimit   int `validate:"min=0"`
	MessageLimit int `validate:"min=0"`
	FailOpen     bool
	IPSalt       string
}

// PineconeSettings configures the remote vector index.
type PineconeSettings struct {
	Enabled   bool
	APIKey    string `validate:"required_if=Enabled true"`
	IndexHost string `validate:"required_if=Enabled true"`
	Namespace string
}

// IsConfigured returns true if the remote index can be used.
func (p PineconeSettings) IsConfigured() bool {
	return p.Enabled && p.APIKey != "" && p.IndexHost != ""
}

// LoaderSettings configures document loading.
type LoaderSettings struct {
	AllowedDirs []string
	TempDir     string
	UserAgent   string
	Timeout     time.Duration `validate:"min=0"`
	// EnableDocx registers the DOCX normaliser. Off by default.
	EnableDocx bool
}

// MigrationSettings configures the migration engine.
type MigrationSettings struct {
	BatchSize         int           `validate:"min=1,max=100"`
	LockTimeout       time.Duration `validate:"min=0"`
	TimeBudget        time.Duration `validate:"min=0"`
	MemoryHighWaterMB int           `validate:"min=0"`
}

// SchedulerSettings configures background jobs.
type SchedulerSettings struct {
	QueueSchedule   string
	QueueBatch      int `validate:"min=1"`
	CleanupSchedule string
}

// Settings holds all application settings.
type Settings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Chunking  ChunkingSettings
	Retrieval RetrievalSettings
	Cache     CacheSettings
	Chat      ChatSettings
	RateLimit RateLimitSettings
	Pinecone  PineconeSettings
	Loader    LoaderSettings
	Migration MigrationSettings
	Scheduler SchedulerSettings
}

// DefaultSettings returns settings with sensible defaults.
// Provider credentials are left empty.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			ProviderSettings: ProviderSettings{
				Provider: AIProviderOpenAI,
				Model:    DefaultEmbeddingModels()[AIProviderOpenAI],
			},
			BatchSize:  20,
			BatchPause: 200 * time.Millisecond,
		},
		LLM: LLMSettings{
			ProviderSettings: ProviderSettings{
				Provider: AIProviderOpenAI,
				Model:    DefaultLLMModels()[AIProviderOpenAI],
			},
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Chunking: ChunkingSettings{Size: 1000, Overlap: 200},
		Retrieval: RetrievalSettings{
			MaxResults:       5,
			MinSimilarity:    0.3,
			DedupThreshold:   0.95,
			Rerank:           true,
			ContextWindow:    1,
			UnscopedFallback: true,
		},
		Cache: CacheSettings{
			EmbeddingTTL: 24 * time.Hour,
			SearchTTL:    15 * time.Minute,
			ContextTTL:   15 * time.Minute,
			HistoryTTL:   24 * time.Hour,
		},
		Chat:      ChatSettings{MaxConversationTurns: 10},
		RateLimit: RateLimitSettings{FailOpen: true},
		Loader: LoaderSettings{
			UserAgent: DefaultUserAgent,
			Timeout:   30 * time.Second,
		},
		Migration: MigrationSettings{
			BatchSize:         10,
			LockTimeout:       5 * time.Minute,
			TimeBudget:        5 * time.Minute,
			MemoryHighWaterMB: 256,
		},
		Scheduler: SchedulerSettings{
			QueueSchedule:   "@every 5m",
			QueueBatch:      5,
			CleanupSchedule: "@daily",
		},
	}
}

// DefaultUserAgent is a browser user agent; many sites reject bare bot requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderGemini:    "gemini-2.0-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004": 768,
	}
}
