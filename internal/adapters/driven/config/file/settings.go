package file

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// apiKeyEnv maps each cloud provider to the environment variable consulted
// when the config file leaves its key empty.
var apiKeyEnv = map[domain.AIProvider]string{
	domain.AIProviderOpenAI:    "OPENAI_API_KEY",
	domain.AIProviderAnthropic: "ANTHROPIC_API_KEY",
	domain.AIProviderGemini:    "GEMINI_API_KEY",
}

// PineconeAPIKeyEnv is read when pinecone.api_key is not set.
const PineconeAPIKeyEnv = "PINECONE_API_KEY"

// LoadSettings builds validated settings from the config store.
// Keys that are absent keep the value from domain.DefaultSettings.
func LoadSettings(store driven.ConfigStore) (domain.Settings, error) {
	s := domain.DefaultSettings()
	r := reader{store: store}

	embeddingProvider := s.Embedding.Provider
	r.provider("embedding.provider", &s.Embedding.Provider)
	if s.Embedding.Provider != embeddingProvider {
		s.Embedding.Model = domain.DefaultEmbeddingModels()[s.Embedding.Provider]
	}
	r.str("embedding.model", &s.Embedding.Model)
	r.str("embedding.base_url", &s.Embedding.BaseURL)
	r.str("embedding.api_key", &s.Embedding.APIKey)
	r.integer("embedding.batch_size", &s.Embedding.BatchSize)
	r.duration("embedding.batch_pause", &s.Embedding.BatchPause)

	llmProvider := s.LLM.Provider
	r.provider("llm.provider", &s.LLM.Provider)
	if s.LLM.Provider != llmProvider {
		s.LLM.Model = domain.DefaultLLMModels()[s.LLM.Provider]
	}
	r.str("llm.model", &s.LLM.Model)
	r.str("llm.base_url", &s.LLM.BaseURL)
	r.str("llm.api_key", &s.LLM.APIKey)
	r.integer("llm.max_tokens", &s.LLM.MaxTokens)
	r.float("llm.temperature", &s.LLM.Temperature)

	r.integer("chunking.size", &s.Chunking.Size)
	r.integer("chunking.overlap", &s.Chunking.Overlap)

	r.integer("retrieval.max_results", &s.Retrieval.MaxResults)
	r.float("retrieval.min_similarity", &s.Retrieval.MinSimilarity)
	r.float("retrieval.dedup_threshold", &s.Retrieval.DedupThreshold)
	r.boolean("retrieval.rerank", &s.Retrieval.Rerank)
	r.integer("retrieval.context_window", &s.Retrieval.ContextWindow)
	r.boolean("retrieval.unscoped_fallback", &s.Retrieval.UnscopedFallback)

	r.str("cache.dir", &s.Cache.Dir)
	r.duration("cache.embedding_ttl", &s.Cache.EmbeddingTTL)
	r.duration("cache.search_ttl", &s.Cache.SearchTTL)
	r.duration("cache.context_ttl", &s.Cache.ContextTTL)
	r.duration("cache.history_ttl", &s.Cache.HistoryTTL)

	r.integer("chat.max_conversation_turns", &s.Chat.MaxConversationTurns)
	r.strings("chat.banned_keywords", &s.Chat.BannedKeywords)
	r.str("chat.site_name", &s.Chat.SiteName)

	r.integer("ratelimit.token_limit", &s.RateLimit.TokenLimit)
	r.integer("ratelimit.message_limit", &s.RateLimit.MessageLimit)
	r.boolean("ratelimit.fail_open", &s.RateLimit.FailOpen)
	r.str("ratelimit.ip_salt", &s.RateLimit.IPSalt)

	r.boolean("pinecone.enabled", &s.Pinecone.Enabled)
	r.str("pinecone.api_key", &s.Pinecone.APIKey)
	r.str("pinecone.index_host", &s.Pinecone.IndexHost)
	r.str("pinecone.namespace", &s.Pinecone.Namespace)

	r.strings("loader.allowed_dirs", &s.Loader.AllowedDirs)
	r.str("loader.temp_dir", &s.Loader.TempDir)
	r.str("loader.user_agent", &s.Loader.UserAgent)
	r.duration("loader.timeout", &s.Loader.Timeout)
	r.boolean("loader.enable_docx", &s.Loader.EnableDocx)

	r.integer("migration.batch_size", &s.Migration.BatchSize)
	r.duration("migration.lock_timeout", &s.Migration.LockTimeout)
	r.duration("migration.time_budget", &s.Migration.TimeBudget)
	r.integer("migration.memory_high_water_mb", &s.Migration.MemoryHighWaterMB)

	r.str("scheduler.queue_schedule", &s.Scheduler.QueueSchedule)
	r.integer("scheduler.queue_batch", &s.Scheduler.QueueBatch)
	r.str("scheduler.cleanup_schedule", &s.Scheduler.CleanupSchedule)

	if r.err != nil {
		return s, r.err
	}

	applyEnvKeys(&s)

	if err := ValidateSettings(&s); err != nil {
		return s, err
	}
	return s, nil
}

// ValidateSettings checks the struct tags on domain.Settings.
func ValidateSettings(s *domain.Settings) error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("%w: settings: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func applyEnvKeys(s *domain.Settings) {
	if s.Embedding.APIKey == "" {
		if env, ok := apiKeyEnv[s.Embedding.Provider]; ok {
			s.Embedding.APIKey = os.Getenv(env)
		}
	}
	if s.LLM.APIKey == "" {
		if env, ok := apiKeyEnv[s.LLM.Provider]; ok {
			s.LLM.APIKey = os.Getenv(env)
		}
	}
	if s.Pinecone.APIKey == "" {
		s.Pinecone.APIKey = os.Getenv(PineconeAPIKeyEnv)
	}
}

// reader copies present keys into typed fields and keeps the first error.
type reader struct {
	store driven.ConfigStore
	err   error
}

func (r *reader) fail(key string, val any, kind string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: config key %q: %v is not a valid %s", domain.ErrInvalidInput, key, val, kind)
	}
}

func (r *reader) str(key string, dst *string) {
	val, ok := r.store.Get(key)
	if !ok {
		return
	}
	str, ok := val.(string)
	if !ok {
		r.fail(key, val, "string")
		return
	}
	*dst = str
}

func (r *reader) provider(key string, dst *domain.AIProvider) {
	var raw string
	r.str(key, &raw)
	if raw != "" {
		*dst = domain.AIProvider(strings.ToLower(raw))
	}
}

func (r *reader) integer(key string, dst *int) {
	val, ok := r.store.Get(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		*dst = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			r.fail(key, val, "integer")
			return
		}
		*dst = n
	default:
		r.fail(key, val, "integer")
	}
}

func (r *reader) float(key string, dst *float64) {
	val, ok := r.store.Get(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case float64:
		*dst = v
	case int64:
		*dst = float64(v)
	case int:
		*dst = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			r.fail(key, val, "number")
			return
		}
		*dst = f
	default:
		r.fail(key, val, "number")
	}
}

func (r *reader) boolean(key string, dst *bool) {
	val, ok := r.store.Get(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case bool:
		*dst = v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			r.fail(key, val, "boolean")
			return
		}
		*dst = b
	default:
		r.fail(key, val, "boolean")
	}
}

// duration accepts Go duration strings ("15m") or whole seconds.
func (r *reader) duration(key string, dst *time.Duration) {
	val, ok := r.store.Get(key)
	if !ok {
		return
	}
	switch v := val.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			r.fail(key, val, "duration")
			return
		}
		*dst = d
	case int64:
		*dst = time.Duration(v) * time.Second
	case int:
		*dst = time.Duration(v) * time.Second
	default:
		r.fail(key, val, "duration")
	}
}

func (r *reader) strings(key string, dst *[]string) {
	if _, ok := r.store.Get(key); !ok {
		return
	}
	*dst = r.store.GetStringSlice(key)
}
