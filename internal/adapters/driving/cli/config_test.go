package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragline/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

type mockConfigValidator struct {
	embeddingErr error
	llmErr       error
	remoteErr    error
	calls        []string
}

func (m *mockConfigValidator) ValidateEmbedding(context.Context, *domain.EmbeddingSettings) error {
	m.calls = append(m.calls, "embedding")
	return m.embeddingErr
}

func (m *mockConfigValidator) ValidateLLM(context.Context, *domain.LLMSettings) error {
	m.calls = append(m.calls, "llm")
	return m.llmErr
}

func (m *mockConfigValidator) ValidateRemoteIndex(context.Context, *domain.PineconeSettings) error {
	m.calls = append(m.calls, "pinecone")
	return m.remoteErr
}

// setupConfigTest points config commands at a temp dir and a mock validator.
func setupConfigTest(t *testing.T) (string, *mockConfigValidator) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv(file.PineconeAPIKeyEnv, "")

	dir := t.TempDir()
	validator := &mockConfigValidator{}
	prev := newConfigValidator
	newConfigValidator = func() driven.AIConfigValidator { return validator }
	t.Cleanup(func() {
		newConfigValidator = prev
		resetFlags(rootCmd)
		rootCmd.SetIn(nil)
	})
	return dir, validator
}

func TestConfigSetAndGet(t *testing.T) {
	dir, _ := setupConfigTest(t)

	out, err := executeCommand("--config-dir", dir, "config", "set", "retrieval.max_results", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "Set retrieval.max_results")

	out, err = executeCommand("--config-dir", dir, "config", "get", "retrieval.max_results")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)

	store, err := file.NewConfigStore(dir)
	require.NoError(t, err)
	settings, err := file.LoadSettings(store)
	require.NoError(t, err)
	assert.Equal(t, 8, settings.Retrieval.MaxResults)
}

func TestConfigSet_ListKey(t *testing.T) {
	dir, _ := setupConfigTest(t)

	_, err := executeCommand("--config-dir", dir, "config", "set", "chat.banned_keywords", "casino, lottery")
	require.NoError(t, err)

	store, err := file.NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"casino", "lottery"}, store.GetStringSlice("chat.banned_keywords"))
}

func TestConfigSet_InvalidValueWarns(t *testing.T) {
	dir, _ := setupConfigTest(t)

	out, err := executeCommand("--config-dir", dir, "config", "set", "retrieval.min_similarity", "2.5")

	require.NoError(t, err)
	assert.Contains(t, out, "Warning:")
}

func TestConfigSet_InvalidKey(t *testing.T) {
	dir, _ := setupConfigTest(t)

	_, err := executeCommand("--config-dir", dir, "config", "set", ".llm", "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestConfigGet_MasksAPIKey(t *testing.T) {
	dir, _ := setupConfigTest(t)

	_, err := executeCommand("--config-dir", dir, "config", "set", "llm.api_key", "sk-abcdefghijkl")
	require.NoError(t, err)

	out, err := executeCommand("--config-dir", dir, "config", "get", "llm.api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-a...ijkl\n", out)
}

func TestConfigGet_NotSet(t *testing.T) {
	dir, _ := setupConfigTest(t)

	out, err := executeCommand("--config-dir", dir, "config", "get", "pinecone.index_host")

	require.NoError(t, err)
	assert.Contains(t, out, "(not set)")
}

func TestConfigShow_Defaults(t *testing.T) {
	dir, _ := setupConfigTest(t)

	out, err := executeCommand("--config-dir", dir, "config")

	require.NoError(t, err)
	assert.Contains(t, out, "Current Settings")
	assert.Contains(t, out, "Pinecone: disabled (local store only)")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestConfigPath(t *testing.T) {
	dir, _ := setupConfigTest(t)

	out, err := executeCommand("--config-dir", dir, "config", "path")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, dir))
	assert.Contains(t, out, "config.toml")
}

func TestConfigValidate(t *testing.T) {
	t.Run("all providers reachable", func(t *testing.T) {
		dir, validator := setupConfigTest(t)

		out, err := executeCommand("--config-dir", dir, "config", "validate")

		require.NoError(t, err)
		assert.Equal(t, []string{"embedding", "llm", "pinecone"}, validator.calls)
		assert.Equal(t, 3, strings.Count(out, "OK"))
	})

	t.Run("reports failures", func(t *testing.T) {
		dir, validator := setupConfigTest(t)
		validator.llmErr = errors.New("401 unauthorized")

		out, err := executeCommand("--config-dir", dir, "config", "validate")

		require.Error(t, err)
		assert.Equal(t, "1 providers failed validation", err.Error())
		assert.Contains(t, out, "FAILED: 401 unauthorized")
	})
}

func TestConfigProvider(t *testing.T) {
	t.Run("llm with api key", func(t *testing.T) {
		dir, validator := setupConfigTest(t)
		rootCmd.SetIn(strings.NewReader("2\n\nsk-ant-0123456789\n"))

		out, err := executeCommand("--config-dir", dir, "config", "provider", "llm")

		require.NoError(t, err)
		assert.Equal(t, []string{"llm"}, validator.calls)
		assert.Contains(t, out, "llm provider configured: anthropic")

		store, err := file.NewConfigStore(dir)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", store.GetString("llm.provider"))
		assert.Equal(t, domain.DefaultLLMModels()[domain.AIProviderAnthropic], store.GetString("llm.model"))
		assert.Equal(t, "sk-ant-0123456789", store.GetString("llm.api_key"))
	})

	t.Run("validation failure", func(t *testing.T) {
		dir, validator := setupConfigTest(t)
		validator.embeddingErr = errors.New("connection refused")
		rootCmd.SetIn(strings.NewReader("\ncustom-embed\n\n"))

		_, err := executeCommand("--config-dir", dir, "config", "provider", "embedding")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding configuration validation failed")
	})

	t.Run("unknown kind", func(t *testing.T) {
		dir, _ := setupConfigTest(t)

		_, err := executeCommand("--config-dir", dir, "config", "provider", "reranker")

		require.Error(t, err)
	})
}

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{"retrieval.rerank", "true", true},
		{"retrieval.max_results", "8", int64(8)},
		{"llm.temperature", "0.2", 0.2},
		{"llm.model", "gpt-4o-mini", "gpt-4o-mini"},
		{"cache.search_ttl", "15m", "15m"},
		{"retrieval.rerank", "1", int64(1)},
		{"loader.allowed_dirs", "/a, ,/b", []string{"/a", "/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseConfigValue(tt.key, tt.raw))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk-1...7890", maskAPIKey("sk-1234567890"))
}

func TestParseChoice(t *testing.T) {
	assert.Equal(t, 1, parseChoice("", 3, 1))
	assert.Equal(t, 2, parseChoice("2", 3, 1))
	assert.Equal(t, 1, parseChoice("9", 3, 1))
	assert.Equal(t, 1, parseChoice("x", 3, 1))
}

func TestSelectableProviders(t *testing.T) {
	for _, p := range selectableProviders(true) {
		assert.True(t, p.SupportsEmbeddings(), string(p))
	}
	assert.Len(t, selectableProviders(false), 4)
}
