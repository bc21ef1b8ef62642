package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragline/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragline/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

var (
	openConfigStore = func(dir string) (driven.ConfigStore, error) {
		return file.NewConfigStore(dir)
	}
	newConfigValidator = func() driven.AIConfigValidator {
		return ai.NewConfigValidator()
	}
)

// listKeys are stored as string arrays; their values are comma separated on the command line.
var listKeys = map[string]bool{
	"loader.allowed_dirs":  true,
	"chat.banned_keywords": true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change ~/.ragline/config.toml.

Keys use dot notation, for example retrieval.max_results or llm.provider.
API keys may also come from OPENAI_API_KEY, ANTHROPIC_API_KEY,
GEMINI_API_KEY and PINECONE_API_KEY.`,
	Annotations: skipServices(),
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save the file.

Booleans and numbers are stored as such; durations use Go syntax ("15m").
List keys (loader.allowed_dirs, chat.banned_keywords) take comma separated values.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check settings and ping the configured providers",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configProviderCmd = &cobra.Command{
	Use:       "provider [embedding|llm]",
	Short:     "Configure an AI provider interactively",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"embedding", "llm"},
	RunE:      runConfigProvider,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configProviderCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (driven.ConfigStore, domain.Settings, error) {
	store, err := openConfigStore(configDir)
	if err != nil {
		return nil, domain.Settings{}, fmt.Errorf("failed to open config: %w", err)
	}
	settings, err := file.LoadSettings(store)
	return store, settings, err
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, settings, loadErr := loadConfig()
	if store == nil {
		return loadErr
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Printf("File: %s\n", store.Path())
	cmd.Println()

	printProvider(cmd, "Embedding", settings.Embedding.ProviderSettings)
	cmd.Printf("  Batch size: %d\n", settings.Embedding.BatchSize)
	cmd.Println()

	printProvider(cmd, "LLM", settings.LLM.ProviderSettings)
	cmd.Printf("  Max tokens: %d\n", settings.LLM.MaxTokens)
	cmd.Printf("  Temperature: %.2f\n", settings.LLM.Temperature)
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Chunk size: %d (overlap %d)\n", settings.Chunking.Size, settings.Chunking.Overlap)
	cmd.Printf("  Max results: %d\n", settings.Retrieval.MaxResults)
	cmd.Printf("  Min similarity: %.2f\n", settings.Retrieval.MinSimilarity)
	cmd.Printf("  Context window: %d\n", settings.Retrieval.ContextWindow)
	cmd.Println()

	cmd.Println("[Vector Index]")
	if settings.Pinecone.Enabled {
		cmd.Printf("  Pinecone: %s\n", settings.Pinecone.IndexHost)
		if settings.Pinecone.Namespace != "" {
			cmd.Printf("  Namespace: %s\n", settings.Pinecone.Namespace)
		}
	} else {
		cmd.Println("  Pinecone: disabled (local store only)")
	}
	cmd.Println()

	cmd.Println("[Rate Limits]")
	cmd.Printf("  Daily tokens: %s\n", limitText(settings.RateLimit.TokenLimit))
	cmd.Printf("  Daily messages: %s\n", limitText(settings.RateLimit.MessageLimit))
	cmd.Println()

	if loadErr != nil {
		cmd.Printf("Warning: %v\n", loadErr)
		cmd.Println("Run 'ragline config set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func printProvider(cmd *cobra.Command, label string, p domain.ProviderSettings) {
	cmd.Printf("[%s]\n", label)
	cmd.Printf("  Provider: %s\n", p.Provider)
	cmd.Printf("  Model: %s\n", p.Model)
	if p.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", p.BaseURL)
	}
	if p.Provider.RequiresAPIKey() {
		if p.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(p.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !p.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
}

func limitText(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	store, err := openConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}

	val, ok := store.Get(args[0])
	if !ok {
		cmd.Println("(not set)")
		return nil
	}
	if strings.HasSuffix(args[0], "api_key") {
		if s, isString := val.(string); isString {
			val = maskAPIKey(s)
		}
	}
	cmd.Println(val)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := openConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}

	key := strings.TrimSpace(args[0])
	if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return fmt.Errorf("invalid key %q", args[0])
	}

	if err := store.Set(key, parseConfigValue(key, args[1])); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	cmd.Printf("Set %s\n", key)
	if _, err := file.LoadSettings(store); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	return nil
}

// parseConfigValue stores booleans and numbers with their TOML types.
func parseConfigValue(key, raw string) any {
	raw = strings.TrimSpace(raw)
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	store, err := openConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	cmd.Println(store.Path())
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	store, settings, err := loadConfig()
	if store == nil {
		return err
	}
	if err != nil {
		return err
	}

	validator := newConfigValidator()
	ctx := cmd.Context()
	failed := 0

	check := func(name string, fn func() error) {
		cmd.Printf("%-10s ", name)
		if err := fn(); err != nil {
			failed++
			cmd.Printf("FAILED: %v\n", err)
			return
		}
		cmd.Println("OK")
	}

	check("embedding", func() error { return validator.ValidateEmbedding(ctx, &settings.Embedding) })
	check("llm", func() error { return validator.ValidateLLM(ctx, &settings.LLM) })
	check("pinecone", func() error { return validator.ValidateRemoteIndex(ctx, &settings.Pinecone) })

	if failed > 0 {
		return fmt.Errorf("%d providers failed validation", failed)
	}
	return nil
}

func runConfigProvider(cmd *cobra.Command, args []string) error {
	kind := args[0]
	if kind != "embedding" && kind != "llm" {
		return fmt.Errorf("unknown provider kind %q (expected embedding or llm)", kind)
	}

	store, err := openConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	reader := bufio.NewReader(cmd.InOrStdin())

	providers := selectableProviders(kind == "embedding")
	cmd.Printf("Select %s provider\n", kind)
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p)
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selected := providers[idx-1]

	defaults := domain.DefaultLLMModels()
	if kind == "embedding" {
		defaults = domain.DefaultEmbeddingModels()
	}
	defaultModel := defaults[selected]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if selected.RequiresAPIKey() {
		cmd.Print("Enter API key (leave empty to use the environment): ")
		apiKey = readPassword(cmd.InOrStdin(), reader)
		cmd.Println()
	}

	values := map[string]any{
		kind + ".provider": string(selected),
		kind + ".model":    model,
	}
	if apiKey != "" {
		values[kind+".api_key"] = apiKey
	}
	for key, val := range values {
		if err := store.Set(key, val); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	settings, err := file.LoadSettings(store)
	if err != nil {
		return fmt.Errorf("saved configuration is invalid: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	validator := newConfigValidator()
	if kind == "embedding" {
		err = validator.ValidateEmbedding(cmd.Context(), &settings.Embedding)
	} else {
		err = validator.ValidateLLM(cmd.Context(), &settings.LLM)
	}
	if err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", kind, err)
	}
	cmd.Println("OK")

	cmd.Printf("%s provider configured: %s (%s)\n", kind, selected, model)
	return nil
}

func selectableProviders(embedding bool) []domain.AIProvider {
	all := []domain.AIProvider{
		domain.AIProviderOpenAI,
		domain.AIProviderAnthropic,
		domain.AIProviderGemini,
		domain.AIProviderOllama,
	}
	if !embedding {
		return all
	}
	out := make([]domain.AIProvider, 0, len(all))
	for _, p := range all {
		if p.SupportsEmbeddings() {
			out = append(out, p)
		}
	}
	return out
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when in is a terminal.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
