package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

var (
	searchLimit    int
	searchBot      int64
	searchMinSim   float64
	searchWindow   int
	searchJSON     bool
	searchNoRerank bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find context for a question",
	Long: `Finds the knowledge base passages most relevant to a question.

Results are ranked by cosine similarity, near-duplicates are dropped,
and each passage is expanded with its neighbouring chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().Int64Var(&searchBot, "bot", 0, "restrict to documents linked to this chatbot ID")
	searchCmd.Flags().Float64Var(&searchMinSim, "min-similarity", 0, "minimum similarity (default from retrieval.min_similarity)")
	searchCmd.Flags().IntVar(&searchWindow, "window", 0, "neighbouring chunks to include (0 = configured default, -1 = none)")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "rank by similarity only")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	retrieval, err := retrievalService()
	if err != nil {
		return err
	}

	opts := domain.ContextOptions{
		MaxResults:    searchLimit,
		ContextWindow: searchWindow,
	}
	if cmd.Flags().Changed("min-similarity") {
		minSimilarity := searchMinSim
		opts.MinSimilarity = &minSimilarity
	}
	if searchNoRerank {
		rerank := false
		opts.Rerank = &rerank
	}

	results, err := retrieval.FindContext(cmd.Context(), query, searchBot, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.ContextResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.ContextResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		title, _ := r.Metadata["title"].(string)
		if title == "" {
			title = fmt.Sprintf("chunk %d", r.ChunkID)
		}

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.Relevance)
		if r.Source != "" {
			cmd.Printf("      Source: %s\n", r.Source)
		}
		cmd.Printf("      %s\n", snippet(r.Content, 200))
		if n := len(r.Before) + len(r.After); n > 0 {
			cmd.Printf("      (+%d neighbouring chunks)\n", n)
		}
		cmd.Println()
	}

	return nil
}

// snippet collapses whitespace and truncates to max runes.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
