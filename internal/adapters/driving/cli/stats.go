package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}

	stats, err := ingestion.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load statistics: %w", err)
	}

	if statsJSON {
		data, err := json.MarshalIndent(map[string]any{
			"documents":      stats.Documents,
			"chunks":         stats.Chunks,
			"embeddings":     stats.Embeddings,
			"avg_chunk_size": stats.AvgChunkSize,
			"remote_vectors": stats.RemoteVectors,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal statistics: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println("Knowledge Base")
	cmd.Println("==============")
	cmd.Printf("  Documents:       %d\n", stats.Documents)
	cmd.Printf("  Chunks:          %d\n", stats.Chunks)
	cmd.Printf("  Embeddings:      %d\n", stats.Embeddings)
	cmd.Printf("  Avg chunk size:  %.0f chars\n", stats.AvgChunkSize)
	if stats.RemoteVectors > 0 {
		cmd.Printf("  Remote vectors:  %d\n", stats.RemoteVectors)
	}
	return nil
}
