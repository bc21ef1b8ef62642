package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

var (
	askBot          int64
	askConversation int64
	askJSON         bool
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a single question",
	Long: `Answers one question using context retrieved from the knowledge base.

Pass --conversation to continue an earlier conversation; the answer is
stored with the rest of its history.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&askBot, "bot", 0, "answer as this chatbot ID")
	askCmd.Flags().Int64Var(&askConversation, "conversation", 0, "continue this conversation ID")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the full response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	chat, err := chatService()
	if err != nil {
		return err
	}

	resp, err := chat.GenerateResponse(cmd.Context(), domain.ChatRequest{
		Message:        args[0],
		ConversationID: askConversation,
		ChatbotID:      askBot,
		Identity:       cliIdentity(),
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(resp.Response)
	printSources(cmd, resp.Context)
	cmd.Printf("\n(conversation %d, %d tokens)\n", resp.ConversationID, resp.Metadata.TotalTokens)
	return nil
}

// printSources lists the distinct sources behind an answer.
func printSources(cmd *cobra.Command, results []domain.ContextResult) {
	seen := make(map[string]bool)
	var sources []string
	for i := range results {
		src := results[i].Source
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return
	}

	cmd.Println()
	cmd.Println("Sources:")
	for _, src := range sources {
		cmd.Printf("  - %s\n", src)
	}
}
