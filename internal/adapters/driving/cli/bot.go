package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragline/internal/core/domain"
)

var botJSON bool

// loadChatbots reads chatbot definitions from a YAML file.
var loadChatbots = file.LoadChatbots

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Manage chatbots",
	Long: `Chatbots give answers a persona, greeting and fallback message, and can be
restricted to the documents linked to them.`,
}

var botImportCmd = &cobra.Command{
	Use:   "import [file.yaml]",
	Short: "Create or update chatbots from a YAML file",
	Long: `Import chatbot definitions from YAML. Bots are matched by name; existing
bots are updated and new ones created.

Example bots.yaml:
  chatbots:
    - name: Support
      persona: a friendly support agent for Acme
      greeting_message: Hi! How can I help?
      max_messages: 20
      model: gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runBotImport,
}

var botListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chatbots",
	Args:  cobra.NoArgs,
	RunE:  runBotList,
}

func init() {
	botListCmd.Flags().BoolVar(&botJSON, "json", false, "output chatbots as JSON")
	botCmd.AddCommand(botImportCmd)
	botCmd.AddCommand(botListCmd)
	rootCmd.AddCommand(botCmd)
}

func runBotImport(cmd *cobra.Command, args []string) error {
	chatbots, err := chatbotService()
	if err != nil {
		return err
	}

	bots, err := loadChatbots(args[0])
	if err != nil {
		return fmt.Errorf("failed to read chatbots: %w", err)
	}

	created, updated, err := chatbots.Import(cmd.Context(), bots)
	cmd.Printf("Imported chatbots: %d created, %d updated\n", created, updated)
	if err != nil {
		return fmt.Errorf("import incomplete: %w", err)
	}
	return nil
}

func runBotList(cmd *cobra.Command, _ []string) error {
	chatbots, err := chatbotService()
	if err != nil {
		return err
	}

	bots, err := chatbots.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list chatbots: %w", err)
	}

	if botJSON {
		data, err := json.MarshalIndent(bots, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal chatbots: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(bots) == 0 {
		cmd.Println("No chatbots configured.")
		return nil
	}
	for i := range bots {
		cmd.Printf("  [%d] %s%s\n", bots[i].ID, bots[i].Name, botDetails(&bots[i]))
	}
	return nil
}

func botDetails(b *domain.Chatbot) string {
	details := ""
	if b.Model != "" {
		details += " model=" + b.Model
	}
	if b.MaxMessages > 0 {
		details += fmt.Sprintf(" max_messages=%d", b.MaxMessages)
	}
	if details == "" {
		return ""
	}
	return " (" + details[1:] + ")"
}
