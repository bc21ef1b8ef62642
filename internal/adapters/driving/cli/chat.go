package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

var (
	chatBot          int64
	chatConversation int64
	chatNoStream     bool
	chatUnset        bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively",
	Long: `Start an interactive conversation grounded in the knowledge base.

Answers stream token by token when the output is a terminal.
Type /new to start a fresh conversation, /history to show the current
one, and /quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	Args:  cobra.NoArgs,
	RunE:  runChatList,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show the recent turns of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatHistory,
}

var chatFavoriteCmd = &cobra.Command{
	Use:   "favorite [conversation-id]",
	Short: "Mark a conversation as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChatFlag(cmd, args[0], "favorite")
	},
}

var chatArchiveCmd = &cobra.Command{
	Use:   "archive [conversation-id]",
	Short: "Archive a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChatFlag(cmd, args[0], "archive")
	},
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete [conversation-id]",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatDelete,
}

func init() {
	chatCmd.Flags().Int64Var(&chatBot, "bot", 0, "chat with this chatbot ID")
	chatCmd.Flags().Int64Var(&chatConversation, "conversation", 0, "resume this conversation ID")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "print answers only when complete")
	chatFavoriteCmd.Flags().BoolVar(&chatUnset, "off", false, "remove the flag instead")
	chatArchiveCmd.Flags().BoolVar(&chatUnset, "off", false, "remove the flag instead")

	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatFavoriteCmd)
	chatCmd.AddCommand(chatArchiveCmd)
	chatCmd.AddCommand(chatDeleteCmd)
	rootCmd.AddCommand(chatCmd)
}

// cliIdentity identifies the local operator for conversation ownership and rate limits.
func cliIdentity() domain.Identity {
	name := "local"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return domain.Identity{GuestHash: "cli-" + name}
}

// streamOutput reports whether answers should stream: only to a real terminal.
func streamOutput(cmd *cobra.Command) bool {
	if chatNoStream {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runChat(cmd *cobra.Command, _ []string) error {
	chat, err := chatService()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	identity := cliIdentity()
	conversationID := chatConversation
	stream := streamOutput(cmd)

	cmd.Println("Type your question, /new for a new conversation, /quit to exit.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("you> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			conversationID = 0
			cmd.Println("Started a new conversation.")
			continue
		case "/history":
			if conversationID == 0 {
				cmd.Println("No messages yet.")
				continue
			}
			if err := printHistory(cmd, chat, conversationID); err != nil {
				cmd.Printf("error: %v\n", err)
			}
			continue
		}

		req := domain.ChatRequest{
			Message:        line,
			ConversationID: conversationID,
			ChatbotID:      chatBot,
			Identity:       identity,
		}

		var resp *domain.ChatResponse
		cmd.Print("bot> ")
		if stream {
			resp, err = chat.StreamResponse(ctx, req, func(chunk string) error {
				cmd.Print(chunk)
				return nil
			})
			cmd.Println()
		} else {
			resp, err = chat.GenerateResponse(ctx, req)
			if err == nil {
				cmd.Println(resp.Response)
			}
		}

		if err != nil {
			if errors.Is(err, domain.ErrLLMUnavailable) || ctx.Err() != nil {
				return err
			}
			cmd.Println(chatErrorMessage(err))
			continue
		}
		conversationID = resp.ConversationID
	}
}

// chatErrorMessage turns expected refusals into their user-facing text.
func chatErrorMessage(err error) string {
	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		return limited.Error()
	}
	var rejected *domain.ContentRejectedError
	if errors.As(err, &rejected) {
		return rejected.Error()
	}
	return "error: " + err.Error()
}

func printHistory(cmd *cobra.Command, chat driving.ChatService, conversationID int64) error {
	messages, err := chat.History(cmd.Context(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(messages) == 0 {
		cmd.Println("No messages yet.")
		return nil
	}
	for i := range messages {
		label := "you"
		if messages[i].Role == domain.RoleAssistant {
			label = "bot"
		}
		cmd.Printf("%s> %s\n", label, messages[i].Content)
	}
	return nil
}

func runChatList(cmd *cobra.Command, _ []string) error {
	chat, err := chatService()
	if err != nil {
		return err
	}

	conversations, err := chat.ListConversations(cmd.Context(), cliIdentity())
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(conversations) == 0 {
		cmd.Println("No conversations found.")
		return nil
	}

	for i := range conversations {
		c := &conversations[i]
		marks := ""
		if c.Favorite {
			marks += " ★"
		}
		if c.Archived {
			marks += " (archived)"
		}
		cmd.Printf("  [%d] %s%s  %s\n", c.ID, c.Title, marks, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runChatHistory(cmd *cobra.Command, args []string) error {
	chat, err := chatService()
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return printHistory(cmd, chat, id)
}

func runChatFlag(cmd *cobra.Command, arg, flag string) error {
	chat, err := chatService()
	if err != nil {
		return err
	}
	id, err := parseID(arg)
	if err != nil {
		return err
	}

	on := !chatUnset
	switch flag {
	case "favorite":
		err = chat.SetFavorite(cmd.Context(), id, on)
	default:
		err = chat.SetArchived(cmd.Context(), id, on)
	}
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	state := "set"
	if !on {
		state = "cleared"
	}
	cmd.Printf("Conversation %d: %s %s\n", id, flag, state)
	return nil
}

func runChatDelete(cmd *cobra.Command, args []string) error {
	chat, err := chatService()
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := chat.DeleteConversation(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	cmd.Printf("Deleted conversation %d\n", id)
	return nil
}
