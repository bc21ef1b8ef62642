package cli

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui"
	"github.com/custodia-labs/ragline/internal/logger"
)

var (
	tuiBot       int64
	tuiScheduler bool

	// runTUIApp runs the program; replaced in tests.
	runTUIApp = func(app *tui.App) error { return app.Run() }
)

// tuiCmd represents the tui command.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch the interactive terminal user interface for ragline.

The TUI searches the knowledge base, chats with a chatbot and manages the
ingestion queue with keyboard navigation.

Controls:
  ↑/k, ↓/j - Navigate
  1-4      - Jump to a menu entry
  Enter    - Search / Send / Select
  Ctrl+N   - New conversation
  Esc      - Back
  q        - Quit`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().Int64Var(&tuiBot, "bot", 0, "scope search and chat to this chatbot ID")
	tuiCmd.Flags().BoolVar(&tuiScheduler, "scheduler", false, "run scheduled tasks while the TUI is open")
	rootCmd.AddCommand(tuiCmd)
}

// tuiPorts gathers the services the TUI drives.
func tuiPorts() (*tui.Ports, error) {
	retrieval, err := retrievalService()
	if err != nil {
		return nil, err
	}
	chat, err := chatService()
	if err != nil {
		return nil, err
	}
	ingestion, err := ingestionService()
	if err != nil {
		return nil, err
	}
	return &tui.Ports{
		Retrieval: retrieval,
		Chat:      chat,
		Ingestion: ingestion,
		Identity:  cliIdentity(),
		ChatbotID: tuiBot,
	}, nil
}

func runTUI(cmd *cobra.Command, _ []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in TUI: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("TUI panic: %v", r)
		}
	}()

	ports, err := tuiPorts()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if tuiScheduler {
		scheduler, err := schedulerService()
		if err != nil {
			return err
		}
		schedCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := scheduler.Start(schedCtx); err != nil && schedCtx.Err() == nil {
				logger.Warn("Scheduler stopped: %v", err)
			}
		}()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("Scheduler stop: %v", err)
			}
		}()
	}

	app, err := tui.NewApp(ports)
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	app.WithContext(ctx)

	if err := runTUIApp(app); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
