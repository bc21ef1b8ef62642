package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/adapters/driving/watcher"
	"github.com/custodia-labs/ragline/internal/logger"
)

var (
	watchBot      int64
	watchDebounce time.Duration
	watchProcess  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Queue new upload files automatically",
	Long: `Watch upload directories and queue new or changed files for ingestion.

Without arguments the directories in loader.allowed_dirs are watched.
With --process each queued file is ingested straight away; otherwise run
'ragline schedule' or 'ragline queue process' to work through the queue.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Int64Var(&watchBot, "bot", 0, "link queued documents to this chatbot ID")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is queued")
	watchCmd.Flags().BoolVar(&watchProcess, "process", false, "process queued files immediately")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}

	dirs := args
	if len(dirs) == 0 {
		dirs = services.WatchDirs
	}
	if len(dirs) == 0 {
		return errors.New("no directories to watch: pass them as arguments or set loader.allowed_dirs")
	}

	w := watcher.New(ingestion, services.Registry, dirs,
		watcher.WithDebounce(watchDebounce),
		watcher.WithChatbot(watchBot),
	)

	ctx := cmd.Context()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-w.Queued():
				cmd.Printf("Queued %s\n", path)
				if !watchProcess {
					continue
				}
				result, err := ingestion.ProcessQueue(ctx, 1)
				if err != nil {
					logger.Warn("processing %s: %v", path, err)
					continue
				}
				if result.Failed > 0 {
					for _, msg := range result.Errors {
						cmd.Printf("  ✗ %s\n", msg)
					}
				}
			}
		}
	}()

	cmd.Printf("Watching %d directories. Press Ctrl+C to stop.\n", len(dirs))
	return w.Run(ctx)
}
