package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

var (
	migrateDirection string
	migrateScope     string
	migrateTypes     []string
	migrateDocs      []int64
	migrateJSON      bool
	migrateYes       bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move vectors between the local store and Pinecone",
	Long: `Migrate embeddings between the local SQLite store and the remote
Pinecone index, clear either side, and inspect past runs.

Only one migration runs at a time. A lock older than migration.lock_timeout
is treated as stale and replaced.`,
}

var migrateStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run a migration",
	Long: `Run a migration in the given direction.

Scopes:
  all       every document
  selected  the documents named by --docs
  by_type   documents whose content type is in --types

Examples:
  ragline migrate start --direction to_remote
  ragline migrate start --direction to_local --scope by_type --types pdf,post`,
	Args: cobra.NoArgs,
	RunE: runMigrateStart,
}

var migrateClearCmd = &cobra.Command{
	Use:   "clear [local|knowledge_base|remote]",
	Short: "Delete stored vector data",
	Long: `Delete vector data from a target:

  local           embeddings and chunks in the local store
  knowledge_base  documents, chunks, embeddings and chatbot links
  remote          every vector in the Pinecone namespace`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrateClear,
}

var migrateLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the report of the last migration",
	Args:  cobra.NoArgs,
	RunE:  runMigrateLog,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a migration is running",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	migrateStartCmd.Flags().StringVar(&migrateDirection, "direction", "", "to_remote or to_local")
	migrateStartCmd.Flags().StringVar(&migrateScope, "scope", string(domain.ScopeAll), "all, selected or by_type")
	migrateStartCmd.Flags().StringSliceVar(&migrateTypes, "types", nil, "content types for --scope by_type")
	migrateStartCmd.Flags().Int64SliceVar(&migrateDocs, "docs", nil, "document IDs for --scope selected")
	migrateStartCmd.Flags().BoolVar(&migrateJSON, "json", false, "output the report as JSON")
	migrateLogCmd.Flags().BoolVar(&migrateJSON, "json", false, "output the report as JSON")
	migrateClearCmd.Flags().BoolVarP(&migrateYes, "yes", "y", false, "do not ask for confirmation")

	migrateCmd.AddCommand(migrateStartCmd)
	migrateCmd.AddCommand(migrateClearCmd)
	migrateCmd.AddCommand(migrateLogCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateStart(cmd *cobra.Command, _ []string) error {
	migration, err := migrationService()
	if err != nil {
		return err
	}

	opts := domain.MigrationOptions{
		Direction:    domain.MigrationDirection(migrateDirection),
		Scope:        domain.MigrationScope(migrateScope),
		ContentTypes: migrateTypes,
		DocumentIDs:  migrateDocs,
	}

	report, err := migration.Start(cmd.Context(), opts)
	if report != nil {
		if outErr := outputReport(cmd, report); outErr != nil {
			return outErr
		}
	}
	if err != nil {
		var merr *domain.MigrationError
		if errors.As(err, &merr) && merr.Err == nil {
			return fmt.Errorf("migration finished with %d errors", merr.Failed)
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func runMigrateClear(cmd *cobra.Command, args []string) error {
	migration, err := migrationService()
	if err != nil {
		return err
	}

	target := domain.ClearTarget(args[0])
	switch target {
	case domain.ClearLocal, domain.ClearKnowledgeBase, domain.ClearRemote:
	default:
		return fmt.Errorf("unknown target %q (expected local, knowledge_base or remote)", args[0])
	}

	if !migrateYes {
		cmd.Printf("This permanently deletes %s data. Continue? [y/N]: ", target)
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n') //nolint:errcheck // EOF means no
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			cmd.Println("Aborted.")
			return nil
		}
	}

	counts, err := migration.ClearDatabase(cmd.Context(), target)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", target, err)
	}

	cmd.Printf("Cleared %s:\n", target)
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		cmd.Printf("  %-22s %d\n", table, counts[table])
	}
	return nil
}

func runMigrateLog(cmd *cobra.Command, _ []string) error {
	migration, err := migrationService()
	if err != nil {
		return err
	}

	report, err := migration.LastReport(cmd.Context())
	if errors.Is(err, domain.ErrNotFound) {
		cmd.Println("No migration has run yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load migration report: %w", err)
	}
	return outputReport(cmd, report)
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	migration, err := migrationService()
	if err != nil {
		return err
	}

	lock, err := migration.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	if lock == nil || !lock.InProgress {
		cmd.Println("No migration in progress.")
		return nil
	}

	cmd.Printf("Migration %s in progress: %s, scope %s, started %s ago\n",
		lock.RunID, lock.Direction, lock.Scope, time.Since(lock.StartedAt).Round(time.Second))
	return nil
}

func outputReport(cmd *cobra.Command, report *domain.MigrationReport) error {
	if migrateJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	s := report.Summary
	cmd.Printf("Migration %s (%s, scope %s)\n", report.RunID, report.Options.Direction, report.Options.Scope)
	cmd.Printf("  Migrated: %d  Errors: %d  Skipped: %d  Duration: %s\n",
		s.Migrated, s.Errors, s.Skipped, s.Duration.Round(time.Millisecond))
	if s.TimedOut {
		cmd.Println("  Stopped early: time budget reached. Run again to continue.")
	}
	if len(report.Log) > 0 {
		cmd.Println()
		for _, entry := range report.Log {
			cmd.Printf("  %s [%s] %s\n", entry.Time.Format("15:04:05"), entry.Level, entry.Message)
		}
	}
	return nil
}
