package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

var (
	queueBot    int64
	queueTitle  string
	queueLimit  int
	queueStatus string
	queueJSON   bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the ingestion queue",
	Long: `Queue documents for background processing and inspect their status.

Queued documents are processed by 'ragline queue process' or by the
process-queue job of 'ragline schedule'.`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add [file|url|post] [ref]",
	Short: "Queue a document for ingestion",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueueAdd,
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process pending documents",
	Long:  `Process up to --limit pending documents, oldest first. A failing document does not stop the batch.`,
	Args:  cobra.NoArgs,
	RunE:  runQueueProcess,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents and their status",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry [document-id]",
	Short: "Move a document back to pending",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove [document-id]",
	Short: "Delete a document with its chunks and embeddings",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

func init() {
	queueAddCmd.Flags().Int64Var(&queueBot, "bot", 0, "link the document to this chatbot ID")
	queueAddCmd.Flags().StringVar(&queueTitle, "title", "", "document title")
	queueProcessCmd.Flags().IntVarP(&queueLimit, "limit", "n", 10, "maximum number of documents to process")
	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "only show documents with this status")
	queueListCmd.Flags().BoolVar(&queueJSON, "json", false, "output documents as JSON")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}

	sourceType := domain.SourceType(args[0])
	if !sourceType.IsValid() {
		return fmt.Errorf("unknown source type %q (expected file, url or post)", args[0])
	}
	ref := args[1]
	if sourceType == domain.SourceFile {
		if ref, err = filepath.Abs(ref); err != nil {
			return fmt.Errorf("resolving %s: %w", args[1], err)
		}
	}

	title := queueTitle
	if title == "" {
		title = defaultTitle(sourceType, ref)
	}

	doc, err := ingestion.Enqueue(cmd.Context(), domain.DocumentRequest{
		Title:      title,
		SourceType: sourceType,
		SourceRef:  ref,
		ChatbotID:  queueBot,
	})
	if err != nil {
		return fmt.Errorf("failed to queue document: %w", err)
	}

	cmd.Printf("Queued document %d: %s\n", doc.ID, doc.SourceRef)
	return nil
}

func runQueueProcess(cmd *cobra.Command, _ []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}

	result, err := ingestion.ProcessQueue(cmd.Context(), queueLimit)
	if err != nil {
		return fmt.Errorf("failed to process queue: %w", err)
	}

	if result.Processed == 0 {
		cmd.Println("No pending documents.")
		return nil
	}

	cmd.Printf("Processed %d documents: %d succeeded, %d failed\n",
		result.Processed, result.Succeeded, result.Failed)

	ids := make([]int64, 0, len(result.Errors))
	for id := range result.Errors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		cmd.Printf("  ✗ document %d: %s\n", id, result.Errors[id])
	}
	return nil
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}

	status := domain.DocumentStatus(queueStatus)
	if queueStatus != "" && !status.IsValid() {
		return fmt.Errorf("unknown status %q", queueStatus)
	}

	docs, err := ingestion.ListDocuments(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	filtered := docs[:0:0]
	for i := range docs {
		if queueStatus == "" || docs[i].Status == status {
			filtered = append(filtered, docs[i])
		}
	}

	if queueJSON {
		data, err := json.MarshalIndent(filtered, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(filtered) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Printf("%-6s %-11s %-5s %s\n", "ID", "STATUS", "TYPE", "TITLE")
	for i := range filtered {
		d := &filtered[i]
		cmd.Printf("%-6d %-11s %-5s %s\n", d.ID, d.Status, d.SourceType, d.Title)
		if reason := d.FailureReason(); reason != "" {
			cmd.Printf("       error: %s\n", reason)
		}
	}
	return nil
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := ingestion.Requeue(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to requeue document: %w", err)
	}
	cmd.Printf("Document %d queued for processing\n", id)
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := ingestion.DeleteDocument(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted document %d\n", id)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
