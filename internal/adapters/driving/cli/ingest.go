package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

var (
	ingestBot   int64
	ingestTitle string
	ingestModel string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into the knowledge base",
	Long: `Load, chunk, embed and store documents immediately.

Each source is queued first, so a failed ingestion stays visible in
'ragline queue list' with its error and can be retried.`,
}

var ingestFileCmd = &cobra.Command{
	Use:   "file [path...]",
	Short: "Ingest local files",
	Long: `Ingest one or more local files. Paths must be inside loader.allowed_dirs.

Supported formats: plain text, Markdown, HTML, PDF and (when enabled) DOCX.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs := make([]string, len(args))
		for i, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", arg, err)
			}
			refs[i] = abs
		}
		return runIngest(cmd, domain.SourceFile, refs)
	},
}

var ingestURLCmd = &cobra.Command{
	Use:   "url [url...]",
	Short: "Ingest web pages",
	Long:  `Fetch web pages and ingest their readable content.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, domain.SourceURL, args)
	},
}

var ingestPostCmd = &cobra.Command{
	Use:   "post [id...]",
	Short: "Ingest site posts",
	Long:  `Ingest published posts from the site database by ID.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
				return fmt.Errorf("invalid post id %q", arg)
			}
		}
		return runIngest(cmd, domain.SourcePost, args)
	},
}

func init() {
	for _, c := range []*cobra.Command{ingestFileCmd, ingestURLCmd, ingestPostCmd} {
		c.Flags().Int64Var(&ingestBot, "bot", 0, "link documents to this chatbot ID")
		c.Flags().StringVar(&ingestTitle, "title", "", "document title (single source only)")
		c.Flags().StringVar(&ingestModel, "model", "", "embedding model override")
		ingestCmd.AddCommand(c)
	}
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, sourceType domain.SourceType, refs []string) error {
	ingestion, err := ingestionService()
	if err != nil {
		return err
	}
	if ingestTitle != "" && len(refs) > 1 {
		return fmt.Errorf("--title can only be used with a single source")
	}

	ctx := cmd.Context()
	failed := 0
	for _, ref := range refs {
		title := ingestTitle
		if title == "" {
			title = defaultTitle(sourceType, ref)
		}

		doc, err := ingestion.Enqueue(ctx, domain.DocumentRequest{
			Title:      title,
			SourceType: sourceType,
			SourceRef:  ref,
			ChatbotID:  ingestBot,
		})
		if err != nil {
			return fmt.Errorf("failed to queue %s: %w", ref, err)
		}

		result, err := ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{
			Model:     ingestModel,
			ChatbotID: ingestBot,
		})
		if err != nil {
			failed++
			cmd.Printf("  ✗ %s: %v\n", ref, err)
			continue
		}

		cmd.Printf("  ✓ %s (document %d): %d chunks, %d embeddings", ref, doc.ID, result.Chunks, result.Embeddings)
		if result.Failed > 0 {
			cmd.Printf(", %d failed", result.Failed)
		}
		cmd.Println()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed to ingest", failed, len(refs))
	}
	return nil
}

// defaultTitle derives a readable title from a source reference.
func defaultTitle(sourceType domain.SourceType, ref string) string {
	switch sourceType {
	case domain.SourceFile:
		base := filepath.Base(ref)
		return strings.TrimSuffix(base, filepath.Ext(base))
	case domain.SourcePost:
		return "Post " + ref
	default:
		return ref
	}
}
