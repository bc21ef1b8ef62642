package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// IngestionService moves documents through pending, processing and
// completed or failed.
type IngestionService struct {
	docs     driven.DocumentStore
	loader   *DocumentLoader
	pipeline driven.PostProcessorPipeline
	embedder *EmbeddingsGenerator
	vectors  *VectorStore
	now      func() time.Time
}

// NewIngestionService creates the ingestion orchestrator.
func NewIngestionService(
	docs driven.DocumentStore,
	loader *DocumentLoader,
	pipeline driven.PostProcessorPipeline,
	embedder *EmbeddingsGenerator,
	vectors *VectorStore,
) *IngestionService {
	return &IngestionService{
		docs:     docs,
		loader:   loader,
		pipeline: pipeline,
		embedder: embedder,
		vectors:  vectors,
		now:      time.Now,
	}
}

// Enqueue records a pending document and links it to its chatbot.
func (s *IngestionService) Enqueue(ctx context.Context, req domain.DocumentRequest) (*domain.Document, error) {
	if !req.SourceType.IsValid() {
		return nil, fmt.Errorf("source type %q: %w", req.SourceType, domain.ErrInvalidInput)
	}
	ref := strings.TrimSpace(req.SourceRef)
	if ref == "" {
		return nil, fmt.Errorf("source reference is empty: %w", domain.ErrInvalidInput)
	}

	doc := &domain.Document{
		Title:      req.Title,
		SourceType: req.SourceType,
		SourceRef:  ref,
		Status:     domain.DocumentPending,
		ChatbotID:  req.ChatbotID,
		Metadata:   map[string]any{},
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		return nil, &domain.StorageError{Op: "create document", Err: err}
	}
	if req.ChatbotID != 0 {
		if err := s.docs.LinkDocument(ctx, req.ChatbotID, doc.ID); err != nil {
			return nil, &domain.StorageError{Op: "link document", Err: err}
		}
	}

	logger.Debug("Queued document %d (%s %s)", doc.ID, doc.SourceType, doc.SourceRef)
	return doc, nil
}

// Requeue moves a failed or completed document back to pending.
func (s *IngestionService) Requeue(ctx context.Context, documentID int64) error {
	if err := s.docs.UpdateStatus(ctx, documentID, domain.DocumentPending, ""); err != nil {
		return fmt.Errorf("requeue document %d: %w", documentID, err)
	}
	return nil
}

// ProcessDocument loads, chunks, embeds and stores one document. Existing
// chunks and vectors for the document are purged first, so re-processing
// never duplicates them. On failure the document is marked failed with the
// reason and the error is returned.
func (s *IngestionService) ProcessDocument(
	ctx context.Context,
	sourceRef string,
	sourceType domain.SourceType,
	documentID int64,
	opts domain.ProcessOptions,
) (*domain.ProcessResult, error) {
	logger.Section(fmt.Sprintf("Process Document %d", documentID))
	result := &domain.ProcessResult{DocumentID: documentID}

	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return result, fmt.Errorf("document %d: %w", documentID, err)
	}

	prior, err := s.docs.ListChunkIDs(ctx, documentID)
	if err != nil {
		return result, &domain.StorageError{Op: "list chunks", Err: err}
	}
	if len(prior) > 0 {
		deleted, err := s.vectors.DeleteDocumentEmbeddings(ctx, documentID)
		if err != nil {
			return result, s.fail(ctx, documentID, err)
		}
		result.Updated = true
		logger.Debug("Purged %d chunks and %d embeddings before re-ingestion", deleted.Chunks, deleted.Embeddings)
	}

	if err := s.docs.UpdateStatus(ctx, documentID, domain.DocumentProcessing, ""); err != nil {
		return result, &domain.StorageError{Op: "update status", Err: err}
	}

	loaded, err := s.loader.Load(ctx, sourceType, sourceRef, documentID)
	if err != nil {
		return result, s.fail(ctx, documentID, err)
	}

	chatbotID := opts.ChatbotID
	if chatbotID == 0 {
		chatbotID = doc.ChatbotID
	} else if chatbotID != doc.ChatbotID {
		if err := s.docs.LinkDocument(ctx, chatbotID, documentID); err != nil {
			return result, s.fail(ctx, documentID, err)
		}
	}

	if err := s.recordLoaded(ctx, documentID, loaded); err != nil {
		return result, s.fail(ctx, documentID, err)
	}

	chunks, err := s.pipeline.Process(ctx, &driven.ChunkSource{
		DocumentID: documentID,
		Text:       loaded.Text,
		Base:       baseMetadata(documentID, chatbotID, sourceType, sourceRef, loaded, s.now()),
	})
	if err != nil {
		return result, s.fail(ctx, documentID, fmt.Errorf("chunk document: %w", err))
	}
	if len(chunks) == 0 {
		return result, s.fail(ctx, documentID, &domain.ParseError{Source: sourceRef})
	}
	result.Chunks = len(chunks)

	inputs := make([]domain.EmbeddingInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = domain.EmbeddingInput{Content: c.Content, Metadata: c.Metadata}
	}
	embeddings, err := s.embedder.Generate(ctx, inputs, opts.Model)
	if err != nil {
		return result, s.fail(ctx, documentID, err)
	}

	stored, err := s.vectors.StoreEmbeddings(ctx, embeddings)
	result.Embeddings = stored.Stored
	result.Failed = stored.Failed
	if err != nil && stored.Stored == 0 {
		return result, s.fail(ctx, documentID, err)
	}
	if err != nil {
		logger.Warn("Document %d stored with %d failed chunks: %v", documentID, stored.Failed, err)
	}

	if err := s.docs.UpdateStatus(ctx, documentID, domain.DocumentCompleted, ""); err != nil {
		return result, &domain.StorageError{Op: "update status", Err: err}
	}
	logger.Info("Document %d: %d chunks, %d embeddings", documentID, result.Chunks, result.Embeddings)
	return result, nil
}

// recordLoaded copies title and MIME type from the loaded content onto the document.
func (s *IngestionService) recordLoaded(ctx context.Context, documentID int64, loaded *domain.LoadedContent) error {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Title == "" {
		doc.Title = loaded.Title
	}
	doc.MIMEType = loaded.MIMEType
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	for _, key := range []string{"page_count", "file_name", "file_size", domain.MetaPermalink, domain.MetaContentType} {
		if v, ok := loaded.Metadata[key]; ok {
			doc.Metadata[key] = v
		}
	}
	return s.docs.SaveDocument(ctx, doc)
}

// fail marks the document failed and returns err.
func (s *IngestionService) fail(ctx context.Context, documentID int64, err error) error {
	logger.Error("Document %d failed: %v", documentID, err)
	if statusErr := s.docs.UpdateStatus(ctx, documentID, domain.DocumentFailed, err.Error()); statusErr != nil {
		logger.Error("Recording failure for document %d: %v", documentID, statusErr)
	}
	return err
}

func baseMetadata(
	documentID, chatbotID int64,
	sourceType domain.SourceType,
	sourceRef string,
	loaded *domain.LoadedContent,
	now time.Time,
) domain.ChunkMetadata {
	meta := domain.ChunkMetadata{
		DocumentID: documentID,
		SourceType: sourceType,
		SourceRef:  sourceRef,
		MIMEType:   loaded.MIMEType,
		Title:      loaded.Title,
		ChatbotID:  chatbotID,
		CreatedAt:  now.UTC().Truncate(time.Second),
	}
	meta.ContentType = domain.AsString(loaded.Metadata[domain.MetaContentType])
	meta.Permalink = domain.AsString(loaded.Metadata[domain.MetaPermalink])
	if pages, ok := loaded.Metadata["page_count"]; ok {
		meta.Extra = map[string]any{"page_count": pages}
	}
	return meta
}

// ProcessQueue processes up to limit pending documents, oldest first. One
// document failing does not stop the rest.
func (s *IngestionService) ProcessQueue(ctx context.Context, limit int) (*domain.QueueResult, error) {
	if limit <= 0 {
		limit = 5
	}
	pending, err := s.docs.ListPending(ctx, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list pending", Err: err}
	}

	out := &domain.QueueResult{Errors: map[int64]string{}}
	for _, doc := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{ChatbotID: doc.ChatbotID})
		out.Processed++
		if res != nil {
			out.Results = append(out.Results, *res)
		}
		if err != nil {
			out.Failed++
			out.Errors[doc.ID] = err.Error()
			if errors.Is(err, context.Canceled) {
				return out, err
			}
			continue
		}
		out.Succeeded++
	}

	if out.Processed > 0 {
		logger.Info("Queue: %d processed, %d succeeded, %d failed", out.Processed, out.Succeeded, out.Failed)
	}
	return out, nil
}

// DeleteDocument removes a document with its chunks and vectors.
func (s *IngestionService) DeleteDocument(ctx context.Context, documentID int64) error {
	if _, err := s.vectors.DeleteDocumentEmbeddings(ctx, documentID); err != nil {
		return err
	}
	if err := s.docs.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %d: %w", documentID, err)
	}
	return nil
}

// ListDocuments returns all documents, newest first.
func (s *IngestionService) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return s.docs.ListDocuments(ctx)
}

// Stats reports store counts.
func (s *IngestionService) Stats(ctx context.Context) (domain.DocumentStats, error) {
	return s.vectors.Stats(ctx)
}
