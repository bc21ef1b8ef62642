package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure MigrationService implements the interface.
var _ driving.MigrationService = (*MigrationService)(nil)

// Option names used by the migration engine.
const (
	OptionMigrationLock   = "migration_lock"
	OptionMigrationReport = "migration_last_report"
)

// Metadata keys stamped on migrated vectors.
const (
	MetaMigratedFrom = "migrated_from"
	MetaMigratedAt   = "migrated_at"
)

// unknownModel labels local embeddings copied from vectors without a model tag.
const unknownModel = "unknown"

// MigrationService copies vector data between the local store and the remote index.
type MigrationService struct {
	docs     driven.DocumentStore
	remote   driven.RemoteVectorIndex
	options  driven.OptionStore
	cache    driven.Cache
	settings domain.MigrationSettings
	model    string
	validate *validator.Validate
	now      func() time.Time
}

// NewMigrationService creates a migration engine. remote may be nil, in which
// case every remote operation fails with domain.ErrRemoteIndexUnavailable.
func NewMigrationService(
	docs driven.DocumentStore,
	remote driven.RemoteVectorIndex,
	options driven.OptionStore,
	cache driven.Cache,
	settings domain.MigrationSettings,
) *MigrationService {
	if settings.BatchSize <= 0 {
		settings.BatchSize = domain.DefaultSettings().Migration.BatchSize
	}
	if settings.LockTimeout <= 0 {
		settings.LockTimeout = domain.DefaultSettings().Migration.LockTimeout
	}
	return &MigrationService{
		docs:     docs,
		remote:   remote,
		options:  options,
		cache:    cache,
		settings: settings,
		validate: validator.New(),
		now:      time.Now,
	}
}

// SetEmbeddingModel selects which local embedding a chunk contributes to
// the remote index when it has vectors from several models.
func (s *MigrationService) SetEmbeddingModel(model string) {
	s.model = model
}

// migrationRun accumulates the log and counters of one run.
type migrationRun struct {
	report  *domain.MigrationReport
	now     func() time.Time
	started time.Time
}

func (r *migrationRun) log(level domain.LogLevel, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.report.Log = append(r.report.Log, domain.MigrationLogEntry{Level: level, Message: msg, Time: r.now()})
	switch level {
	case domain.LogError:
		logger.Error("%s", msg)
	case domain.LogWarning:
		logger.Warn("%s", msg)
	default:
		logger.Info("%s", msg)
	}
}

func (r *migrationRun) fail(format string, args ...any) {
	r.report.Summary.Errors++
	r.log(domain.LogError, format, args...)
}

// Start runs a migration under the advisory lock. Item failures never abort
// the run; when any occurred the report is returned together with a
// *domain.MigrationError carrying the counts.
func (s *MigrationService) Start(ctx context.Context, opts domain.MigrationOptions) (*domain.MigrationReport, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("migration options: %v: %w", err, domain.ErrInvalidInput)
	}
	if s.remote == nil {
		return nil, &domain.MigrationError{Err: domain.ErrRemoteIndexUnavailable}
	}

	run := &migrationRun{
		report: &domain.MigrationReport{
			RunID:     uuid.NewString(),
			Options:   opts,
			StartedAt: s.now(),
			Log:       []domain.MigrationLogEntry{},
		},
		now:     s.now,
		started: s.now(),
	}

	if err := s.acquireLock(ctx, run); err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx)

	logger.Section("Migration " + string(opts.Direction))
	run.log(domain.LogInfo, "Starting migration %s (direction %s, scope %s)", run.report.RunID, opts.Direction, opts.Scope)
	if prev := s.resumable(ctx, opts); prev != nil {
		run.report.Cursor = prev.Cursor
		run.log(domain.LogInfo, "Resuming unfinished run %s from cursor %s", prev.RunID, prev.Cursor)
	}

	var err error
	switch opts.Direction {
	case domain.MigrateToRemote:
		err = s.toRemote(ctx, run)
	case domain.MigrateToLocal:
		err = s.toLocal(ctx, run)
	}

	summary := &run.report.Summary
	summary.Duration = s.now().Sub(run.started)
	if err != nil {
		run.log(domain.LogError, "Migration aborted: %v", err)
	} else {
		run.log(domain.LogSuccess, "Migration complete: %d migrated, %d errors, %d skipped in %s",
			summary.Migrated, summary.Errors, summary.Skipped, summary.Duration.Round(time.Millisecond))
	}
	if summary.Migrated > 0 {
		invalidateGroups(ctx, s.cache, driven.CacheGroupSearch, driven.CacheGroupContext)
	}
	s.saveReport(ctx, run.report)

	if err != nil {
		return run.report, &domain.MigrationError{Migrated: summary.Migrated, Failed: summary.Errors, Err: err}
	}
	if summary.Errors > 0 {
		return run.report, &domain.MigrationError{Migrated: summary.Migrated, Failed: summary.Errors}
	}
	return run.report, nil
}

// acquireLock sets the lock, clearing a stale one and refusing a live one.
func (s *MigrationService) acquireLock(ctx context.Context, run *migrationRun) error {
	current, err := s.Status(ctx)
	if err != nil {
		return &domain.MigrationError{Err: err}
	}
	if current != nil && current.InProgress {
		if !current.IsStale(s.now(), s.settings.LockTimeout) {
			return &domain.MigrationError{Err: domain.ErrMigrationInProgress}
		}
		run.log(domain.LogWarning, "Clearing stale migration lock %s started at %s",
			current.RunID, current.StartedAt.Format(time.RFC3339))
	}

	lock := domain.MigrationLock{
		InProgress: true,
		StartedAt:  run.started,
		RunID:      run.report.RunID,
		Direction:  run.report.Options.Direction,
		Scope:      run.report.Options.Scope,
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return &domain.MigrationError{Err: err}
	}
	if err := s.options.SetOption(ctx, OptionMigrationLock, string(data)); err != nil {
		return &domain.MigrationError{Err: &domain.StorageError{Op: "set migration lock", Err: err}}
	}
	return nil
}

func (s *MigrationService) releaseLock(ctx context.Context) {
	// The caller's context may already be cancelled; the lock must still go.
	if err := s.options.DeleteOption(context.WithoutCancel(ctx), OptionMigrationLock); err != nil {
		logger.Error("Releasing migration lock: %v", err)
	}
}

func (s *MigrationService) saveReport(ctx context.Context, report *domain.MigrationReport) {
	data, err := json.Marshal(report)
	if err != nil {
		logger.Error("Encoding migration report: %v", err)
		return
	}
	if err := s.options.SetOption(context.WithoutCancel(ctx), OptionMigrationReport, string(data)); err != nil {
		logger.Error("Saving migration report: %v", err)
	}
}

// resumable returns the previous report when it stopped early on the same
// direction and scope.
func (s *MigrationService) resumable(ctx context.Context, opts domain.MigrationOptions) *domain.MigrationReport {
	prev, err := s.LastReport(ctx)
	if err != nil || prev.Cursor == "" || !prev.Options.SameTarget(opts) {
		return nil
	}
	return prev
}

// Status returns the current lock, or nil when idle.
func (s *MigrationService) Status(ctx context.Context) (*domain.MigrationLock, error) {
	raw, ok, err := s.options.GetOption(ctx, OptionMigrationLock)
	if err != nil {
		return nil, &domain.StorageError{Op: "get migration lock", Err: err}
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var lock domain.MigrationLock
	if err := json.Unmarshal([]byte(raw), &lock); err != nil {
		logger.Warn("Ignoring unreadable migration lock: %v", err)
		return nil, nil
	}
	return &lock, nil
}

// LastReport returns the stored report of the most recent run.
func (s *MigrationService) LastReport(ctx context.Context) (*domain.MigrationReport, error) {
	raw, ok, err := s.options.GetOption(ctx, OptionMigrationReport)
	if err != nil {
		return nil, &domain.StorageError{Op: "get migration report", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("migration report: %w", domain.ErrNotFound)
	}
	var report domain.MigrationReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("decode migration report: %w", err)
	}
	return &report, nil
}

// toRemote pages through local chunks and upserts each with its embedding.
func (s *MigrationService) toRemote(ctx context.Context, run *migrationRun) error {
	opts := run.report.Options
	filter := driven.ChunkFilter{Limit: s.settings.BatchSize}
	switch opts.Scope {
	case domain.ScopeByType:
		filter.ContentTypes = opts.ContentTypes
	case domain.ScopeSelected:
		filter.DocumentIDs = opts.DocumentIDs
	}

	if run.report.Cursor != "" {
		after, err := strconv.ParseInt(run.report.Cursor, 10, 64)
		if err != nil {
			run.log(domain.LogWarning, "Ignoring unreadable cursor %q, starting over", run.report.Cursor)
			run.report.Cursor = ""
		} else {
			filter.AfterID = after
		}
	}

	docs := make(map[int64]*domain.Document)
	for batch := 1; ; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks, err := s.docs.ListChunks(ctx, filter)
		if err != nil {
			return &domain.StorageError{Op: "list chunks", Err: err}
		}
		if len(chunks) == 0 {
			run.report.Cursor = ""
			break
		}
		run.log(domain.LogInfo, "Batch %d: %d chunks", batch, len(chunks))

		for i := range chunks {
			s.upsertChunk(ctx, run, &chunks[i], docs)
		}
		filter.AfterID = chunks[len(chunks)-1].ID
		run.report.Cursor = strconv.FormatInt(filter.AfterID, 10)

		if len(chunks) < filter.Limit {
			run.report.Cursor = ""
			break
		}
		if s.afterBatch(run) {
			break
		}
	}
	return nil
}

func (s *MigrationService) upsertChunk(
	ctx context.Context, run *migrationRun, chunk *domain.Chunk, docs map[int64]*domain.Document,
) {
	emb, err := s.embedding(ctx, chunk.ID)
	if err != nil || emb == nil || len(emb.Vector) == 0 {
		run.report.Summary.Skipped++
		run.log(domain.LogWarning, "Chunk %d has no embedding, skipping", chunk.ID)
		return
	}

	doc, ok := docs[chunk.DocumentID]
	if !ok {
		doc, err = s.docs.GetDocument(ctx, chunk.DocumentID)
		if err != nil {
			doc = nil
		}
		docs[chunk.DocumentID] = doc
	}

	meta := remoteMetadata(chunk, doc)
	if meta.Extra == nil {
		meta.Extra = make(map[string]any)
	}
	meta.Extra[MetaMigratedFrom] = "local"
	meta.Extra[MetaMigratedAt] = s.now().UTC().Format(time.RFC3339)

	entry := remoteEntry(chunk.ID, chunk.Content, emb.Vector, emb.Model, meta)
	if err := s.remote.Upsert(ctx, []domain.VectorEntry{entry}); err != nil {
		run.fail("Upsert of chunk %d failed: %v", chunk.ID, err)
		return
	}
	run.report.Summary.Migrated++
}

// embedding returns the chunk's vector for the configured model, or the
// newest one when the chunk has none for that model.
func (s *MigrationService) embedding(ctx context.Context, chunkID int64) (*domain.Embedding, error) {
	if s.model != "" {
		emb, err := s.docs.GetEmbedding(ctx, chunkID, s.model)
		if err == nil {
			return emb, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		logger.Debug("Chunk %d has no %s embedding, using its newest", chunkID, s.model)
	}
	return s.docs.GetEmbedding(ctx, chunkID, "")
}

// remoteMetadata completes stored chunk metadata with document fields.
func remoteMetadata(chunk *domain.Chunk, doc *domain.Document) domain.ChunkMetadata {
	meta := chunk.Metadata
	meta.DocumentID = chunk.DocumentID
	meta.ChunkIndex = chunk.ChunkIndex
	if meta.Size == 0 {
		meta.Size = len(chunk.Content)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = chunk.CreatedAt
	}
	if meta.TotalChunks > 0 {
		meta.HasPrevious = chunk.ChunkIndex > 0
		meta.HasNext = chunk.ChunkIndex < meta.TotalChunks-1
	}
	if doc == nil {
		return meta
	}
	if meta.SourceType == "" {
		meta.SourceType = doc.SourceType
	}
	if meta.SourceRef == "" {
		meta.SourceRef = doc.SourceRef
	}
	if meta.Title == "" {
		meta.Title = doc.Title
	}
	if meta.MIMEType == "" {
		meta.MIMEType = doc.MIMEType
	}
	return meta
}

// toLocal pages through remote IDs and copies each vector into the local store.
func (s *MigrationService) toLocal(ctx context.Context, run *migrationRun) error {
	token := run.report.Cursor
	for batch := 1; ; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, next, err := s.remote.ListIDs(ctx, s.settings.BatchSize, token)
		if err != nil {
			return fmt.Errorf("list remote vectors: %w", err)
		}
		if len(ids) > 0 {
			entries, err := s.remote.Fetch(ctx, ids)
			if err != nil {
				run.fail("Batch %d: fetch of %d vectors failed: %v", batch, len(ids), err)
			} else {
				run.log(domain.LogInfo, "Batch %d: %d vectors", batch, len(entries))
				for i := range entries {
					s.saveEntry(ctx, run, &entries[i])
				}
			}
		}
		token = next
		run.report.Cursor = token
		if token == "" || s.afterBatch(run) {
			break
		}
	}
	return nil
}

func (s *MigrationService) saveEntry(ctx context.Context, run *migrationRun, entry *domain.VectorEntry) {
	id, err := strconv.ParseInt(entry.ID, 10, 64)
	if err != nil || id <= 0 {
		run.fail("Vector %q: id is not a chunk id", entry.ID)
		return
	}
	if !inScope(run.report.Options, entry.Metadata) {
		run.report.Summary.Skipped++
		return
	}

	content := domain.AsString(entry.Metadata[domain.MetaContent])
	if content == "" {
		run.fail("Vector %s: missing content", entry.ID)
		return
	}
	documentID := domain.AsInt64(entry.Metadata[domain.MetaDocumentID])
	if documentID == 0 {
		run.fail("Vector %s: missing document_id", entry.ID)
		return
	}
	if len(entry.Values) == 0 {
		run.fail("Vector %s: no values", entry.ID)
		return
	}
	exists, err := s.docs.DocumentExists(ctx, documentID)
	if err != nil {
		run.fail("Vector %s: checking document %d: %v", entry.ID, documentID, err)
		return
	}
	if !exists {
		run.fail("Vector %s: document %d no longer exists", entry.ID, documentID)
		return
	}

	meta := domain.ChunkMetadataFromMap(entry.Metadata)
	model := domain.AsString(meta.Extra[MetaEmbeddingModel])
	delete(meta.Extra, MetaEmbeddingModel)
	if model == "" {
		model = unknownModel
	}
	if meta.Extra == nil {
		meta.Extra = make(map[string]any)
	}
	meta.Extra[MetaMigratedFrom] = "remote"
	meta.Extra[MetaMigratedAt] = s.now().UTC().Format(time.RFC3339)

	chunk := &domain.Chunk{
		ID:         id,
		DocumentID: documentID,
		Content:    content,
		ChunkIndex: meta.ChunkIndex,
		Metadata:   meta,
	}
	if _, err := s.docs.SaveChunk(ctx, chunk); err != nil {
		run.fail("Vector %s: saving chunk: %v", entry.ID, err)
		return
	}
	if err := s.docs.SaveEmbedding(ctx, &domain.Embedding{ChunkID: id, Vector: entry.Values, Model: model}); err != nil {
		run.fail("Vector %s: saving embedding: %v", entry.ID, err)
		return
	}
	run.report.Summary.Migrated++
}

// inScope applies the run's scope to a remote vector's metadata.
func inScope(opts domain.MigrationOptions, meta map[string]any) bool {
	switch opts.Scope {
	case domain.ScopeByType:
		return slices.Contains(opts.ContentTypes, domain.AsString(meta[domain.MetaContentType])) ||
			slices.Contains(opts.ContentTypes, domain.AsString(meta[domain.MetaSourceType]))
	case domain.ScopeSelected:
		return slices.Contains(opts.DocumentIDs, domain.AsInt64(meta[domain.MetaDocumentID]))
	default:
		return true
	}
}

// afterBatch reclaims memory above the high-water mark and reports whether
// the time budget is spent.
func (s *MigrationService) afterBatch(run *migrationRun) bool {
	if s.settings.MemoryHighWaterMB > 0 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		if stats.HeapAlloc > uint64(s.settings.MemoryHighWaterMB)<<20 {
			run.log(domain.LogInfo, "Heap at %d MB, reclaiming memory", stats.HeapAlloc>>20)
			runtime.GC()
			debug.FreeOSMemory()
		}
	}
	if s.settings.TimeBudget > 0 && s.now().Sub(run.started) > s.settings.TimeBudget {
		run.report.Summary.TimedOut = true
		run.log(domain.LogWarning, "Time budget of %s spent, stopping after this batch; run again to resume", s.settings.TimeBudget)
		return true
	}
	return false
}

// ClearDatabase removes vector data from target and returns per-table counts.
func (s *MigrationService) ClearDatabase(ctx context.Context, target domain.ClearTarget) (map[string]int, error) {
	var (
		counts map[string]int
		err    error
	)
	switch target {
	case domain.ClearLocal, domain.ClearKnowledgeBase:
		counts, err = s.docs.Clear(ctx, target == domain.ClearKnowledgeBase)
		if err != nil {
			return nil, &domain.StorageError{Op: "clear " + string(target), Err: err}
		}
	case domain.ClearRemote:
		if s.remote == nil {
			return nil, domain.ErrRemoteIndexUnavailable
		}
		total := 0
		if stats, statErr := s.remote.DescribeStats(ctx); statErr == nil {
			total = stats.TotalVectors
		} else {
			logger.Warn("Describing remote index before clear: %v", statErr)
		}
		if err := s.remote.DeleteAll(ctx); err != nil {
			return nil, fmt.Errorf("clear remote index: %w", err)
		}
		counts = map[string]int{"remote_vectors": total}
	default:
		return nil, fmt.Errorf("unknown clear target %q: %w", target, domain.ErrInvalidInput)
	}
	invalidateGroups(ctx, s.cache, driven.CacheGroupSearch, driven.CacheGroupContext)
	logger.Info("Cleared %s: %v", target, counts)
	return counts, nil
}

// IsInProgress reports whether err means another migration holds the lock.
func IsInProgress(err error) bool {
	return errors.Is(err, domain.ErrMigrationInProgress)
}
