// Package watcher queues upload files for ingestion as they appear.
// It watches the configured upload directories with fsnotify and enqueues
// new or changed files whose type a normaliser can handle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// DefaultDebounce is how long a path must stay quiet before it is queued.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned when Run is called on a closed watcher.
var ErrClosed = errors.New("watcher: closed")

// Watcher enqueues new or changed files under a set of directories.
type Watcher struct {
	ingestion driving.IngestionService
	registry  driven.NormaliserRegistry
	dirs      []string
	debounce  time.Duration
	chatbotID int64

	mu     sync.Mutex
	timers map[string]*time.Timer
	known  map[string]int64
	closed bool
	queued chan string
	fsw    *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period per path.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithChatbot links queued documents to a chatbot.
func WithChatbot(id int64) Option {
	return func(w *Watcher) { w.chatbotID = id }
}

// New creates a watcher over dirs.
func New(ingestion driving.IngestionService, registry driven.NormaliserRegistry, dirs []string, opts ...Option) *Watcher {
	w := &Watcher{
		ingestion: ingestion,
		registry:  registry,
		dirs:      dirs,
		debounce:  DefaultDebounce,
		timers:    make(map[string]*time.Timer),
		known:     make(map[string]int64),
		queued:    make(chan string, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Queued reports paths after they have been enqueued or requeued.
// Sends are dropped when nobody is reading.
func (w *Watcher) Queued() <-chan string {
	return w.queued
}

// Run watches the directories until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.dirs) == 0 {
		return fmt.Errorf("watcher: no directories: %w", domain.ErrInvalidInput)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher: %w", err)
	}
	w.fsw = fsw
	w.mu.Unlock()

	defer w.Close() //nolint:errcheck

	for _, dir := range w.dirs {
		if err := w.addTree(dir); err != nil {
			return err
		}
	}

	if err := w.loadKnown(ctx); err != nil {
		logger.Warn("watcher: could not list existing documents: %v", err)
	}

	logger.Info("watcher: watching %s", strings.Join(w.dirs, ", "))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

// Close stops the watcher and cancels pending timers. It is idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watcher: root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watcher: %s is not a directory: %w", root, domain.ErrInvalidInput)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watcher: add %s: %w", path, err)
		}
		return nil
	})
}

// loadKnown maps existing file documents to their IDs so changed files are
// requeued instead of duplicated.
func (w *Watcher) loadKnown(ctx context.Context) error {
	docs, err := w.ingestion.ListDocuments(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range docs {
		if docs[i].SourceType == domain.SourceFile {
			w.known[docs[i].SourceRef] = docs[i].ID
		}
	}
	return nil
}

// handleEvent starts or resets the debounce timer for a queueable path.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if isHidden(filepath.Base(event.Name)) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("watcher: %v", err)
			}
		}
		return
	}
	if !w.supported(event.Name) {
		logger.Debug("watcher: skipping unsupported file %s", event.Name)
		return
	}

	w.schedule(ctx, event.Name)
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}
		w.enqueue(ctx, path)
	})
}

// enqueue queues a new file or requeues a file seen before.
func (w *Watcher) enqueue(ctx context.Context, path string) {
	w.mu.Lock()
	id, seen := w.known[path]
	w.mu.Unlock()

	if seen {
		if err := w.ingestion.Requeue(ctx, id); err == nil {
			logger.Info("watcher: requeued document %d (%s)", id, path)
			w.notify(path)
			return
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("watcher: requeue %s: %v", path, err)
			return
		}
	}

	doc, err := w.ingestion.Enqueue(ctx, domain.DocumentRequest{
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SourceType: domain.SourceFile,
		SourceRef:  path,
		ChatbotID:  w.chatbotID,
	})
	if err != nil {
		logger.Warn("watcher: enqueue %s: %v", path, err)
		return
	}

	w.mu.Lock()
	w.known[path] = doc.ID
	w.mu.Unlock()

	logger.Info("watcher: queued document %d (%s)", doc.ID, path)
	w.notify(path)
}

func (w *Watcher) notify(path string) {
	select {
	case w.queued <- path:
	default:
	}
}

func (w *Watcher) supported(path string) bool {
	if w.registry == nil {
		return true
	}
	mimeType := w.registry.DetectMIMEType(path)
	return slices.Contains(w.registry.SupportedMIMETypes(), mimeType)
}

// isHidden reports whether a file or directory name starts with a dot.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
