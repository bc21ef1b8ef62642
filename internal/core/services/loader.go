package services

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// TempFileMaxAge is the age after which staged temp files are removed.
const TempFileMaxAge = 24 * time.Hour

// tempFilePattern matches files staged by ragline in the temp directory.
const tempFilePattern = "ragline-*"

// browserHeaders are sent with every URL fetch; many sites reject bare clients.
var browserHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// statusMessages explains the HTTP statuses users hit most often.
var statusMessages = map[int]string{
	403: "access forbidden: the site blocks automated requests",
	404: "page not found",
	429: "too many requests: the site is rate limiting, try again later",
	500: "the site reported an internal server error",
}

// DocumentLoader fetches file, URL and post content and normalises it to text.
type DocumentLoader struct {
	settings domain.LoaderSettings
	registry driven.NormaliserRegistry
	fetcher  driven.HTTPFetcher
	posts    driven.PostSource
	filters  []driven.ContentFilter
	now      func() time.Time
}

// NewDocumentLoader creates a loader. fetcher and posts may be nil when the
// corresponding source types are not used.
func NewDocumentLoader(
	settings domain.LoaderSettings,
	registry driven.NormaliserRegistry,
	fetcher driven.HTTPFetcher,
	posts driven.PostSource,
) *DocumentLoader {
	return &DocumentLoader{
		settings: settings,
		registry: registry,
		fetcher:  fetcher,
		posts:    posts,
		now:      time.Now,
	}
}

// AddContentFilter registers a hook applied to post text, in registration order.
func (l *DocumentLoader) AddContentFilter(filter driven.ContentFilter) {
	l.filters = append(l.filters, filter)
}

// Load dispatches on source type.
func (l *DocumentLoader) Load(
	ctx context.Context, sourceType domain.SourceType, sourceRef string, documentID int64,
) (*domain.LoadedContent, error) {
	switch sourceType {
	case domain.SourceFile:
		return l.LoadFromFile(ctx, sourceRef, documentID)
	case domain.SourceURL:
		return l.LoadFromURL(ctx, sourceRef, documentID)
	case domain.SourcePost:
		postID, err := strconv.ParseInt(strings.TrimSpace(sourceRef), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("post id %q: %w", sourceRef, domain.ErrInvalidInput)
		}
		return l.LoadFromPost(ctx, postID, documentID)
	default:
		return nil, fmt.Errorf("source type %q: %w", sourceType, domain.ErrUnsupportedType)
	}
}

// LoadFromFile reads a file inside one of the allowed directories.
func (l *DocumentLoader) LoadFromFile(ctx context.Context, path string, documentID int64) (*domain.LoadedContent, error) {
	resolved, err := l.allowedPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &domain.NotFoundError{Resource: "file " + path, Err: err}
	}

	mimeType := l.registry.DetectMIMEType(resolved)
	logger.Debug("Loading file %s as %s (%d bytes)", resolved, mimeType, len(data))

	result, err := l.registry.Normalise(ctx, &domain.RawDocument{
		URI:      resolved,
		MIMEType: mimeType,
		Content:  data,
		Metadata: map[string]any{"document_id": documentID},
	})
	if err != nil {
		return nil, err
	}

	loaded, err := loadedContent(resolved, mimeType, result)
	if err != nil {
		return nil, err
	}
	loaded.Metadata["file_name"] = filepath.Base(resolved)
	loaded.Metadata["file_size"] = len(data)
	loaded.Metadata[domain.MetaSourceType] = string(domain.SourceFile)
	return loaded, nil
}

// allowedPath resolves path and checks it lies within an allowed directory.
// With no allowed directories configured every path is rejected.
func (l *DocumentLoader) allowedPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &domain.DisallowedPathError{Path: path}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &domain.NotFoundError{Resource: "file " + path, Err: err}
		}
		resolved = abs
	}

	for _, dir := range l.settings.AllowedDirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if r, err := filepath.EvalSymlinks(root); err == nil {
			root = r
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel) {
			return resolved, nil
		}
	}
	return "", &domain.DisallowedPathError{Path: path}
}

// LoadFromURL fetches a page and extracts its readable content.
func (l *DocumentLoader) LoadFromURL(ctx context.Context, rawURL string, documentID int64) (*domain.LoadedContent, error) {
	if l.fetcher == nil {
		return nil, fmt.Errorf("url loading: %w", domain.ErrNotImplemented)
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url %q: %w", rawURL, domain.ErrInvalidInput)
	}

	headers := make(map[string]string, len(browserHeaders)+1)
	for k, v := range browserHeaders {
		headers[k] = v
	}
	headers["User-Agent"] = l.settings.UserAgent
	if headers["User-Agent"] == "" {
		headers["User-Agent"] = domain.DefaultUserAgent
	}

	logger.Debug("Fetching %s", u.String())
	resp, err := l.fetcher.Get(ctx, u.String(), driven.FetchOptions{
		Headers: headers,
		Timeout: l.settings.Timeout,
	})
	if err != nil {
		return nil, &domain.FetchError{URL: u.String(), Err: err}
	}
	if resp.StatusCode != 200 {
		msg, ok := statusMessages[resp.StatusCode]
		if !ok {
			msg = "unexpected response from the site"
		}
		return nil, &domain.HTTPStatusError{URL: u.String(), StatusCode: resp.StatusCode, Message: msg}
	}

	mimeType := responseMIMEType(resp.Headers)
	raw := &domain.RawDocument{
		URI:      u.String(),
		MIMEType: mimeType,
		Content:  resp.Body,
		Metadata: map[string]any{"document_id": documentID},
	}

	var result *driven.NormaliseResult
	switch {
	case mimeType == "" || strings.Contains(mimeType, "html"):
		raw.MIMEType = "text/html"
		result, err = l.registry.Normalise(ctx, raw)
	case strings.HasPrefix(mimeType, "text/") || mimeType == "application/json":
		result = &driven.NormaliseResult{Title: u.String(), Content: string(resp.Body), Metadata: map[string]any{}}
	default:
		result, err = l.registry.Normalise(ctx, raw)
	}
	if err != nil {
		return nil, err
	}

	loaded, err := loadedContent(u.String(), raw.MIMEType, result)
	if err != nil {
		return nil, err
	}
	loaded.Metadata[domain.MetaSourceType] = string(domain.SourceURL)
	loaded.Metadata[domain.MetaSourceRef] = u.String()
	return loaded, nil
}

func responseMIMEType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			base, _, err := mime.ParseMediaType(v)
			if err != nil {
				return strings.ToLower(strings.TrimSpace(v))
			}
			return strings.ToLower(base)
		}
	}
	return ""
}

// LoadFromPost reads a CMS post, strips its markup and runs content filters.
func (l *DocumentLoader) LoadFromPost(ctx context.Context, postID, documentID int64) (*domain.LoadedContent, error) {
	if l.posts == nil {
		return nil, fmt.Errorf("post loading: %w", domain.ErrNotImplemented)
	}
	post, err := l.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, &domain.NotFoundError{Resource: fmt.Sprintf("post %d", postID), Err: err}
	}

	result, err := l.registry.Normalise(ctx, &domain.RawDocument{
		URI:      post.Permalink,
		MIMEType: "text/html",
		Content:  []byte(post.Content),
		Metadata: map[string]any{"title": post.Title, "document_id": documentID},
	})
	if err != nil {
		return nil, err
	}

	text := result.Content
	for _, filter := range l.filters {
		text, err = filter(ctx, post, text)
		if err != nil {
			return nil, fmt.Errorf("content filter: %w", err)
		}
	}
	result.Content = text

	loaded, err := loadedContent(fmt.Sprintf("post %d", postID), "text/html", result)
	if err != nil {
		return nil, err
	}
	if post.Title != "" {
		loaded.Title = post.Title
	}
	contentType := post.PostType
	if contentType == "" {
		contentType = "post"
	}
	loaded.Metadata[domain.MetaSourceType] = string(domain.SourcePost)
	loaded.Metadata[domain.MetaContentType] = contentType
	loaded.Metadata[domain.MetaPermalink] = post.Permalink
	loaded.Metadata["post_id"] = post.ID
	return loaded, nil
}

// CleanupTempFiles removes staged files older than maxAge from the temp
// directory and returns how many were removed.
func (l *DocumentLoader) CleanupTempFiles(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = TempFileMaxAge
	}
	dir := l.settings.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	matches, err := filepath.Glob(filepath.Join(dir, tempFilePattern))
	if err != nil {
		return 0, fmt.Errorf("list temp files: %w", err)
	}

	cutoff := l.now().Add(-maxAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("remove temp file %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("Removed %d stale temp files from %s", removed, dir)
	}
	return removed, nil
}

// loadedContent converts a normaliser result, rejecting empty text.
func loadedContent(source, mimeType string, result *driven.NormaliseResult) (*domain.LoadedContent, error) {
	text := strings.TrimSpace(result.Content)
	if text == "" {
		return nil, &domain.ParseError{Source: source}
	}
	metadata := make(map[string]any, len(result.Metadata)+4)
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	metadata[domain.MetaMIMEType] = mimeType
	return &domain.LoadedContent{
		Text:     text,
		Title:    strings.TrimSpace(result.Title),
		MIMEType: mimeType,
		Metadata: metadata,
	}, nil
}
