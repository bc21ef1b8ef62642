package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/custodia-labs/ragline/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/normalisers"
)

func newTestRegistry() *normalisers.Registry {
	r := normalisers.NewRegistry()
	normalisers.RegisterDefaults(r, domain.LoaderSettings{})
	return r
}

func newTestLoader(t *testing.T, dirs ...string) (*DocumentLoader, *mockFetcher, *memstore.PostStore) {
	t.Helper()
	fetcher := &mockFetcher{}
	posts := memstore.NewPostStore()
	loader := NewDocumentLoader(domain.LoaderSettings{AllowedDirs: dirs, UserAgent: "test-agent"}, newTestRegistry(), fetcher, posts)
	return loader, fetcher, posts
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDocumentLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "store_hours.txt", "We are open from nine to five.")
	loader, _, _ := newTestLoader(t, dir)

	loaded, err := loader.LoadFromFile(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, "We are open from nine to five.", loaded.Text)
	assert.Equal(t, "text/plain", loaded.MIMEType)
	assert.Equal(t, "store hours", loaded.Title)
	assert.Equal(t, "store_hours.txt", loaded.Metadata["file_name"])
	assert.Equal(t, 30, loaded.Metadata["file_size"])
	assert.Equal(t, "file", loaded.Metadata[domain.MetaSourceType])
}

func TestDocumentLoader_LoadFromFile_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "faq.md", "# FAQ\n\nShipping is free over fifty euros.")
	loader, _, _ := newTestLoader(t, dir)

	loaded, err := loader.Load(context.Background(), domain.SourceFile, path, 1)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", loaded.MIMEType)
	assert.Contains(t, loaded.Text, "Shipping is free")
}

func TestDocumentLoader_LoadFromFile_Disallowed(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	path := writeFile(t, outside, "secret.txt", "nope")
	loader, _, _ := newTestLoader(t, allowed)

	_, err := loader.LoadFromFile(context.Background(), path, 1)
	var pathErr *domain.DisallowedPathError
	require.ErrorAs(t, err, &pathErr)

	_, err = loader.LoadFromFile(context.Background(), filepath.Join(allowed, "..", filepath.Base(outside), "secret.txt"), 1)
	require.ErrorAs(t, err, &pathErr, "parent traversal is rejected")
}

func TestDocumentLoader_LoadFromFile_NoAllowedDirs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "content")
	loader, _, _ := newTestLoader(t)

	_, err := loader.LoadFromFile(context.Background(), path, 1)
	var pathErr *domain.DisallowedPathError
	assert.ErrorAs(t, err, &pathErr)
}

func TestDocumentLoader_LoadFromFile_SymlinkEscape(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	target := writeFile(t, outside, "secret.txt", "secret")
	link := filepath.Join(allowed, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	loader, _, _ := newTestLoader(t, allowed)

	_, err := loader.LoadFromFile(context.Background(), link, 1)
	var pathErr *domain.DisallowedPathError
	assert.ErrorAs(t, err, &pathErr)
}

func TestDocumentLoader_LoadFromFile_Missing(t *testing.T) {
	dir := t.TempDir()
	loader, _, _ := newTestLoader(t, dir)

	_, err := loader.LoadFromFile(context.Background(), filepath.Join(dir, "missing.txt"), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentLoader_LoadFromFile_Empty(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blank.txt", "   \n\t ")
	loader, _, _ := newTestLoader(t, dir)

	_, err := loader.LoadFromFile(context.Background(), path, 1)
	var parseErr *domain.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestDocumentLoader_LoadFromFile_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "archive.zip", "PK")
	loader, _, _ := newTestLoader(t, dir)

	_, err := loader.LoadFromFile(context.Background(), path, 1)
	var formatErr *domain.UnsupportedFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestDocumentLoader_LoadFromURL_HTML(t *testing.T) {
	loader, fetcher, _ := newTestLoader(t)
	fetcher.resp = &driven.HTTPResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
		Body: []byte(`<html><head><title>Pricing</title></head><body>
			<nav>Home | About</nav>
			<main><h1>Plans</h1><p>The basic plan costs ten euros a month.</p></main>
			</body></html>`),
	}

	loaded, err := loader.LoadFromURL(context.Background(), "https://example.com/pricing", 3)
	require.NoError(t, err)
	assert.Equal(t, "Pricing", loaded.Title)
	assert.Contains(t, loaded.Text, "ten euros a month")
	assert.NotContains(t, loaded.Text, "Home | About")
	assert.Equal(t, "text/html", loaded.MIMEType)
	assert.Equal(t, "https://example.com/pricing", loaded.Metadata[domain.MetaSourceRef])

	assert.Equal(t, "test-agent", fetcher.lastOpt.Headers["User-Agent"])
	assert.NotEmpty(t, fetcher.lastOpt.Headers["Accept"])
}

func TestDocumentLoader_LoadFromURL_PlainText(t *testing.T) {
	loader, fetcher, _ := newTestLoader(t)
	fetcher.resp = &driven.HTTPResponse{
		StatusCode: 200,
		Headers:    map[string]string{"content-type": "text/plain"},
		Body:       []byte("plain body"),
	}

	loaded, err := loader.LoadFromURL(context.Background(), "http://example.com/robots.txt", 3)
	require.NoError(t, err)
	assert.Equal(t, "plain body", loaded.Text)
	assert.Equal(t, "text/plain", loaded.MIMEType)
}

func TestDocumentLoader_LoadFromURL_Errors(t *testing.T) {
	loader, fetcher, _ := newTestLoader(t)
	ctx := context.Background()

	for _, bad := range []string{"ftp://example.com/file", "not a url", "https://", "file:///etc/passwd"} {
		_, err := loader.LoadFromURL(ctx, bad, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}

	fetcher.err = errors.New("connection refused")
	_, err := loader.LoadFromURL(ctx, "https://example.com", 1)
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "https://example.com", fetchErr.URL)

	fetcher.err = nil
	fetcher.resp = &driven.HTTPResponse{StatusCode: 403}
	_, err = loader.LoadFromURL(ctx, "https://example.com", 1)
	var statusErr *domain.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 403, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, "forbidden")

	fetcher.resp = &driven.HTTPResponse{StatusCode: 418}
	_, err = loader.LoadFromURL(ctx, "https://example.com", 1)
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 418, statusErr.StatusCode)
}

func TestDocumentLoader_LoadFromPost(t *testing.T) {
	loader, _, posts := newTestLoader(t)
	ctx := context.Background()
	post := &domain.Post{
		Title:     "Return policy",
		Content:   "<p>Items can be returned within <strong>30 days</strong>.</p>",
		PostType:  "page",
		Permalink: "https://shop.example/returns",
	}
	require.NoError(t, posts.SavePost(ctx, post))

	loader.AddContentFilter(func(_ context.Context, _ *domain.Post, text string) (string, error) {
		return strings.ReplaceAll(text, "returned", "sent back"), nil
	})
	loader.AddContentFilter(func(_ context.Context, p *domain.Post, text string) (string, error) {
		return p.Title + "\n\n" + text, nil
	})

	loaded, err := loader.Load(ctx, domain.SourcePost, "1", 9)
	require.NoError(t, err)
	assert.Equal(t, "Return policy", loaded.Title)
	assert.True(t, strings.HasPrefix(loaded.Text, "Return policy"), "filters run in order")
	assert.Contains(t, loaded.Text, "30 days")
	assert.Contains(t, loaded.Text, "sent back")
	assert.NotContains(t, loaded.Text, "returned")
	assert.Equal(t, "page", loaded.Metadata[domain.MetaContentType])
	assert.Equal(t, "https://shop.example/returns", loaded.Metadata[domain.MetaPermalink])
	assert.Equal(t, "post", loaded.Metadata[domain.MetaSourceType])
}

func TestDocumentLoader_LoadFromPost_Errors(t *testing.T) {
	loader, _, posts := newTestLoader(t)
	ctx := context.Background()

	_, err := loader.Load(ctx, domain.SourcePost, "42", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = loader.Load(ctx, domain.SourcePost, "forty-two", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, posts.SavePost(ctx, &domain.Post{Title: "T", Content: "<p>body</p>"}))
	loader.AddContentFilter(func(context.Context, *domain.Post, string) (string, error) {
		return "", errBoom
	})
	_, err = loader.Load(ctx, domain.SourcePost, "1", 1)
	assert.ErrorIs(t, err, errBoom)
}

func TestDocumentLoader_Load_UnknownSourceType(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	_, err := loader.Load(context.Background(), domain.SourceType("ftp"), "x", 1)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestDocumentLoader_CleanupTempFiles(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "ragline-old.pdf", "x")
	fresh := writeFile(t, dir, "ragline-fresh.pdf", "x")
	other := writeFile(t, dir, "unrelated.tmp", "x")

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	loader := NewDocumentLoader(domain.LoaderSettings{TempDir: dir}, newTestRegistry(), nil, nil)
	removed, err := loader.CleanupTempFiles(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
