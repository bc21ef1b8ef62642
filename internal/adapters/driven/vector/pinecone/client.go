// Package pinecone provides a driven.RemoteVectorIndex over the Pinecone data plane REST API.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.RemoteVectorIndex = (*Index)(nil)

// Default configuration values.
const (
	APIVersion     = "2024-07"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for a Pinecone index.
type Config struct {
	// APIKey authenticates every request.
	APIKey string

	// IndexHost is the index data plane host, with or without scheme.
	IndexHost string

	// Namespace scopes every operation. Empty is the default namespace.
	Namespace string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Index talks to one Pinecone index namespace.
type Index struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	namespace string
}

// APIError reports a non-2xx response from Pinecone.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinecone error (status %d): %s", e.StatusCode, e.Message)
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type queryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
	Namespace       string         `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type deleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
}

type fetchResponse struct {
	Vectors map[string]vector `json:"vectors"`
}

type listResponse struct {
	Vectors []struct {
		ID string `json:"id"`
	} `json:"vectors"`
	Pagination *struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

type statsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
	Dimension        int `json:"dimension"`
	TotalVectorCount int `json:"totalVectorCount"`
}

// New creates an index client.
func New(cfg Config) (*Index, error) {
	if cfg.APIKey == "" || cfg.IndexHost == "" {
		return nil, domain.ErrRemoteIndexUnavailable
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	host := strings.TrimRight(cfg.IndexHost, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return &Index{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   host,
		apiKey:    cfg.APIKey,
		namespace: cfg.Namespace,
	}, nil
}

// FromSettings builds an index from settings, or returns ErrRemoteIndexUnavailable.
func FromSettings(settings domain.PineconeSettings) (*Index, error) {
	if !settings.IsConfigured() {
		return nil, domain.ErrRemoteIndexUnavailable
	}
	return New(Config{APIKey: settings.APIKey, IndexHost: settings.IndexHost, Namespace: settings.Namespace})
}

// Upsert inserts or replaces vectors by ID.
func (x *Index) Upsert(ctx context.Context, vectors []domain.VectorEntry) error {
	if len(vectors) == 0 {
		return nil
	}
	body := upsertRequest{Vectors: make([]vector, len(vectors)), Namespace: x.namespace}
	for i, v := range vectors {
		body.Vectors[i] = vector{ID: v.ID, Values: v.Values, Metadata: v.Metadata}
	}
	if err := x.do(ctx, http.MethodPost, "/vectors/upsert", body, nil); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// Query returns the topK nearest vectors matching filter, with metadata.
func (x *Index) Query(
	ctx context.Context, values []float32, topK int, filter map[string]any,
) ([]driven.VectorMatch, error) {
	body := queryRequest{
		Vector:          values,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
		Namespace:       x.namespace,
	}
	var resp queryResponse
	if err := x.do(ctx, http.MethodPost, "/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	matches := make([]driven.VectorMatch, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = driven.VectorMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return matches, nil
}

// Delete removes vectors by ID.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.do(ctx, http.MethodPost, "/vectors/delete", deleteRequest{IDs: ids, Namespace: x.namespace}, nil); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// DeleteAll removes every vector in the namespace.
func (x *Index) DeleteAll(ctx context.Context) error {
	if err := x.do(ctx, http.MethodPost, "/vectors/delete", deleteRequest{DeleteAll: true, Namespace: x.namespace}, nil); err != nil {
		return fmt.Errorf("delete all vectors: %w", err)
	}
	return nil
}

// Fetch returns vectors by ID in request order. Missing IDs are skipped.
func (x *Index) Fetch(ctx context.Context, ids []string) ([]domain.VectorEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	if x.namespace != "" {
		q.Set("namespace", x.namespace)
	}

	var resp fetchResponse
	if err := x.do(ctx, http.MethodGet, "/vectors/fetch?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch vectors: %w", err)
	}

	entries := make([]domain.VectorEntry, 0, len(resp.Vectors))
	for _, id := range ids {
		v, ok := resp.Vectors[id]
		if !ok {
			continue
		}
		entries = append(entries, domain.VectorEntry{ID: id, Values: v.Values, Metadata: v.Metadata})
	}
	return entries, nil
}

// ListIDs pages through vector IDs. An empty next token means the last page.
func (x *Index) ListIDs(ctx context.Context, limit int, token string) ([]string, string, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if token != "" {
		q.Set("paginationToken", token)
	}
	if x.namespace != "" {
		q.Set("namespace", x.namespace)
	}

	var resp listResponse
	if err := x.do(ctx, http.MethodGet, "/vectors/list?"+q.Encode(), nil, &resp); err != nil {
		return nil, "", fmt.Errorf("list vectors: %w", err)
	}

	ids := make([]string, len(resp.Vectors))
	for i, v := range resp.Vectors {
		ids[i] = v.ID
	}
	next := ""
	if resp.Pagination != nil {
		next = resp.Pagination.Next
	}
	return ids, next, nil
}

// DescribeStats reports index size.
func (x *Index) DescribeStats(ctx context.Context) (*driven.IndexStats, error) {
	var resp statsResponse
	if err := x.do(ctx, http.MethodPost, "/describe_index_stats", struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("describe index stats: %w", err)
	}

	stats := &driven.IndexStats{
		TotalVectors: resp.TotalVectorCount,
		Dimension:    resp.Dimension,
		Namespaces:   make(map[string]int, len(resp.Namespaces)),
	}
	for name, ns := range resp.Namespaces {
		stats.Namespaces[name] = ns.VectorCount
	}
	return stats, nil
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (x *Index) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Api-Key", x.apiKey)
	req.Header.Set("X-Pinecone-API-Version", APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
