package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// --- Mock implementations shared by service tests ---

const testDimensions = 4096

// vocabulary gives every distinct test word its own dimension, so vectors
// never collide.
var vocabulary = struct {
	sync.Mutex
	index map[string]int
}{index: make(map[string]int)}

func wordIndex(word string) int {
	vocabulary.Lock()
	defer vocabulary.Unlock()
	idx, ok := vocabulary.index[word]
	if !ok {
		idx = len(vocabulary.index) % testDimensions
		vocabulary.index[word] = idx
	}
	return idx
}

// bagOfWords embeds text as word counts, so texts sharing words score as
// similar and texts sharing none score zero.
func bagOfWords(text string) []float32 {
	vec := make([]float32, testDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		vec[wordIndex(w)]++
	}
	if len(words) == 0 {
		vec[0] = 1
	}
	return vec
}

// mockLLM implements driven.LLMProvider for testing.
type mockLLM struct {
	mu          sync.Mutex
	embedCalls  [][]string
	completions [][]driven.ChatMessage
	reply       string
	usage       driven.TokenUsage
	embedErr    error
	completeErr error
	shortBy     int
}

func newMockLLM() *mockLLM {
	return &mockLLM{
		reply: "Our opening hours are nine to five.",
		usage: driven.TokenUsage{PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50},
	}
}

func (m *mockLLM) Complete(_ context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions) (*driven.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, messages)
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &driven.Completion{Content: m.reply, Usage: m.usage, Model: opts.Model}, nil
}

func (m *mockLLM) Stream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions, onDelta func(string) error,
) (*driven.Completion, error) {
	completion, err := m.Complete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(completion.Content, " ") {
		if err := onDelta(word); err != nil {
			return nil, err
		}
	}
	return completion, nil
}

func (m *mockLLM) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls = append(m.embedCalls, append([]string(nil), texts...))
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts[:len(texts)-m.shortBy] {
		out = append(out, bagOfWords(t))
	}
	return out, nil
}

func (m *mockLLM) ModelName() string            { return "mock-model" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

func (m *mockLLM) embedCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.embedCalls)
}

func (m *mockLLM) completionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completions)
}

// mockRemoteIndex implements driven.RemoteVectorIndex in memory.
type mockRemoteIndex struct {
	mu        sync.Mutex
	vectors   map[string]domain.VectorEntry
	upsertErr map[string]error
	queries   []map[string]any
}

func newMockRemoteIndex() *mockRemoteIndex {
	return &mockRemoteIndex{
		vectors:   make(map[string]domain.VectorEntry),
		upsertErr: make(map[string]error),
	}
}

func (m *mockRemoteIndex) Upsert(_ context.Context, vectors []domain.VectorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		if err := m.upsertErr[v.ID]; err != nil {
			return err
		}
	}
	for _, v := range vectors {
		m.vectors[v.ID] = v
	}
	return nil
}

func (m *mockRemoteIndex) Query(_ context.Context, vector []float32, topK int, filter map[string]any) ([]driven.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, filter)

	var matches []driven.VectorMatch
	for _, v := range m.vectors {
		if owner, ok := filter[domain.MetaChatbotID]; ok && domain.AsInt64(v.Metadata[domain.MetaChatbotID]) != domain.AsInt64(owner) {
			continue
		}
		matches = append(matches, driven.VectorMatch{ID: v.ID, Score: CosineSimilarity(vector, v.Values), Metadata: v.Metadata})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *mockRemoteIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.vectors, id)
	}
	return nil
}

func (m *mockRemoteIndex) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = make(map[string]domain.VectorEntry)
	return nil
}

func (m *mockRemoteIndex) Fetch(_ context.Context, ids []string) ([]domain.VectorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.VectorEntry, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.vectors[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockRemoteIndex) ListIDs(_ context.Context, limit int, token string) ([]string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.vectors))
	for id := range m.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	if start >= len(ids) {
		return nil, "", nil
	}
	end := start + limit
	if end >= len(ids) {
		return ids[start:], "", nil
	}
	return ids[start:end], strconv.Itoa(end), nil
}

func (m *mockRemoteIndex) DescribeStats(_ context.Context) (*driven.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &driven.IndexStats{TotalVectors: len(m.vectors), Dimension: testDimensions}, nil
}

func (m *mockRemoteIndex) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors)
}

// mockFetcher implements driven.HTTPFetcher for testing.
type mockFetcher struct {
	resp    *driven.HTTPResponse
	err     error
	lastURL string
	lastOpt driven.FetchOptions
}

func (m *mockFetcher) Get(_ context.Context, url string, opts driven.FetchOptions) (*driven.HTTPResponse, error) {
	m.lastURL = url
	m.lastOpt = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

// failingUsageStore is a conversation store whose usage query always fails.
type failingUsageStore struct {
	driven.ConversationStore
}

func (failingUsageStore) UsageSince(context.Context, domain.Identity, time.Time) (domain.Usage, error) {
	return domain.Usage{}, errBoom
}

var errBoom = errors.New("boom")
