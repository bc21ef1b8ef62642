package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.OptionStore = (*OptionStore)(nil)
	_ driven.PostSource  = (*PostStore)(nil)
)

// OptionStore is an in-memory implementation of driven.OptionStore.
type OptionStore struct {
	mu      sync.RWMutex
	options map[string]string
}

// NewOptionStore creates a new in-memory option store.
func NewOptionStore() *OptionStore {
	return &OptionStore{options: make(map[string]string)}
}

// GetOption returns the value and whether it exists.
func (s *OptionStore) GetOption(_ context.Context, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.options[name]
	return value, ok, nil
}

// SetOption stores a value.
func (s *OptionStore) SetOption(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[name] = value
	return nil
}

// DeleteOption removes a value.
func (s *OptionStore) DeleteOption(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.options, name)
	return nil
}

// PostStore is an in-memory implementation of driven.PostSource.
type PostStore struct {
	mu     sync.RWMutex
	posts  map[int64]domain.Post
	nextID int64
}

// NewPostStore creates a new in-memory post store.
func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[int64]domain.Post)}
}

// GetPost retrieves a post by ID.
func (s *PostStore) GetPost(_ context.Context, id int64) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &post, nil
}

// SavePost inserts or updates a post. A zero ID is assigned on insert.
func (s *PostStore) SavePost(_ context.Context, post *domain.Post) error {
	if post == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == 0 {
		s.nextID++
		post.ID = s.nextID
	} else if post.ID > s.nextID {
		s.nextID = post.ID
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.PostType == "" {
		post.PostType = "post"
	}
	if post.Status == "" {
		post.Status = "publish"
	}
	s.posts[post.ID] = *post
	return nil
}
