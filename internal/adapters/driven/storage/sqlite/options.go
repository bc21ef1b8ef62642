package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// ==================== Option Store ====================

// optionStore implements driven.OptionStore.
type optionStore struct {
	store *Store
}

var _ driven.OptionStore = (*optionStore)(nil)

// GetOption returns the value and whether it exists.
func (s *optionStore) GetOption(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.store.db.QueryRowContext(ctx, "SELECT value FROM options WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading option %s: %w", name, err)
	}
	return value, true, nil
}

// SetOption stores a value.
func (s *optionStore) SetOption(ctx context.Context, name, value string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, name, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving option %s: %w", name, err)
	}
	return nil
}

// DeleteOption removes a value.
func (s *optionStore) DeleteOption(ctx context.Context, name string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM options WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting option %s: %w", name, err)
	}
	return nil
}

// ==================== Post Store ====================

// postStore implements driven.PostSource over the local posts mirror.
type postStore struct {
	store *Store
}

var _ driven.PostSource = (*postStore)(nil)

// GetPost retrieves a post by ID.
func (s *postStore) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	var post domain.Post
	var createdAt, updatedAt string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, content, post_type, permalink, status, created_at, updated_at
		FROM posts WHERE id = ?
	`, id).Scan(&post.ID, &post.Title, &post.Content, &post.PostType, &post.Permalink,
		&post.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning post: %w", err)
	}
	post.CreatedAt = parseTime(createdAt)
	post.UpdatedAt = parseTime(updatedAt)
	return &post, nil
}

// SavePost inserts or updates a post. A zero ID is assigned on insert.
func (s *postStore) SavePost(ctx context.Context, post *domain.Post) error {
	if post == nil {
		return domain.ErrInvalidInput
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

	err := s.store.db.QueryRowContext(ctx, `
		INSERT INTO posts (id, title, content, post_type, permalink, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			post_type = excluded.post_type,
			permalink = excluded.permalink,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING id
	`, nullID(post.ID), post.Title, post.Content, post.PostType, post.Permalink, post.Status,
		formatTime(post.CreatedAt), formatTime(post.UpdatedAt)).Scan(&post.ID)
	if err != nil {
		return fmt.Errorf("saving post: %w", err)
	}
	return nil
}
