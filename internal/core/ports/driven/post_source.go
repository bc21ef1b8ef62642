package driven

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// PostSource reads CMS posts.
type PostSource interface {
	// GetPost retrieves a post by ID.
	GetPost(ctx context.Context, id int64) (*domain.Post, error)

	// SavePost inserts or updates a post. A zero ID is assigned on insert.
	SavePost(ctx context.Context, post *domain.Post) error
}

// ContentFilter post-processes loaded post text. Filters run in registration order.
type ContentFilter func(ctx context.Context, post *domain.Post, text string) (string, error)

// OptionStore reads and writes named settings.
type OptionStore interface {
	// GetOption returns the value and whether it exists.
	GetOption(ctx context.Context, name string) (string, bool, error)

	// SetOption stores a value.
	SetOption(ctx context.Context, name, value string) error

	// DeleteOption removes a value. Deleting a missing option is not an error.
	DeleteOption(ctx context.Context, name string) error
}
