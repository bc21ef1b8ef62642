package tui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// MockRetrievalService implements driving.RetrievalService for testing.
type MockRetrievalService struct {
	FindContextFunc func(ctx context.Context, query string, ownerID int64, opts domain.ContextOptions) ([]domain.ContextResult, error)
}

func (m *MockRetrievalService) FindContext(
	ctx context.Context, query string, ownerID int64, opts domain.ContextOptions,
) ([]domain.ContextResult, error) {
	if m.FindContextFunc != nil {
		return m.FindContextFunc(ctx, query, ownerID, opts)
	}
	return nil, nil
}

// MockChatService implements driving.ChatService for testing.
type MockChatService struct {
	GenerateResponseFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *MockChatService) GenerateResponse(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, req)
	}
	return &domain.ChatResponse{Response: "ok", ConversationID: 1}, nil
}

func (m *MockChatService) StreamResponse(
	ctx context.Context, req domain.ChatRequest, _ func(string) error,
) (*domain.ChatResponse, error) {
	return m.GenerateResponse(ctx, req)
}

func (m *MockChatService) ListConversations(context.Context, domain.Identity) ([]domain.Conversation, error) {
	return nil, nil
}

func (m *MockChatService) History(context.Context, int64) ([]domain.Message, error) {
	return nil, nil
}

func (m *MockChatService) SetFavorite(context.Context, int64, bool) error { return nil }

func (m *MockChatService) SetArchived(context.Context, int64, bool) error { return nil }

func (m *MockChatService) DeleteConversation(context.Context, int64) error { return nil }

// MockIngestionService implements driving.IngestionService for testing.
type MockIngestionService struct {
	ListDocumentsFunc func(ctx context.Context) ([]domain.Document, error)
}

func (m *MockIngestionService) Enqueue(context.Context, domain.DocumentRequest) (*domain.Document, error) {
	return &domain.Document{}, nil
}

func (m *MockIngestionService) Requeue(context.Context, int64) error { return nil }

func (m *MockIngestionService) ProcessDocument(
	context.Context, string, domain.SourceType, int64, domain.ProcessOptions,
) (*domain.ProcessResult, error) {
	return &domain.ProcessResult{}, nil
}

func (m *MockIngestionService) ProcessQueue(context.Context, int) (*domain.QueueResult, error) {
	return &domain.QueueResult{}, nil
}

func (m *MockIngestionService) DeleteDocument(context.Context, int64) error { return nil }

func (m *MockIngestionService) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if m.ListDocumentsFunc != nil {
		return m.ListDocumentsFunc(ctx)
	}
	return nil, nil
}

func (m *MockIngestionService) Stats(context.Context) (domain.DocumentStats, error) {
	return domain.DocumentStats{}, nil
}

func TestPorts_Validate(t *testing.T) {
	tests := []struct {
		name  string
		ports Ports
		want  error
	}{
		{
			name: "all services",
			ports: Ports{
				Retrieval: &MockRetrievalService{},
				Chat:      &MockChatService{},
				Ingestion: &MockIngestionService{},
			},
		},
		{
			name:  "missing retrieval",
			ports: Ports{Chat: &MockChatService{}, Ingestion: &MockIngestionService{}},
			want:  ErrMissingRetrievalService,
		},
		{
			name:  "missing chat",
			ports: Ports{Retrieval: &MockRetrievalService{}, Ingestion: &MockIngestionService{}},
			want:  ErrMissingChatService,
		},
		{
			name:  "missing ingestion",
			ports: Ports{Retrieval: &MockRetrievalService{}, Chat: &MockChatService{}},
			want:  ErrMissingIngestionService,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ports.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPorts_IdentityIsOptional(t *testing.T) {
	p := Ports{
		Retrieval: &MockRetrievalService{},
		Chat:      &MockChatService{},
		Ingestion: &MockIngestionService{},
	}

	assert.True(t, p.Identity.IsZero())
	assert.NoError(t, p.Validate())
}
