package mcp

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	results   []domain.ContextResult
	err       error
	lastQuery string
	lastOwner int64
	lastOpts  domain.ContextOptions
}

func (m *mockRetrievalService) FindContext(
	_ context.Context,
	query string,
	ownerID int64,
	opts domain.ContextOptions,
) ([]domain.ContextResult, error) {
	m.lastQuery = query
	m.lastOwner = ownerID
	m.lastOpts = opts
	return m.results, m.err
}

// mockChatService is a mock implementation of driving.ChatService.
// Only GenerateResponse is exercised by the server.
type mockChatService struct {
	driving.ChatService
	response *domain.ChatResponse
	err      error
	requests []domain.ChatRequest
}

func (m *mockChatService) GenerateResponse(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.requests = append(m.requests, req)
	return m.response, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	driving.IngestionService
	documents []domain.Document
	err       error
}

func (m *mockIngestionService) ListDocuments(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

// mockChatbotService is a mock implementation of driving.ChatbotService.
type mockChatbotService struct {
	driving.ChatbotService
	bots []domain.Chatbot
	err  error
}

func (m *mockChatbotService) Get(_ context.Context, id int64) (*domain.Chatbot, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.bots {
		if m.bots[i].ID == id {
			return &m.bots[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockChatbotService) List(_ context.Context) ([]domain.Chatbot, error) {
	return m.bots, m.err
}
