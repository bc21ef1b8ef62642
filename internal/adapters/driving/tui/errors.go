package tui

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("tui: retrieval service is required")

// ErrMissingChatService is returned when the chat service is not provided.
var ErrMissingChatService = errors.New("tui: chat service is required")

// ErrMissingIngestionService is returned when the ingestion service is not provided.
var ErrMissingIngestionService = errors.New("tui: ingestion service is required")
