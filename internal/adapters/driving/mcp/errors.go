// Package mcp provides an MCP (Model Context Protocol) server adapter for ragline.
// It lets AI assistants pull grounded context from the knowledge base and ask
// the configured chatbots questions.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

// ErrChatUnavailable is returned by the ask tool when no chat service is wired.
var ErrChatUnavailable = errors.New("mcp: chat service is not configured")
