// Package mcp provides an MCP (Model Context Protocol) server adapter
// for memvault. It enables AI assistants like Claude to search the
// memory and ask questions over it.
package mcp

import "errors"

// ErrMissingMemoryService is returned when the memory service is not provided.
var ErrMissingMemoryService = errors.New("mcp: memory service is required")
