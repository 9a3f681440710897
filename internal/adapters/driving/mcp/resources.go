package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for memvault resources.
	uriScheme = "memvault://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for the memory file statistics.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Counters and index state of the memory file",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	// Static resource for the chronological frame listing.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "timeline",
		Name:        "timeline",
		Description: "Most recent frames in reverse chronological order",
		MIMEType:    "application/json",
	}, s.handleTimelineResource)
}

// handleStatsResource returns the memory file statistics.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Memory.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling stats: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleTimelineResource returns the most recent frames.
func (s *Server) handleTimelineResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	entries, err := s.ports.Memory.Timeline(ctx, domain.TimelineOptions{
		Limit:   50,
		Reverse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("reading timeline: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling timeline: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
