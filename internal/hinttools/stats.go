package hinttools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintstore"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsURI addresses the repository statistics resource.
const StatsURI = "hints://stats"

// StatsHandler serves the hints://stats MCP resource.
type StatsHandler struct {
	store *hintstore.Store
}

// NewStatsHandler creates a StatsHandler over the given store.
func NewStatsHandler(store *hintstore.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// Resource returns the MCP resource definition for repository statistics.
func (h *StatsHandler) Resource() mcp.Resource {
	return mcp.NewResource(
		StatsURI,
		"Hint Engine Statistics",
		mcp.WithResourceDescription("Hint counts, execution totals and per-pattern breakdown of the hint database"),
		mcp.WithMIMEType("application/json"),
	)
}

// Handle returns the current repository statistics as JSON.
func (h *StatsHandler) Handle(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("hinttools: encode stats: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource carrying an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
