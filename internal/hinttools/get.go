package hinttools

import (
	"context"
	"fmt"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintstore"
	"github.com/mark3labs/mcp-go/mcp"
)

// GetOptions carries the configured retrieval defaults of the get_hints
// tool. Callers can still override both per request.
type GetOptions struct {
	MinConfidence float64
	DefaultLimit  int
}

// GetTool handles the get_hints MCP tool.
type GetTool struct {
	store *hintstore.Store
	opts  GetOptions
}

// NewGetTool creates a GetTool over the given store.
func NewGetTool(store *hintstore.Store, opts GetOptions) *GetTool {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = hintstore.DefaultHintLimit
	}
	return &GetTool{store: store, opts: opts}
}

// Definition returns the MCP tool definition for get_hints.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("get_hints",
		mcp.WithDescription(
			"Retrieve learned automation hints for a page before interacting with it. "+
				"Returns proven recipes ranked by confidence, recency and usage; check these first "+
				"instead of rediscovering a flow step by step.",
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page URL to look up"),
		),
		mcp.WithBoolean("include_domain_hints",
			mcp.Description("Also return hints learned elsewhere on the same domain (default true)"),
		),
		mcp.WithNumber("min_confidence",
			mcp.Description("Drop hints below this confidence (default from configuration, 0 disables)"),
		),
		mcp.WithString("pattern_type",
			mcp.Description("Keep only one interaction category, e.g. login or form_fill"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum hints to return (default 5)"),
		),
		mcp.WithString("page_html",
			mcp.Description("Current page HTML; enables selector guard and fingerprint matching against the live page"),
		),
	)
}

type getResponse struct {
	Hints      []FormattedHint `json:"hints"`
	TotalFound int             `json:"total_found"`
	Message    string          `json:"message,omitempty"`
}

// Handle processes the get_hints tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := req.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("'url' is required"), nil
	}

	patternType := hints.PatternType(req.GetString("pattern_type", ""))
	if patternType != "" && !patternType.Known() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown pattern_type %q", patternType)), nil
	}

	q := hintstore.Query{
		URL:           rawURL,
		Limit:         intArg(req, "limit", t.opts.DefaultLimit),
		ExactOnly:     !boolArg(req, "include_domain_hints", true),
		MinConfidence: floatArg(req, "min_confidence", t.opts.MinConfidence),
		PatternType:   patternType,
	}
	if pageHTML := req.GetString("page_html", ""); pageHTML != "" {
		q.DOM = hints.NewSnapshotDOM(pageHTML)
	}

	found, err := t.store.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get hints: %v", err)), nil
	}

	resp := getResponse{
		Hints:      make([]FormattedHint, len(found)),
		TotalFound: len(found),
	}
	for i := range found {
		resp.Hints[i] = FormatHint(&found[i])
	}
	if len(found) == 0 {
		resp.Message = fmt.Sprintf("No hints recorded for %s yet", rawURL)
	}
	return jsonResult(resp), nil
}
