package hinttools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintstore"
	"github.com/mark3labs/mcp-go/mcp"
)

// SaveTool handles the save_hint MCP tool.
type SaveTool struct {
	store *hintstore.Store
}

// NewSaveTool creates a SaveTool over the given store.
func NewSaveTool(store *hintstore.Store) *SaveTool {
	return &SaveTool{store: store}
}

// Definition returns the MCP tool definition for save_hint.
func (t *SaveTool) Definition() mcp.Tool {
	return mcp.NewTool("save_hint",
		mcp.WithDescription(
			"Save a learned automation recipe for a website so future sessions can replay it. "+
				"Call this after completing a multi-step interaction that took real effort to figure out — "+
				"logins, tricky forms, modal dances. Never include credentials; secret values are stripped.",
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page URL the recipe was learned on; the hint is scoped to its domain"),
		),
		mcp.WithString("pattern_type",
			mcp.Required(),
			mcp.Description("Interaction category: login, form_fill, navigation, interaction, wait, modal, dynamic, search, upload, pagination"),
		),
		mcp.WithArray("recipe",
			mcp.Required(),
			mcp.Description("Ordered tool call steps: [{tool, args, wait_after_ms?, retry_on_failure?, fallback?}, ...]"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What the recipe accomplishes, in one or two sentences (max 200 chars, no personal data)"),
		),
		mcp.WithString("path_pattern",
			mcp.Description("Optional URL path scope, supporting * (one segment) and ** (rest), e.g. /repo/*/settings"),
		),
		mcp.WithString("selector_guard",
			mcp.Description("CSS selector that must exist on the page before the recipe is replayed"),
		),
		mcp.WithObject("context",
			mcp.Description("Optional applicability constraints: {min_viewport, requires_auth, user_role, locale, user_agent_pattern}"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Initial confidence 0..1 (default 0.5)"),
		),
		mcp.WithString("page_html",
			mcp.Description("Raw HTML of the page, used to record a structural fingerprint for later drift detection"),
		),
	)
}

type saveResponse struct {
	Status           string   `json:"status"`
	HintID           string   `json:"hint_id,omitempty"`
	SupersededHintID string   `json:"superseded_hint_id,omitempty"`
	ExistingHintID   string   `json:"existing_hint_id,omitempty"`
	Message          string   `json:"message"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Handle processes the save_hint tool call.
func (t *SaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := req.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("'url' is required"), nil
	}
	domain, err := domainOf(rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	recipeArg, ok := req.GetArguments()["recipe"]
	if !ok {
		return mcp.NewToolResultError("'recipe' is required"), nil
	}
	var recipe []hints.ToolCallStep
	if err := decodeArg(recipeArg, &recipe); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'recipe' is not a valid step array: %v", err)), nil
	}

	candidate := &hints.Hint{
		Domain:        domain,
		PathPattern:   req.GetString("path_pattern", ""),
		PatternType:   hints.PatternType(req.GetString("pattern_type", "")),
		SelectorGuard: req.GetString("selector_guard", ""),
		Recipe:        recipe,
		Description:   req.GetString("description", ""),
		Confidence:    floatArg(req, "confidence", 0),
	}
	if ctxArg, ok := req.GetArguments()["context"]; ok {
		var hctx hints.HintContext
		if err := decodeArg(ctxArg, &hctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("'context' is not a valid context object: %v", err)), nil
		}
		candidate.Context = &hctx
	}
	if pageHTML := req.GetString("page_html", ""); pageHTML != "" {
		candidate.DOMFingerprint = hints.HTMLFingerprint(pageHTML)
	}

	res, err := t.store.SaveHint(ctx, candidate)
	if err != nil {
		var verr *hintstore.ValidationError
		if errors.As(err, &verr) {
			return mcp.NewToolResultError("invalid hint:\n- " + strings.Join(verr.Errors, "\n- ")), nil
		}
		var cerr *hintstore.ConflictError
		if errors.As(err, &cerr) {
			return jsonResult(saveResponse{
				Status:         "conflict",
				ExistingHintID: cerr.ExistingID,
				Message: fmt.Sprintf("an active hint (%s) already covers this scope for this author "+
					"and its confidence is not lower; save with higher confidence to replace it", formatPercent(cerr.ExistingConfidence)),
			}), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to save hint: %v", err)), nil
	}

	message := fmt.Sprintf("Hint saved for %s (%d steps)", domain, len(recipe))
	if res.Superseded != "" {
		message += fmt.Sprintf(", replacing %s", res.Superseded)
	}
	return jsonResult(saveResponse{
		Status:           "success",
		HintID:           res.ID,
		SupersededHintID: res.Superseded,
		Message:          message,
		Warnings:         res.Warnings,
	}), nil
}

// domainOf extracts the lowercase host of a page URL.
func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("'url' is not a valid URL: %v", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("'url' %q has no host", rawURL)
	}
	return host, nil
}
