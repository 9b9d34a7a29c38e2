package hinttools

import (
	"context"
	"errors"
	"fmt"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintstore"
	"github.com/mark3labs/mcp-go/mcp"
)

// ReportTool handles the report_hint_outcome MCP tool.
type ReportTool struct {
	store *hintstore.Store
}

// NewReportTool creates a ReportTool over the given store.
func NewReportTool(store *hintstore.Store) *ReportTool {
	return &ReportTool{store: store}
}

// Definition returns the MCP tool definition for report_hint_outcome.
func (t *ReportTool) Definition() mcp.Tool {
	return mcp.NewTool("report_hint_outcome",
		mcp.WithDescription(
			"Report whether a replayed hint worked. Always call this after executing a hint's recipe — "+
				"outcomes drive confidence, ranking and the retirement of recipes that stopped working.",
		),
		mcp.WithString("hint_id",
			mcp.Required(),
			mcp.Description("The hint that was executed"),
		),
		mcp.WithBoolean("success",
			mcp.Required(),
			mcp.Description("Whether the recipe worked end to end"),
		),
		mcp.WithString("error_message",
			mcp.Description("What went wrong, when it failed"),
		),
		mcp.WithNumber("execution_time_ms",
			mcp.Description("How long the recipe took to run"),
		),
	)
}

type reportResponse struct {
	Status       string  `json:"status"`
	HintID       string  `json:"hint_id"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	Confidence   float64 `json:"confidence"`
	Deactivated  bool    `json:"deactivated"`
	Message      string  `json:"message"`
}

// Handle processes the report_hint_outcome tool call.
func (t *ReportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hintID := req.GetString("hint_id", "")
	if hintID == "" {
		return mcp.NewToolResultError("'hint_id' is required"), nil
	}
	successArg, ok := req.GetArguments()["success"].(bool)
	if !ok {
		return mcp.NewToolResultError("'success' is required and must be a boolean"), nil
	}

	updated, err := t.store.UpdateHintStats(ctx, hintID, hints.ExecutionReport{
		Success:         successArg,
		ErrorMessage:    req.GetString("error_message", ""),
		ExecutionTimeMs: int64(intArg(req, "execution_time_ms", 0)),
	})
	if err != nil {
		var nferr *hintstore.NotFoundError
		if errors.As(err, &nferr) {
			return mcp.NewToolResultError(fmt.Sprintf("no active hint with id %q", hintID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to record outcome: %v", err)), nil
	}

	message := fmt.Sprintf("Outcome recorded; confidence is now %s", formatPercent(updated.Confidence))
	if !updated.IsActive {
		message = "Outcome recorded; the hint kept failing and has been deactivated"
	}
	return jsonResult(reportResponse{
		Status:       "success",
		HintID:       hintID,
		SuccessCount: updated.SuccessCount,
		FailureCount: updated.FailureCount,
		Confidence:   updated.Confidence,
		Deactivated:  !updated.IsActive,
		Message:      message,
	}), nil
}
