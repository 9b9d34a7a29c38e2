// Package server wires the hint engine and creates the MCP server instance.
//
// This is the composition root: it opens the database, builds the store,
// and injects them into the tools and resources. No hint logic lives here,
// only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/config"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintdb"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintstore"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hinttools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with the hint tools and the
// statistics resource registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the hint database and must be
// called on shutdown (typically via defer). It is always non-nil and safe
// to call even when New fails.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---

	policy, err := hintstore.ParseMatchPolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, noop, fmt.Errorf("configuring match policy: %w", err)
	}

	db, err := hintdb.New(cfg.DBPath)
	if err != nil {
		return nil, noop, fmt.Errorf("opening hint database: %w", err)
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			slog.Warn("hint database close failed", "error", err)
		}
	}

	store := hintstore.New(db, hintstore.Options{
		AuthorID:       cfg.AuthorID,
		Policy:         policy,
		PruneNeverUsed: cfg.PruneNeverUsed,
		Logger:         slog.Default(),
	})

	// Startup prune is best-effort: a failure must not keep the server
	// from coming up.
	if _, err := store.PruneStaleHints(context.Background(), cfg.PruneAfterDays); err != nil {
		slog.Warn("startup prune failed", "error", err)
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"browserhints",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register hint tools ---

	saveTool := hinttools.NewSaveTool(store)
	s.AddTool(saveTool.Definition(), saveTool.Handle)

	getTool := hinttools.NewGetTool(store, hinttools.GetOptions{
		MinConfidence: cfg.MinConfidence,
		DefaultLimit:  cfg.DefaultHintLimit,
	})
	s.AddTool(getTool.Definition(), getTool.Handle)

	reportTool := hinttools.NewReportTool(store)
	s.AddTool(reportTool.Definition(), reportTool.Handle)

	// --- Register resources ---

	statsHandler := hinttools.NewStatsHandler(store)
	s.AddResource(statsHandler.Resource(), statsHandler.Handle)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used as the default when New fails
// before the database is open.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// agent how to use the hint engine effectively.
func serverInstructions() string {
	return `You have access to a hint engine: persistent memory of browser
automation recipes that worked before. Hints survive between sessions and
are shared per-site, so every successful automation makes the next one
cheaper.

## WHEN TO RETRIEVE HINTS

Call get_hints BEFORE automating any page you have not inspected in this
session:
- Pass the page URL; pass the page HTML too when you have a snapshot, so
  hints whose selectors are actually present rank first
- Hints come back ranked by confidence, recency and usage; the top hint
  is usually the one to try
- An empty result just means nothing was learned yet; automate normally

## HOW TO REPLAY A HINT

1. Check the scope block: required_selector (if set) must exist on the
   page before you start
2. Execute the steps in order; wait_after_ms tells you how long the page
   needs after each step
3. If a step fails and has a fallback, run the fallback before giving up
4. Hints are guidance, not guarantees: the site may have changed since
   the hint was learned

## WHEN TO SAVE HINTS

Call save_hint after an automation sequence SUCCEEDS and you expect to
need it again:
- Multi-step flows (login, checkout, search-and-filter, form wizards)
- Pages with unusual structure where discovery was expensive
- Flows involving popups, cookie banners, or navigation tricks

Do not save one-click trivia or flows you had to brute-force; a hint that
fails often is worse than no hint.

### What Makes a Good Hint
- description: What the recipe accomplishes, in one sentence. Never put
  usernames, emails or other personal data here
- recipe: The exact tool calls that worked. Text inputs are stored as
  lengths, not values, so never rely on literal text surviving
- selector_guard: A selector that must exist for the recipe to apply;
  this is the single best predictor of replay success
- path_pattern: Use wildcards to widen scope, e.g. "/products/*" for all
  product pages
- page_html: Pass the HTML you automated against; the engine fingerprints
  it to detect page redesigns later

The response may include warnings (quality advice, near-duplicates). They
never block the save; read them and improve the next hint.

### Conflicts
One active hint per author per page. If your new hint does not beat the
existing one's confidence, you get a "conflict" response with the
incumbent's id. Either replay the incumbent instead, or improve your
recipe and save again once it has proven itself.

## ALWAYS REPORT OUTCOMES

Call report_hint_outcome EVERY time you execute a hint, success or
failure:
- Success raises confidence and keeps the hint alive
- Failure lowers confidence; persistent failure retires the hint
  automatically
- Include execution_time_ms when you know it and error_message on
  failures

Skipping reports is the main way the engine degrades: unreported hints
never improve and stale hints never die.

## STATISTICS

Read the hints://stats resource to see totals, per-domain distribution
and recent activity.`
}
