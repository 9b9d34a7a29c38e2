// Browserhints: Learned Automation Hints MCP Server
//
// A companion MCP server for browser-automation agents. It persists
// hints (recipes of tool calls that worked on a site) and serves them
// back ranked by confidence, recency and usage, so an agent can replay
// what worked instead of rediscovering every page.
//
// Usage:
//
//	browserhints serve [config.yaml]   # Start MCP server (stdio transport)
//	browserhints version               # Print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/config"
	hintserver "github.com/david-strejc/browsermcp-enhanced-sub000/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		configPath := ""
		if len(os.Args) > 2 {
			configPath = os.Args[2]
		}
		if err := run(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("browserhints v%s\n", hintserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(configPath string) error {
	// All logging goes to stderr; stdout belongs to the MCP stdio
	// transport.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	s, cleanup, err := hintserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// ServeStdio returns when stdin closes or when SIGINT/SIGTERM
	// cancels its context; the latter is a clean shutdown, not an error.
	if err := server.ServeStdio(s); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Browserhints v%s — Learned Automation Hints MCP Server

Usage:
  browserhints serve [config.yaml]   Start the MCP server (stdio transport)
  browserhints version               Print the version

Configuration:
  Settings come from %s (or the file given to serve),
  overridden by BROWSERMCP_HINTS_DB, BROWSERMCP_INSTANCE_ID and
  BROWSERMCP_MATCH_POLICY.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "browserhints": {
        "command": "browserhints",
        "args": ["serve"]
      }
    }
  }
`, hintserver.Version, config.DefaultPath())
}
