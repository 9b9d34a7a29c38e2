// Package config loads the hint engine's configuration: built-in defaults,
// an optional YAML file, then environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment overrides. They win over both defaults and the file.
const (
	// EnvDBPath points at the SQLite database file.
	EnvDBPath = "BROWSERMCP_HINTS_DB"

	// EnvInstanceID names this agent instance; it becomes the author id on
	// saved hints and execution records.
	EnvInstanceID = "BROWSERMCP_INSTANCE_ID"

	// EnvMatchPolicy selects "advisory" or "strict" DOM matching.
	EnvMatchPolicy = "BROWSERMCP_MATCH_POLICY"
)

// dataDirName is the per-user directory holding the database and the
// optional config file.
const dataDirName = ".browsermcp"

// Config is the engine configuration. YAML keys are the snake_case field
// names; fields absent from the file keep their defaults.
type Config struct {
	// DBPath is the SQLite database file. Parent directories are created
	// on open.
	DBPath string `yaml:"db_path"`

	// AuthorID identifies this instance in saved hints.
	AuthorID string `yaml:"author_id"`

	// MatchPolicy is "advisory" or "strict"; empty means advisory. The
	// string is parsed at wiring time so an unknown value fails startup,
	// not a request.
	MatchPolicy string `yaml:"match_policy"`

	// PruneAfterDays is the staleness horizon for the startup prune.
	PruneAfterDays int `yaml:"prune_after_days"`

	// PruneNeverUsed ages never-executed hints by creation time during
	// pruning instead of exempting them.
	PruneNeverUsed bool `yaml:"prune_never_used"`

	// MinConfidence is the retrieval floor applied by the get_hints tool
	// when the caller passes none.
	MinConfidence float64 `yaml:"min_confidence"`

	// DefaultHintLimit caps get_hints results when the caller passes none.
	DefaultHintLimit int `yaml:"default_hint_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:           filepath.Join(dataDir(), "hints.db"),
		AuthorID:         "unknown",
		MatchPolicy:      "advisory",
		PruneAfterDays:   90,
		PruneNeverUsed:   false,
		MinConfidence:    0.3,
		DefaultHintLimit: 5,
	}
}

// DefaultPath is where Load looks for a config file when given none.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// Load builds the effective configuration. An empty path means the default
// location; a missing file at either is not an error, any other read or
// parse failure is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No file; defaults and environment carry the configuration.
	case err != nil:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvInstanceID); v != "" {
		cfg.AuthorID = v
	}
	if v := os.Getenv(EnvMatchPolicy); v != "" {
		cfg.MatchPolicy = v
	}
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return errors.New("config: db_path must not be empty")
	}
	if c.PruneAfterDays < 1 {
		return fmt.Errorf("config: prune_after_days must be at least 1, got %d", c.PruneAfterDays)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence must be between 0 and 1, got %v", c.MinConfidence)
	}
	if c.DefaultHintLimit < 1 {
		return fmt.Errorf("config: default_hint_limit must be at least 1, got %d", c.DefaultHintLimit)
	}
	return nil
}
