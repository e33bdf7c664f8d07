// Package config handles reading and writing .manimgpt/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Review modes.
const (
	ReviewHuman = "human" // the user reviews each render and sends feedback
	ReviewAuto  = "auto"  // the model reviews the uploaded video itself
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// APIKeyEnv is the environment variable consulted when api_key is unset.
const APIKeyEnv = "GEMINI_API_KEY"

// Config is the top-level structure for .manimgpt/config.yaml.
type Config struct {
	Version  int            `yaml:"version"`
	Model    string         `yaml:"model"`
	APIKey   string         `yaml:"api_key,omitempty"`
	Loop     LoopConfig     `yaml:"loop"`
	Render   RenderConfig   `yaml:"render"`
	Publish  PublishConfig  `yaml:"publish"`
	Review   ReviewConfig   `yaml:"review"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Store    StoreConfig    `yaml:"store"`
	Generate GenerateConfig `yaml:"generate"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
}

// LoopConfig bounds the orchestration loop.
type LoopConfig struct {
	MaxAttempts int `yaml:"max_attempts"` // consecutive failed attempts per message
}

// RenderConfig controls the Manim subprocess.
type RenderConfig struct {
	Command    string `yaml:"command"`
	Language   string `yaml:"language"` // fence language tag expected in model answers
	Scene      string `yaml:"scene"`
	Quality    string `yaml:"quality"` // l, m, h, p, k
	Timeout    int    `yaml:"timeout"` // seconds
	TraceLimit int    `yaml:"trace_limit"`
	OutputDir  string `yaml:"output_dir"`
}

// PublishConfig controls artifact upload and readiness polling.
type PublishConfig struct {
	PollInterval int    `yaml:"poll_interval"` // seconds
	MaxWait      int    `yaml:"max_wait"`      // seconds
	MIMEType     string `yaml:"mime_type"`
}

// ReviewConfig selects the review variant and the acceptance rule.
type ReviewConfig struct {
	Mode          string `yaml:"mode"` // "human" | "auto"
	AcceptPhrase  string `yaml:"accept_phrase"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

// TokensConfig lists the user inputs that move the phase machine forward.
type TokensConfig struct {
	Continue []string `yaml:"continue"`
	Finish   []string `yaml:"finish"`
}

// StoreConfig selects where sessions live.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // "memory" | "sqlite"
	Path        string `yaml:"path"`
	TTL         int    `yaml:"ttl"` // minutes, memory backend only
	MaxSessions int    `yaml:"max_sessions"`
}

// GenerateConfig controls the non-interactive generate command.
type GenerateConfig struct {
	Parallel int `yaml:"parallel"`
}

// CleanupConfig controls pruning of rendered videos.
type CleanupConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
}

const configDir = ".manimgpt"
const configFile = "config.yaml"

// Dir returns the .manimgpt directory inside the given project root.
func Dir(root string) string {
	return filepath.Join(root, configDir)
}

// ReadConfig reads .manimgpt/config.yaml from the given project directory.
// dir is the project root (not .manimgpt/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Start from defaults so that older files missing newer sections keep working.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config in dir, falling back to DefaultConfig when
// no file exists. The API key is taken from the environment when unset.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	return cfg, nil
}

// WriteConfig writes cfg to .manimgpt/config.yaml in the given project directory.
// Creates the .manimgpt/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Model:   "gemini-2.5-flash",
		Loop: LoopConfig{
			MaxAttempts: 10,
		},
		Render: RenderConfig{
			Command:    "manim",
			Language:   "python",
			Scene:      "VideoScene",
			Quality:    "m",
			Timeout:    300,
			TraceLimit: 4000,
			OutputDir:  "output",
		},
		Publish: PublishConfig{
			PollInterval: 3,
			MaxWait:      300,
			MIMEType:     "video/mp4",
		},
		Review: ReviewConfig{
			Mode:         ReviewHuman,
			AcceptPhrase: "No issues found",
		},
		Tokens: TokensConfig{
			Continue: []string{"continue", "c", "с"},
			Finish:   []string{"finish", "done", "f"},
		},
		Store: StoreConfig{
			Backend:     StoreMemory,
			Path:        filepath.Join(configDir, "sessions.db"),
			TTL:         24 * 60,
			MaxSessions: 1024,
		},
		Generate: GenerateConfig{
			Parallel: 2,
		},
		Cleanup: CleanupConfig{
			MaxAgeDays: 30,
		},
	}
}

// Validate reports the first setting that cannot drive the loop.
func (c *Config) Validate() error {
	switch c.Review.Mode {
	case ReviewHuman, ReviewAuto:
	default:
		return fmt.Errorf("review.mode: unknown mode %q (want %q or %q)", c.Review.Mode, ReviewHuman, ReviewAuto)
	}
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Loop.MaxAttempts <= 0 {
		return fmt.Errorf("loop.max_attempts must be positive, got %d", c.Loop.MaxAttempts)
	}
	if c.Render.Command == "" {
		return errors.New("render.command is required")
	}
	if c.Render.Scene == "" {
		return errors.New("render.scene is required")
	}
	if c.Review.AcceptPhrase == "" {
		return errors.New("review.accept_phrase is required")
	}
	if c.Publish.PollInterval <= 0 || c.Publish.MaxWait <= 0 {
		return errors.New("publish.poll_interval and publish.max_wait must be positive")
	}
	return nil
}

// RenderTimeout returns the renderer wall-clock limit.
func (c *Config) RenderTimeout() time.Duration {
	if c.Render.Timeout <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Render.Timeout) * time.Second
}

// PollInterval returns the delay between readiness polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Publish.PollInterval) * time.Second
}

// PublishMaxWait returns the cap on total readiness wait.
func (c *Config) PublishMaxWait() time.Duration {
	return time.Duration(c.Publish.MaxWait) * time.Second
}

// SessionTTL returns the idle lifetime of an in-memory session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Store.TTL) * time.Minute
}
