package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.imcoach/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// UserID is the monitored user's handle; coaching is sent here.
	UserID string `toml:"user_id"`
	// AgentID is the handle the user messages with activation commands.
	AgentID string `toml:"agent_id"`

	ChatDB             string        `toml:"chat_db"`
	PollInterval       time.Duration `toml:"poll_interval"`
	CheckpointSchedule string        `toml:"checkpoint_schedule"`
	Resume             bool          `toml:"resume"`

	DedupCapacity int    `toml:"dedup_capacity"`
	MaxConcurrent int    `toml:"max_concurrent"`
	HistoryWindow int    `toml:"history_window"`
	MatchMode     string `toml:"match_mode"`

	LLM LLM `toml:"llm"`
}

// LLM configures the text generation provider.
type LLM struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
}

// Default returns the configuration used for keys the file leaves unset.
func Default() Config {
	return Config{
		PollInterval:       time.Second,
		CheckpointSchedule: "@every 10s",
		Resume:             true,
		DedupCapacity:      50000,
		MaxConcurrent:      5,
		HistoryWindow:      10,
		MatchMode:          "contains",
		LLM: LLM{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   500,
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if
// the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		d := Default()
		return &d, nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Environment variables that override file settings.
const (
	EnvUserID    = "USER_PHONE_NUMBER"
	EnvAgentID   = "AGENT_IMESSAGE_ID"
	EnvChatDB    = "COACH_CHAT_DB"
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvGeminiKey = "GEMINI_API_KEY"
)

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.UserID, EnvUserID)
	set(&c.AgentID, EnvAgentID)
	set(&c.ChatDB, EnvChatDB)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "", "openai":
			set(&c.LLM.APIKey, EnvOpenAIKey)
		case "gemini":
			set(&c.LLM.APIKey, EnvGeminiKey)
		}
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.UserID) == "" {
		errs = append(errs, fmt.Errorf("user_id is required (or set %s)", EnvUserID))
	}
	if strings.TrimSpace(c.AgentID) == "" {
		errs = append(errs, fmt.Errorf("agent_id is required (or set %s)", EnvAgentID))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, fmt.Errorf("history_window must be positive, got %d", c.HistoryWindow))
	}
	if !slices.Contains([]string{"contains", "exact"}, c.MatchMode) {
		errs = append(errs, fmt.Errorf("match_mode must be contains or exact, got %q", c.MatchMode))
	}
	if !slices.Contains([]string{"openai", "gemini"}, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider must be openai or gemini, got %q", c.LLM.Provider))
	}
	return errors.Join(errs...)
}
