package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.UserID = "+14155550100"
	cfg.LLM.Provider = "gemini"
	if err := Save(path, &cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, *loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKeepsDefaultsForUnsetKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
user_id = "+14155550100"
agent_id = "agent@icloud.com"
poll_interval = "250ms"

[llm]
temperature = 0.2
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.LLM.Temperature != 0.2 || cfg.LLM.MaxTokens != 500 || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM = %+v, want temperature override and default model/tokens", cfg.LLM)
	}
	if cfg.DedupCapacity != 50000 || cfg.HistoryWindow != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[llm]\ntemperature = 0.0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0 from file", cfg.LLM.Temperature)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want default 5", cfg.MaxConcurrent)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	if err := Save(path, &cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvUserID:    "+15550001111",
		EnvAgentID:   "bot@icloud.com",
		EnvChatDB:    "/tmp/chat.db",
		EnvOpenAIKey: "sk-openai",
		EnvGeminiKey: "gm-key",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.UserID = "from-file"
	cfg.ApplyEnv(lookup)
	if cfg.UserID != "+15550001111" || cfg.AgentID != "bot@icloud.com" || cfg.ChatDB != "/tmp/chat.db" {
		t.Errorf("identity overrides not applied: %+v", cfg)
	}
	if cfg.LLM.APIKey != "sk-openai" {
		t.Errorf("APIKey = %q, want openai key", cfg.LLM.APIKey)
	}

	gem := Default()
	gem.LLM.Provider = "gemini"
	gem.ApplyEnv(lookup)
	if gem.LLM.APIKey != "gm-key" {
		t.Errorf("APIKey = %q, want gemini key", gem.LLM.APIKey)
	}

	explicit := Default()
	explicit.LLM.APIKey = "from-file"
	explicit.ApplyEnv(lookup)
	if explicit.LLM.APIKey != "from-file" {
		t.Errorf("env replaced an explicit api_key: %q", explicit.LLM.APIKey)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("IMCOACH_TEST_VAR=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMCOACH_TEST_VAR", "")
	os.Unsetenv("IMCOACH_TEST_VAR")

	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("IMCOACH_TEST_VAR"); got != "from-dotenv" {
		t.Errorf("IMCOACH_TEST_VAR = %q, want from-dotenv", got)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadEnvFile(missing) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.UserID = "+1"
	valid.AgentID = "agent@icloud.com"
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid config = %v", err)
	}

	bad := Default()
	bad.MatchMode = "fuzzy"
	bad.LLM.Provider = "llama"
	err := bad.Validate()
	if err == nil {
		t.Fatal("Validate() accepted an invalid config")
	}
	for _, want := range []string{"user_id", "agent_id", "match_mode", "llm.provider"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}
