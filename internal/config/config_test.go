package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Memory.ShortTermSize != 10 {
		t.Errorf("short_term_size = %d, want 10", cfg.Memory.ShortTermSize)
	}
	if cfg.Memory.LongTermSize != 100 {
		t.Errorf("long_term_size = %d, want 100", cfg.Memory.LongTermSize)
	}
	if cfg.Snapshot.Retention != 10 {
		t.Errorf("retention = %d, want 10", cfg.Snapshot.Retention)
	}
	if cfg.LLM.Provider != "groq" || cfg.LLM.Model != "mixtral-8x7b-32768" {
		t.Errorf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 1024 {
		t.Errorf("unexpected sampling defaults: %+v", cfg.LLM)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Memory.ShortTermSize != 10 {
		t.Errorf("expected defaults, got %+v", cfg.Memory)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: deepseek
  model: deepseek-chat
memory:
  short_term_size: 4
snapshot:
  retention: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "deepseek" || cfg.Memory.ShortTermSize != 4 || cfg.Snapshot.Retention != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	// Unmentioned sections keep their defaults.
	if cfg.Memory.LongTermSize != 100 {
		t.Errorf("long_term_size = %d, want default 100", cfg.Memory.LongTermSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEXUS_LLM_API_KEY", "env-key")
	t.Setenv("NEXUS_DATA_DIR", "/tmp/nexus-env")
	t.Setenv("NEXUS_LLM_PROVIDER", "deepseek")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.DataDir != "/tmp/nexus-env" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.LLM.Provider != "deepseek" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Memory.ShortTermSize = 0 },
		func(c *Config) { c.Memory.LongTermSize = -1 },
		func(c *Config) { c.Snapshot.Retention = 0 },
		func(c *Config) { c.LLM.Provider = "watson" },
		func(c *Config) { c.Embedding.Provider = "word2vec" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Memory.ShortTermSize = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Memory.ShortTermSize != 7 {
		t.Errorf("round trip lost value: %d", got.Memory.ShortTermSize)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	for _, sub := range []string{"messages", "checkpoints", "system_backups"} {
		if fi, err := os.Stat(filepath.Join(cfg.DataDir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.LLMTimeout(); got != 60*time.Second {
		t.Errorf("llm timeout = %v", got)
	}
	cfg.Router.CommandTTL = "garbage"
	if got := cfg.CommandTTL(); got != 10*time.Minute {
		t.Errorf("bad ttl must fall back, got %v", got)
	}
	cfg.Search.Timeout = "3s"
	if got := cfg.SearchTimeout(); got != 3*time.Second {
		t.Errorf("search timeout = %v", got)
	}
}
