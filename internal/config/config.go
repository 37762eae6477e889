// Package config holds all nexus configuration: YAML file with defaults,
// environment overrides, and hot reload of the reloadable knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"nexus/internal/logging"
)

// Config holds all nexus configuration.
type Config struct {
	// DataDir is the base directory for messages, checkpoints, backups
	// and the semantic index.
	DataDir string `yaml:"data_dir"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Memory    MemoryConfig    `yaml:"memory"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Search    SearchConfig    `yaml:"search"`
	Router    RouterConfig    `yaml:"router"`
	Logging   logging.Config  `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LLMConfig configures the external language-model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // groq, deepseek, openai
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine backing the semantic
// index. Provider "hash" is a deterministic offline fallback.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // genai, ollama, hash
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
}

// MemoryConfig configures the tiered context store.
type MemoryConfig struct {
	// ShortTermSize is K: the bounded recent buffer per chat.
	ShortTermSize int `yaml:"short_term_size"`
	// LongTermSize is M: the per-chat cap of the long-term index.
	LongTermSize int `yaml:"long_term_size"`
	// SearchResults is the top-k for long-term semantic search.
	SearchResults int `yaml:"search_results"`
	// ImportantKeywords and CriticalKeywords override the built-in
	// classifier keyword lists when non-empty.
	ImportantKeywords []string `yaml:"important_keywords"`
	CriticalKeywords  []string `yaml:"critical_keywords"`
	// MinImportantWords marks any message longer than this many words
	// as important.
	MinImportantWords int `yaml:"min_important_words"`
}

// SnapshotConfig configures checkpoints and system backups.
type SnapshotConfig struct {
	// Retention is N: how many checkpoints (and, independently, system
	// backups) survive pruning.
	Retention int `yaml:"retention"`
	// SystemBackups bundles environment state with each checkpoint.
	SystemBackups bool `yaml:"system_backups"`
	// ProjectRoot is the directory captured into system backup bundles.
	ProjectRoot string `yaml:"project_root"`
}

// SearchConfig configures the web-search fallback collaborator.
type SearchConfig struct {
	Endpoint   string `yaml:"endpoint"`
	MaxResults int    `yaml:"max_results"`
	Timeout    string `yaml:"timeout"`
}

// RouterConfig configures command routing.
type RouterConfig struct {
	// WorkspaceDir is where completed file/project commands operate.
	WorkspaceDir string `yaml:"workspace_dir"`
	// CommandTTL expires an abandoned multi-step command dialogue.
	CommandTTL string `yaml:"command_ttl"`
	// NaturalCommands asks the LLM to detect unprefixed file/dir
	// commands ("make me a folder x") before falling back to
	// conversation.
	NaturalCommands bool `yaml:"natural_commands"`
	// SystemPrompt is prepended to every provider call.
	SystemPrompt string `yaml:"system_prompt"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".nexus"),

		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "mixtral-8x7b-32768",
			BaseURL:     "https://api.groq.com/openai/v1",
			Temperature: 0.7,
			MaxTokens:   1024,
			Timeout:     "60s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "hash",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
		},

		Memory: MemoryConfig{
			ShortTermSize:     10,
			LongTermSize:      100,
			SearchResults:     5,
			MinImportantWords: 5,
		},

		Snapshot: SnapshotConfig{
			Retention:   10,
			ProjectRoot: ".",
		},

		Search: SearchConfig{
			Endpoint:   "https://ddg-api.herokuapp.com/search",
			MaxResults: 3,
			Timeout:    "10s",
		},

		Router: RouterConfig{
			WorkspaceDir: filepath.Join(home, ".nexus", "workspace"),
			CommandTTL:   "10m",
			SystemPrompt: "You are Nexus, a concise technical assistant. Use the provided context when it is relevant.",
		},

		Logging: logging.Config{
			Level:   "info",
			Console: true,
		},

		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9290",
		},
	}
}

// Load reads the YAML config at path over the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides applies NEXUS_* and provider key environment variables.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "groq"
		}
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" && c.LLM.Provider == "deepseek" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("NEXUS_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if p := os.Getenv("NEXUS_LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if dir := os.Getenv("NEXUS_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if ws := os.Getenv("NEXUS_WORKSPACE"); ws != "" {
		c.Router.WorkspaceDir = ws
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Memory.ShortTermSize < 1 {
		return fmt.Errorf("memory.short_term_size must be >= 1, got %d", c.Memory.ShortTermSize)
	}
	if c.Memory.LongTermSize < 1 {
		return fmt.Errorf("memory.long_term_size must be >= 1, got %d", c.Memory.LongTermSize)
	}
	if c.Snapshot.Retention < 1 {
		return fmt.Errorf("snapshot.retention must be >= 1, got %d", c.Snapshot.Retention)
	}
	switch c.LLM.Provider {
	case "groq", "deepseek", "openai", "":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "genai", "ollama", "hash", "":
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureDirs creates the base data directories. This is the only fatal
// initialization step: the process cannot run without them.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{
		c.DataDir,
		filepath.Join(c.DataDir, "messages"),
		filepath.Join(c.DataDir, "checkpoints"),
		filepath.Join(c.DataDir, "system_backups"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", d, err)
		}
	}
	return nil
}

// LLMTimeout returns the provider timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// SearchTimeout returns the web-search timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 10*time.Second)
}

// CommandTTL returns the command dialogue expiry as a duration.
func (c *Config) CommandTTL() time.Duration {
	return parseDuration(c.Router.CommandTTL, 10*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
