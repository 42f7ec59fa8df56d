// Package config loads server configuration from defaults, an optional YAML
// file, and SPECWRIGHT_* environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Browser    BrowserConfig    `yaml:"browser"`
	Runner     RunnerConfig     `yaml:"runner"`
	Generation GenerationConfig `yaml:"generation"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MCPPort     int    `yaml:"mcp_port"`
	BearerToken string `yaml:"bearer_token"`
}

type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	ArtifactDir string `yaml:"artifact_dir"`
	TimelineDir string `yaml:"timeline_dir"`
}

type BrowserConfig struct {
	BaseURL string `yaml:"base_url"`
}

type RunnerConfig struct {
	BaseURL    string        `yaml:"base_url"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// GenerationConfig selects the generation engine. Mode "static" uses the
// deterministic generator; "llm" posts to an OpenAI-compatible endpoint and
// falls back to static output on failure.
type GenerationConfig struct {
	Mode       string `yaml:"mode"`
	LLMBaseURL string `yaml:"llm_base_url"`
	LLMModel   string `yaml:"llm_model"`
}

type ProfilesConfig struct {
	Path string `yaml:"path"`
}

type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Storage: StorageConfig{
			DataDir:     dataDir,
			ArtifactDir: filepath.Join(dataDir, "artifacts"),
			TimelineDir: filepath.Join(dataDir, "timelines"),
		},
		Browser: BrowserConfig{
			BaseURL: "http://localhost:4610",
		},
		Runner: RunnerConfig{
			BaseURL:    "http://localhost:4611",
			RunTimeout: 60 * time.Second,
		},
		Generation: GenerationConfig{
			Mode: "static",
		},
		Worker: WorkerConfig{
			PollInterval: 500 * time.Millisecond,
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "specwright")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "specwright-data"
	}
	return filepath.Join(home, ".local", "share", "specwright")
}

// Load reads configuration. path names an optional YAML file; pass "" to
// use defaults plus environment overrides only.
func Load(path string) (Config, error) {
	return loadWith(path, os.Getenv)
}

func loadWith(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg, getenv)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setInt("SPECWRIGHT_PORT", &cfg.Server.Port)
	setInt("SPECWRIGHT_MCP_PORT", &cfg.Server.MCPPort)
	setString("SPECWRIGHT_BEARER_TOKEN", &cfg.Server.BearerToken)
	setString("SPECWRIGHT_DATA_DIR", &cfg.Storage.DataDir)
	setString("SPECWRIGHT_ARTIFACT_DIR", &cfg.Storage.ArtifactDir)
	setString("SPECWRIGHT_TIMELINE_DIR", &cfg.Storage.TimelineDir)
	setString("SPECWRIGHT_BROWSER_URL", &cfg.Browser.BaseURL)
	setString("SPECWRIGHT_RUNNER_URL", &cfg.Runner.BaseURL)
	setDuration("SPECWRIGHT_RUN_TIMEOUT", &cfg.Runner.RunTimeout)
	setString("SPECWRIGHT_GENERATION_MODE", &cfg.Generation.Mode)
	setString("SPECWRIGHT_LLM_URL", &cfg.Generation.LLMBaseURL)
	setString("SPECWRIGHT_LLM_MODEL", &cfg.Generation.LLMModel)
	setString("SPECWRIGHT_PROFILES", &cfg.Profiles.Path)
	setDuration("SPECWRIGHT_POLL_INTERVAL", &cfg.Worker.PollInterval)
}

func validate(cfg Config) error {
	switch cfg.Generation.Mode {
	case "static":
	case "llm":
		if cfg.Generation.LLMBaseURL == "" {
			return fmt.Errorf("generation mode %q requires llm_base_url (SPECWRIGHT_LLM_URL)", cfg.Generation.Mode)
		}
	default:
		return fmt.Errorf("unknown generation mode %q", cfg.Generation.Mode)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Runner.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %s", cfg.Runner.RunTimeout)
	}
	return nil
}
