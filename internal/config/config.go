package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/NewsSync/internal/taxonomy"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Validation errors.
var (
	ErrNoSources            = errors.New("at least one feed or newsapi source is required")
	ErrSourceMissingID      = errors.New("every source needs an id")
	ErrFeedMissingURL       = errors.New("every feed needs a url")
	ErrDuplicateSourceID    = errors.New("duplicate source id")
	ErrEmptyVocabulary      = errors.New("vocabulary must contain at least one tag")
	ErrUnknownStorageDriver = errors.New("storage.driver must be 'sqlite' or 'postgres'")
	ErrUnknownProvider      = errors.New("summarization.provider must be 'ollama', 'openai' or 'anthropic'")
	ErrInvalidLogLevel      = errors.New("logging.level must be one of: debug, info, warn, error")
)

type Config struct {
	Sources       Sources          `yaml:"sources"`
	Summarization Summarization    `yaml:"summarization"`
	Vocabulary    []taxonomy.Group `yaml:"vocabulary"`
	Storage       Storage          `yaml:"storage"`
	Fetch         Fetch            `yaml:"fetch"`
	Reconcile     Reconcile        `yaml:"reconcile"`
	Lock          Lock             `yaml:"lock"`
	Metrics       Metrics          `yaml:"metrics"`
	Schedule      Schedule         `yaml:"schedule"`
	Server        Server           `yaml:"server"`
	Logging       Logging          `yaml:"logging"`
}

type Sources struct {
	Feeds   []Feed        `yaml:"feeds"`
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

// Feed is one RSS/Atom source. MediaMedium restricts media:content matches to
// entries with that medium attribute; FallbackImage is the source logo.
type Feed struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	FallbackImage string `yaml:"fallback_image"`
	MediaMedium   string `yaml:"media_medium"`
}

type NewsAPIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	APIKeyEnv string          `yaml:"api_key_env"`
	BaseURL   string          `yaml:"base_url"`
	Sources   []NewsAPISource `yaml:"sources"`
}

// NewsAPISource is one allow-listed aggregator source.
type NewsAPISource struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	FallbackImage string `yaml:"fallback_image"`
}

type Summarization struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	OllamaURL         string `yaml:"ollama_url"`
	OpenAIModel       string `yaml:"openai_model"`
	AnthropicModel    string `yaml:"anthropic_model"`
	APIKeyEnv         string `yaml:"api_key_env"`
	AnthropicKeyEnv   string `yaml:"anthropic_key_env"`
	MaxTokens         int    `yaml:"max_tokens"`
	MaxBodyChars      int    `yaml:"max_body_chars"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type Storage struct {
	Driver  string `yaml:"driver"`
	DSNEnv  string `yaml:"dsn_env"`
	DataDir string `yaml:"data_dir"`
}

type Fetch struct {
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	BackfillContent bool   `yaml:"backfill_content"`
	UserAgent       string `yaml:"user_agent"`
}

type Reconcile struct {
	SkipWhenEmpty bool `yaml:"skip_when_empty"`
}

type Lock struct {
	RedisAddress     string `yaml:"redis_address"`
	RedisPasswordEnv string `yaml:"redis_password_env"`
	TTLSeconds       int    `yaml:"ttl_seconds"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type Schedule struct {
	Cron string `yaml:"cron"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for newssync.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newssync")
}

// DataDir returns the XDG data directory for newssync.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newssync")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newssync/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newssync init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			NewsAPI: NewsAPIConfig{
				APIKeyEnv: "NEWSAPI_KEY",
				BaseURL:   "https://newsapi.org/v2/top-headlines",
			},
		},
		Summarization: Summarization{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			AnthropicModel:  "claude-3-5-haiku-latest",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       400,
			MaxBodyChars:    2000,
		},
		Storage: Storage{Driver: "sqlite", DSNEnv: "NEWSSYNC_DATABASE_URL"},
		Fetch: Fetch{
			TimeoutSeconds:  20,
			BackfillContent: true,
			UserAgent:       "newssync/1.0 (news aggregator)",
		},
		Lock:     Lock{TTLSeconds: 900},
		Metrics:  Metrics{Job: "newssync"},
		Schedule: Schedule{Cron: "@every 1h"},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for values the pipeline cannot run with.
func (c *Config) Validate() error {
	newsAPISources := 0
	if c.Sources.NewsAPI.Enabled {
		newsAPISources = len(c.Sources.NewsAPI.Sources)
	}
	if len(c.Sources.Feeds) == 0 && newsAPISources == 0 {
		return ErrNoSources
	}

	seen := make(map[string]struct{})
	checkID := func(id string) error {
		if strings.TrimSpace(id) == "" {
			return ErrSourceMissingID
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSourceID, id)
		}
		seen[id] = struct{}{}
		return nil
	}
	for _, f := range c.Sources.Feeds {
		if err := checkID(f.ID); err != nil {
			return err
		}
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("%w: %s", ErrFeedMissingURL, f.ID)
		}
	}
	if c.Sources.NewsAPI.Enabled {
		for _, s := range c.Sources.NewsAPI.Sources {
			if err := checkID(s.ID); err != nil {
				return err
			}
		}
	}

	if _, err := taxonomy.New(c.Vocabulary); err != nil {
		return ErrEmptyVocabulary
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "postgres":
	default:
		return ErrUnknownStorageDriver
	}

	switch strings.ToLower(c.Summarization.Provider) {
	case "ollama", "openai", "anthropic":
	default:
		return ErrUnknownProvider
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
