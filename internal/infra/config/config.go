package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"relaybot/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	GitHub   GitHubConfig   `yaml:"github"`
	LLM      LLMConfig      `yaml:"llm"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Session  SessionConfig  `yaml:"session"`
	Paths    PathsConfig    `yaml:"paths"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"api_key"`
	RequestsPerMin int    `yaml:"requests_per_min"`
	Burst          int    `yaml:"burst"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	WebhookSecret string `yaml:"webhook_secret"`
	ChatID        string `yaml:"chat_id"`
	Verification  string `yaml:"verification_phrase"`
}

// GitHubConfig holds repository and webhook settings.
type GitHubConfig struct {
	Token         string `yaml:"token"`
	Owner         string `yaml:"owner"`
	Repo          string `yaml:"repo"`
	WebhookToken  string `yaml:"webhook_token"`
	DefaultBranch string `yaml:"default_branch"`
	BaseURL       string `yaml:"base_url"`
}

// LLMConfig holds the summarization/chat provider settings.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	MaxTokens      int           `yaml:"max_tokens"`
	ConnTimeout    time.Duration `yaml:"conn_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OpenAIConfig holds voice transcription settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SessionConfig holds conversation store settings.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxTurns      int           `yaml:"max_turns"`
}

// PathsConfig points at rule files and template roots.
type PathsConfig struct {
	TriggersFile   string `yaml:"triggers_file"`
	CronsFile      string `yaml:"crons_file"`
	PromptTemplate string `yaml:"prompt_template"`
	DocsRoot       string `yaml:"docs_root"`
	TriggerWorkdir string `yaml:"trigger_workdir"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3000",
			RequestsPerMin: 120,
			Burst:          30,
		},
		GitHub: GitHubConfig{
			DefaultBranch: "main",
			BaseURL:       "https://api.github.com",
		},
		LLM: LLMConfig{
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      1024,
			ConnTimeout:    10 * time.Second,
			RequestTimeout: 120 * time.Second,
		},
		Session: SessionConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
			MaxTurns:      20,
		},
		Paths: PathsConfig{
			TriggersFile:   "triggers.json",
			CronsFile:      "crons.json",
			PromptTemplate: "JOB_SUMMARY.md",
			DocsRoot:       "docs",
			TriggerWorkdir: ".",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file with ${ENV_VAR} expansion. A missing file
// returns defaults so the service can run from environment alone.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, cfg.validate()
		}
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, "read %s: %v", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, "parse %s: %v", path, err)
	}

	applyEnv(cfg)
	return cfg, cfg.validate()
}

// applyEnv fills credentials from well-known env vars when the file left
// them empty.
func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	set(&cfg.Server.APIKey, "RELAYBOT_API_KEY")
	set(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&cfg.Telegram.WebhookSecret, "TELEGRAM_WEBHOOK_SECRET")
	set(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&cfg.GitHub.Token, "GITHUB_TOKEN")
	set(&cfg.GitHub.Owner, "GITHUB_OWNER")
	set(&cfg.GitHub.Repo, "GITHUB_REPO")
	set(&cfg.GitHub.WebhookToken, "GITHUB_WEBHOOK_TOKEN")
	set(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	set(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return domain.NewDomainError("config.validate", domain.ErrConfigLoad, "server.addr is required")
	}
	if c.Session.TTL <= 0 {
		return domain.NewDomainError("config.validate", domain.ErrConfigLoad, "session.ttl must be positive")
	}
	if c.Session.MaxTurns <= 0 {
		return domain.NewDomainError("config.validate", domain.ErrConfigLoad, "session.max_turns must be positive")
	}
	// The sweep has to fire at least once inside a TTL window.
	if c.Session.SweepInterval <= 0 || c.Session.SweepInterval >= c.Session.TTL {
		c.Session.SweepInterval = c.Session.TTL / 6
	}
	return nil
}

// String implements fmt.Stringer, masking credentials.
func (c *Config) String() string {
	return fmt.Sprintf("Config{addr: %s, repo: %s/%s, model: %s}",
		c.Server.Addr, c.GitHub.Owner, c.GitHub.Repo, c.LLM.Model)
}
