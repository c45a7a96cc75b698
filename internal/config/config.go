// Package config loads the run configuration. Secrets are kept out of Config
// and returned separately as Credentials.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/cursor"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/query"
)

type Config struct {
	Keywords    [][]string `yaml:"keywords"`
	Categories  []string   `yaml:"categories"`
	Preferences []string   `yaml:"preferences"`

	// LastDate seeds the watermark on the very first run, before a state
	// file exists.
	LastDate  string `yaml:"last_date"`
	StateFile string `yaml:"state_file"`

	MaxResults           int    `yaml:"max_results"`
	MaxPages             int    `yaml:"max_pages"`
	DownloadDelaySeconds int    `yaml:"download_delay_seconds"`
	SummarizeWorkers     int    `yaml:"summarize_workers"`
	LogLevel             string `yaml:"log_level"`

	Schedule   string `yaml:"schedule"`
	RunOnStart bool   `yaml:"run_on_start"`

	Summarizer SummarizerConfig `yaml:"summarizer"`
	Channels   []string         `yaml:"channels"`
	Email      EmailConfig      `yaml:"email"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type SummarizerConfig struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type TelegramConfig struct {
	ChatID string `yaml:"chat_id"`
}

// Credentials holds the secrets a run may need, read from the environment
// and never mixed into Config.
type Credentials struct {
	LLMAPIKey        string
	SMTPPassword     string
	TelegramBotToken string
}

// Expression converts the configured keyword groups into a query expression.
func (c *Config) Expression() query.Expression {
	e := make(query.Expression, 0, len(c.Keywords))
	for _, group := range c.Keywords {
		e = append(e, query.Group(group))
	}
	return e
}

// InitialDate parses the configured seed watermark.
func (c *Config) InitialDate() (time.Time, error) {
	d, err := time.ParseInLocation(cursor.DateFormat, c.LastDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid last_date %q: %w", c.LastDate, err)
	}
	return d, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func setDefaults(cfg *Config) {
	if cfg.StateFile == "" {
		cfg.StateFile = "cursor.json"
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 50
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 8
	}
	if cfg.DownloadDelaySeconds == 0 {
		cfg.DownloadDelaySeconds = 3
	}
	if cfg.SummarizeWorkers == 0 {
		cfg.SummarizeWorkers = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	if cfg.Summarizer.Backend == "" {
		cfg.Summarizer.Backend = "openai"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "mistral-large-latest"
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{"stdout"}
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
}

func validate(cfg *Config, creds *Credentials) error {
	if err := cfg.Expression().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("config: categories are required")
	}
	if cfg.LastDate == "" {
		return fmt.Errorf("config: last_date is required")
	}
	if _, err := cfg.InitialDate(); err != nil {
		return err
	}

	switch cfg.Summarizer.Backend {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unsupported summarizer backend %q (supported: openai, gemini)", cfg.Summarizer.Backend)
	}
	if creds.LLMAPIKey == "" {
		return fmt.Errorf("config: LLM_API_KEY env var is required")
	}

	for _, ch := range cfg.Channels {
		switch ch {
		case "stdout":
		case "email":
			if cfg.Email.SMTPHost == "" {
				return fmt.Errorf("config: email.smtp_host is required for the email channel")
			}
			if cfg.Email.From == "" {
				return fmt.Errorf("config: email.from is required for the email channel")
			}
			if len(cfg.Email.To) == 0 {
				return fmt.Errorf("config: email.to is required for the email channel")
			}
			if creds.SMTPPassword == "" {
				return fmt.Errorf("config: SMTP_PASSWORD env var is required for the email channel")
			}
		case "telegram":
			if cfg.Telegram.ChatID == "" {
				return fmt.Errorf("config: telegram.chat_id is required for the telegram channel")
			}
			if creds.TelegramBotToken == "" {
				return fmt.Errorf("config: TELEGRAM_BOT_TOKEN env var is required for the telegram channel")
			}
		default:
			return fmt.Errorf("config: unsupported channel %q (supported: stdout, email, telegram)", ch)
		}
	}
	return nil
}

// Load reads the config file, expands environment variables, applies
// defaults, collects credentials from the environment, and validates the
// result. Any failure here aborts the run before anything is searched.
func Load(path string) (*Config, *Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setDefaults(&cfg)

	creds := &Credentials{
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if err := validate(&cfg, creds); err != nil {
		return nil, nil, err
	}

	return &cfg, creds, nil
}
