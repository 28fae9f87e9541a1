package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr = ":8080"
	DefaultDriver     = "memory"
	DefaultModel      = "gemini-1.5-flash"
	DefaultTimeout    = 30 * time.Second
)

type Config struct {
	ListenAddr string       `yaml:"listen_addr"`
	DB         DBConfig     `yaml:"db"`
	Gemini     GeminiConfig `yaml:"gemini"`
	Auth       AuthConfig   `yaml:"auth"`
	Log        LogConfig    `yaml:"log"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// GeminiConfig configures the model backend. An empty APIKey switches every
// analysis to the built-in fallback payloads.
type GeminiConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	PromptsPath string        `yaml:"prompts_path"`
}

type AuthConfig struct {
	DevToken string                 `yaml:"dev_token"`
	DevUser  string                 `yaml:"dev_user"`
	Tokens   map[string]TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load parses the file at path, expanding ${VAR} from the process
// environment. It does not validate: call Resolve for the final config.
func Load(path string) (Config, error) {
	return LoadWithLookup(path, os.Getenv)
}

// LoadWithLookup is Load with ${VAR} expanded through lookup.
func LoadWithLookup(path string, lookup func(string) string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.Expand(string(raw), lookup)
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve layers environment overrides and defaults over c and validates the
// result. Environment values win over the file.
func (c Config) Resolve(getenv func(string) string) (Config, error) {
	out := c
	out.ListenAddr = firstNonEmpty(getenv("NEUROFLOW_LISTEN_ADDR"), c.ListenAddr, DefaultListenAddr)

	out.DB.DSN = firstNonEmpty(getenv("NEUROFLOW_DB_DSN"), getenv("DATABASE_URL"), c.DB.DSN)
	out.DB.Driver = firstNonEmpty(getenv("NEUROFLOW_DB_DRIVER"), c.DB.Driver)
	if out.DB.Driver == "" {
		out.DB.Driver = DefaultDriver
		if out.DB.DSN != "" {
			out.DB.Driver = "postgres"
		}
	}

	out.Gemini.APIKey = firstNonEmpty(getenv("NEUROFLOW_GEMINI_API_KEY"), getenv("GEMINI_API_KEY"), getenv("VITE_GEMINI_API_KEY"), c.Gemini.APIKey)
	out.Gemini.Model = firstNonEmpty(getenv("NEUROFLOW_GEMINI_MODEL"), c.Gemini.Model, DefaultModel)
	out.Gemini.PromptsPath = firstNonEmpty(getenv("NEUROFLOW_PROMPTS_PATH"), c.Gemini.PromptsPath)
	if raw := getenv("NEUROFLOW_GEMINI_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("NEUROFLOW_GEMINI_TIMEOUT: %w", err)
		}
		out.Gemini.Timeout = d
	}
	if out.Gemini.Timeout == 0 {
		out.Gemini.Timeout = DefaultTimeout
	}

	out.Auth.DevToken = firstNonEmpty(getenv("NEUROFLOW_DEV_TOKEN"), c.Auth.DevToken)
	out.Auth.DevUser = firstNonEmpty(getenv("NEUROFLOW_DEV_USER"), c.Auth.DevUser)

	out.Log.Level = firstNonEmpty(getenv("NEUROFLOW_LOG_LEVEL"), c.Log.Level, "info")
	if raw := getenv("NEUROFLOW_LOG_DEVELOPMENT"); raw != "" {
		out.Log.Development = raw == "1" || strings.EqualFold(raw, "true")
	}

	return out, out.Validate()
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver=%s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}

	if c.Gemini.Timeout < 0 {
		return fmt.Errorf("gemini.timeout must not be negative")
	}

	for token, user := range c.Auth.Tokens {
		if token == "" || user.UserID == "" {
			return fmt.Errorf("auth.tokens entries need a token and a user_id")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log.level %q", c.Log.Level)
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
