// Package config loads daemon configuration from YAML, .env and PUNTAIQ_*
// environment variables, in that order of precedence (lowest first).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/logger"
)

// Fixture source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceFile      = "file"
	SourceHTTP      = "http"
)

type Config struct {
	Log          logger.Config      `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Fixtures     FixturesConfig     `yaml:"fixtures"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Engine       EngineConfig       `yaml:"engine"`
	Accumulators AccumulatorsConfig `yaml:"accumulators"`
	History      HistoryConfig      `yaml:"history"`
	Sinks        SinksConfig        `yaml:"sinks"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type FixturesConfig struct {
	Source    string  `yaml:"source"` // synthetic, file or http
	Path      string  `yaml:"path"`
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"` // Requests per second
	Burst     int     `yaml:"burst"`
	Seed      int64   `yaml:"seed"` // Synthetic source only
}

type PipelineConfig struct {
	Sports      []string      `yaml:"sports"`
	DaysAhead   int           `yaml:"days_ahead"`
	Interval    time.Duration `yaml:"interval"`
	NotifyUsers []string      `yaml:"notify_users"`
}

type EngineConfig struct {
	Workers           int     `yaml:"workers"`
	PremiumConfidence float64 `yaml:"premium_confidence"`
	MinValuePct       float64 `yaml:"min_value_pct"`
	ModelPath         string  `yaml:"model_path"` // Trained model registry, optional
}

type AccumulatorsConfig struct {
	Workers       int `yaml:"workers"`
	MaxRelaxSteps int `yaml:"max_relax_steps"` // -1 disables relaxation
}

type HistoryConfig struct {
	Path string `yaml:"path"` // Badger directory; history is off when empty
}

type SinksConfig struct {
	OutputDir string         `yaml:"output_dir"` // JSON files; off when empty
	SQL       SQLConfig      `yaml:"sql"`
	Telegram  TelegramConfig `yaml:"telegram"`
	WebSocket bool           `yaml:"websocket"`
}

type SQLConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

type TelegramConfig struct {
	Token        string        `yaml:"token"`
	ChatID       int64         `yaml:"chat_id"`
	SendInterval time.Duration `yaml:"send_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:    logger.DefaultConfig(),
		Server: ServerConfig{Addr: ":8080"},
		Fixtures: FixturesConfig{
			Source:    SourceSynthetic,
			RateLimit: 2,
			Burst:     1,
			Seed:      42,
		},
		Pipeline: PipelineConfig{
			Sports:    []string{string(core.SportFootball), string(core.SportBasketball)},
			DaysAhead: 3,
			Interval:  6 * time.Hour,
		},
		Engine: EngineConfig{
			Workers:           8,
			PremiumConfidence: 75,
			MinValuePct:       5,
		},
		Accumulators: AccumulatorsConfig{
			Workers:       4,
			MaxRelaxSteps: 4,
		},
		Sinks: SinksConfig{
			SQL:       SQLConfig{Driver: "sqlite"},
			Telegram:  TelegramConfig{SendInterval: 2 * time.Second},
			WebSocket: true,
		},
	}
}

// Load reads .env (if present), the YAML file (if path is non-empty) and
// then PUNTAIQ_* overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = envStr("PUNTAIQ_LOG_LEVEL", c.Log.Level)
	c.Log.OutputFile = envStr("PUNTAIQ_LOG_FILE", c.Log.OutputFile)
	c.Server.Addr = envStr("PUNTAIQ_ADDR", c.Server.Addr)

	c.Fixtures.Source = envStr("PUNTAIQ_FIXTURES_SOURCE", c.Fixtures.Source)
	c.Fixtures.Path = envStr("PUNTAIQ_FIXTURES_PATH", c.Fixtures.Path)
	c.Fixtures.BaseURL = envStr("PUNTAIQ_FIXTURES_URL", c.Fixtures.BaseURL)
	c.Fixtures.APIKey = envStr("PUNTAIQ_FIXTURES_API_KEY", c.Fixtures.APIKey)

	if v := os.Getenv("PUNTAIQ_SPORTS"); v != "" {
		c.Pipeline.Sports = splitList(v)
	}
	if v := os.Getenv("PUNTAIQ_NOTIFY_USERS"); v != "" {
		c.Pipeline.NotifyUsers = splitList(v)
	}

	var err error
	if c.Pipeline.DaysAhead, err = envInt("PUNTAIQ_DAYS_AHEAD", c.Pipeline.DaysAhead); err != nil {
		return err
	}
	if c.Pipeline.Interval, err = envDuration("PUNTAIQ_INTERVAL", c.Pipeline.Interval); err != nil {
		return err
	}

	c.Engine.ModelPath = envStr("PUNTAIQ_MODEL_PATH", c.Engine.ModelPath)
	c.History.Path = envStr("PUNTAIQ_HISTORY_PATH", c.History.Path)

	c.Sinks.OutputDir = envStr("PUNTAIQ_OUTPUT_DIR", c.Sinks.OutputDir)
	c.Sinks.SQL.Driver = envStr("PUNTAIQ_SQL_DRIVER", c.Sinks.SQL.Driver)
	c.Sinks.SQL.DSN = envStr("PUNTAIQ_SQL_DSN", c.Sinks.SQL.DSN)
	c.Sinks.Telegram.Token = envStr("PUNTAIQ_TELEGRAM_TOKEN", c.Sinks.Telegram.Token)
	if v := os.Getenv("PUNTAIQ_TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "PUNTAIQ_TELEGRAM_CHAT_ID")
		}
		c.Sinks.Telegram.ChatID = id
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if len(c.Pipeline.Sports) == 0 {
		return errors.New("config: at least one sport is required")
	}
	for _, s := range c.Pipeline.Sports {
		if _, err := core.ParseSport(s); err != nil {
			return errors.Wrap(err, "config")
		}
	}

	switch c.Fixtures.Source {
	case SourceSynthetic:
	case SourceFile:
		if c.Fixtures.Path == "" {
			return errors.New("config: fixtures.path is required for the file source")
		}
	case SourceHTTP:
		if c.Fixtures.BaseURL == "" {
			return errors.New("config: fixtures.base_url is required for the http source")
		}
	default:
		return fmt.Errorf("config: unknown fixtures source %q", c.Fixtures.Source)
	}

	if c.Sinks.SQL.DSN != "" && c.Sinks.SQL.Driver != "sqlite" && c.Sinks.SQL.Driver != "postgres" {
		return fmt.Errorf("config: unknown sql driver %q", c.Sinks.SQL.Driver)
	}
	if c.Pipeline.Interval < 0 {
		return errors.New("config: pipeline.interval must not be negative")
	}
	return nil
}

// Sports returns the configured sports.
func (c *Config) Sports() []core.Sport {
	out := make([]core.Sport, 0, len(c.Pipeline.Sports))
	for _, s := range c.Pipeline.Sports {
		sport, err := core.ParseSport(s)
		if err == nil {
			out = append(out, sport)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
