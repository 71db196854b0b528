// Package config loads the runner configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"chartci/internal/badge"
	"chartci/internal/bot"
)

// Environment variables that override file values.
const (
	EnvToken         = bot.TokenEnv
	EnvWebhookSecret = "CHARTCI_WEBHOOK_SECRET"
	EnvPort          = "PORT"
)

// Config is everything a run needs that is not part of the pipeline itself.
// Credentials and identity are passed explicitly into runs from here.
type Config struct {
	Pipeline    string   `yaml:"pipeline"` // path to a pipeline file; empty uses the built-in one
	Workdir     string   `yaml:"workdir" validate:"required"`
	MainBranch  string   `yaml:"main_branch" validate:"required"`
	StepTimeout Duration `yaml:"step_timeout"` // 0 uses the runner default
	ArtifactDir string   `yaml:"artifact_dir"` // parent of per-run artifact snapshots; empty uses the system temp dir
	MaxParallel int      `yaml:"max_parallel" validate:"gte=0"`
	LogDir      string   `yaml:"log_dir" validate:"required"`
	LedgerPath  string   `yaml:"ledger_path"` // empty disables the run ledger
	KeyDir      string   `yaml:"key_dir" validate:"required_with=LedgerPath"`

	Bot    BotConfig    `yaml:"bot"`
	Badge  BadgeConfig  `yaml:"badge"`
	Server ServerConfig `yaml:"server"`
}

// BotConfig describes the external upgrade bot.
type BotConfig struct {
	Program string     `yaml:"program" validate:"required"`
	Target  bot.Target `yaml:"target"`
	Labels  []string   `yaml:"labels"`
	Token   string     `yaml:"-"` // only ever read from the environment
}

// BadgeConfig describes where the coverage badge is committed.
type BadgeConfig struct {
	Label    string         `yaml:"label" validate:"required"`
	RepoPath string         `yaml:"repo_path" validate:"required"`
	File     string         `yaml:"file" validate:"required"`
	Remote   string         `yaml:"remote"`
	Author   badge.Identity `yaml:"author"`
}

// ServerConfig configures `chartci serve`.
type ServerConfig struct {
	Addr             string   `yaml:"addr" validate:"required"`
	WebhookSecret    string   `yaml:"-"`
	ScheduleInterval Duration `yaml:"schedule_interval"`
}

// Duration decodes Go duration strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workdir:     ".",
		MainBranch:  "main",
		StepTimeout: Duration(5 * time.Minute),
		MaxParallel: 1,
		LogDir:      ".chartci/logs",
		KeyDir:      ".chartci/keys",
		Bot: BotConfig{
			Program: "HelmUpgradeBot",
		},
		Badge: BadgeConfig{
			Label:    "coverage",
			RepoPath: ".",
			File:     "badges/coverage.json",
			Author:   badge.Identity{Name: "chartci", Email: "chartci@users.noreply.github.com"},
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies the
// environment. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

// ApplyEnv copies secrets and overrides from the process environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvToken); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv(EnvWebhookSecret); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = ":" + v
		}
	}
}

var validate = validator.New()

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	if c.StepTimeout < 0 {
		return errors.New("config error: 'step_timeout' must be non-negative")
	}
	if c.Server.ScheduleInterval < 0 {
		return errors.New("config error: 'schedule_interval' must be non-negative")
	}
	return nil
}

// ValidateServer adds the checks only `serve` needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.WebhookSecret == "" {
		return fmt.Errorf("config error: %s must be set to serve webhooks", EnvWebhookSecret)
	}
	return nil
}
