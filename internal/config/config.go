// Package config loads timelogbot configuration from a YAML file.
//
// Loading is three steps: the raw file is validated against an embedded CUE
// schema, decoded into Config, then secrets may be overridden from the
// environment and defaults are filled in.
//
// Environment overrides (highest precedence):
//
//	TIMELOGBOT_REDMINE_API_KEY       -> redmine.api_key
//	TIMELOGBOT_CONFLUENCE_API_TOKEN  -> confluence.api_token
//	TIMELOGBOT_SMTP_PASSWORD         -> email.password
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// DefaultDatabase is the SQLite state file used when none is configured.
	DefaultDatabase = "timelogbot.db"

	// DefaultPageTitle is the report page title in every space.
	DefaultPageTitle = "TimeLog"

	// DefaultSMTPPort is the submission port (STARTTLS).
	DefaultSMTPPort = 587

	// DefaultConcurrency is the number of projects processed at once.
	DefaultConcurrency = 4
)

// Environment variables that override secrets from the file.
const (
	EnvRedmineAPIKey      = "TIMELOGBOT_REDMINE_API_KEY"
	EnvConfluenceAPIToken = "TIMELOGBOT_CONFLUENCE_API_TOKEN"
	EnvSMTPPassword       = "TIMELOGBOT_SMTP_PASSWORD"
)

// Config is the full timelogbot configuration.
type Config struct {
	Database       string   `yaml:"database" json:"database"`
	Projects       []string `yaml:"projects" json:"projects"`
	SpacePrefix    string   `yaml:"space_prefix" json:"space_prefix"`
	PageTitle      string   `yaml:"page_title" json:"page_title"`
	Separator      string   `yaml:"separator" json:"separator"`
	Concurrency    int      `yaml:"concurrency" json:"concurrency"`
	FoldDiacritics bool     `yaml:"fold_diacritics" json:"fold_diacritics"`
	MetricsFile    string   `yaml:"metrics_file" json:"metrics_file,omitempty"`

	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Redmine    RedmineConfig    `yaml:"redmine" json:"redmine"`
	Confluence ConfluenceConfig `yaml:"confluence" json:"confluence"`
	Email      EmailConfig      `yaml:"email" json:"email"`
	Recipients []string         `yaml:"recipients" json:"recipients"`
}

// RetryConfig bounds retries of transport failures. Zero values select the
// engine defaults.
type RetryConfig struct {
	Attempts       int      `yaml:"attempts" json:"attempts,omitempty"`
	InitialBackoff Duration `yaml:"initial_backoff" json:"initial_backoff,omitempty"`
	MaxBackoff     Duration `yaml:"max_backoff" json:"max_backoff,omitempty"`
}

// RedmineConfig configures the time source.
type RedmineConfig struct {
	URL               string  `yaml:"url" json:"url"`
	APIKey            Secret  `yaml:"api_key" json:"api_key"`
	BudgetField       string  `yaml:"budget_field" json:"budget_field,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second,omitempty"`
}

// ConfluenceConfig configures the wiki store. An empty User selects bearer
// token auth.
type ConfluenceConfig struct {
	APIURL   string `yaml:"api_url" json:"api_url"`
	User     string `yaml:"user" json:"user,omitempty"`
	APIToken Secret `yaml:"api_token" json:"api_token"`
}

// EmailConfig configures the SMTP notifier.
type EmailConfig struct {
	Sender         string `yaml:"sender" json:"sender"`
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	User           string `yaml:"user" json:"user,omitempty"`
	Password       Secret `yaml:"password" json:"password"`
	AllowPlaintext bool   `yaml:"allow_plaintext" json:"allow_plaintext,omitempty"`
}

// Load reads, validates and decodes the configuration file at path, then
// applies environment overrides from the process environment and defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup. A nil getenv
// disables overrides.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data, getenv)
}

// Parse validates and decodes data. filename is only used in error
// positions. getenv supplies environment overrides; pass nil to disable
// them.
func Parse(filename string, data []byte, getenv func(string) string) (*Config, error) {
	if err := Validate(filename, data); err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	cfg.ApplyDefaults()

	if err := cfg.checkSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	return data, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvRedmineAPIKey); v != "" {
		c.Redmine.APIKey = Secret(v)
	}
	if v := getenv(EnvConfluenceAPIToken); v != "" {
		c.Confluence.APIToken = Secret(v)
	}
	if v := getenv(EnvSMTPPassword); v != "" {
		c.Email.Password = Secret(v)
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.PageTitle == "" {
		c.PageTitle = DefaultPageTitle
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Email.Port == 0 {
		c.Email.Port = DefaultSMTPPort
	}
}

// checkSecrets reports secrets that are neither in the file nor in the
// environment. The schema cannot catch these since they may arrive late.
func (c *Config) checkSecrets() error {
	var errs []error
	if !c.Redmine.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("redmine.api_key is not set (or %s)", EnvRedmineAPIKey))
	}
	if !c.Confluence.APIToken.IsSet() {
		errs = append(errs, fmt.Errorf("confluence.api_token is not set (or %s)", EnvConfluenceAPIToken))
	}
	return errors.Join(errs...)
}
