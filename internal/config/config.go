// Package config loads the migration settings from a YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Source           SourceConfig  `yaml:"source"`
	Target           TargetConfig  `yaml:"target"`
	Timeouts         Timeouts      `yaml:"timeouts"`
	Log              LogConfig     `yaml:"log"`
	Metrics          MetricsConfig `yaml:"metrics"`
	ProgressInterval int           `yaml:"progress_interval"`
}

type SourceConfig struct {
	Engine string `yaml:"engine"`
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

type TargetConfig struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

// Timeouts bounds every phase of a run.
type Timeouts struct {
	Connect       time.Duration `yaml:"connect"`
	ListTables    time.Duration `yaml:"list_tables"`
	ListColumns   time.Duration `yaml:"list_columns"`
	Constraints   time.Duration `yaml:"constraints"`
	ConstraintDDL time.Duration `yaml:"constraint_ddl"`
	Transfer      time.Duration `yaml:"transfer"`
	Backfill      time.Duration `yaml:"backfill"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Environment variables read by ApplyEnv.
const (
	EnvSourceEngine = "SOURCE_DB_ENGINE"
	EnvSourceDSN    = "SOURCE_DB_DSN"
	EnvSourceSchema = "SOURCE_DB_SCHEMA"
	EnvTargetDSN    = "TARGET_DB_DSN"
	EnvTargetSchema = "TARGET_DB_SCHEMA"
)

var engines = map[string]bool{"mysql": true, "mssql": true}

func Default() *Config {
	return &Config{
		Source: SourceConfig{Engine: "mysql"},
		Timeouts: Timeouts{
			Connect:       10 * time.Second,
			ListTables:    30 * time.Second,
			ListColumns:   300 * time.Second,
			Constraints:   30 * time.Second,
			ConstraintDDL: 60 * time.Second,
			Transfer:      2000 * time.Second,
			Backfill:      2000 * time.Second,
		},
		Log:              LogConfig{Level: "info", Format: "text"},
		ProgressInterval: 1000,
	}
}

// Load reads the YAML file at path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads a .env file into the process environment without overriding variables
// that are already set. A missing file is only an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file not found: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides connection settings with the environment variables that are set.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Source.Engine, EnvSourceEngine)
	setFromEnv(&c.Source.DSN, EnvSourceDSN)
	setFromEnv(&c.Source.Schema, EnvSourceSchema)
	setFromEnv(&c.Target.DSN, EnvTargetDSN)
	setFromEnv(&c.Target.Schema, EnvTargetSchema)
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	if !engines[c.Source.Engine] {
		return fmt.Errorf("source.engine must be mysql or mssql, got %q", c.Source.Engine)
	}
	if c.Source.DSN == "" {
		return fmt.Errorf("source.dsn is required (or set %s)", EnvSourceDSN)
	}
	if c.Target.DSN == "" {
		return fmt.Errorf("target.dsn is required (or set %s)", EnvTargetDSN)
	}
	if c.ProgressInterval <= 0 {
		return errors.New("progress_interval must be positive")
	}

	for name, d := range map[string]time.Duration{
		"connect":        c.Timeouts.Connect,
		"list_tables":    c.Timeouts.ListTables,
		"list_columns":   c.Timeouts.ListColumns,
		"constraints":    c.Timeouts.Constraints,
		"constraint_ddl": c.Timeouts.ConstraintDDL,
		"transfer":       c.Timeouts.Transfer,
		"backfill":       c.Timeouts.Backfill,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", name)
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

var (
	urlPassword     = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@]+:)([^@]+)(@)`)
	mysqlPassword   = regexp.MustCompile(`^([^:/@]+:)([^@/]+)(@)`)
	keywordPassword = regexp.MustCompile(`(?i)(\b(?:password|pwd)\s*=\s*)([^;\s]*)`)
)

// Redact replaces the password in a connection string with "***" for logging.
func Redact(dsn string) string {
	dsn = urlPassword.ReplaceAllString(dsn, "${1}***${3}")
	dsn = mysqlPassword.ReplaceAllString(dsn, "${1}***${3}")
	return keywordPassword.ReplaceAllString(dsn, "${1}***")
}
