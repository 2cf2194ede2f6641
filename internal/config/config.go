// Package config loads mlbench settings from mlbench.{yaml,toml,json}, a
// .env file and MLBENCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mlbench/mlbench/internal/secrets"
)

// EnvPrefix prefixes environment overrides, e.g. MLBENCH_DATABASE_SECRET_ID.
const EnvPrefix = "MLBENCH"

// ContextProvider names a configured context provider that the CLI can
// select with --context provider=<name>.
type ContextProvider struct {
	Name      string         `mapstructure:"name" validate:"required"`
	Kind      string         `mapstructure:"kind" validate:"required"`
	Arguments map[string]any `mapstructure:"arguments"`
}

// Database locates the Postgres results store.
type Database struct {
	URL      string `mapstructure:"url"`
	SecretID string `mapstructure:"secret_id"`
}

// Config holds the merged settings.
type Config struct {
	LogLevel    string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Jobs        int               `mapstructure:"jobs" validate:"min=1"`
	FixtureRoot string            `mapstructure:"fixture_root"`
	Output      string            `mapstructure:"output"`
	Context     []ContextProvider `mapstructure:"context" validate:"unique=Name,dive"`
	Database    Database          `mapstructure:"database"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{LogLevel: "info", Jobs: 1}
}

// SearchPaths are the directories searched for mlbench.{yaml,toml,json}
// when no file is given.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mlbench"))
	}
	return paths
}

// Load reads the configuration. A non-empty file must exist; otherwise the
// SearchPaths are tried and a missing file is not an error.
func Load(file string) (*Config, error) {
	return load(file, SearchPaths())
}

func load(file string, paths []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	def := Default()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("jobs", def.Jobs)
	v.SetDefault("fixture_root", "")
	v.SetDefault("output", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.secret_id", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("mlbench")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Provider looks up a configured context provider by name.
func (c *Config) Provider(name string) (ContextProvider, bool) {
	for _, p := range c.Context {
		if p.Name == name {
			return p, true
		}
	}
	return ContextProvider{}, false
}

// DatabaseURI returns the Postgres location: the URL if set, else a
// secretsmanager:// reference to SecretID, else "".
func (c *Config) DatabaseURI() string {
	switch {
	case c.Database.URL != "":
		return c.Database.URL
	case c.Database.SecretID != "":
		return secrets.Scheme + c.Database.SecretID
	}
	return ""
}
