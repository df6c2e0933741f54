package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/adapter/postgresdb"
	"github.com/foliostore/folio/internal/adapter/sqlitedb"
)

// Config is the yaml configuration file.
type Config struct {
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures the embedded backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the server backend.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DefaultConfig is what an absent config file means: a local sqlite
// database in the working directory.
func DefaultConfig() Config {
	return Config{
		Backend: "sqlite",
		SQLite:  SQLiteConfig{Path: "folio.db"},
	}
}

// LoadConfig reads a yaml config file. A missing file at the default
// path falls back to DefaultConfig; an explicitly named missing file is
// an error.
func LoadConfig(path string, explicit bool) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	switch cfg.Backend {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("config %s: unknown backend %q", path, cfg.Backend)
	}
	return cfg, nil
}

// OpenAdapter opens the configured backend.
func OpenAdapter(cfg Config, log *zap.Logger) (adapter.Adapter, error) {
	switch cfg.Backend {
	case "postgres":
		return postgresdb.Open(cfg.Postgres.DSN, postgresdb.Options{
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		}, log)
	default:
		return sqlitedb.Open(cfg.SQLite.Path, log)
	}
}
