// Package config loads the YAML configuration for the conversion service and
// the database loader.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DBConfig selects and parameterizes the storage backend.
type DBConfig struct {
	Type         string `yaml:"type"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DatabaseName string `yaml:"database_name"`
	Schema       string `yaml:"schema"`

	// DSN, when set, wins over the assembled connection string. Environment
	// references like ${PGPASSWORD} are expanded at load time.
	DSN string `yaml:"dsn"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// PipelineConfig tunes the two streaming passes.
type PipelineConfig struct {
	TempDir      string `yaml:"temp_dir"`
	MinRepeat    int    `yaml:"min_repeat"`
	MaxDepth     int    `yaml:"max_depth"`
	SampleCap    int64  `yaml:"sample_cap"`
	CSVDelimiter string `yaml:"csv_delimiter"`
	CSVQuoteAll  bool   `yaml:"csv_quote_all"`
}

// MetricsConfig selects a metrics backend; empty or "none" disables it.
type MetricsConfig struct {
	Backend string   `yaml:"backend"`
	Service string   `yaml:"service"`
	Tags    []string `yaml:"tags"`
}

type AppConfig struct {
	Database DBConfig       `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoadFile loads YAML config from path and expands environment references in
// the credential fields.
func LoadFile(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	return cfg, nil
}

// NormalizeDriver maps common aliases to the canonical backend keys.
func NormalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "postgresql", "pg", "postgres", "pgx":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "mssql", "sqlserver":
		return "sqlserver"
	default:
		return strings.ToLower(strings.TrimSpace(d))
	}
}

// BuildDriverAndDSN produces the backend key and connection string for the
// supported database types.
func BuildDriverAndDSN(db DBConfig) (driver string, dsn string, err error) {
	t := NormalizeDriver(db.Type)

	if db.DSN != "" {
		return t, db.DSN, nil
	}

	switch t {
	case "postgres":
		driver = "postgres"
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	case "sqlite":
		driver = "sqlite"
		if db.DatabaseName == "" {
			return "", "", fmt.Errorf("sqlite needs a file path in database_name")
		}
		dsn = fmt.Sprintf("file:%s", db.DatabaseName)
	case "sqlserver":
		driver = "sqlserver"
		dsn = fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			db.Username, db.Password, db.Host, db.Port, db.DatabaseName)
	default:
		err = fmt.Errorf("unsupported database type: %q", db.Type)
	}
	return
}

// Validate reports configuration problems that would fail later anyway, so
// binaries can reject a bad file up front.
func (c AppConfig) Validate() error {
	if c.Database.Type != "" {
		if _, _, err := BuildDriverAndDSN(c.Database); err != nil {
			return err
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if d := c.Pipeline.CSVDelimiter; len(d) > 1 {
		return fmt.Errorf("pipeline.csv_delimiter must be a single character, got %q", d)
	}
	if c.Pipeline.MinRepeat < 0 {
		return fmt.Errorf("pipeline.min_repeat must not be negative")
	}
	return nil
}

// Delimiter returns the configured CSV delimiter as a rune, or 0 for the
// default comma.
func (p PipelineConfig) Delimiter() rune {
	if p.CSVDelimiter == "" {
		return 0
	}
	return rune(p.CSVDelimiter[0])
}
