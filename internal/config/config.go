// Package config holds the service configuration loaded from a YAML file
// and environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings. User is the acting
// identity recorded in audit entries, not a per-request identity.
type DatabaseConfig struct {
	URI             string        `yaml:"uri"                env:"DATABASE_URI"                env-required:"true"`
	User            string        `yaml:"user"               env:"DATABASE_USER"               env-default:"tariff-service"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
}

// AuditConfig holds NATS Streaming settings for the audit stream.
type AuditConfig struct {
	ClusterID       string `yaml:"cluster_id"        env:"STAN_CLUSTER_ID" env-default:"tariff-cluster"`
	ClientID        string `yaml:"client_id"         env:"STAN_CLIENT_ID"`
	URL             string `yaml:"url"               env:"NATS_URL"        env-default:"nats://localhost:4222"`
	Subject         string `yaml:"subject"           env:"STAN_SUBJECT"    env-default:"tariff-audit"`
	BatchMaxEntries int    `yaml:"batch_max_entries" env:"AUDIT_BATCH_MAX_ENTRIES" env-default:"64"`
	BatchMaxBytes   int    `yaml:"batch_max_bytes"   env:"AUDIT_BATCH_MAX_BYTES"   env-default:"65536"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Validate checks settings that cleanenv tags cannot express.
func (c *Config) Validate() error {
	if c.Database.MinConns < 0 {
		return fmt.Errorf("database.min_conns must not be negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns must be at least database.min_conns")
	}
	if c.Audit.BatchMaxEntries <= 0 {
		return fmt.Errorf("audit.batch_max_entries must be positive")
	}
	if c.Audit.BatchMaxBytes <= 0 {
		return fmt.Errorf("audit.batch_max_bytes must be positive")
	}
	return nil
}
