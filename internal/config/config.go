package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for RecordVault
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Grants     GrantsConfig     `yaml:"grants"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	JWTSecret   string `yaml:"jwt_secret"`
}

// DatabaseConfig holds storage backend configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`
}

// ExtractionConfig holds document-understanding service configuration
type ExtractionConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// GrantsConfig holds access grant configuration
type GrantsConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 3007),
			Environment: getEnv("ENVIRONMENT", "development"),
			JWTSecret:   getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data"),
		},
		Extraction: ExtractionConfig{
			BaseURL: getEnv("EXTRACTION_URL", "http://localhost:8090"),
			APIKey:  getEnv("EXTRACTION_API_KEY", ""),
			Timeout: getEnvDuration("EXTRACTION_TIMEOUT", 30*time.Second),
		},
		Grants: GrantsConfig{
			DefaultTTL: getEnvDuration("GRANT_DEFAULT_TTL", 24*time.Hour),
			MaxTTL:     getEnvDuration("GRANT_MAX_TTL", 30*24*time.Hour),
		},
		Audit: AuditConfig{
			Enabled:    getEnvBool("AUDIT_ENABLED", true),
			BufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 1000),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3007
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data"
	}
	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = 30 * time.Second
	}
	if c.Grants.DefaultTTL == 0 {
		c.Grants.DefaultTTL = 24 * time.Hour
	}
	if c.Grants.MaxTTL == 0 {
		c.Grants.MaxTTL = 30 * 24 * time.Hour
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
