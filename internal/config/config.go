package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for tablechat
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Database DatabaseConfig `mapstructure:"database"`
	History  HistoryConfig  `mapstructure:"history"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Session  SessionConfig  `mapstructure:"session"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// UpstreamConfig holds the remote document/SQL API settings
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig holds the sqlite path used by the sqlite history backend
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HistoryConfig selects where per-table chat history lives
type HistoryConfig struct {
	Backend    string `mapstructure:"backend"` // memory, sqlite, badger, redis
	RedisURL   string `mapstructure:"redis_url"`
	BadgerPath string `mapstructure:"badger_path"`
}

// ChatConfig holds query dispatch settings
type ChatConfig struct {
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	CancelOnDeselect bool          `mapstructure:"cancel_on_deselect"`
	PreviewRows      int           `mapstructure:"preview_rows"`
	FileType         string        `mapstructure:"file_type"`
}

// SessionConfig controls how long idle workspaces are kept
type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("TABLECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("upstream.base_url", "http://127.0.0.1:8000")
	v.SetDefault("upstream.timeout", 2*time.Minute)

	v.SetDefault("database.path", "./data/tablechat.db")

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.redis_url", "redis://localhost:6379/0")
	v.SetDefault("history.badger_path", "./data/history")

	v.SetDefault("chat.query_timeout", 2*time.Minute)
	v.SetDefault("chat.cancel_on_deselect", false)
	v.SetDefault("chat.preview_rows", 5)
	v.SetDefault("chat.file_type", "sql")

	v.SetDefault("session.idle_ttl", 2*time.Hour)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)

	v.SetDefault("cors.allow_origins", []string{"*"})
}

// Validate checks values viper cannot check for us
func (c *Config) Validate() error {
	switch c.History.Backend {
	case "memory", "sqlite", "badger", "redis":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Chat.PreviewRows <= 0 {
		c.Chat.PreviewRows = 5
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
