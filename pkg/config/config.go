package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full server and CLI configuration
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	Storage struct {
		Backend    string `mapstructure:"backend"` // "wal" or "bolt"
		WALDir     string `mapstructure:"wal_dir"`
		DataDir    string `mapstructure:"data_dir"`
		BoltPath   string `mapstructure:"bolt_path"`
		Durability string `mapstructure:"durability"`
	} `mapstructure:"storage"`

	Batch struct {
		MaxSize           int  `mapstructure:"max_size"`
		Limit             int  `mapstructure:"limit"` // 0 uses the backend maximum
		CommitConcurrency int  `mapstructure:"commit_concurrency"`
		ResetOnFailure    bool `mapstructure:"reset_on_failure"`
	} `mapstructure:"batch"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// Load reads path (optional), then GODB_* environment overrides, on top of
// the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// e.g. GODB_BATCH_LIMIT=200
	v.SetEnvPrefix("GODB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.backend", "wal")
	v.SetDefault("storage.wal_dir", "./wal")
	v.SetDefault("storage.data_dir", ".")
	v.SetDefault("storage.bolt_path", "go-db.bolt")
	v.SetDefault("storage.durability", "os")
	v.SetDefault("batch.max_size", 500)
	v.SetDefault("batch.limit", 0)
	v.SetDefault("batch.commit_concurrency", 0)
	v.SetDefault("batch.reset_on_failure", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component could run with
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "wal", "bolt":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Batch.MaxSize <= 0 {
		return fmt.Errorf("batch.max_size must be positive, got %d", c.Batch.MaxSize)
	}
	if c.Batch.Limit < 0 {
		return fmt.Errorf("batch.limit must not be negative, got %d", c.Batch.Limit)
	}
	return nil
}
