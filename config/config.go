package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "POWCHAIN"

type StorageType string

const (
	MemoryStorage StorageType = "memory"
	BadgerStorage StorageType = "badger"
)

// Config holds all configuration for a node
type Config struct {
	NodeID        string      `mapstructure:"node_id" validate:"required"`
	ListenAddress string      `mapstructure:"listen_address" validate:"required"`
	Storage       StorageType `mapstructure:"storage" validate:"oneof=memory badger"`
	DataDir       string      `mapstructure:"data_dir" validate:"required_if=Storage badger"`
	Peers         []string    `mapstructure:"peers"`

	ResolveInterval      time.Duration `mapstructure:"resolve_interval" validate:"gt=0"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches" validate:"gte=1"`
	RejectedCacheSize    int           `mapstructure:"rejected_cache_size" validate:"gte=1"`
	MiningReward         float64       `mapstructure:"mining_reward"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text plain json"`
}

// NewNodeID returns a fresh dashless UUID.
func NewNodeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "")
	v.SetDefault("listen_address", ":5000")
	v.SetDefault("storage", string(MemoryStorage))
	v.SetDefault("data_dir", "")
	v.SetDefault("peers", []string{})
	v.SetDefault("resolve_interval", 5*time.Second)
	v.SetDefault("fetch_timeout", 3*time.Second)
	v.SetDefault("max_concurrent_fetches", 8)
	v.SetDefault("rejected_cache_size", 128)
	v.SetDefault("mining_reward", 1.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Default returns the configuration used when nothing is overridden, with a
// freshly generated node id.
func Default() *Config {
	cfg, err := Load("", nil)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Load layers defaults, the optional config file, POWCHAIN_* environment
// variables and any flags that were set (flag names use dashes, keys use
// underscores). The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isConfigKey(key) {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.NodeID == "" {
		cfg.NodeID = NewNodeID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var configKeys = map[string]bool{
	"node_id": true, "listen_address": true, "storage": true, "data_dir": true,
	"peers": true, "resolve_interval": true, "fetch_timeout": true,
	"max_concurrent_fetches": true, "rejected_cache_size": true, "mining_reward": true,
	"log_level": true, "log_format": true,
}

func isConfigKey(key string) bool {
	return configKeys[key]
}

var validate = validator.New()

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
