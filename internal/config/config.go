package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "HG"
	configName = "config"
	configType = "toml"
	configDir  = "hg"
)

const (
	SecretsBackendChain = "chain"
	SecretsBackendFile  = "file"
	SecretsBackendPass  = "pass"
	SecretsBackendRedis = "redis"
)

type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Gateway  GatewayConfig
	Session  SessionConfig
	Secrets  SecretsConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type APIConfig struct {
	BaseURL string
}

type RealtimeConfig struct {
	URL                  string
	Namespace            string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HandshakeTimeout     time.Duration
}

// GatewayConfig carries the tunable request policy. Durations accept Go
// duration strings ("45s", "5m").
type GatewayConfig struct {
	MaxRetries        int
	BaseBackoff       time.Duration
	CacheTTL          time.Duration
	CacheableGets     []string
	HotEndpoints      []string
	HotCooldown       time.Duration
	CooldownPrefixes  []string
	PrefixCooldown    time.Duration
	ExhaustedCooldown time.Duration
	RequestTimeout    time.Duration
}

type SessionConfig struct {
	Path string
}

type SecretsConfig struct {
	Backend string
	Dir     string
	// PassDir overrides PASSWORD_STORE_DIR for the pass backend.
	PassDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

type LoadOptions struct {
	// ConfigFile overrides the default $XDG_CONFIG_HOME/hg/config.toml.
	ConfigFile string
	// EnvFile is loaded into the environment first when it exists.
	EnvFile string
}

// Load resolves configuration from defaults, the TOML config file, the
// optional .env file and HG_* variables, in increasing precedence. The
// returned viper instance is shared with adapters that read their own keys.
func Load(opts LoadOptions) (Config, *viper.Viper, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000/api/v1")

	v.SetDefault("realtime.url", "http://localhost:3000")
	v.SetDefault("realtime.namespace", "/helpers")
	v.SetDefault("realtime.max_reconnect_attempts", 5)
	v.SetDefault("realtime.reconnect_delay", "1s")
	v.SetDefault("realtime.handshake_timeout", "10s")

	v.SetDefault("gateway.max_retries", 4)
	v.SetDefault("gateway.base_backoff", "1s")
	v.SetDefault("gateway.cache_ttl", "10s")
	v.SetDefault("gateway.cacheable_gets", []string{"/auth/me", "/helpers/me", "/chat/templates"})
	v.SetDefault("gateway.hot_endpoints", []string{"/services/active"})
	v.SetDefault("gateway.hot_cooldown", "5m")
	v.SetDefault("gateway.cooldown_prefixes", []string{"/notifications"})
	v.SetDefault("gateway.prefix_cooldown", "45s")
	v.SetDefault("gateway.exhausted_cooldown", "30s")
	v.SetDefault("gateway.request_timeout", "30s")

	v.SetDefault("secrets.backend", SecretsBackendChain)
	v.SetDefault("secrets.dir", "")
	v.SetDefault("secrets.pass_dir", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "hg:secret:")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
}

func fromViper(v *viper.Viper) Config {
	return Config{
		API: APIConfig{BaseURL: v.GetString("api.base_url")},
		Realtime: RealtimeConfig{
			URL:                  v.GetString("realtime.url"),
			Namespace:            v.GetString("realtime.namespace"),
			MaxReconnectAttempts: v.GetInt("realtime.max_reconnect_attempts"),
			ReconnectDelay:       v.GetDuration("realtime.reconnect_delay"),
			HandshakeTimeout:     v.GetDuration("realtime.handshake_timeout"),
		},
		Gateway: GatewayConfig{
			MaxRetries:        v.GetInt("gateway.max_retries"),
			BaseBackoff:       v.GetDuration("gateway.base_backoff"),
			CacheTTL:          v.GetDuration("gateway.cache_ttl"),
			CacheableGets:     v.GetStringSlice("gateway.cacheable_gets"),
			HotEndpoints:      v.GetStringSlice("gateway.hot_endpoints"),
			HotCooldown:       v.GetDuration("gateway.hot_cooldown"),
			CooldownPrefixes:  v.GetStringSlice("gateway.cooldown_prefixes"),
			PrefixCooldown:    v.GetDuration("gateway.prefix_cooldown"),
			ExhaustedCooldown: v.GetDuration("gateway.exhausted_cooldown"),
			RequestTimeout:    v.GetDuration("gateway.request_timeout"),
		},
		Session: SessionConfig{Path: v.GetString("session.path")},
		Secrets: SecretsConfig{
			Backend: strings.ToLower(v.GetString("secrets.backend")),
			Dir:     v.GetString("secrets.dir"),
			PassDir: v.GetString("secrets.pass_dir"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Metrics: MetricsConfig{Addr: v.GetString("metrics.addr")},
		Log:     LogConfig{Level: v.GetString("log.level")},
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Realtime.URL == "" {
		errs = append(errs, errors.New("realtime.url is required"))
	}
	if c.Gateway.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_retries must not be negative, got %d", c.Gateway.MaxRetries))
	}

	switch c.Secrets.Backend {
	case SecretsBackendChain, SecretsBackendFile, SecretsBackendPass:
	case SecretsBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis secrets backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown secrets.backend %q", c.Secrets.Backend))
	}

	return errors.Join(errs...)
}
