package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/helper-gateway/internal/adapters/gateway"
	"github.com/bnema/helper-gateway/internal/adapters/metrics"
	"github.com/bnema/helper-gateway/internal/adapters/realtime"
	statusadapter "github.com/bnema/helper-gateway/internal/adapters/render/status"
	tomlrepo "github.com/bnema/helper-gateway/internal/adapters/repo/toml"
	chainstore "github.com/bnema/helper-gateway/internal/adapters/secrets/chain"
	filestore "github.com/bnema/helper-gateway/internal/adapters/secrets/file"
	passstore "github.com/bnema/helper-gateway/internal/adapters/secrets/pass"
	redisstore "github.com/bnema/helper-gateway/internal/adapters/secrets/redis"
	"github.com/bnema/helper-gateway/internal/application"
	"github.com/bnema/helper-gateway/internal/client"
	"github.com/bnema/helper-gateway/internal/config"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/rs/zerolog"
)

type app struct {
	cfg            config.Config
	logger         zerolog.Logger
	client         *client.Client
	metrics        *metrics.Recorder
	statusRenderer func(statusadapter.Snapshot, statusadapter.RenderOptions) (string, error)
	now            func() time.Time

	closers []func() error
}

type wireOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logOutput  io.Writer
}

func (a *app) wire(ctx context.Context, opts wireOptions) error {
	cfg, v, err := config.Load(config.LoadOptions{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := opts.logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	logger, err := newLogger(level, opts.logOutput)
	if err != nil {
		return err
	}

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return fmt.Errorf("wire session repository: %w", err)
	}

	secretStore, err := a.wireSecretStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire secret store: %w", err)
	}

	session := application.NewSessionService(repo, secretStore, ports.SystemClock{})
	if err := session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	recorder := metrics.NewRecorder()

	gw, err := gateway.New(gateway.Config{
		BaseURL: cfg.API.BaseURL,
		Policy:  gatewayPolicy(cfg.Gateway),
		Metrics: recorder,
		Logger:  logger,
		Cookies: secretStore,
	}, session)
	if err != nil {
		return fmt.Errorf("wire gateway: %w", err)
	}
	if err := gw.RestoreCookies(ctx); err != nil {
		logger.Warn().Err(err).Msg("restore backend cookies")
	}

	channel, err := realtime.NewChannel(realtime.Config{
		URL:                  cfg.Realtime.URL,
		Namespace:            cfg.Realtime.Namespace,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Realtime.ReconnectDelay,
		HandshakeTimeout:     cfg.Realtime.HandshakeTimeout,
		Metrics:              recorder,
		Logger:               logger,
	}, session)
	if err != nil {
		return fmt.Errorf("wire realtime channel: %w", err)
	}

	c, err := client.New(session, gw, channel, logger)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.client = c
	a.metrics = recorder
	a.statusRenderer = statusadapter.Render
	a.now = time.Now
	a.closers = append(a.closers, func() error {
		c.Close()
		return nil
	})
	return nil
}

func (a *app) wireSecretStore(cfg config.Config, logger zerolog.Logger) (ports.SecretStore, error) {
	switch cfg.Secrets.Backend {
	case config.SecretsBackendFile:
		dir, err := secretsDir(cfg)
		if err != nil {
			return nil, err
		}
		return filestore.NewStore(dir), nil
	case config.SecretsBackendPass:
		return passStore(cfg), nil
	case config.SecretsBackendRedis:
		return a.wireRedisStore(cfg)
	}

	dir, err := secretsDir(cfg)
	if err != nil {
		return nil, err
	}
	backends := []chainstore.Backend{{Name: config.SecretsBackendPass, Store: passStore(cfg)}}
	if cfg.Redis.Addr != "" {
		store, err := a.wireRedisStore(cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, chainstore.Backend{Name: config.SecretsBackendRedis, Store: store})
	}
	backends = append(backends, chainstore.Backend{Name: config.SecretsBackendFile, Store: filestore.NewStore(dir)})
	return chainstore.New(logger, backends...)
}

func (a *app) wireRedisStore(cfg config.Config) (*redisstore.Store, error) {
	store, closeFn, err := redisstore.NewStore(redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	return store, nil
}

func passStore(cfg config.Config) *passstore.Store {
	var opts []passstore.Option
	if cfg.Secrets.PassDir != "" {
		opts = append(opts, passstore.WithStoreDir(cfg.Secrets.PassDir))
	}
	return passstore.NewStore(opts...)
}

func secretsDir(cfg config.Config) (string, error) {
	if cfg.Secrets.Dir != "" {
		return cfg.Secrets.Dir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(configDir, "hg", "secrets"), nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func gatewayPolicy(cfg config.GatewayConfig) gateway.Policy {
	return gateway.Policy{
		MaxRetries:        cfg.MaxRetries,
		BaseBackoff:       cfg.BaseBackoff,
		CacheTTL:          cfg.CacheTTL,
		CacheableGets:     cfg.CacheableGets,
		HotEndpoints:      cfg.HotEndpoints,
		HotCooldown:       cfg.HotCooldown,
		CooldownPrefixes:  cfg.CooldownPrefixes,
		PrefixCooldown:    cfg.PrefixCooldown,
		ExhaustedCooldown: cfg.ExhaustedCooldown,
		RequestTimeout:    cfg.RequestTimeout,
	}
}
