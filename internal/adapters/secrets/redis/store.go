package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "hg:secret:"

// Client is the subset of *redis.Client the store needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long a stored credential survives. Zero keeps it.
	TTL time.Duration
}

// Store keeps secrets in Redis so several helper devices behind one account
// can share a session.
type Store struct {
	cli    Client
	prefix string
	ttl    time.Duration
}

var _ ports.SecretStore = (*Store)(nil)

// NewStore connects to cfg.Addr and returns the store with a close func for
// the underlying client.
func NewStore(cfg Config) (*Store, func() error, error) {
	if cfg.Addr == "" {
		return nil, nil, errors.New("redis address is required")
	}

	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewStoreWithClient(cli, cfg.Prefix, cfg.TTL), cli.Close, nil
}

func NewStoreWithClient(cli Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{cli: cli, prefix: prefix, ttl: ttl}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	redisKey, err := s.keyFor(key)
	if err != nil {
		return err
	}

	if err := s.cli.Set(ctx, redisKey, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	redisKey, err := s.keyFor(key)
	if err != nil {
		return "", err
	}

	value, err := s.cli.Get(ctx, redisKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("redis secret %q: %w", key, domain.ErrSecretNotFound)
		}
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	redisKey, err := s.keyFor(key)
	if err != nil {
		return err
	}

	if err := s.cli.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) keyFor(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("secret key is empty")
	}
	return s.prefix + trimmed, nil
}
