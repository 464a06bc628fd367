package dumpstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/redis"
)

// RedisStore keeps a dump as the value of one Redis key. SET replaces the
// value in a single command, so readers see the old or the new dump.
type RedisStore struct {
	client   *redis.Client
	key      string
	location string
}

// NewRedisStore connects to the server named by a redis://host:port/db/key
// location. Fields missing from the URL fall back to cfg.
func NewRedisStore(ctx context.Context, location string, cfg config.RedisConfig) (*RedisStore, error) {
	rcfg, key, err := parseRedisLocation(location, cfg)
	if err != nil {
		return nil, err
	}
	client, err := redis.NewClient(ctx, rcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", rcfg.Addr, err)
	}
	return &RedisStore{client: client, key: key, location: Redact(location)}, nil
}

func parseRedisLocation(location string, cfg config.RedisConfig) (config.RedisConfig, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return cfg, "", fmt.Errorf("%w: redis location %s is not a valid URL", apperrors.ErrInvalidInput, Redact(location))
	}
	if u.Host != "" {
		cfg.Addr = u.Host
	}
	if pw, ok := u.User.Password(); ok {
		cfg.Password = pw
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	var key string
	switch len(parts) {
	case 2:
		db, err := strconv.Atoi(parts[0])
		if err != nil {
			return cfg, "", fmt.Errorf("%w: redis database %q is not a number", apperrors.ErrInvalidInput, parts[0])
		}
		cfg.DB = db
		key = parts[1]
	case 1:
		key = parts[0]
	}
	if key == "" {
		return cfg, "", fmt.Errorf("%w: redis location %s has no key", apperrors.ErrInvalidInput, Redact(location))
	}
	return cfg, key, nil
}

func (s *RedisStore) Location() string { return s.location }

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.GetBytes(ctx, s.key)
	if err != nil {
		if redis.IsNilError(err) {
			return nil, fmt.Errorf("%w: redis key %s", apperrors.ErrDumpNotFound, s.key)
		}
		return nil, fmt.Errorf("loading redis key %s: %w", s.key, err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0); err != nil {
		return fmt.Errorf("saving redis key %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *RedisStore) Close() error { return s.client.Close() }
