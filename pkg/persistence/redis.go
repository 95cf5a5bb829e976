package persistence

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/hypergrid/internal/config"
	"github.com/hyp3rd/hypergrid/internal/constants"
	"github.com/hyp3rd/hypergrid/internal/libs/serializer"
)

const (
	maxRetries   = 3
	retriesDelay = 100 * time.Millisecond

	dataField    = "data"
	versionField = "version"
	keysSetName  = "keys"
)

// RedisStore keeps records in Redis hashes and tracks their keys in a set.
type RedisStore struct {
	client *redis.Client
	opts   *redis.Options
	prefix string
	ser    serializer.Serializer
}

// NewRedisStore dials Redis with the given options.
func NewRedisStore(opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		opts: &redis.Options{
			Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
				dialer := &net.Dialer{Timeout: constants.RedisDialTimeout}

				return dialer.DialContext(ctx, network, addr)
			},
			MaxRetries:   constants.RedisClientMaxRetries,
			DialTimeout:  constants.RedisDialTimeout,
			ReadTimeout:  constants.RedisClientReadTimeout,
			WriteTimeout: constants.RedisClientWriteTimeout,
			PoolSize:     constants.RedisClientPoolSize,
			MinIdleConns: constants.RedisClientMinIdleConns,
			PoolTimeout:  constants.RedisClientPoolTimeout,
		},
		prefix: constants.RedisKeyPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.ser == nil {
		var err error

		s.ser, err = serializer.New(serializer.Default)
		if err != nil {
			return nil, err
		}
	}

	if s.client == nil {
		if strings.TrimSpace(s.opts.Addr) == "" {
			return nil, ewrap.New("redis address is empty")
		}

		s.client = redis.NewClient(s.opts)
	}

	return s, nil
}

// NewRedisStoreFromConfig builds a store from the redis section of a node config.
func NewRedisStoreFromConfig(cfg *config.RedisConfig, ser serializer.Serializer) (*RedisStore, error) {
	if cfg == nil {
		return nil, ewrap.New("redis config is nil")
	}

	return NewRedisStore(
		WithAddr(cfg.Addr),
		WithPassword(cfg.Password),
		WithDB(cfg.DB),
		WithPrefix(cfg.Prefix),
		WithSerializer(ser),
	)
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) setName() string { return s.prefix + keysSetName }

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		return ewrap.Wrap(err, "pinging redis")
	}

	return nil
}

// Load implements Loader.
func (s *RedisStore) Load(ctx context.Context, key string) (*Record, bool, error) {
	data, err := s.client.HGet(ctx, s.key(key), dataField).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, ewrap.Wrapf(err, "loading %q", key)
	}

	rec := &Record{}

	err = s.ser.Unmarshal(data, rec)
	if err != nil {
		return nil, false, ewrap.Wrapf(err, "decoding %q", key)
	}

	return rec, true, nil
}

// Store implements Writer.
func (s *RedisStore) Store(ctx context.Context, rec *Record) error {
	data, err := s.ser.Marshal(rec)
	if err != nil {
		return ewrap.Wrapf(err, "encoding %q", rec.Key)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(rec.Key), map[string]any{
		dataField:    data,
		versionField: rec.Version,
	})
	pipe.SAdd(ctx, s.setName(), rec.Key)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return ewrap.Wrap(err, "failed to execute redis pipeline")
	}

	return nil
}

// Delete implements Writer.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	stored := make([]string, len(keys))
	members := make([]any, len(keys))

	for i, k := range keys {
		stored[i] = s.key(k)
		members[i] = k
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.setName(), members...)
	pipe.Del(ctx, stored...)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return ewrap.Wrap(err, "removing keys")
	}

	return nil
}

// Keys lists the stored keys.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.setName()).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "failed to get keys from redis")
	}

	return keys, nil
}

// Clear implements Writer. Only the keys written by this store are removed.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	err = s.Delete(ctx, keys...)
	if err != nil {
		return ewrap.Wrap(err, "clearing store", ewrap.WithRetry(maxRetries, retriesDelay))
	}

	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	err := s.client.Close()
	if err != nil {
		return ewrap.Wrap(err, "closing redis client")
	}

	return nil
}
