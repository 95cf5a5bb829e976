package persistence

import (
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/hypergrid/internal/libs/serializer"
)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithAddr sets the address of the Redis server.
func WithAddr(addr string) RedisOption {
	return func(s *RedisStore) { s.opts.Addr = addr }
}

// WithPassword sets the password used to authenticate.
func WithPassword(password string) RedisOption {
	return func(s *RedisStore) { s.opts.Password = password }
}

// WithDB selects the Redis database.
func WithDB(db int) RedisOption {
	return func(s *RedisStore) { s.opts.DB = db }
}

// WithDialTimeout sets the dial timeout.
func WithDialTimeout(timeout time.Duration) RedisOption {
	return func(s *RedisStore) { s.opts.DialTimeout = timeout }
}

// WithPoolSize sets the size of the connection pool.
func WithPoolSize(size int) RedisOption {
	return func(s *RedisStore) { s.opts.PoolSize = size }
}

// WithTLSConfig enables TLS.
func WithTLSConfig(cfg *tls.Config) RedisOption {
	return func(s *RedisStore) { s.opts.TLSConfig = cfg }
}

// WithPrefix namespaces every key the store writes.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithSerializer sets the codec records are stored with.
func WithSerializer(ser serializer.Serializer) RedisOption {
	return func(s *RedisStore) {
		if ser != nil {
			s.ser = ser
		}
	}
}

// WithClient uses an existing client instead of dialing a new one.
func WithClient(client *redis.Client) RedisOption {
	return func(s *RedisStore) { s.client = client }
}
