// Package config describes the settings of a grid node and loads them from TOML.
package config

import (
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/constants"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// Config holds the settings of one grid node.
type Config struct {
	NodeID        string   `toml:"node_id"`
	BindAddr      string   `toml:"bind_addr"`      // address the node listens on for intra-cluster calls
	AdvertiseAddr string   `toml:"advertise_addr"` // address shared with peers (may differ from BindAddr)
	Seeds         []string `toml:"seeds"`

	Mode         string `toml:"mode"` // "dist" or "repl"
	Sync         bool   `toml:"sync"`
	Replication  int    `toml:"replication"`
	VirtualNodes int    `toml:"virtual_nodes"`

	RemoteTimeout time.Duration `toml:"remote_timeout"`
	StaggerDelay  time.Duration `toml:"stagger_delay"`
	MaxRetries    int           `toml:"max_retries"`

	LogLevel   string `toml:"log_level"`
	Serializer string `toml:"serializer"`

	Redis *RedisConfig `toml:"redis"`
}

// RedisConfig enables the Redis backing store.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// Defaults returns a Config with safe initial values.
func Defaults() Config {
	return Config{
		Mode:          constants.ModeDistributed,
		Sync:          true,
		Replication:   constants.DefaultReplication,
		VirtualNodes:  constants.DefaultVirtualNodes,
		RemoteTimeout: constants.DefaultRemoteTimeout,
		StaggerDelay:  constants.DefaultStaggerDelay,
		MaxRetries:    constants.DefaultMaxRetries,
		LogLevel:      constants.DefaultLogLevel,
		Serializer:    constants.DefaultSerializer,
	}
}

// Replicated reports whether the node runs in replicated mode.
func (c Config) Replicated() bool { return c.Mode == constants.ModeReplicated }

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	switch {
	case c.NodeID == "":
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "node_id is required")
	case !slices.Contains([]string{constants.ModeDistributed, constants.ModeReplicated}, c.Mode):
		return ewrap.Wrapf(sentinel.ErrInvalidConfig, "unknown mode %q", c.Mode)
	case c.Replication < 1:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "replication must be at least 1")
	case c.VirtualNodes < 1:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "virtual_nodes must be at least 1")
	case c.RemoteTimeout <= 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "remote_timeout must be positive")
	case c.StaggerDelay < 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "stagger_delay cannot be negative")
	case c.MaxRetries < 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "max_retries cannot be negative")
	case c.Redis != nil && c.Redis.Addr == "":
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "redis.addr is required when redis is configured")
	}

	err := cluster.NewMember(cluster.NodeID(c.NodeID), c.AdvertiseAddr).Validate()
	if err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidConfig, "%v", err)
	}

	return nil
}

// Load reads a TOML file on top of Defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, ewrap.Wrapf(err, "decoding config %s", path)
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse decodes TOML text on top of Defaults and validates the result.
func Parse(data string) (Config, error) {
	cfg := Defaults()

	_, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, ewrap.Wrap(err, "decoding config")
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}
