package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

const sample = `
node_id = "n1"
bind_addr = "127.0.0.1:7001"
seeds = ["127.0.0.1:7002", "127.0.0.1:7003"]
mode = "repl"
replication = 3
remote_timeout = "2s"
stagger_delay = "50ms"
log_level = "debug"

[redis]
addr = "127.0.0.1:6379"
db = 2
`

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(sample)
	assert.NoError(t, err)

	assert.Equal(t, "n1", cfg.NodeID)
	assert.Equal(t, 2, len(cfg.Seeds))
	assert.True(t, cfg.Replicated())
	assert.Equal(t, 3, cfg.Replication)
	assert.Equal(t, 2*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.StaggerDelay)
	assert.Equal(t, 2, cfg.Redis.DB)

	// untouched fields keep their defaults
	assert.Equal(t, Defaults().VirtualNodes, cfg.VirtualNodes)
	assert.Equal(t, Defaults().MaxRetries, cfg.MaxRetries)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "node.toml")
	assert.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.BindAddr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, err != nil)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "missing node id", mutate: func(c *Config) { c.NodeID = "" }},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "scatter" }},
		{name: "zero replication", mutate: func(c *Config) { c.Replication = 0 }},
		{name: "zero vnodes", mutate: func(c *Config) { c.VirtualNodes = 0 }},
		{name: "zero timeout", mutate: func(c *Config) { c.RemoteTimeout = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }},
		{name: "redis without addr", mutate: func(c *Config) { c.Redis = &RedisConfig{} }},
		{name: "advertised address", mutate: func(c *Config) { c.AdvertiseAddr = "10.0.0.1:7946" }, ok: true},
		{name: "advertised address without port", mutate: func(c *Config) { c.AdvertiseAddr = "10.0.0.1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Defaults()
			cfg.NodeID = "n1"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)

				return
			}

			assert.True(t, errors.Is(err, sentinel.ErrInvalidConfig))
		})
	}
}
