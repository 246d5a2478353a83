package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := loadConfigFromReader(strings.NewReader(`
[link]
address = "10.0.0.1:19900"
read_timeout_ms = 2000
backoff_base_ms = 250
backoff_max_ms = 5000

[hub]
queue_size = 32
slow_limit = 4

[emulation]
enable = true
interval_ms = 50
seed = 7

[feed]
listen = ":8080"

[schema]
path = "sensors.json"
`))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:19900", cfg.Link.Address)
	assert.Equal(t, 2000, cfg.Link.ReadTimeoutMS)
	assert.Equal(t, 32, cfg.Hub.QueueSize)
	assert.Equal(t, 4, cfg.Hub.SlowLimit)
	assert.True(t, cfg.Emulation.Enable)
	assert.Equal(t, int64(7), cfg.Emulation.Seed)
	assert.Equal(t, ":8080", cfg.Feed.Listen)
	assert.Equal(t, "sensors.json", cfg.Schema.Path)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Emulation.IntervalMS)
}

func TestLoadConfigMalformed(t *testing.T) {
	cfg, err := loadConfigFromReader(strings.NewReader(`[link`))
	assert.Nil(t, cfg)
	assert.Error(t, err)
}
