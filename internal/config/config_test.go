package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) string { return m[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envMap(map[string]string{"DISCORD_TOKEN": "token"}))
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("./data", "audio"), cfg.ResourceDir)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.ResolveTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Equal(t, time.Minute, cfg.SweepGrace)
	assert.Equal(t, time.Hour, cfg.StaleTempAfter)
	assert.InDelta(t, 2.0, cfg.ResolveRate, 0.0001)
	assert.Equal(t, 4, cfg.ResolveBurst)
	assert.False(t, cfg.SpotifyEnabled())
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"DISCORD_TOKEN":         "token",
		"COMMAND_PREFIX":        "?",
		"DATA_DIR":              "/var/lib/rudebot",
		"RESOURCE_DIR":          "/srv/audio",
		"QUEUE_CAPACITY":        "25",
		"RESOLVE_TIMEOUT":       "45s",
		"CONNECT_TIMEOUT":       "5s",
		"SWEEP_INTERVAL":        "0s",
		"RESOLVE_RATE":          "0.5",
		"SPOTIFY_CLIENT_ID":     "id",
		"SPOTIFY_CLIENT_SECRET": "secret",
		"METRICS_ADDR":          ":9100",
	}))
	require.NoError(t, err)

	assert.Equal(t, "?", cfg.CommandPrefix)
	assert.Equal(t, "/srv/audio", cfg.ResourceDir)
	assert.Equal(t, 25, cfg.QueueCapacity)
	assert.Equal(t, 45*time.Second, cfg.ResolveTimeout)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Zero(t, cfg.SweepInterval)
	assert.InDelta(t, 0.5, cfg.ResolveRate, 0.0001)
	assert.True(t, cfg.SpotifyEnabled())
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{
			name:   "missing token",
			env:    map[string]string{},
			errMsg: "DiscordToken",
		},
		{
			name:   "malformed capacity",
			env:    map[string]string{"DISCORD_TOKEN": "t", "QUEUE_CAPACITY": "ten"},
			errMsg: "QUEUE_CAPACITY",
		},
		{
			name:   "malformed duration",
			env:    map[string]string{"DISCORD_TOKEN": "t", "RESOLVE_TIMEOUT": "soon"},
			errMsg: "RESOLVE_TIMEOUT",
		},
		{
			name:   "zero capacity",
			env:    map[string]string{"DISCORD_TOKEN": "t", "QUEUE_CAPACITY": "0"},
			errMsg: "QueueCapacity",
		},
		{
			name:   "resource dir is data dir",
			env:    map[string]string{"DISCORD_TOKEN": "t", "DATA_DIR": "/srv/bot", "RESOURCE_DIR": "/srv/bot/"},
			errMsg: "RESOURCE_DIR",
		},
		{
			name:   "resource dir contains data dir",
			env:    map[string]string{"DISCORD_TOKEN": "t", "DATA_DIR": "/srv/bot/data", "RESOURCE_DIR": "/srv/bot"},
			errMsg: "RESOURCE_DIR",
		},
		{
			name:   "spotify id without secret",
			env:    map[string]string{"DISCORD_TOKEN": "t", "SPOTIFY_CLIENT_ID": "id"},
			errMsg: "SpotifyClientSecret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(envMap(tt.env))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_ResourceDirPlacement(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		resource string
	}{
		{name: "inside data dir", data: "/srv/bot", resource: "/srv/bot/audio"},
		{name: "sibling", data: "/srv/bot/data", resource: "/srv/bot/audio"},
		{name: "name shares a prefix", data: "/srv/bot", resource: "/srv/bot-audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(envMap(map[string]string{
				"DISCORD_TOKEN": "t",
				"DATA_DIR":      tt.data,
				"RESOURCE_DIR":  tt.resource,
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.resource, cfg.ResourceDir)
		})
	}
}
