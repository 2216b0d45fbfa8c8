package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 50, cfg.Rooms.MaxClients)
	assert.Equal(t, 5*time.Second, cfg.Rooms.GracePeriod)
	assert.Equal(t, 60*time.Second, cfg.Rooms.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.Rooms.PageTick)
	assert.Equal(t, 30*time.Second, cfg.Rooms.PostTick)
	assert.Equal(t, 3*time.Second, cfg.Stats.Interval)
	assert.Equal(t, []string{"home", "about", "portfolio", "blog", "contact"}, cfg.Stats.KnownBuckets)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, "presence:stats", cfg.Redis.Channel)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
port: 9090
rooms:
  max_clients: 3
  idle_timeout: 30s
stats:
  known_buckets: [home, docs]
content:
  - id: hello-world
    title: Hello World
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("PRESENCE_PORT", "7070")
	t.Setenv("PRESENCE_ADMIN_TOKEN", "s3cret")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "s3cret", cfg.AdminToken)
	assert.Equal(t, 3, cfg.Rooms.MaxClients)
	assert.Equal(t, 30*time.Second, cfg.Rooms.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Rooms.LobbyTick)
	assert.Equal(t, []string{"home", "docs"}, cfg.Stats.KnownBuckets)
	require.Len(t, cfg.Content, 1)
	assert.Equal(t, ContentEntry{ID: "hello-world", Title: "Hello World"}, cfg.Content[0])
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms:\n  max_clients: 0\n"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}
