package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alwanly/lunch-match-sync/pkg/poll"
)

func TestLoadClientConfig_Defaults(t *testing.T) {
	cfg, err := LoadClientConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3*time.Second, cfg.Poll.MatchInterval)
	assert.True(t, cfg.Poll.StopOnMatch)
	assert.Equal(t, EventsChannel, cfg.Nudge.Channel)
	assert.Equal(t, "none", cfg.CacheStrategy)
}

func TestLoadClientConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lunchsync.yaml")
	err := os.WriteFile(path, []byte(`
base_url: http://campus.example
token: file-token
cache_strategy: bridge
poll:
  match_interval: 2s
  chat_interval: 1500ms
  stop_on_match: false
retry:
  max_retries: 4
nudge:
  enabled: true
  redis:
    host: redis.internal
`), 0o600)
	require.NoError(t, err)

	t.Setenv("LUNCH_TOKEN", "env-token")
	t.Setenv("CHAT_POLL_INTERVAL", "5")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://campus.example", cfg.BaseURL)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "bridge", cfg.CacheStrategy)
	assert.Equal(t, 2*time.Second, cfg.Poll.MatchInterval)
	assert.Equal(t, 5*time.Second, cfg.Poll.ChatInterval)
	assert.False(t, cfg.Poll.StopOnMatch)
	assert.True(t, cfg.Poll.Immediate, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Nudge.Enabled)
	assert.Equal(t, "redis.internal", cfg.Nudge.Redis.Host)
	assert.Equal(t, 6380, cfg.Nudge.Redis.Port)

	pc := cfg.ChatPollConfig()
	assert.Equal(t, 5*time.Second, pc.Interval)
	assert.False(t, pc.Enabled)
}

func TestLoadClientConfig_MissingFile(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Poll.MatchInterval = 0
	cfg.Poll.ErrorAutoHide = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, poll.ErrInvalidInterval)
	assert.Contains(t, err.Error(), "error_auto_hide")
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("MESSAGE_RATE", "250ms")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.MessageRate)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, 6379, cfg.Redis.Port)
}
