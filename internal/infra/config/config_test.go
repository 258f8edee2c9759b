package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 20, cfg.Session.MaxTurns)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_RELAY_TOKEN", "tok-123")
	path := writeFile(t, "config.yaml", `
server:
  addr: ":8080"
  api_key: ${TEST_RELAY_TOKEN}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Server.APIKey)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token-env")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "bot-token-env", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [oops")
	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestSweepIntervalClamped(t *testing.T) {
	path := writeFile(t, "config.yaml", `
session:
  ttl: 10m
  sweep_interval: 1h
  max_turns: 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Less(t, cfg.Session.SweepInterval, cfg.Session.TTL)
}

func TestLoadTriggers(t *testing.T) {
	path := writeFile(t, "triggers.json", `[
  {"name":"deploy","watch_path":"/hooks/deploy","actions":[{"type":"command","command":"echo hi"}]},
  {"name":"off","watch_path":"/hooks/off","enabled":false,"actions":[]}
]`)
	triggers, err := LoadTriggers(path)
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.True(t, triggers[0].Enabled, "enabled defaults to true")
	assert.False(t, triggers[1].Enabled)
	assert.Equal(t, domain.ActionCommand, triggers[0].Actions[0].Kind)
}

func TestLoadTriggersMissingFile(t *testing.T) {
	triggers, err := LoadTriggers(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Nil(t, triggers)
}

func TestLoadTriggersMalformed(t *testing.T) {
	path := writeFile(t, "triggers.json", `{"not":"an array"}`)
	_, err := LoadTriggers(path)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestLoadCronTasks(t *testing.T) {
	path := writeFile(t, "crons.json", `[
  {"name":"daily","schedule":"0 9 * * *","action":{"type":"agent","job":"daily report"}}
]`)
	tasks, err := LoadCronTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.ActionAgent, tasks[0].Action.Kind)
	assert.True(t, tasks[0].Enabled)
}
