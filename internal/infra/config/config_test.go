package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 5*time.Minute, cfg.DataAPI.PresignExpiry)
	assert.Equal(t, 20*time.Second, cfg.Queue.WaitTime)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.DataAPI.Addr)
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
logger:
  level: debug
storage:
  bucket: fieldnote-artifacts
twilio:
  account_sid: AC0000
llm:
  provider: bedrock
  model: anthropic.claude-3-haiku
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	t.Setenv("FIELDNOTE_STORAGE_BUCKET", "override-bucket")
	t.Setenv("FIELDNOTE_TWILIO_ALLOWED_NUMBERS", "+1555; +1666 ;")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "override-bucket", cfg.Storage.Bucket, "env must win over yaml")
	assert.Equal(t, "bedrock", cfg.LLM.Provider)
	assert.Equal(t, "anthropic.claude-3-haiku", cfg.LLM.Model)
	assert.Equal(t, []string{"+1555", "+1666"}, cfg.Twilio.AllowedNumbers)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "cohere"
	assert.Error(t, Validate(cfg), "unknown provider")

	cfg = Defaults()
	cfg.Logger.Level = "loud"
	assert.Error(t, Validate(cfg), "bad logger level")

	cfg = Defaults()
	cfg.DataAPI.Burst = -1
	assert.Error(t, Validate(cfg), "negative burst")
}
