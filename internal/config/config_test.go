package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.False(t, cfg.AI.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 5*time.Minute, cfg.Ads.Interval)
	assert.Equal(t, time.Second, cfg.Ads.Tick)
	assert.Equal(t, 10, cfg.Ads.TurnThreshold)
	assert.Equal(t, "whisper-1", cfg.Speech.Model)
	assert.Equal(t, SpeechProviderWhisper, cfg.Speech.Provider)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
}

func TestSpeechProviderSelection(t *testing.T) {
	t.Setenv("SPEECH_PROVIDER", "Volcengine")
	t.Setenv("SPEECH_API_KEY", "openai-key")
	t.Setenv("VOLC_APP_ID", "")
	t.Setenv("VOLC_ACCESS_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SpeechProviderVolcengine, cfg.Speech.Provider)
	assert.False(t, cfg.Speech.Enabled(), "whisper key does not enable volcengine")
	assert.Equal(t, 200*time.Millisecond, cfg.Speech.Volcengine.ChunkInterval)

	t.Setenv("VOLC_APP_ID", "app")
	t.Setenv("VOLC_ACCESS_TOKEN", "token")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Speech.Enabled())

	t.Setenv("SPEECH_PROVIDER", "siri")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AI_PROVIDER", "ark")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_MODEL", "doubao")
	t.Setenv("AD_TICK", "10ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, 10*time.Millisecond, cfg.Ads.Tick)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("AI_PROVIDER", "clippy")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("PORT", "80 80")
	_, err = Load()
	assert.Error(t, err)
}

func TestArkEnabled(t *testing.T) {
	assert.False(t, ArkConfig{APIKey: "k"}.Enabled())
	assert.True(t, ArkConfig{APIKey: "k", Model: "m"}.Enabled())
	assert.True(t, ArkConfig{AccessKey: "a", SecretKey: "s", Model: "m"}.Enabled())
	assert.False(t, ArkConfig{AccessKey: "a", Model: "m"}.Enabled())
}
