package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "NATS_URL",
		"COMPLETION_PROVIDER", "COMPLETION_TIMEOUT", "GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Store.DatabaseURL)
	assert.Equal(t, ProviderGemini, cfg.Completion.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Completion.Gemini.Model)
	assert.Equal(t, time.Duration(0), cfg.Completion.Timeout)
	assert.False(t, cfg.Completion.Gemini.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("COMPLETION_PROVIDER", "OpenAI")
	t.Setenv("COMPLETION_TIMEOUT", "30")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ARK_TEMPERATURE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, ProviderOpenAI, cfg.Completion.Provider)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	assert.True(t, cfg.Completion.OpenAI.Enabled())
	require.NotNil(t, cfg.Completion.Ark.Temperature)
	assert.InDelta(t, 0.5, *cfg.Completion.Ark.Temperature, 1e-9)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port with space":  {"PORT", "80 80"},
		"unknown provider": {"COMPLETION_PROVIDER", "claude"},
		"bad timeout":      {"COMPLETION_TIMEOUT", "soon"},
		"negative timeout": {"COMPLETION_TIMEOUT", "-1"},
		"bad max tokens":   {"ARK_MAX_TOKENS", "many"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{}.Enabled())
	assert.True(t, AIConfig{Model: "m", APIKey: "k"}.Enabled())
	assert.True(t, AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}.Enabled())
	assert.False(t, AIConfig{APIKey: "k"}.Enabled())
}
