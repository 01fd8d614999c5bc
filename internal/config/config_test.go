package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "AI_PROVIDER", "AI_MODEL", "GEMINI_API_KEY", "SPEECH_PROVIDER", "STORAGE_DRIVER",
		"STORAGE_DSN", "REDIS_ADDR", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_REQUESTS", "AI_HISTORY_LIMIT",
		"REMINDER_CHECK_INTERVAL", "REMINDER_PERIOD", "WEATHER_CACHE_TTL", "AUTH_JWT_SECRET", "AI_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.AI.Model)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, 10, cfg.AI.HistoryLimit)
	assert.True(t, cfg.AI.TriageEnabled)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 60, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, time.Hour, cfg.Reminder.CheckInterval)
	assert.Equal(t, 24*time.Hour, cfg.Reminder.Period)
	assert.Equal(t, 15*time.Minute, cfg.Weather.CacheTTL)
	assert.Equal(t, float32(1), cfg.Speech.Speed)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AI_PROVIDER", "ARK")
	t.Setenv("AI_MODEL", "ep-123")
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("AI_TEMPERATURE", "0.3")
	t.Setenv("AI_HISTORY_LIMIT", "0")
	t.Setenv("SPEECH_PROVIDER", "volcengine")
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_ACCESS_TOKEN", "")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_DSN", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("REMINDER_CHECK_INTERVAL", "90")
	t.Setenv("WEATHER_CACHE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.3, *cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 1, cfg.AI.HistoryLimit)
	// 语音令牌缺省时复用 ARK_API_KEY
	assert.Equal(t, "ark-key", cfg.Speech.AccessToken)
	assert.True(t, cfg.Speech.Enabled())
	assert.Equal(t, "data/healthwise.db", cfg.Storage.DSN)
	assert.Equal(t, 90*time.Second, cfg.Reminder.CheckInterval)
	assert.Equal(t, 2*time.Minute, cfg.Weather.CacheTTL)
}

func TestAITimeoutReachesModelClients(t *testing.T) {
	t.Setenv("AI_TIMEOUT", "5s")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.AI.Timeout)

	gc := cfg.AI.geminiClientConfig()
	require.NotNil(t, gc.HTTPOptions.Timeout)
	assert.Equal(t, 5*time.Second, *gc.HTTPOptions.Timeout)

	ac := cfg.AI.arkConfig()
	require.NotNil(t, ac.Timeout)
	assert.Equal(t, 5*time.Second, *ac.Timeout)

	cfg.AI.Timeout = 0
	assert.Nil(t, cfg.AI.geminiClientConfig().HTTPOptions.Timeout)
	assert.Nil(t, cfg.AI.arkConfig().Timeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AI_PROVIDER":       "openai",
		"SPEECH_PROVIDER":   "polly",
		"STORAGE_DRIVER":    "mysql",
		"PORT":              "80 80",
		"AI_TEMPERATURE":    "warm",
		"RATE_LIMIT_WINDOW": "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "")
	_, err := Load()
	assert.Error(t, err)
}
