package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("TOKEN_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "gorm", cfg.StoreBackend)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "responses", cfg.ModelAPI)
	assert.Equal(t, 24*time.Hour, cfg.TokenExpiry)
	assert.Equal(t, 50, cfg.ChatMaxMessages)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.NotEmpty(t, cfg.TokenSecret)
	assert.False(t, cfg.CacheEnabled())
	assert.True(t, cfg.StreamingBodies)
}

func TestLoad_ParsesOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("SHUTDOWN_TIMEOUT", "3")
	t.Setenv("CHAT_MAX_MESSAGES", "12")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MODEL_API", "CHAT_COMPLETIONS")
	t.Setenv("STREAMING_BODIES", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 12, cfg.ChatMaxMessages)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "chat_completions", cfg.ModelAPI)
	assert.False(t, cfg.StreamingBodies)
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "lots")
	t.Setenv("CACHE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	t.Setenv("ENV", "test")

	t.Setenv("STORE", "mongo")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE")

	t.Setenv("STORE", "rest")
	_, err = Load()
	assert.ErrorContains(t, err, "STORE_URL")

	t.Setenv("STORE", "gorm")
	t.Setenv("DB_DRIVER", "postgres")
	_, err = Load()
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PINECONE_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_SECRET")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PINECONE_API_KEY", "pc-test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.CacheEnabled())
}
