package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredDBEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_USER", "blog")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "blog")
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequiredDBEnv(t)
		t.Setenv("CORS_ALLOWED_ORIGINS", "")
		t.Setenv("TURNSTILE_SECRET_KEY", "")
		t.Setenv("AVATAR_URL", "")
		t.Setenv("SITE_URL", "")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, DefaultVideoURL, cfg.Site.VideoURL)
		assert.Equal(t, DefaultAvatarURL, cfg.Site.AvatarURL)
		assert.Equal(t, "My Personal Blog", cfg.Site.Title)
		assert.Equal(t, "@every 15m", cfg.Feed.RefreshSchedule)
		assert.Empty(t, cfg.Captcha.Secret)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	})

	t.Run("overrides", func(t *testing.T) {
		setRequiredDBEnv(t)
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
		t.Setenv("SITE_URL", "https://blog.example/")
		t.Setenv("REDIS_PORT", "6380")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "https://blog.example", cfg.Site.URL)
		assert.Equal(t, 6380, cfg.Redis.Port)
	})

	t.Run("missing DB_HOST", func(t *testing.T) {
		setRequiredDBEnv(t)
		t.Setenv("DB_HOST", "")

		_, err := Load()
		assert.ErrorContains(t, err, "DB_HOST is required")
	})

	t.Run("invalid SERVER_PORT", func(t *testing.T) {
		setRequiredDBEnv(t)
		t.Setenv("SERVER_PORT", "abc")

		_, err := Load()
		assert.ErrorContains(t, err, "invalid SERVER_PORT")
	})
}

func TestLoadWorker(t *testing.T) {
	t.Run("database variables are optional", func(t *testing.T) {
		for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
			t.Setenv(key, "")
		}
		t.Setenv("ALERT_EMAIL", "owner@example.com")
		t.Setenv("REDIS_HOST", "cache")

		cfg, err := LoadWorker()
		require.NoError(t, err)

		assert.Empty(t, cfg.Database.Host)
		assert.Equal(t, "owner@example.com", cfg.Alerts.Email)
		assert.Equal(t, "cache:6379", cfg.RedisAddr())
		assert.Equal(t, "My Personal Blog", cfg.Site.Title)
	})

	t.Run("invalid REDIS_PORT", func(t *testing.T) {
		t.Setenv("REDIS_PORT", "abc")

		_, err := LoadWorker()
		assert.ErrorContains(t, err, "invalid REDIS_PORT")
	})
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host:     "db",
		Port:     3306,
		User:     "u",
		Password: "p",
		DBName:   "blog",
	}}

	assert.Equal(t, "u:p@tcp(db:3306)/blog?parseTime=true&charset=utf8mb4&multiStatements=true", cfg.DSN())
}
