// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the public site configuration
const (
	DefaultVideoURL  = "https://cdn.pixabay.com/video/2023/04/13/158656-817354676_large.mp4"
	DefaultAvatarURL = "https://picsum.photos/300/300"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	SMTP     SMTPConfig
	Captcha  CaptchaConfig
	Site     SiteConfig
	Feed     FeedConfig
	Alerts   AlertsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// CaptchaConfig holds Turnstile verification settings.
// An empty secret disables verification.
type CaptchaConfig struct {
	Secret    string
	VerifyURL string
}

// SiteConfig holds public site settings
type SiteConfig struct {
	URL         string
	Title       string
	Description string
	Language    string
	VideoURL    string
	MusicURL    string
	AvatarURL   string
}

// FeedConfig holds feed and sitemap cache settings
type FeedConfig struct {
	RefreshSchedule string
}

// AlertsConfig holds security alert settings.
// An empty email disables lockout alerts.
type AlertsConfig struct {
	Email string
}

// Load reads configuration from environment variables.
// The database variables are required.
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}
	if err := loadDatabase(cfg); err != nil {
		return nil, err
	}
	if err := loadServices(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads configuration for the background worker, which never opens MySQL.
// The database section is left empty and its variables are not required.
func LoadWorker() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}
	if err := loadServices(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDatabase reads the required MySQL settings
func loadDatabase(cfg *Config) error {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName
	return nil
}

// loadServices reads everything except the database settings
func loadServices(cfg *Config) error {
	// Server configuration
	serverPort, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return err
	}
	cfg.Server.Port = serverPort

	// Logging configuration
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	// CORS configuration
	cfg.CORS.AllowedOrigins = splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	// Redis configuration
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	if cfg.Redis.Port, err = getEnvInt("REDIS_PORT", 6379); err != nil {
		return err
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return err
	}

	// SMTP configuration (optional, for lockout alerts)
	cfg.SMTP.Host = getEnv("SMTP_HOST", "localhost")
	if cfg.SMTP.Port, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return err
	}
	cfg.SMTP.Username = os.Getenv("SMTP_USERNAME")
	cfg.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	cfg.SMTP.From = getEnv("SMTP_FROM", "noreply@localhost")

	// Captcha configuration
	cfg.Captcha.Secret = os.Getenv("TURNSTILE_SECRET_KEY")
	cfg.Captcha.VerifyURL = getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")

	// Site configuration
	cfg.Site.URL = strings.TrimRight(os.Getenv("SITE_URL"), "/")
	cfg.Site.Title = getEnv("SITE_TITLE", "My Personal Blog")
	cfg.Site.Description = getEnv("SITE_DESCRIPTION", "Thoughts, stories and ideas.")
	cfg.Site.Language = getEnv("SITE_LANGUAGE", "zh-cn")
	cfg.Site.VideoURL = getEnv("BACKGROUND_VIDEO_URL", DefaultVideoURL)
	cfg.Site.MusicURL = os.Getenv("BACKGROUND_MUSIC_URL")
	cfg.Site.AvatarURL = getEnv("AVATAR_URL", DefaultAvatarURL)

	// Feed configuration
	cfg.Feed.RefreshSchedule = getEnv("FEED_REFRESH_SCHEDULE", "@every 15m")

	// Alerts configuration
	cfg.Alerts.Email = os.Getenv("ALERT_EMAIL")

	return nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&multiStatements=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// RedisAddr returns the Redis address in host:port form
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ShutdownTimeout is how long the server waits for in-flight requests
const ShutdownTimeout = 30 * time.Second

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
