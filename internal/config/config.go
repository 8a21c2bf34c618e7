package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port    int
	Host    string
	SiteURL string

	// Database (service connection, full privileges)
	DatabaseURL string

	// Auth
	JWTSecret string
	JWTExpiry int // seconds

	// Object storage (S3-compatible)
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	ImageBucket string
	VideoBucket string

	// Signed URL lifetime in seconds
	SignedURLTTL int

	// Make.com webhook bridge
	MakeWebhookURL  string
	MakeGenerateURL string
	MakeAPIKey      string

	// Admin console
	AdminSecret   string
	AdminEmail    string
	AdminPassword string

	// SMTP notifications (optional — mailer disabled when host is empty)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		Host:            getEnv("HOST", "0.0.0.0"),
		SiteURL:         getEnv("SITE_URL", "http://localhost:3000"),
		DatabaseURL:     mustGetEnv("DATABASE_URL"),
		JWTSecret:       mustGetEnv("JWT_SECRET"),
		JWTExpiry:       getEnvInt("JWT_EXPIRY", 86400),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		ImageBucket:     getEnv("IMAGE_BUCKET", "ads-images"),
		VideoBucket:     getEnv("VIDEO_BUCKET", "ads-videos"),
		SignedURLTTL:    getEnvInt("SIGNED_URL_TTL_SECONDS", 3600),
		MakeWebhookURL:  getEnv("MAKE_WEBHOOK_URL", ""),
		MakeGenerateURL: getEnv("MAKE_GENERATE_URL", ""),
		MakeAPIKey:      getEnv("MAKE_API_KEY", ""),
		AdminSecret:     mustGetEnv("ADMIN_SECRET"),
		AdminEmail:      getEnv("ADMIN_EMAIL", ""),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPass:        getEnv("SMTP_PASS", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
	}

	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if len(cfg.AdminSecret) < 16 {
		return nil, fmt.Errorf("ADMIN_SECRET must be at least 16 characters")
	}

	// Validate admin bootstrap config: both or neither
	if (cfg.AdminEmail != "" && cfg.AdminPassword == "") || (cfg.AdminEmail == "" && cfg.AdminPassword != "") {
		return nil, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must both be set or both be empty")
	}
	if cfg.AdminPassword != "" && len(cfg.AdminPassword) < 8 {
		return nil, fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters")
	}

	if cfg.SignedURLTTL < 60 {
		return nil, fmt.Errorf("SIGNED_URL_TTL_SECONDS must be at least 60")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
