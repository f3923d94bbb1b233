package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	PlanID        string
	PlanTemplate  string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SessionTTL    time.Duration
	CORSOrigin    string
	PartyAName    string
	PartyBName    string
	DraftDelay    time.Duration
	ArchiveDir    string
	// Rate limiting for mutating workflow calls, per session
	RateLimitRPS   float64
	RateLimitBurst int
	// Logging
	LogLevel  string
	LogPretty bool
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Redis Configuration
	RedisURL string
	// Object storage for exports
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8787"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		MigrationsDir:  getenv("COPARENT_MIGRATIONS_DIR", "./db/migrations"),
		PlanID:         getenv("COPARENT_PLAN_ID", "default"),
		PlanTemplate:   getenv("COPARENT_PLAN_TEMPLATE", ""),
		JWTSecret:      getenv("COPARENT_JWT_SECRET", "coparent-dev-secret"),
		AccessTTL:      time.Duration(getenvInt("COPARENT_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:     time.Duration(getenvInt("COPARENT_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		SessionTTL:     time.Duration(getenvInt("COPARENT_SESSION_TTL_SECONDS", 3600)) * time.Second,
		CORSOrigin:     getenv("COPARENT_CORS_ORIGIN", "*"),
		PartyAName:     getenv("COPARENT_PARTY_A_NAME", "Parent A"),
		PartyBName:     getenv("COPARENT_PARTY_B_NAME", "Parent B"),
		DraftDelay:     time.Duration(getenvInt("COPARENT_DRAFT_DELAY_MS", 1500)) * time.Millisecond,
		ArchiveDir:     getenv("COPARENT_ARCHIVE_DIR", ""),
		RateLimitRPS:   getenvFloat("COPARENT_RATE_LIMIT_RPS", 5),
		RateLimitBurst: getenvInt("COPARENT_RATE_LIMIT_BURST", 10),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogPretty:      getenvBool("LOG_PRETTY", false),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", "coparent-meili-key"),
		// SMTP - empty by default, email disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Parenting Plan"),
		// Redis - refresh tokens fall back to memory when empty
		RedisURL: getenv("REDIS_URL", ""),
		// MinIO - exports are returned inline only when empty
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "plan-exports"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
