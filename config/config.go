// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config is read once at startup from the environment, so every package
// gets the same fail-fast behavior instead of re-reading env vars ad hoc.
type Config struct {
	DBUser string
	DBPass string
	DSN    string

	JWTTokenKey string

	APIPort int

	DiscordMessageFooter string
	QueueLength          int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AttachmentStoreRoot    string
	AttachmentPublicBase   string
	UseS3Attachments       bool
	R2AccountID            string
	R2AccessKeyID          string
	R2AccessKeySecret      string
	R2Bucket               string
	R2CDNBaseURL            string

	ExternalMetadataBaseURL string
	SemanticServiceBaseURL  string
	PricingServiceBaseURL   string

	IngestServiceToken string
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("❌ %s environment variable not set", key)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	user := os.Getenv("DB_USER")
	if user == "" {
		log.Fatal("❌ neither DATABASE_URL nor DB_USER/DB_PASS set")
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("DB_HOST", "127.0.0.1"),
		envOr("DB_PORT", "5432"),
		user,
		os.Getenv("DB_PASS"),
		envOr("DB_NAME", "droptracker"),
	)
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  invalid integer for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

// Load builds a Config from the environment. Required values fail fast.
// DATABASE_URL wins when set; otherwise a DSN is composed from the
// DB_USER/DB_PASS credential pair.
func Load() *Config {
	cfg := &Config{
		DBUser:                  os.Getenv("DB_USER"),
		DBPass:                  os.Getenv("DB_PASS"),
		DSN:                     loadDSN(),
		JWTTokenKey:             os.Getenv("JWT_TOKEN_KEY"),
		APIPort:                 envIntOr("API_PORT", 31323),
		DiscordMessageFooter:    os.Getenv("DISCORD_MESSAGE_FOOTER"),
		QueueLength:             envIntOr("QUEUE_LENGTH", 10000),
		RedisAddr:               envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 envIntOr("REDIS_DB", 0),
		AttachmentStoreRoot:     envOr("ATTACHMENT_STORE_ROOT", "./uploads"),
		AttachmentPublicBase:    envOr("ATTACHMENT_PUBLIC_BASE", "/uploads"),
		UseS3Attachments:        os.Getenv("USE_S3_ATTACHMENTS") == "true",
		R2AccountID:             os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:           os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret:       os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:                os.Getenv("R2_BUCKET_NAME"),
		R2CDNBaseURL:            os.Getenv("CDN_BASE_URL"),
		ExternalMetadataBaseURL: envOr("EXTERNAL_METADATA_BASE_URL", ""),
		SemanticServiceBaseURL:  envOr("SEMANTIC_SERVICE_BASE_URL", ""),
		PricingServiceBaseURL:   envOr("PRICING_SERVICE_BASE_URL", ""),
		IngestServiceToken:      os.Getenv("INGEST_SERVICE_TOKEN"),
	}
	return cfg
}
