package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server reads from the environment.
type Config struct {
	Port        int
	DBPath      string
	FrontendURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftRedirectURL  string

	NATSURL string

	SyncInterval    time.Duration
	SyncUserTimeout time.Duration
	SyncWorkers     int
	FetchLimit      int64
}

// Load reads configuration from the environment, consulting a local
// .env file when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        getEnvInt("PORT", 5000),
		DBPath:      getEnvString("DB_PATH", "data/mailmatrix.db"),
		FrontendURL: getEnvString("FRONTEND_URL", "http://localhost:3000"),

		GoogleClientID:     getEnvString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnvString("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnvString("GOOGLE_REDIRECT_URI", ""),

		MicrosoftClientID:     getEnvString("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnvString("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftRedirectURL:  getEnvString("MICROSOFT_REDIRECT_URI", ""),

		NATSURL: getEnvString("NATS_URL", ""),

		SyncInterval:    getEnvDuration("SYNC_INTERVAL", time.Minute),
		SyncUserTimeout: getEnvDuration("SYNC_USER_TIMEOUT", 30*time.Second),
		SyncWorkers:     getEnvInt("SYNC_WORKERS", 4),
		FetchLimit:      int64(getEnvInt("FETCH_LIMIT", 10)),
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
