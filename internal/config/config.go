package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string

	ScoringServiceURL string
	ScoringTimeout    time.Duration
	ScoringTopN       int

	AIProvider  string
	AIAPIKey    string
	AIBaseURL   string
	AIModel     string
	AIMaxTokens int
	AITimeout   time.Duration
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres dbname=reconciliation port=5432 sslmode=disable"),
		CORSOrigin:  getEnv("CORS_ORIGIN", "http://localhost:3000"),

		ScoringServiceURL: getEnv("SCORING_SERVICE_URL", ""),
		ScoringTimeout:    time.Duration(getEnvInt("SCORING_SERVICE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ScoringTopN:       getEnvInt("SCORING_TOP_N", 5),

		AIProvider:  getEnv("AI_PROVIDER", "mock"),
		AIAPIKey:    getEnv("AI_API_KEY", ""),
		AIBaseURL:   getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIModel:     getEnv("AI_MODEL", "gpt-4"),
		AIMaxTokens: getEnvInt("AI_MAX_TOKENS", 150),
		AITimeout:   time.Duration(getEnvInt("AI_TIMEOUT_MS", 10000)) * time.Millisecond,
	}
}

func InitDB(cfg *Config) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return db
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
