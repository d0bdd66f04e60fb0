package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is an immutable snapshot of the matchmaking core's tunables,
// built once at startup and passed by pointer into every component
// constructor. There is no process-wide config singleton.
type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Matchmaking
	MatchmakingTimeout     time.Duration
	PollInterval           time.Duration
	InitialCompatThreshold float64
	MinimumCompatThreshold float64
	DecayRatePerSecond     float64
	BaseSkillTolerance     float64
	SkillRelaxRate         float64

	// Rating
	KFactor int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/duelqueue?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		// Matchmaking
		MatchmakingTimeout:     getEnvDuration("MATCHMAKING_TIMEOUT", 60*time.Second),
		PollInterval:           getEnvDuration("MATCHMAKING_POLL_INTERVAL", 2*time.Second),
		InitialCompatThreshold: getEnvFloat("INITIAL_COMPAT_THRESHOLD", 8.0),
		MinimumCompatThreshold: getEnvFloat("MINIMUM_COMPAT_THRESHOLD", 3.0),
		DecayRatePerSecond:     getEnvFloat("DECAY_RATE_PER_SECOND", 0.05),
		BaseSkillTolerance:     getEnvFloat("BASE_SKILL_TOLERANCE", 50),
		SkillRelaxRate:         getEnvFloat("SKILL_RELAX_RATE", 5),

		// Rating
		KFactor: getEnvInt("K_FACTOR", 32),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Accept bare numbers as seconds so "60" behaves like "60s".
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
