package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the arena service.
type Config struct {
	DatabaseURL  string
	RedisAddr    string
	RedisDB      int
	JWTSecretKey string
	ServerPort   int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	PreMatchDelay time.Duration

	// Admission thresholds per queue. Defaults fit the shipped game types.
	PriceGuessThreshold   int
	ThrowdownThreshold    int
	GridSurvivalThreshold int
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	preMatchDelayMS, err := intEnv("PRE_MATCH_DELAY_MS", 3000)
	if err != nil {
		return nil, err
	}

	priceGuessThreshold, err := intEnv("PRICE_GUESS_THRESHOLD", 4)
	if err != nil {
		return nil, err
	}
	throwdownThreshold, err := intEnv("THROWDOWN_THRESHOLD", 2)
	if err != nil {
		return nil, err
	}
	gridSurvivalThreshold, err := intEnv("GRID_SURVIVAL_THRESHOLD", 6)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		RedisAddr:    redisAddr,
		RedisDB:      redisDB,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		PreMatchDelay: time.Duration(preMatchDelayMS) * time.Millisecond,

		PriceGuessThreshold:   priceGuessThreshold,
		ThrowdownThreshold:    throwdownThreshold,
		GridSurvivalThreshold: gridSurvivalThreshold,
	}

	return cfg, nil
}

// R2Configured reports whether every avatar storage credential is present.
// Avatar uploads are disabled when it returns false.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}
