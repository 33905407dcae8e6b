package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	BalanceCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	LogFormat              string
	NodeID                 int64
	TxMaxAttempts          int
	DefaultBranchID        string
}

// Load reads the process environment. An optional dotenv file (ENV_FILE,
// default .env) is merged first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0, 0),
		BalanceCacheTTLSeconds: getInt("BALANCE_CACHE_TTL_SECONDS", 30, 1),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(getEnv("LOG_FORMAT", "json")),
		NodeID:                 int64(getInt("NODE_ID", 1, 0)),
		TxMaxAttempts:          getInt("TX_MAX_ATTEMPTS", 5, 1),
		DefaultBranchID:        getEnv("DEFAULT_BRANCH_ID", "main-branch"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the variable is unset, malformed or below minimum.
func getInt(key string, fallback int, minimum int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < minimum {
		return fallback
	}
	return val
}
