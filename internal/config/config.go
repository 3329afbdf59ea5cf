package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	DatabaseURL      string
	NatsURL          string
	NatsToken        string
	LogLevel         string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiEmbedModel string
	EmbedDim         int
	ReuseThreshold   float64
	MaxStepAttempts  int
	RetryBase        time.Duration
}

func Load() Config {
	return Config{
		Port:             envInt("WALLBOARD_PORT", 8780),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEmbedModel: envStr("GEMINI_EMBED_MODEL", "gemini-embedding-001"),
		EmbedDim:         envInt("EMBED_DIM", 1536),
		ReuseThreshold:   envFloat("REUSE_THRESHOLD", 0.9),
		MaxStepAttempts:  envInt("MAX_STEP_ATTEMPTS", 4),
		RetryBase:        time.Duration(envInt("RETRY_BASE_MS", 500)) * time.Millisecond,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
