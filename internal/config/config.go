// Package config loads process-wide configuration once at startup.
// Constructors receive explicit structs; nothing reads the environment
// after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Port        int
	Env         string
	CORSOrigins []string

	// Collaborator endpoints
	GeminiAPIKey     string
	GeminiBaseURL    string
	EmbedModel       string
	PineconeAPIKey   string
	PineconeIndexURL string
	RequestTimeout   time.Duration

	// Estimation defaults
	DefaultTopK       int
	DefaultTargetRate float64
	DefaultMarginPct  float64
	ScoreCutoff       float64

	// Monthly quota; empty backend disables the quota entirely
	UsageBackend   string // "", "dynamodb" or "postgres"
	DynamoTable    string
	PostgresDSN    string
	MaxMonthlyUses int

	// Optional batch audit sink
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
}

// Load reads configuration from the environment and validates the
// required collaborator credentials.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Env:         envStr("ENV", "production"),
		CORSOrigins: splitCSV(envStr("CORS_ORIGINS", "*")),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		EmbedModel:       os.Getenv("EMBED_MODEL"),
		PineconeAPIKey:   os.Getenv("PINECONE_API_KEY"),
		PineconeIndexURL: strings.TrimRight(os.Getenv("PINECONE_INDEX_URL"), "/"),
		RequestTimeout:   time.Duration(envInt("COLLABORATOR_TIMEOUT_SECS", 30)) * time.Second,

		DefaultTopK:       envInt("DEFAULT_TOPK", 6),
		DefaultTargetRate: envFloat("DEFAULT_TARGET_RATE", 50),
		DefaultMarginPct:  envFloat("DEFAULT_MATERIALS_MARGIN", 30),
		ScoreCutoff:       envFloat("SCORE_CUTOFF", 0.90),

		UsageBackend:   envStr("USAGE_BACKEND", ""),
		DynamoTable:    envStr("DYNAMODB_TABLE_NAME", "corsam_usage_counter"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		MaxMonthlyUses: envInt("MAX_MONTHLY_USES", 20),

		ClickHouseAddr:     os.Getenv("CLICKHOUSE_ADDR"),
		ClickHouseDatabase: envStr("CLICKHOUSE_DATABASE", "corsam"),
		ClickHouseUser:     envStr("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("config: GEMINI_API_KEY is required")
	}
	if cfg.PineconeAPIKey == "" {
		return nil, fmt.Errorf("config: PINECONE_API_KEY is required")
	}
	if cfg.PineconeIndexURL == "" {
		return nil, fmt.Errorf("config: PINECONE_INDEX_URL is required")
	}
	switch cfg.UsageBackend {
	case "", "dynamodb", "postgres":
	default:
		return nil, fmt.Errorf("config: unknown USAGE_BACKEND %q", cfg.UsageBackend)
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
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
