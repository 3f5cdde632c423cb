package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from an optional YAML file plus environment
// overrides. Environment variables win over the file so deployment secrets
// never need to live on disk. Load is called exactly once at startup; there
// is no hot reload (spec §6).
func Load(path string) (Config, error) {
	// Overload so a local .env deterministically controls values during
	// development, mirroring the teacher's config bootstrap order.
	_ = godotenv.Overload()

	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8080,
		LogLevel: "info",
		Postgres: PostgresConfig{MaxConns: 10},
		Vector: VectorStoreConfig{
			Collection: "long_term_memory",
			Dimensions: 384,
			Distance:   "cosine",
		},
		Embedding: EmbeddingConfig{
			Dimensions: 384,
			Timeout:    30 * time.Second,
		},
		Memory: MemoryConfig{
			WindowSize:   10,
			TopKRetrieve: 5,
			UtilityModel: "gpt-4o-mini",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	intv := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolv := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
		}
	}

	str("HOST", &cfg.Host)
	intv("PORT", &cfg.Port)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_PATH", &cfg.LogPath)

	str("POSTGRES_URL", &cfg.Postgres.URL)
	str("POSTGRES_ASYNC_URL", &cfg.Postgres.AsyncURL)

	str("VECTOR_STORE_URL", &cfg.Vector.URL)
	str("VECTOR_STORE_COLLECTION", &cfg.Vector.Collection)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)

	str("CLICKHOUSE_DSN", &cfg.ClickHouse.DSN)

	str("S3_BUCKET", &cfg.S3.Bucket)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("S3_SECRET_KEY", &cfg.S3.SecretKey)

	str("EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	str("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	str("EMBEDDING_MODEL", &cfg.Embedding.Model)

	str("OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	str("OPENAI_MODEL", &cfg.LLM.OpenAI.Model)
	str("OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL)

	str("ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey)
	str("ANTHROPIC_MODEL", &cfg.LLM.Anthropic.Model)

	str("GOOGLE_API_KEY", &cfg.LLM.Google.APIKey)
	str("GOOGLE_MODEL", &cfg.LLM.Google.Model)

	str("ENCODER_CHECKPOINT_DIR", &cfg.Encoder.CheckpointDir)
	str("MEMORY_UTILITY_MODEL", &cfg.Memory.UtilityModel)

	boolv("BOOTSTRAP_SEED_DEFAULTS", &cfg.Bootstrap.SeedDefaults)

	boolv("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	str("TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
}
