// Package config defines the process-wide settings object, loaded once at
// startup with no hot reload, per spec §6 "Configuration".
package config

import "time"

// PostgresConfig holds both the sync and async connection strings the spec
// calls out; in Go both paths share one pgxpool.Pool, but the two fields
// are kept distinct so either can be overridden independently (e.g. a
// pooled vs. direct connection for migrations).
type PostgresConfig struct {
	URL      string `yaml:"url"`
	AsyncURL string `yaml:"async_url"`
	MaxConns int32  `yaml:"max_conns"`
}

// VectorStoreConfig points at the Qdrant collection backing long-term
// memory.
type VectorStoreConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Distance   string `yaml:"distance"`
}

// RedisConfig is optional: when Addr is empty, conversation working memory
// stays purely in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClickHouseConfig is optional: when DSN is empty, the analytics mirror of
// routing/performance/violation records is disabled.
type ClickHouseConfig struct {
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

// KafkaConfig is optional: when Brokers is empty, record events are not
// published.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// S3Config is optional: when Bucket is empty, encoder checkpoints load only
// from the local filesystem. AccessKey/SecretKey are themselves optional —
// when either is unset, the default AWS credential chain is used instead
// (environment, shared config, instance role).
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// EmbeddingConfig points at the offline sentence-embedding endpoint.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Path       string        `yaml:"path"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	APIHeader  string        `yaml:"api_header"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// VendorConfig is the shared shape for an LLM vendor's credentials.
type VendorConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig carries per-vendor settings; one vendor is selected for the
// whole process at startup (cmd/router's firstVendor), not per model.
type LLMConfig struct {
	OpenAI    VendorConfig `yaml:"openai"`
	Anthropic VendorConfig `yaml:"anthropic"`
	Google    VendorConfig `yaml:"google"`
}

// EncoderConfig controls where the Q/M-encoder MLP checkpoints are loaded
// from.
type EncoderConfig struct {
	CheckpointDir string `yaml:"checkpoint_dir"`
	Seed          int64  `yaml:"seed"`
}

// MemoryConfig tunes the sliding-window size and long-term retrieval depth.
type MemoryConfig struct {
	WindowSize   int    `yaml:"window_size"`    // W in spec terms; default 10
	TopKRetrieve int    `yaml:"top_k_retrieve"` // default 5
	UtilityModel string `yaml:"utility_model"`  // model used for rewrite/extract/decide/summary calls
}

// BootstrapConfig gates the optional default-model seeding behavior the
// original source had as a dead branch (spec §9).
type BootstrapConfig struct {
	SeedDefaults bool `yaml:"seed_defaults"`
}

// TelemetryConfig controls OpenTelemetry tracing/metrics export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the top-level settings object, loaded once by Load.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LogPath  string `yaml:"log_path"`
	LogLevel string `yaml:"log_level"`

	Postgres   PostgresConfig    `yaml:"postgres"`
	Vector     VectorStoreConfig `yaml:"vector_store"`
	Redis      RedisConfig       `yaml:"redis"`
	ClickHouse ClickHouseConfig  `yaml:"clickhouse"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	S3         S3Config          `yaml:"s3"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	LLM        LLMConfig         `yaml:"llm"`
	Encoder    EncoderConfig     `yaml:"encoder"`
	Memory     MemoryConfig      `yaml:"memory"`
	Bootstrap  BootstrapConfig   `yaml:"bootstrap"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
}
