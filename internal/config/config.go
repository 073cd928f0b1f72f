package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Assets     AssetsConfig     `yaml:"assets"`
	Storage    StorageConfig    `yaml:"storage"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Debug      bool             `yaml:"debug"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis settings for the annotation rate limiter
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// AnnotationConfig holds external annotation service settings
type AnnotationConfig struct {
	ModelID        string `yaml:"model_id"`
	Region         string `yaml:"region"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// ChunkBytes is the per-chunk annotation threshold; documents larger
	// than this are split before being sent.
	ChunkBytes int `yaml:"chunk_bytes"`
	// MaxDocumentBytes is the hard ceiling: documents above it skip
	// annotation entirely and are served unannotated.
	MaxDocumentBytes int `yaml:"max_document_bytes"`
	Workers          int `yaml:"workers"`
	RequestsPerMin   int `yaml:"requests_per_min"`
}

// Timeout returns the configured timeout as a duration
func (c AnnotationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AssetsConfig holds asset mirroring settings
type AssetsConfig struct {
	// LegacyPrefix is the path prefix of assets still referenced from the
	// legacy platform (class-1 references).
	LegacyPrefix string `yaml:"legacy_prefix"`
	// TrustedOrigin is the origin legacy-prefix paths resolve against.
	TrustedOrigin    string `yaml:"trusted_origin"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_seconds"`
	FetchRetries     int    `yaml:"fetch_retries"`
	Workers          int    `yaml:"workers"`
}

// FetchTimeout returns the per-asset download timeout as a duration
func (c AssetsConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// StorageConfig holds artifact storage configuration
type StorageConfig struct {
	UploadRoot string `yaml:"upload_root"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Enabled  bool   `yaml:"s3_enabled"`
}

// TrackingConfig holds tracking endpoint settings
type TrackingConfig struct {
	// BaseURL is the externally reachable prefix baked into the
	// instrumentation snippet.
	BaseURL string `yaml:"base_url"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Annotation.ModelID == "" {
		cfg.Annotation.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Annotation.Region == "" {
		cfg.Annotation.Region = "us-east-1"
	}
	if cfg.Annotation.MaxTokens == 0 {
		cfg.Annotation.MaxTokens = 8192
	}
	if cfg.Annotation.TimeoutSeconds == 0 {
		cfg.Annotation.TimeoutSeconds = 120
	}
	if cfg.Annotation.ChunkBytes == 0 {
		cfg.Annotation.ChunkBytes = 48 * 1024
	}
	if cfg.Annotation.MaxDocumentBytes == 0 {
		cfg.Annotation.MaxDocumentBytes = 2 * 1024 * 1024
	}
	if cfg.Annotation.Workers == 0 {
		cfg.Annotation.Workers = 4
	}
	if cfg.Annotation.RequestsPerMin == 0 {
		cfg.Annotation.RequestsPerMin = 60
	}
	if cfg.Assets.LegacyPrefix == "" {
		cfg.Assets.LegacyPrefix = "/system/"
	}
	if cfg.Assets.FetchTimeoutSecs == 0 {
		cfg.Assets.FetchTimeoutSecs = 15
	}
	if cfg.Assets.FetchRetries == 0 {
		cfg.Assets.FetchRetries = 2
	}
	if cfg.Assets.Workers == 0 {
		cfg.Assets.Workers = 6
	}
	if cfg.Storage.UploadRoot == "" {
		cfg.Storage.UploadRoot = "./uploads"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "/t"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if model := os.Getenv("ANNOTATION_MODEL_ID"); model != "" {
		cfg.Annotation.ModelID = model
	}
	if region := os.Getenv("ANNOTATION_REGION"); region != "" {
		cfg.Annotation.Region = region
	}
	if v := os.Getenv("ANNOTATION_MAX_DOCUMENT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Annotation.MaxDocumentBytes = n
		}
	}
	if origin := os.Getenv("ASSETS_TRUSTED_ORIGIN"); origin != "" {
		cfg.Assets.TrustedOrigin = origin
	}
	if root := os.Getenv("UPLOAD_ROOT"); root != "" {
		cfg.Storage.UploadRoot = root
	}
	if bucket := os.Getenv("ARTIFACT_S3_BUCKET"); bucket != "" {
		cfg.Storage.S3Bucket = bucket
		cfg.Storage.S3Enabled = true
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}

	return cfg, nil
}
