package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Embedding  EmbeddingConfig
	Classifier ClassifierConfig
	LLM        LLMConfig
	Pipeline   PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// StorageConfig holds staging-area and blob-store locations
type StorageConfig struct {
	ArtifactDir string
	BlobDir     string
}

// DatabaseConfig holds persistence-gateway configuration. DSN empty means no
// Postgres; LocalPath empty as well means no durable store at all.
type DatabaseConfig struct {
	DSN             string
	LocalPath       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// EmbeddingConfig holds the embedding endpoint configuration
type EmbeddingConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// ClassifierConfig holds the risk-classifier endpoint and partition policy
type ClassifierConfig struct {
	BaseURL        string
	Model          string
	APIKey         string
	Timeout        time.Duration
	RiskyThreshold float32
	SafeLabelID    int
}

// LLMConfig holds the advisory/chat model configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// PipelineConfig holds chunking and worker-pool tuning
type PipelineConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Workers      int
	QueueSize    int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes:  getEnvAsInt64("MAX_UPLOAD_BYTES", 50*1024*1024),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			ArtifactDir: getEnv("ARTIFACT_DIR", "./data/artifacts"),
			BlobDir:     getEnv("BLOB_DIR", "./data/blobs"),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			LocalPath:       getEnv("LOCAL_DB_PATH", "./data/legalsift.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", "google/embeddinggemma-300m"),
			APIKey:  getEnv("HF_TOKEN", ""),
			Timeout: getEnvAsDuration("EMBEDDING_TIMEOUT", 45*time.Second),
		},
		Classifier: ClassifierConfig{
			BaseURL:        getEnv("CLASSIFIER_BASE_URL", ""),
			Model:          getEnv("CLASSIFIER_MODEL", "legal-contract-classifier"),
			APIKey:         getEnv("CLASSIFIER_API_KEY", ""),
			Timeout:        getEnvAsDuration("CLASSIFIER_TIMEOUT", 45*time.Second),
			RiskyThreshold: getEnvAsFloat32("RISKY_CONFIDENCE_THRESHOLD", 0.70),
			SafeLabelID:    getEnvAsInt("SAFE_LABEL_ID", 0),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_API_BASE", "https://openrouter.ai/api/v1"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.7),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 800),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
			Workers:      getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:    getEnvAsInt("PIPELINE_QUEUE_SIZE", 64),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	if c.Storage.ArtifactDir == "" {
		return NewAppError("CONFIG_ERROR", "ARTIFACT_DIR is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Classifier.RiskyThreshold < 0 || c.Classifier.RiskyThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "RISKY_CONFIDENCE_THRESHOLD must be in [0,1]", ErrInvalidInput)
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return NewAppError("CONFIG_ERROR", "CHUNK_OVERLAP must be smaller than CHUNK_SIZE", ErrInvalidInput)
	}
	return nil
}
