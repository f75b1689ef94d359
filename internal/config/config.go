// Package config provides configuration loading for newsragd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. This package covers the HTTP server, record store, vector
// store, embeddings, and answering settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"
)

// collectionNamePattern validates vector store collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Config holds the complete newsragd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Database    DatabaseConfig    `koanf:"database"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Answer      AnswerConfig      `koanf:"answer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// CORSOrigins lists allowed CORS origins. Default: ["*"].
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// DatabaseConfig holds the record store connection settings.
type DatabaseConfig struct {
	// URL is the Postgres connection string. It may carry credentials,
	// so it is treated as a secret.
	URL Secret `koanf:"url"`
}

// VectorStoreConfig holds vector index configuration.
type VectorStoreConfig struct {
	// Provider selects the index backend: "qdrant" or "chromem".
	Provider string `koanf:"provider"`

	// Collection is the index name. Shared by both providers.
	Collection string `koanf:"collection"`

	// Namespace is the logical partition within the collection that
	// holds news chunks, isolating them from other data.
	Namespace string `koanf:"namespace"`

	// Qdrant gRPC settings (only used for the qdrant provider).
	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantUseTLS bool   `koanf:"qdrant_use_tls"`

	// Chromem settings (only used for the chromem provider).
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// EmbeddingsConfig holds embedding provider configuration.
//
// The embedder speaks the OpenAI embeddings API, which covers both a
// local TEI (Text Embeddings Inference) server and OpenAI itself.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
	// Dimension is the embedding vector size. MUST match the vector
	// store collection's vector size.
	Dimension int `koanf:"dimension"`
}

// LLMConfig holds generation model configuration.
type LLMConfig struct {
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
}

// AnswerConfig holds retrieval-augmented answering settings.
type AnswerConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int `koanf:"top_k"`
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "news_chunks"
	}
	if cfg.VectorStore.Namespace == "" {
		cfg.VectorStore.Namespace = "news_data"
	}
	if cfg.VectorStore.QdrantHost == "" {
		cfg.VectorStore.QdrantHost = "localhost"
	}
	if cfg.VectorStore.QdrantPort == 0 {
		cfg.VectorStore.QdrantPort = 6334
	}
	if cfg.VectorStore.ChromemPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.VectorStore.ChromemPath = filepath.Join(home, ".local", "share", "newsragd", "vectorstore")
		} else {
			cfg.VectorStore.ChromemPath = "newsragd-vectorstore"
		}
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "intfloat/multilingual-e5-large"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 1024
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-1.5-flash-latest"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.Answer.TopK == 0 {
		cfg.Answer.TopK = 3
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server shutdown timeout must be > 0")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	var level zapcore.Level
	if err := level.Set(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level %q: %w", c.Logging.Level, err)
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.VectorStore.QdrantPort <= 0 || c.VectorStore.QdrantPort > 65535 {
			return fmt.Errorf("qdrant port must be 1-65535, got %d", c.VectorStore.QdrantPort)
		}
	case "chromem":
		// No external endpoint to validate.
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: qdrant, chromem)", c.VectorStore.Provider)
	}
	if !collectionNamePattern.MatchString(c.VectorStore.Collection) {
		return fmt.Errorf("vectorstore collection must match ^[a-z0-9_]{1,64}$, got %q", c.VectorStore.Collection)
	}
	if c.VectorStore.Namespace == "" {
		return fmt.Errorf("vectorstore namespace required")
	}

	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings base URL required")
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings model required")
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings dimension must be positive, got %d", c.Embeddings.Dimension)
	}

	if c.Answer.TopK <= 0 {
		return fmt.Errorf("answer top_k must be positive, got %d", c.Answer.TopK)
	}
	return nil
}
