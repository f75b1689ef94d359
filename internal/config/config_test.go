package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "news_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, "news_data", cfg.VectorStore.Namespace)
	assert.Equal(t, 1024, cfg.Embeddings.Dimension)
	assert.Equal(t, 3, cfg.Answer.TopK)
}

func TestLoadYAMLFile(t *testing.T) {
	yaml := `
server:
  port: 9000
  shutdown_timeout: 30s
logging:
  level: debug
  format: console
vectorstore:
  provider: qdrant
  collection: custom_chunks
  qdrant_host: qdrant.internal
  qdrant_port: 7334
embeddings:
  model: text-embedding-3-small
  dimension: 1536
answer:
  top_k: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "custom_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.QdrantHost)
	assert.Equal(t, 7334, cfg.VectorStore.QdrantPort)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimension)
	assert.Equal(t, 5, cfg.Answer.TopK)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NEWSRAGD_SERVER_PORT", "6060")
	t.Setenv("NEWSRAGD_VECTORSTORE_NAMESPACE", "env_ns")
	t.Setenv("NEWSRAGD_LLM_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "env_ns", cfg.VectorStore.Namespace)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey.Value())
}

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NEWSRAGD_SERVER_PORT", "server.port"},
		{"NEWSRAGD_SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"NEWSRAGD_VECTORSTORE_QDRANT_HOST", "vectorstore.qdrant_host"},
		{"NEWSRAGD_LLM_API_KEY", "llm.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, transformEnvKey(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		errText string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			errText: "server port",
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			errText: "logging format",
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			errText: "logging level",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.VectorStore.Provider = "weaviate" },
			errText: "unsupported vectorstore provider",
		},
		{
			name:    "bad collection name",
			mutate:  func(c *Config) { c.VectorStore.Collection = "News-Chunks" },
			errText: "collection",
		},
		{
			name:    "empty namespace",
			mutate:  func(c *Config) { c.VectorStore.Namespace = "" },
			errText: "namespace required",
		},
		{
			name:    "zero dimension",
			mutate:  func(c *Config) { c.Embeddings.Dimension = 0 },
			errText: "dimension",
		},
		{
			name:    "zero top_k",
			mutate:  func(c *Config) { c.Answer.TopK = 0 },
			errText: "top_k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errText == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(out))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}
