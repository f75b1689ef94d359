package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsragd/internal/config"
)

func TestNewService(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.EmbeddingsConfig
		wantErr    bool
		errMessage string
	}{
		{
			name: "valid TEI configuration",
			cfg: config.EmbeddingsConfig{
				BaseURL:   "http://localhost:8080/v1",
				Model:     "intfloat/multilingual-e5-large",
				Dimension: 1024,
			},
		},
		{
			name: "valid OpenAI configuration",
			cfg: config.EmbeddingsConfig{
				BaseURL:   "https://api.openai.com/v1",
				Model:     "text-embedding-3-small",
				APIKey:    config.Secret("sk-test123"),
				Dimension: 1536,
			},
		},
		{
			name: "empty base URL",
			cfg: config.EmbeddingsConfig{
				Model:     "test",
				Dimension: 8,
			},
			wantErr:    true,
			errMessage: "base URL required",
		},
		{
			name: "empty model",
			cfg: config.EmbeddingsConfig{
				BaseURL:   "http://localhost:8080/v1",
				Dimension: 8,
			},
			wantErr:    true,
			errMessage: "model required",
		},
		{
			name: "zero dimension",
			cfg: config.EmbeddingsConfig{
				BaseURL: "http://localhost:8080/v1",
				Model:   "test",
			},
			wantErr:    true,
			errMessage: "dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewService(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMessage)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, service)
			assert.Equal(t, tt.cfg.Dimension, service.Dimension())
		})
	}
}

func TestServiceEmbedValidation(t *testing.T) {
	service, err := NewService(config.EmbeddingsConfig{
		BaseURL:   "http://localhost:8080/v1",
		Model:     "test-model",
		Dimension: 8,
	})
	require.NoError(t, err)

	_, err = service.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = service.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
