package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsragd/internal/config"
)

// New constructs the Index named by cfg.Provider.
//
// vectorSize must match the embedder's output dimension; it is only
// consulted by backends that provision collections with a fixed
// dimension.
func New(cfg config.VectorStoreConfig, vectorSize int, embedder Embedder, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:           cfg.QdrantHost,
			Port:           cfg.QdrantPort,
			UseTLS:         cfg.QdrantUseTLS,
			CollectionName: cfg.Collection,
			VectorSize:     uint64(vectorSize),
		}, embedder, logger)
	case "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:           cfg.ChromemPath,
			Compress:       cfg.ChromemCompress,
			CollectionName: cfg.Collection,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (want qdrant or chromem)", ErrInvalidConfig, cfg.Provider)
	}
}
