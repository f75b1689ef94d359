package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means
	// in-memory only.
	Path string

	// Compress enables gzip compression for persisted documents.
	Compress bool

	// CollectionName is the collection holding news chunks.
	CollectionName string
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	return ValidateCollectionName(c.CollectionName)
}

// ChromemIndex is an Index implementation backed by chromem-go, an
// embedded vector database. It needs no external server, which makes
// it the default for local development and the test suite.
type ChromemIndex struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger

	mu         sync.Mutex
	collection *chromem.Collection
}

// NewChromemIndex creates a ChromemIndex. With a non-empty Path the
// database persists to disk and reloads existing documents.
func NewChromemIndex(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening database at %s: %v", ErrConnectionFailed, cfg.Path, err)
		}
	}

	return &ChromemIndex{
		db:       db,
		embedder: embedder,
		config:   cfg,
		logger:   logger.Named("chromem"),
	}, nil
}

// Close releases the index. chromem-go holds no connections, so this
// only drops the collection handle.
func (c *ChromemIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collection = nil
	return nil
}

// EnsureReady provisions the collection idempotently.
func (c *ChromemIndex) EnsureReady(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection != nil {
		return nil
	}

	col, err := c.db.GetOrCreateCollection(c.config.CollectionName, nil, c.embeddingFunc())
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", c.config.CollectionName, err)
	}
	c.collection = col
	c.logger.Debug("collection ready",
		zap.String("collection", c.config.CollectionName),
		zap.Int("documents", col.Count()),
	)
	return nil
}

// embeddingFunc adapts the Embedder to chromem's per-document hook.
// Only used for query embedding; documents are embedded in batches
// before insertion.
func (c *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.embedder.EmbedQuery(ctx, text)
	}
}

func (c *ChromemIndex) getCollection(ctx context.Context) (*chromem.Collection, error) {
	c.mu.Lock()
	col := c.collection
	c.mu.Unlock()
	if col != nil {
		return col, nil
	}
	if err := c.EnsureReady(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection, nil
}

// UpsertBatch stores entries in fixed-size batches, embedding each
// batch's texts just-in-time before insertion. Document IDs reuse the
// logical entry IDs directly; chromem has no ID format restrictions.
func (c *ChromemIndex) UpsertBatch(ctx context.Context, namespace string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	col, err := c.getCollection(ctx)
	if err != nil {
		return 0, err
	}

	batches := partition(entries, upsertBatchSize)
	committed := 0

	for i, batch := range batches {
		docs, err := c.buildDocuments(ctx, namespace, batch)
		if err == nil {
			err = col.AddDocuments(ctx, docs, 1)
		}
		if err != nil {
			return committed, &BatchError{Batch: i + 1, Batches: len(batches), Committed: committed, Err: err}
		}

		committed += len(batch)
		c.logger.Info("batch upserted",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("total", committed),
		)
	}

	return committed, nil
}

func (c *ChromemIndex) buildDocuments(ctx context.Context, namespace string, batch []Entry) ([]chromem.Document, error) {
	texts := make([]string, len(batch))
	for i, entry := range batch {
		texts[i] = entry.Text
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d entries", ErrEmbeddingFailed, len(vectors), len(batch))
	}

	docs := make([]chromem.Document, len(batch))
	for i, entry := range batch {
		metadata := map[string]string{payloadNamespace: namespace}
		for k, v := range entry.Metadata {
			if s, ok := metadataString(v); ok {
				metadata[k] = s
			}
		}
		docs[i] = chromem.Document{
			ID:        entry.ID,
			Content:   entry.Text,
			Embedding: vectors[i],
			Metadata:  metadata,
		}
	}
	return docs, nil
}

// Search performs top-k similarity search restricted to a namespace.
// chromem rejects result counts above the collection size, so k is
// clamped to the number of stored documents.
func (c *ChromemIndex) Search(ctx context.Context, namespace, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	col, err := c.getCollection(ctx)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	queryVector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	where := map[string]string{payloadNamespace: namespace}
	matches, err := col.QueryEmbedding(ctx, queryVector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", c.config.CollectionName, err)
	}

	results := make([]SearchResult, len(matches))
	for i, match := range matches {
		metadata := make(map[string]any, len(match.Metadata))
		for key, value := range match.Metadata {
			metadata[key] = value
		}
		results[i] = SearchResult{
			ID:       match.ID,
			Text:     match.Content,
			Score:    match.Similarity,
			Metadata: metadata,
		}
	}
	return results, nil
}

// metadataString renders a metadata value for chromem's string-only
// metadata, reporting false for unsupported types.
func metadataString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

var _ Index = (*ChromemIndex)(nil)
