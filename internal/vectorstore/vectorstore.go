// Package vectorstore provides the chunk similarity index.
//
// Two implementations exist: QdrantIndex (external Qdrant server over
// gRPC) and ChromemIndex (embedded, zero external dependencies). Both
// share the Index contract: idempotent provisioning, batched upsert
// with just-in-time embedding, and namespaced top-k similarity search.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the index backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates an unusable collection name.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// upsertBatchSize is the number of entries sent per network call,
// chosen to stay under the backing index's per-call payload limit.
const upsertBatchSize = 96

// Payload field names shared by both implementations.
const (
	payloadID        = "id"
	payloadText      = "text"
	payloadNamespace = "namespace"
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Entry is one point to be upserted into the index. The embedding
// vector is generated just-in-time from Text inside UpsertBatch.
type Entry struct {
	// ID is the logical entry id, a pure function of the parent
	// document id and chunk index ({doc_id}_c{chunk}). Re-upserting
	// the same id overwrites rather than duplicates.
	ID string

	// Text is the chunk content to embed and store.
	Text string

	// Metadata contains additional key-value pairs stored alongside
	// the vector (original_doc_id, chunk, total_chunks, dimension,
	// title).
	Metadata map[string]any
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	// ID is the logical entry id.
	ID string

	// Text is the stored chunk content.
	Text string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the stored entry metadata.
	Metadata map[string]any
}

// Index is the vector index contract consumed by the ingestion
// pipeline and the answering service.
type Index interface {
	// EnsureReady provisions the collection idempotently: if it
	// already exists the call is a no-op; otherwise it is created and
	// the call blocks until the backend reports it present.
	EnsureReady(ctx context.Context) error

	// UpsertBatch stores entries in the given namespace, internally
	// partitioning into fixed-size batches. It returns the number of
	// entries durably committed. A batch failure aborts the call with
	// a *BatchError; earlier batches stay committed (at-least-once).
	UpsertBatch(ctx context.Context, namespace string, entries []Entry) (int, error)

	// Search returns the top-k entries nearest to query within the
	// namespace, ordered by descending similarity.
	Search(ctx context.Context, namespace, query string, k int) ([]SearchResult, error)

	// Close releases backend resources.
	Close() error
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// BatchError reports a failed upsert batch: which batch failed out of
// how many, and how many entries from earlier batches remain
// committed. There is no rollback; re-running the same upsert
// converges because entry ids are deterministic.
type BatchError struct {
	// Batch is the 1-based number of the failing batch.
	Batch int

	// Batches is the total number of batches in the call.
	Batches int

	// Committed is the number of entries committed by earlier batches.
	Committed int

	// Err is the underlying cause.
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert batch %d/%d failed (%d entries committed): %v",
		e.Batch, e.Batches, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// pointIDNamespace seeds deterministic point id generation. Must never
// change: the idempotence of re-ingestion depends on it.
var pointIDNamespace = uuid.MustParse("9f2c1d5e-4b4f-4a08-9b52-7c1e6f3a8d21")

// PointID maps a logical entry id to a backend point id. It is a pure
// function (UUIDv5), so re-upserting an entry overwrites its previous
// point instead of creating a duplicate.
func PointID(entryID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(entryID)).String()
}

// partition splits entries into batches of at most size elements.
func partition(entries []Entry, size int) [][]Entry {
	var batches [][]Entry
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		batches = append(batches, entries[start:end])
	}
	return batches
}
