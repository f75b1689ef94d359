// Package records provides durable storage for ingested news documents.
//
// A Record is created once at ingestion time and mutated exactly once,
// to flip its embeddings_generated flag after every chunk of the
// document has been durably upserted into the vector index. Records
// are never deleted.
package records

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWriteFailed indicates the record store rejected a write.
	ErrWriteFailed = errors.New("record store write failed")

	// ErrReadFailed indicates the record store could not be read.
	ErrReadFailed = errors.New("record store read failed")

	// ErrNotFound indicates no record matched the given key.
	ErrNotFound = errors.New("record not found")
)

// Record represents one ingested source document.
//
// (ID, PublishedDate) uniquely identifies a record. ContentHash, when
// set, uniquely identifies the ingested byte-content across all
// records and backs duplicate detection.
type Record struct {
	ID            string
	Title         string
	URL           string
	Content       string
	PublishedDate time.Time
	Source        string

	// ContentHash is the sha256 hex digest of the raw source bytes.
	// Empty for records ingested from feeds without raw bytes.
	ContentHash string

	// EmbeddingsGenerated is false until all of the document's chunks
	// are durably upserted into the vector index.
	EmbeddingsGenerated bool

	// Optional enrichment fields.
	Keywords   []string
	Categories []string
	Summary    string
}

// Store is the record store contract consumed by the ingestion
// pipeline.
type Store interface {
	// Save assigns a fresh unique id, writes the record with
	// EmbeddingsGenerated forced to false, and returns the id.
	Save(ctx context.Context, rec Record) (string, error)

	// ListAll returns every record, paging internally until the store
	// is exhausted.
	ListAll(ctx context.Context) ([]Record, error)

	// FindByHash looks up a record by content hash. A miss returns
	// (nil, nil); lookup failures return a wrapped ErrReadFailed so
	// callers can degrade to "assume not duplicate".
	FindByHash(ctx context.Context, hash string) (*Record, error)

	// MarkEmbedded sets EmbeddingsGenerated to true for the record
	// identified by (id, publishedDate). Returns ErrNotFound if no
	// such record exists.
	MarkEmbedded(ctx context.Context, id string, publishedDate time.Time) error
}
