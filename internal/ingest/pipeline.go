// Package ingest coordinates the document ingestion pipeline: persist a
// record, chunk its content, embed and upsert the chunks, then flip the
// record's embedded flag.
//
// Ordering is the load-bearing invariant: the flag is only set after
// every chunk is durably in the vector index. A crash between upsert
// and flag update leaves the document pending, and the next ingestion
// run re-upserts its chunks idempotently.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsragd/internal/chunker"
	"github.com/fyrsmithlabs/newsragd/internal/records"
	"github.com/fyrsmithlabs/newsragd/internal/vectorstore"
)

var (
	// ErrNoChunks indicates a document produced zero chunks and cannot
	// be indexed.
	ErrNoChunks = errors.New("document produced no chunks")
)

// PartialError reports a document that was saved to the record store
// but whose chunks did not all reach the vector index. The record
// survives with its embedded flag unset, so a later ingestion run can
// finish the job.
type PartialError struct {
	ID  string
	Err error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("document %s saved but not embedded: %v", e.ID, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// ContentHash returns the sha256 hex digest used for duplicate
// detection.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Chunker splits document content into semantically coherent chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]chunker.Chunk, error)
}

// Config holds pipeline construction parameters.
type Config struct {
	// Namespace isolates this pipeline's entries in the vector index.
	Namespace string

	// Dimension is the embedding dimensionality, recorded in chunk
	// metadata.
	Dimension int
}

// Pipeline drives documents from the record store into the vector
// index.
type Pipeline struct {
	store   records.Store
	index   vectorstore.Index
	chunker Chunker
	config  Config
	logger  *zap.Logger
}

// New creates a Pipeline.
func New(store records.Store, index vectorstore.Index, ch Chunker, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if store == nil || index == nil || ch == nil {
		return nil, errors.New("store, index and chunker are required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:   store,
		index:   index,
		chunker: ch,
		config:  cfg,
		logger:  logger.Named("ingest"),
	}, nil
}

// IngestOne embeds and indexes a single stored record. It returns
// (false, nil) when the record is already embedded, (true, nil) after
// a successful run, and (false, err) on failure. The record's flag is
// only updated after every chunk is committed.
func (p *Pipeline) IngestOne(ctx context.Context, rec records.Record) (bool, error) {
	if rec.EmbeddingsGenerated {
		p.logger.Debug("record already embedded, skipping", zap.String("id", rec.ID))
		documentsTotal.WithLabelValues(outcomeSkipped).Inc()
		return false, nil
	}

	start := time.Now()
	defer func() { ingestDuration.Observe(time.Since(start).Seconds()) }()

	chunks, err := p.chunker.Chunk(ctx, rec.Content)
	if err != nil {
		documentsTotal.WithLabelValues(outcomeFailed).Inc()
		return false, fmt.Errorf("chunking document %s: %w", rec.ID, err)
	}
	if len(chunks) == 0 {
		documentsTotal.WithLabelValues(outcomeFailed).Inc()
		return false, fmt.Errorf("document %s: %w", rec.ID, ErrNoChunks)
	}

	entries := p.buildEntries(rec, chunks)
	committed, err := p.index.UpsertBatch(ctx, p.config.Namespace, entries)
	if err != nil {
		documentsTotal.WithLabelValues(outcomeFailed).Inc()
		return false, fmt.Errorf("upserting chunks for document %s: %w", rec.ID, err)
	}
	chunksUpserted.Add(float64(committed))

	if err := p.store.MarkEmbedded(ctx, rec.ID, rec.PublishedDate); err != nil {
		documentsTotal.WithLabelValues(outcomeFailed).Inc()
		return false, fmt.Errorf("marking document %s embedded: %w", rec.ID, err)
	}

	p.logger.Info("document embedded",
		zap.String("id", rec.ID),
		zap.Int("chunks", len(entries)),
	)
	documentsTotal.WithLabelValues(outcomeSucceeded).Inc()
	return true, nil
}

// buildEntries maps chunks to vector index entries. Entry ids are a
// pure function of the record id and chunk index, so re-ingestion
// overwrites rather than duplicates.
func (p *Pipeline) buildEntries(rec records.Record, chunks []chunker.Chunk) []vectorstore.Entry {
	entries := make([]vectorstore.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vectorstore.Entry{
			ID:   fmt.Sprintf("%s_c%d", rec.ID, i),
			Text: chunk.Text,
			Metadata: map[string]any{
				"original_doc_id": rec.ID,
				"chunk":           i,
				"total_chunks":    len(chunks),
				"dimension":       p.config.Dimension,
				"title":           rec.Title,
			},
		}
	}
	return entries
}

// Result reports the outcome of submitting one document.
type Result struct {
	// ID is the stored record's id (existing record's id when the
	// document was a duplicate).
	ID string

	// Duplicate is true when an identical document was already stored;
	// nothing was written.
	Duplicate bool
}

// IngestDocument saves a new document and embeds it in one call.
//
// The content hash check degrades gracefully: a failed lookup logs a
// warning and proceeds as if the document were new, trading possible
// duplicates for availability. An embedding failure after a successful
// save returns a PartialError carrying the new record's id.
func (p *Pipeline) IngestDocument(ctx context.Context, rec records.Record) (Result, error) {
	if rec.ContentHash == "" {
		rec.ContentHash = ContentHash([]byte(rec.Content))
	}

	existing, err := p.store.FindByHash(ctx, rec.ContentHash)
	if err != nil {
		p.logger.Warn("duplicate check failed, assuming new document",
			zap.String("hash", rec.ContentHash),
			zap.Error(err),
		)
	} else if existing != nil {
		p.logger.Info("duplicate document",
			zap.String("existing_id", existing.ID),
			zap.String("hash", rec.ContentHash),
		)
		documentsTotal.WithLabelValues(outcomeDuplicate).Inc()
		return Result{ID: existing.ID, Duplicate: true}, nil
	}

	id, err := p.store.Save(ctx, rec)
	if err != nil {
		documentsTotal.WithLabelValues(outcomeFailed).Inc()
		return Result{}, fmt.Errorf("saving document: %w", err)
	}
	rec.ID = id
	rec.EmbeddingsGenerated = false

	if _, err := p.IngestOne(ctx, rec); err != nil {
		return Result{ID: id}, &PartialError{ID: id, Err: err}
	}
	return Result{ID: id}, nil
}

// Failure identifies a document that failed during a bulk run.
type Failure struct {
	ID  string
	Err error
}

// Summary aggregates a bulk ingestion run.
type Summary struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []Failure
}

// IngestPending embeds every stored record whose flag is unset.
// Failures are isolated per document; one bad document never stops
// the run. Only context cancellation aborts early.
func (p *Pipeline) IngestPending(ctx context.Context) (Summary, error) {
	recs, err := p.store.ListAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing records: %w", err)
	}

	var summary Summary
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		embedded, err := p.IngestOne(ctx, rec)
		switch {
		case err != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{ID: rec.ID, Err: err})
			p.logger.Error("document ingestion failed",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
		case embedded:
			summary.Succeeded++
		default:
			summary.Skipped++
		}
	}

	p.logger.Info("ingestion run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
