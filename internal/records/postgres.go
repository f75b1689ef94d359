package records

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// listPageSize bounds one page of the internal ListAll scan.
const listPageSize = 200

// PostgresStore is a Store implementation backed by PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger.Named("records")}
}

// Connect opens a pgx pool for the given connection string and verifies
// connectivity with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// EnsureSchema applies the embedded DDL. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: applying schema: %v", ErrWriteFailed, err)
	}
	return nil
}

// Save assigns a fresh id and persists the record with
// embeddings_generated forced to false.
func (s *PostgresStore) Save(ctx context.Context, rec Record) (string, error) {
	id := uuid.New().String()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO news_records
			(id, published_date, title, url, content, source,
			 content_hash, embeddings_generated, keywords, categories, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9, $10)`,
		id, rec.PublishedDate, rec.Title, rec.URL, rec.Content, rec.Source,
		nullIfEmpty(rec.ContentHash), rec.Keywords, rec.Categories,
		nullIfEmpty(rec.Summary),
	)
	if err != nil {
		return "", fmt.Errorf("%w: inserting record %q: %v", ErrWriteFailed, rec.Title, err)
	}

	s.logger.Info("record saved",
		zap.String("id", id),
		zap.String("title", rec.Title),
	)
	return id, nil
}

// ListAll scans the whole table with keyset pagination, looping until a
// short page signals exhaustion.
func (s *PostgresStore) ListAll(ctx context.Context) ([]Record, error) {
	var (
		out      []Record
		lastID   string
		lastDate time.Time
		first    = true
	)

	for {
		var (
			rows pgx.Rows
			err  error
		)
		if first {
			rows, err = s.pool.Query(ctx, selectRecords+`
				ORDER BY id, published_date
				LIMIT $1`, listPageSize)
		} else {
			rows, err = s.pool.Query(ctx, selectRecords+`
				WHERE (id, published_date) > ($2, $3)
				ORDER BY id, published_date
				LIMIT $1`, listPageSize, lastID, lastDate)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scanning records: %v", ErrReadFailed, err)
		}

		page, err := scanRecords(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}

		out = append(out, page...)
		if len(page) < listPageSize {
			break
		}
		last := page[len(page)-1]
		lastID, lastDate = last.ID, last.PublishedDate
		first = false
	}

	s.logger.Debug("listed records", zap.Int("count", len(out)))
	return out, nil
}

// FindByHash performs a point lookup via the secondary hash index.
// A miss is (nil, nil).
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*Record, error) {
	if hash == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, selectRecords+`
		WHERE content_hash = $1
		LIMIT 1`, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: hash lookup: %v", ErrReadFailed, err)
	}

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// MarkEmbedded flips embeddings_generated to true for one record.
func (s *PostgresStore) MarkEmbedded(ctx context.Context, id string, publishedDate time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE news_records
		SET embeddings_generated = true
		WHERE id = $1 AND published_date = $2`,
		id, publishedDate,
	)
	if err != nil {
		return fmt.Errorf("%w: marking record %s embedded: %v", ErrWriteFailed, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Info("record marked embedded", zap.String("id", id))
	return nil
}

const selectRecords = `
	SELECT id, published_date, title, url, content, source,
	       COALESCE(content_hash, ''), embeddings_generated,
	       COALESCE(keywords, '{}'), COALESCE(categories, '{}'),
	       COALESCE(summary, '')
	FROM news_records`

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.PublishedDate, &rec.Title, &rec.URL,
			&rec.Content, &rec.Source, &rec.ContentHash,
			&rec.EmbeddingsGenerated, &rec.Keywords, &rec.Categories,
			&rec.Summary,
		); err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record rows: %w", err)
	}
	return out, nil
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
