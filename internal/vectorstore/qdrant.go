package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("newsragd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// CollectionName is the collection holding news chunks.
	CollectionName string

	// VectorSize is the dimensionality of embeddings.
	// MUST match the embedder's output dimension.
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubling per retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// ReadyPollInterval is the poll cadence while waiting for a newly
	// created collection to report present. Default: 500ms.
	ReadyPollInterval time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
	if c.ReadyPollInterval == 0 {
		c.ReadyPollInterval = 500 * time.Millisecond
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if err := ValidateCollectionName(c.CollectionName); err != nil {
		return err
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// qdrantClient is the subset of the Qdrant gRPC client the index uses.
// Narrowing the dependency keeps the batching logic testable without a
// live server.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantIndex is an Index implementation using Qdrant's native gRPC
// client. gRPC transport avoids the HTTP layer's payload limits, which
// matters for large documents.
//
// Namespaces map to a payload field on every point, injected at
// upsert time and filtered at search time.
type QdrantIndex struct {
	client   qdrantClient
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantIndex creates a QdrantIndex, connects, and health-checks
// the server.
func NewQdrantIndex(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantIndex, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client:   client,
		embedder: embedder,
		config:   cfg,
		logger:   logger.Named("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := idx.client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return idx, nil
}

// newQdrantIndexWithClient wires a pre-built client. Used by tests.
func newQdrantIndexWithClient(cfg QdrantConfig, client qdrantClient, embedder Embedder, logger *zap.Logger) *QdrantIndex {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantIndex{client: client, embedder: embedder, config: cfg, logger: logger}
}

// Close closes the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// EnsureReady provisions the collection idempotently.
//
// Creation is best-effort single-creator: a concurrent creator racing
// this call surfaces as AlreadyExists from the server, which is
// treated as success. After creating, the call blocks until the
// collection reports present.
func (q *QdrantIndex) EnsureReady(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsureReady")
	defer span.End()
	span.SetAttributes(attribute.String("collection", q.config.CollectionName))

	exists, err := q.client.CollectionExists(ctx, q.config.CollectionName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", q.config.CollectionName, err)
	}
	if exists {
		q.logger.Debug("collection already exists", zap.String("collection", q.config.CollectionName))
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	q.logger.Info("creating collection",
		zap.String("collection", q.config.CollectionName),
		zap.Uint64("vector_size", q.config.VectorSize),
	)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.config.VectorSize,
			Distance: q.config.Distance,
		}),
	})
	if err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.AlreadyExists {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", q.config.CollectionName, err)
		}
	}

	// Block until the new collection reports present.
	ticker := time.NewTicker(q.config.ReadyPollInterval)
	defer ticker.Stop()
	for {
		exists, err := q.client.CollectionExists(ctx, q.config.CollectionName)
		if err == nil && exists {
			span.SetStatus(codes.Ok, "created")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for collection %s: %w", q.config.CollectionName, ctx.Err())
		case <-ticker.C:
		}
	}
}

// UpsertBatch stores entries in fixed-size batches, embedding each
// batch's texts just-in-time before the network call.
func (q *QdrantIndex) UpsertBatch(ctx context.Context, namespace string, entries []Entry) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.UpsertBatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("entry_count", len(entries)),
		attribute.String("collection", q.config.CollectionName),
		attribute.String("namespace", namespace),
	)

	if len(entries) == 0 {
		return 0, nil
	}

	batches := partition(entries, upsertBatchSize)
	committed := 0

	for i, batch := range batches {
		points, err := q.buildPoints(ctx, namespace, batch)
		if err == nil {
			err = q.retryOperation(ctx, "upsert", func() error {
				_, upsertErr := q.client.Upsert(ctx, &qdrant.UpsertPoints{
					CollectionName: q.config.CollectionName,
					Points:         points,
					Wait:           qdrant.PtrOf(true),
				})
				return upsertErr
			})
		}
		if err != nil {
			batchErr := &BatchError{Batch: i + 1, Batches: len(batches), Committed: committed, Err: err}
			span.RecordError(batchErr)
			span.SetStatus(codes.Error, batchErr.Error())
			return committed, batchErr
		}

		committed += len(batch)
		q.logger.Info("batch upserted",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("total", committed),
		)
	}

	span.SetAttributes(attribute.Int("entries_upserted", committed))
	span.SetStatus(codes.Ok, "success")
	return committed, nil
}

// buildPoints embeds one batch and converts it to Qdrant points.
func (q *QdrantIndex) buildPoints(ctx context.Context, namespace string, batch []Entry) ([]*qdrant.PointStruct, error) {
	texts := make([]string, len(batch))
	for i, entry := range batch {
		texts[i] = entry.Text
	}

	vectors, err := q.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d entries", ErrEmbeddingFailed, len(vectors), len(batch))
	}

	points := make([]*qdrant.PointStruct, len(batch))
	for i, entry := range batch {
		payload := map[string]*qdrant.Value{
			payloadID:        qdrantValue(entry.ID),
			payloadText:      qdrantValue(entry.Text),
			payloadNamespace: qdrantValue(namespace),
		}
		for k, v := range entry.Metadata {
			if val := qdrantValue(v); val != nil {
				payload[k] = val
			}
		}

		points[i] = &qdrant.PointStruct{
			// Deterministic UUIDv5 of the logical entry id, so
			// re-ingestion overwrites instead of duplicating.
			Id:      qdrant.NewIDUUID(PointID(entry.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}
	return points, nil
}

// Search performs top-k similarity search restricted to a namespace.
func (q *QdrantIndex) Search(ctx context.Context, namespace, query string, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", q.config.CollectionName),
		attribute.String("namespace", namespace),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	queryVector, err := q.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: payloadNamespace,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: namespace},
					},
				},
			},
		}},
	}

	var scored []*qdrant.ScoredPoint
	err = q.retryOperation(ctx, "search", func() error {
		res, queryErr := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.config.CollectionName,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if queryErr != nil {
			return queryErr
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", q.config.CollectionName, err)
	}

	results := make([]SearchResult, len(scored))
	for i, point := range scored {
		result := SearchResult{Score: point.Score, Metadata: make(map[string]any)}
		for key, value := range point.Payload {
			converted := qdrantValueToAny(value)
			result.Metadata[key] = converted
			switch key {
			case payloadID:
				if s, ok := converted.(string); ok {
					result.ID = s
				}
			case payloadText:
				if s, ok := converted.(string); ok {
					result.Text = s
				}
			}
		}
		results[i] = result
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// retryOperation retries an operation with exponential backoff on
// transient gRPC errors.
func (q *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := q.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == q.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, q.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// qdrantValue converts a metadata value to a Qdrant payload value.
// Unsupported types map to nil and are dropped.
func qdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return nil
	}
}

// qdrantValueToAny converts a Qdrant payload value back to a Go value.
func qdrantValueToAny(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

var _ Index = (*QdrantIndex)(nil)
