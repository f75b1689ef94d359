// Package rag answers questions grounded in retrieved news chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsragd/internal/vectorstore"
)

var (
	// ErrUnavailable indicates the answering service never initialized,
	// typically because the LLM backend could not be reached at startup.
	ErrUnavailable = errors.New("answering service unavailable")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrGeneration indicates the LLM failed to produce an answer.
	ErrGeneration = errors.New("answer generation failed")
)

var questionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "newsragd",
	Subsystem: "rag",
	Name:      "questions_total",
	Help:      "Questions answered, by outcome.",
}, []string{"outcome"})

// Generator produces an answer from a question and the retrieved
// context block.
type Generator interface {
	Generate(ctx context.Context, question, docContext string) (string, error)
}

// Searcher is the vector index surface the service needs.
type Searcher interface {
	Search(ctx context.Context, namespace, query string, k int) ([]vectorstore.SearchResult, error)
}

// Config holds service construction parameters.
type Config struct {
	// Namespace restricts retrieval to one data partition.
	Namespace string

	// TopK is the number of chunks retrieved per question.
	TopK int
}

// Service retrieves the most similar chunks for a question and asks
// the generator for a grounded answer.
type Service struct {
	index     Searcher
	generator Generator
	config    Config
	logger    *zap.Logger

	// initErr is non-nil when the service was constructed in degraded
	// mode; every Answer call fails with ErrUnavailable.
	initErr error
}

// New creates a Service.
func New(index Searcher, generator Generator, cfg Config, logger *zap.Logger) (*Service, error) {
	if index == nil || generator == nil {
		return nil, errors.New("index and generator are required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:     index,
		generator: generator,
		config:    cfg,
		logger:    logger.Named("rag"),
	}, nil
}

// NewUnavailable creates a degraded Service whose Answer always fails
// with ErrUnavailable. This keeps the server up when the LLM backend
// is missing at startup; ingestion keeps working.
func NewUnavailable(cause error, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		initErr: cause,
		logger:  logger.Named("rag"),
	}
}

// Answer retrieves the top-k chunks for the question and generates a
// grounded answer from them.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	if s.initErr != nil {
		questionsTotal.WithLabelValues("unavailable").Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, s.initErr)
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	results, err := s.index.Search(ctx, s.config.Namespace, question, s.config.TopK)
	if err != nil {
		questionsTotal.WithLabelValues("retrieval_error").Inc()
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := s.generator.Generate(ctx, question, joinContext(results))
	if err != nil {
		questionsTotal.WithLabelValues("generation_error").Inc()
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	s.logger.Info("question answered",
		zap.Int("chunks_retrieved", len(results)),
		zap.Int("question_len", len(question)),
	)
	questionsTotal.WithLabelValues("ok").Inc()
	return answer, nil
}

// joinContext concatenates chunk texts in similarity order, separated
// by blank lines.
func joinContext(results []vectorstore.SearchResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}
