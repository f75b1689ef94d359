// Package chunker splits document text into semantically coherent
// segments using embedding-similarity boundaries.
//
// Instead of fixed-length windows, the text is split into sentences,
// each sentence is embedded, and a chunk boundary is cut wherever the
// semantic distance between consecutive sentences exceeds an adaptive
// percentile threshold. Output is deterministic for the same text and
// the same embedding model version.
package chunker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Embedder is the minimal embedding dependency of the chunker.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunk is one semantically bounded span of a document's text.
type Chunk struct {
	// Text is the chunk content, sentences joined by single spaces.
	Text string

	// Sentences is the number of sentence units merged into this chunk.
	Sentences int
}

// Config holds semantic chunker settings.
type Config struct {
	// BreakpointPercentile is the percentile of consecutive-sentence
	// distances above which a boundary is cut. Default: 95.
	BreakpointPercentile float64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BreakpointPercentile == 0 {
		c.BreakpointPercentile = 95
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BreakpointPercentile <= 0 || c.BreakpointPercentile > 100 {
		return fmt.Errorf("breakpoint percentile must be in (0, 100], got %v", c.BreakpointPercentile)
	}
	return nil
}

// SemanticChunker splits text at embedding-similarity boundaries.
type SemanticChunker struct {
	embedder Embedder
	config   Config
}

// New creates a SemanticChunker with the given embedder.
func New(embedder Embedder, cfg Config) (*SemanticChunker, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &SemanticChunker{embedder: embedder, config: cfg}, nil
}

// sentencePattern matches one sentence unit: a run of characters up to
// terminal punctuation (plus trailing quotes/brackets), or a trailing
// fragment without terminal punctuation.
var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]+["')\]]*|[^.!?\n]+`)

// Chunk splits text into ordered semantic chunks.
//
// Empty or whitespace-only input yields zero chunks and no error;
// callers treat zero chunks as a processing failure for the document,
// not a successful no-op. Inputs of one or two sentences produce a
// single chunk without any embedding calls.
func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) <= 2 {
		return []Chunk{{
			Text:      strings.Join(sentences, " "),
			Sentences: len(sentences),
		}}, nil
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embedding sentences: %w", err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(vectors), len(sentences))
	}

	// Distance between each pair of consecutive sentences.
	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - cosineSimilarity(vectors[i], vectors[i+1])
	}

	threshold := percentile(distances, c.config.BreakpointPercentile)

	var (
		chunks []Chunk
		start  = 0
	)
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, joinChunk(sentences[start:i+1]))
			start = i + 1
		}
	}
	chunks = append(chunks, joinChunk(sentences[start:]))

	return chunks, nil
}

func joinChunk(sentences []string) Chunk {
	return Chunk{
		Text:      strings.Join(sentences, " "),
		Sentences: len(sentences),
	}
}

// splitSentences splits text into trimmed sentence units. Newlines act
// as hard boundaries so headings and list items stay separate units.
func splitSentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched or zero-magnitude vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// percentile computes the pth percentile of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
