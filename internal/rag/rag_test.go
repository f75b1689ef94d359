package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsragd/internal/vectorstore"
)

type fakeSearcher struct {
	results   []vectorstore.SearchResult
	err       error
	namespace string
	query     string
	k         int
}

func (s *fakeSearcher) Search(_ context.Context, namespace, query string, k int) ([]vectorstore.SearchResult, error) {
	s.namespace, s.query, s.k = namespace, query, k
	return s.results, s.err
}

type fakeGenerator struct {
	answer     string
	err        error
	question   string
	docContext string
}

func (g *fakeGenerator) Generate(_ context.Context, question, docContext string) (string, error) {
	g.question, g.docContext = question, docContext
	return g.answer, g.err
}

func newTestService(t *testing.T, searcher *fakeSearcher, generator *fakeGenerator) *Service {
	t.Helper()
	svc, err := New(searcher, generator, Config{Namespace: "news_data", TopK: 3}, nil)
	require.NoError(t, err)
	return svc
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, &fakeGenerator{}, Config{Namespace: "x"}, nil)
	assert.Error(t, err)

	_, err = New(&fakeSearcher{}, &fakeGenerator{}, Config{}, nil)
	assert.Error(t, err)

	svc, err := New(&fakeSearcher{}, &fakeGenerator{}, Config{Namespace: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, svc.config.TopK, "top-k defaults to 3")
}

func TestAnswer(t *testing.T) {
	t.Run("retrieves and generates", func(t *testing.T) {
		searcher := &fakeSearcher{results: []vectorstore.SearchResult{
			{Text: "first chunk", Score: 0.9},
			{Text: "second chunk", Score: 0.8},
		}}
		generator := &fakeGenerator{answer: "grounded answer"}
		svc := newTestService(t, searcher, generator)

		answer, err := svc.Answer(context.Background(), "what happened?")
		require.NoError(t, err)
		assert.Equal(t, "grounded answer", answer)

		assert.Equal(t, "news_data", searcher.namespace)
		assert.Equal(t, "what happened?", searcher.query)
		assert.Equal(t, 3, searcher.k)
		assert.Equal(t, "first chunk\n\nsecond chunk", generator.docContext,
			"chunks joined by blank lines in similarity order")
	})

	t.Run("trims and rejects empty questions", func(t *testing.T) {
		svc := newTestService(t, &fakeSearcher{}, &fakeGenerator{})

		_, err := svc.Answer(context.Background(), "   \n ")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("no retrieved chunks still generates", func(t *testing.T) {
		generator := &fakeGenerator{answer: "I don't know."}
		svc := newTestService(t, &fakeSearcher{}, generator)

		answer, err := svc.Answer(context.Background(), "unknown topic?")
		require.NoError(t, err)
		assert.Equal(t, "I don't know.", answer)
		assert.Empty(t, generator.docContext)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("index down")}
		svc := newTestService(t, searcher, &fakeGenerator{})

		_, err := svc.Answer(context.Background(), "question?")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrGeneration)
	})

	t.Run("generation failure wraps ErrGeneration", func(t *testing.T) {
		generator := &fakeGenerator{err: errors.New("model overloaded")}
		svc := newTestService(t, &fakeSearcher{}, generator)

		_, err := svc.Answer(context.Background(), "question?")
		assert.ErrorIs(t, err, ErrGeneration)
	})
}

func TestAnswerUnavailable(t *testing.T) {
	svc := NewUnavailable(errors.New("no api key"), nil)

	_, err := svc.Answer(context.Background(), "question?")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no api key")
}

func TestJoinContextSkipsEmptyTexts(t *testing.T) {
	got := joinContext([]vectorstore.SearchResult{
		{Text: "a"}, {Text: ""}, {Text: "b"},
	})
	assert.Equal(t, "a\n\nb", got)
}
