package vectorstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid simple", input: "news_chunks"},
		{name: "valid with digits", input: "chunks_2024"},
		{name: "valid single char", input: "a"},
		{name: "valid max length", input: "a123456789012345678901234567890123456789012345678901234567890123"},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "NewsChunks", wantErr: true},
		{name: "hyphen", input: "news-chunks", wantErr: true},
		{name: "space", input: "news chunks", wantErr: true},
		{name: "too long", input: "a1234567890123456789012345678901234567890123456789012345678901234", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("doc-1_c0")
	b := PointID("doc-1_c0")
	c := PointID("doc-1_c1")

	assert.Equal(t, a, b, "same logical id must map to same point id")
	assert.NotEqual(t, a, c, "different logical ids must map to different point ids")

	// UUID string form, lowercased, 36 chars.
	require.Len(t, a, 36)
}

func TestPartition(t *testing.T) {
	entries := func(n int) []Entry {
		out := make([]Entry, n)
		for i := range out {
			out[i] = Entry{ID: string(rune('a' + i%26))}
		}
		return out
	}

	tests := []struct {
		name      string
		count     int
		size      int
		wantSizes []int
	}{
		{name: "empty", count: 0, size: 96, wantSizes: nil},
		{name: "under one batch", count: 10, size: 96, wantSizes: []int{10}},
		{name: "exact batch", count: 96, size: 96, wantSizes: []int{96}},
		{name: "one over", count: 97, size: 96, wantSizes: []int{96, 1}},
		{name: "multiple", count: 200, size: 96, wantSizes: []int{96, 96, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := partition(entries(tt.count), tt.size)
			require.Len(t, batches, len(tt.wantSizes))
			total := 0
			for i, batch := range batches {
				assert.Len(t, batch, tt.wantSizes[i])
				total += len(batch)
			}
			assert.Equal(t, tt.count, total)
		})
	}
}

func TestBatchError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &BatchError{Batch: 2, Batches: 3, Committed: 96, Err: cause}

	assert.Contains(t, err.Error(), "batch 2/3")
	assert.Contains(t, err.Error(), "96 entries committed")
	assert.ErrorIs(t, err, cause)
}
