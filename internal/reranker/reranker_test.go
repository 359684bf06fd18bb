package reranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

type doc struct {
	Text string
}

func docText(d doc) string { return d.Text }

func results() []vectorindex.Result[doc] {
	return []vectorindex.Result[doc]{
		{ID: "a", Score: 0.9, Payload: doc{"unrelated words here"}},
		{ID: "b", Score: 0.6, Payload: doc{"qdrant vector database"}},
		{ID: "c", Score: 0.7, Payload: doc{"vector search"}},
	}
}

func TestNewTermOverlapWeight(t *testing.T) {
	for _, w := range []float64{-0.1, 1.1} {
		_, err := NewTermOverlap("q", w)
		assert.ErrorIs(t, err, vecerr.ErrValidation)
	}
	_, err := NewTermOverlap("q", 0)
	assert.NoError(t, err)
}

func TestOverlap(t *testing.T) {
	r, err := NewTermOverlap("vector database", DefaultWeight)
	require.NoError(t, err)

	assert.Equal(t, 1.0, r.Overlap("a vector database"))
	assert.Equal(t, 0.5, r.Overlap("vector search"))
	assert.Equal(t, 0.0, r.Overlap("nothing"))

	empty, err := NewTermOverlap("the a", DefaultWeight)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.Overlap("the a"))
}

func TestRerank(t *testing.T) {
	r, err := NewTermOverlap("vector database", DefaultWeight)
	require.NoError(t, err)

	in := results()
	out := Rerank(r, in, docText, 0)
	require.Len(t, out, 3)

	// b: 0.5*1 + 0.5*0.6 = 0.8, c: 0.5*0.5 + 0.5*0.7 = 0.6, a: 0.45
	assert.Equal(t, []string{"b", "c", "a"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.InDelta(t, 0.8, out[0].Score, 1e-9)
	assert.InDelta(t, 0.6, out[1].Score, 1e-9)
	assert.InDelta(t, 0.45, out[2].Score, 1e-9)

	// Input untouched.
	assert.Equal(t, results(), in)
}

func TestRerankTopK(t *testing.T) {
	r, err := NewTermOverlap("vector", 1)
	require.NoError(t, err)

	out := Rerank(r, results(), docText, 1)
	require.Len(t, out, 1)
	// b and c tie on overlap; stable order keeps b first.
	assert.Equal(t, "b", out[0].ID)
}

func TestMetadataScorer(t *testing.T) {
	r, err := NewTermOverlap("cats", 1)
	require.NoError(t, err)

	in := []vectorindex.Result[map[string]any]{
		{ID: "x", Score: 0.9, Payload: map[string]any{"title": "dogs"}},
		{ID: "y", Score: 0.1, Payload: map[string]any{"tags": []any{"pets", "cats"}}},
	}
	out := vectorindex.Rerank(in, MetadataScorer(r))
	assert.Equal(t, "y", out[0].ID)
	assert.Equal(t, 1.0, out[0].Score)
	assert.Equal(t, 0.0, out[1].Score)
}
