package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Model is the embedding capability the index depends on.
type Model interface {
	// EmbedText returns the embedding of one text. Empty text is a
	// validation error.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the length of every vector the model returns.
	Dimensions() int
}

// BatchModel is implemented by models that embed many texts in one call.
type BatchModel interface {
	Model
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = fmt.Errorf("%w: empty input text", vecerr.ErrValidation)

	// ErrEmbeddingFailed indicates the provider could not produce an
	// embedding. It is a connection error so callers may retry.
	ErrEmbeddingFailed = fmt.Errorf("%w: embedding generation failed", vecerr.ErrConnection)
)

// EmbedTexts embeds texts with m, in one call when m supports batches.
func EmbedTexts(ctx context.Context, m Model, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if bm, ok := m.(BatchModel); ok {
		return bm.EmbedTexts(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close releases m if it holds resources.
func Close(m Model) error {
	if c, ok := m.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for i, t := range texts {
		if t == "" {
			return fmt.Errorf("%w (index %d)", ErrEmptyInput, i)
		}
	}
	return nil
}

// checkVectors verifies a provider response has one vector per input, each
// of the expected length.
func checkVectors(vectors [][]float32, n, dims int) error {
	if len(vectors) != n {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), n)
	}
	if dims <= 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != dims {
			return &vecerr.DimensionError{Expected: dims, Actual: len(v)}
		}
	}
	return nil
}

var errClosed = errors.New("embedding model closed")
