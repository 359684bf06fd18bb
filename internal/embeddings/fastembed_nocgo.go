//go:build !cgo

package embeddings

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed requires a cgo build; use the tei or openai provider")

// FastEmbed is unavailable without cgo.
type FastEmbed struct{}

// NewFastEmbed always fails without cgo.
func NewFastEmbed(_ Config, _ *zap.Logger) (*FastEmbed, error) {
	return nil, vecerr.Config("embeddings.provider", "%v", ErrFastEmbedNotAvailable)
}

func (f *FastEmbed) EmbedText(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (f *FastEmbed) Dimensions() int { return 0 }

func (f *FastEmbed) Close() error { return nil }
