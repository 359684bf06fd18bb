//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// modelMapping maps model names to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"fast-bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"fast-bge-small-en":                      fastembed.BGESmallEN,
	"fast-bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"fast-bge-base-en":                       fastembed.BGEBaseEN,
	"fast-bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"fast-all-MiniLM-L6-v2":                  fastembed.AllMiniLML6V2,
}

// FastEmbed embeds in-process with an ONNX model.
type FastEmbed struct {
	mu     sync.Mutex
	model  *fastembed.FlagEmbedding
	dims   int
	closed bool
}

var _ BatchModel = (*FastEmbed)(nil)

// NewFastEmbed loads the configured model, downloading it into CacheDir on
// first use.
func NewFastEmbed(cfg Config, logger *zap.Logger) (*FastEmbed, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		return nil, vecerr.Config("embeddings.model", "fastembed does not support %q", cfg.Model)
	}

	if cfg.InstallRuntime {
		if _, err := EnsureONNXRuntime(context.Background(), logger); err != nil {
			return nil, err
		}
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = defaultModelDir()
	}
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, vecerr.Config("embeddings.cache_dir", "creating %s: %v", cacheDir, err)
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 512
	}
	showProgress := false

	fe, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: loading fastembed model: %w", vecerr.ErrConfiguration, err)
	}
	return &FastEmbed{model: fe, dims: knownDimensions[cfg.Model]}, nil
}

func defaultModelDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "vectorindex", "models")
}

// EmbedText embeds one text with the model's query prefix.
func (f *FastEmbed) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, vecerr.Datastore("embed", errClosed)
	}
	v, err := f.model.QueryEmbed(text)
	if err != nil {
		return nil, vecerr.Datastore("embed", err)
	}
	return v, nil
}

// EmbedTexts embeds texts with the model's passage prefix.
func (f *FastEmbed) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, vecerr.Datastore("embed", errClosed)
	}
	vectors, err := f.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, vecerr.Datastore("embed", err)
	}
	return vectors, nil
}

// Dimensions returns the model's vector length.
func (f *FastEmbed) Dimensions() int { return f.dims }

// Close releases the ONNX session. Safe to call twice.
func (f *FastEmbed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.model.Destroy()
}
