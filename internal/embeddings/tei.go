package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// TEI embeds through a HuggingFace text-embeddings-inference server.
type TEI struct {
	baseURL string
	client  *http.Client
	dims    int
}

var _ BatchModel = (*TEI)(nil)

// teiRequest is the /embed request body. Inputs is a string or a list.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// NewTEI creates a TEI embedder.
func NewTEI(cfg Config) (*TEI, error) {
	if cfg.BaseURL == "" {
		return nil, vecerr.Config("embeddings.base_url", "base url is required for tei")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TEI{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		dims:    cfg.dimensions(),
	}, nil
}

// EmbedText embeds a single text.
func (t *TEI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := t.embed(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts in one request.
func (t *TEI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	return t.embed(ctx, texts, len(texts))
}

// Dimensions returns the configured or detected vector length.
func (t *TEI) Dimensions() int { return t.dims }

func (t *TEI) embed(ctx context.Context, inputs any, n int) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, &vecerr.SerializationError{Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, vecerr.Config("embeddings.base_url", "creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&statusDoer{client: t.client}).Do(req)
	if err != nil {
		return nil, classifyHTTP(ctx, err)
	}
	defer resp.Body.Close()

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, &vecerr.SerializationError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	if err := checkVectors(vectors, n, t.dims); err != nil {
		return nil, err
	}
	return vectors, nil
}
