package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// OpenAI embeds through an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	embedder *embeddings.EmbedderImpl
	dims     int
}

var _ BatchModel = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder. BaseURL may point at any
// compatible server.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	token := cfg.APIKey.Reveal()
	if token == "" {
		// langchaingo requires a token even for servers without auth.
		token = "unused"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
		openai.WithHTTPClient(&statusDoer{client: &http.Client{Timeout: timeout}}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, vecerr.Config("embeddings", "creating openai client: %v", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, vecerr.Config("embeddings", "creating embedder: %v", err)
	}
	return &OpenAI{embedder: embedder, dims: cfg.dimensions()}, nil
}

// EmbedText embeds a single text.
func (o *OpenAI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	v, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classifyHTTP(ctx, err)
	}
	if err := checkVectors([][]float32{v}, 1, o.dims); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedTexts embeds texts in batches.
func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classifyHTTP(ctx, err)
	}
	if err := checkVectors(vectors, len(texts), o.dims); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimensions returns the configured or detected vector length.
func (o *OpenAI) Dimensions() int { return o.dims }

// statusError is a non-success HTTP response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("server returned %d %s", e.code, http.StatusText(e.code))
	}
	return fmt.Sprintf("server returned %d %s: %s", e.code, http.StatusText(e.code), e.body)
}

// retryable reports whether the status is worth retrying.
func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// statusDoer turns non-2xx responses into a statusError so the status code
// survives the client's error wrapping.
type statusDoer struct {
	client *http.Client
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	return resp, nil
}

// classifyHTTP maps provider failures onto the error taxonomy: transport
// failures and 429/5xx responses are retryable connection errors, other
// responses are datastore errors.
func classifyHTTP(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("embedding: %w", ctxErr)
	}
	var se *statusError
	if errors.As(err, &se) {
		if se.retryable() {
			return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		return vecerr.Datastore("embed", err)
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
}
