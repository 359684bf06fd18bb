package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimited throttles calls to the wrapped model.
type rateLimited struct {
	next    Model
	limiter *rate.Limiter
}

// RateLimited wraps m so at most perSecond calls start per second. A batch
// counts as one call.
func RateLimited(m Model, perSecond float64, burst int) Model {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{next: m, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimited) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.next.EmbedText(ctx, text)
}

func (r *rateLimited) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	if bm, ok := r.next.(BatchModel); ok {
		return bm.EmbedTexts(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := r.next.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *rateLimited) Dimensions() int { return r.next.Dimensions() }

func (r *rateLimited) Close() error { return Close(r.next) }
