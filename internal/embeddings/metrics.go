package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/vectorindex/internal/embeddings"

// Metrics holds all embedding-related metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for embeddings.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(embeddingsInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"vectorindex.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of embedding generation in seconds, by model and operation (embed_text, embed_texts)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"vectorindex.embedding.batch_size",
		metric.WithDescription("Number of texts per embedding request."),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"vectorindex.embedding.errors_total",
		metric.WithDescription("Embedding generation errors by model, operation and error kind."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordGeneration records embedding generation metrics.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, batchSize int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("operation", operation),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), metric.WithAttributes(attrs...))
	}

	if err != nil && m.errors != nil {
		attrs = append(attrs, attribute.String("kind", string(vecerr.KindOf(err))))
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// instrumented records Metrics for every call to the wrapped model.
type instrumented struct {
	next    Model
	model   string
	metrics *Metrics
}

// Instrumented wraps m so each call records duration, batch size and
// errors under the given model name.
func Instrumented(m Model, model string, metrics *Metrics) Model {
	return &instrumented{next: m, model: model, metrics: metrics}
}

func (i *instrumented) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := i.next.EmbedText(ctx, text)
	i.metrics.RecordGeneration(ctx, i.model, "embed_text", time.Since(start), 1, err)
	return v, err
}

func (i *instrumented) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := EmbedTexts(ctx, i.next, texts)
	i.metrics.RecordGeneration(ctx, i.model, "embed_texts", time.Since(start), len(texts), err)
	return vectors, err
}

func (i *instrumented) Dimensions() int { return i.next.Dimensions() }

func (i *instrumented) Close() error { return Close(i.next) }
