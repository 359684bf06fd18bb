package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMetrics(t *testing.T) (*Metrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := &Metrics{
		meter:  mp.Meter(embeddingsInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()
	return m, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func histogramCount[N int64 | float64](t *testing.T, m metricdata.Metrics) uint64 {
	t.Helper()
	hist, ok := m.Data.(metricdata.Histogram[N])
	require.True(t, ok, "%s is %T", m.Name, m.Data)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	return total
}

func TestMetrics_RecordGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, "bge-small", "embed_texts", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, "bge-small", "embed_text", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, "bge-small", "embed_texts", 25*time.Millisecond, 5, ErrEmbeddingFailed)

	got := collect(t, reader)

	require.Contains(t, got, "vectorindex.embedding.generation_duration_seconds")
	assert.EqualValues(t, 3, histogramCount[float64](t, got["vectorindex.embedding.generation_duration_seconds"]))

	require.Contains(t, got, "vectorindex.embedding.batch_size")
	assert.EqualValues(t, 3, histogramCount[int64](t, got["vectorindex.embedding.batch_size"]))

	require.Contains(t, got, "vectorindex.embedding.errors_total")
	sum, ok := got["vectorindex.embedding.errors_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.EqualValues(t, 1, sum.DataPoints[0].Value)
	kind, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("kind"))
	require.True(t, ok)
	assert.Equal(t, "connection", kind.AsString())
}

func TestMetrics_Labels(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, "bge-small", "embed_texts", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, "bge-base", "embed_texts", 150*time.Millisecond, 20, nil)
	m.RecordGeneration(ctx, "bge-small", "embed_text", 50*time.Millisecond, 1, nil)

	got := collect(t, reader)
	hist, ok := got["vectorindex.embedding.generation_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 3)
}

func TestInstrumented(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	m := Instrumented(&stubModel{dims: 3}, "stub", metrics)
	ctx := context.Background()

	v, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, 3, m.Dimensions())

	vectors, err := EmbedTexts(ctx, m, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	_, err = m.EmbedText(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	got := collect(t, reader)
	assert.EqualValues(t, 3, histogramCount[float64](t, got["vectorindex.embedding.generation_duration_seconds"]))
	sum := got["vectorindex.embedding.errors_total"].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	kind, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("kind"))
	assert.Equal(t, "validation", kind.AsString())
}
