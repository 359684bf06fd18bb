package vectorindex

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/pool"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsObserver(reg)
	f := newFixture(t, &keywordModel{}, testConfig(), WithObserver(m))
	ctx := context.Background()

	require.NoError(t, f.ix.CreateVector(ctx, "a", []float32{1, 0, 0}, nil))
	_, err := f.ix.TopNIDs(ctx, "cat", 1, testTable, SearchParams{})
	require.NoError(t, err)
	_ = f.ix.DeleteEmbedding(ctx, "missing", testTable)
	_ = f.ix.DeleteBatch(ctx, []string{"a", "missing"}, testTable)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(string(OpCreate), "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(string(OpTopNIDs), "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(string(OpDelete), string(vecerr.KindMissingID))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacks.WithLabelValues(string(OpDeleteBatch))))

	m.RetryAttempted(ctx, OpTopN, 1, time.Millisecond, vecerr.Transient("search", errors.New("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues(string(OpTopN), string(vecerr.KindDatastore))))

	n, err := testutil.GatherAndCount(reg, "vectorindex_operation_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestPoolCollector(t *testing.T) {
	stats := pool.Stats{MaxSize: 8, InUse: 2, Idle: 3, WaitCount: 5, WaitDuration: 1500 * time.Millisecond, Dialed: 4}
	c := NewPoolCollector(func() pool.Stats { return stats })

	assert.Equal(t, 8, testutil.CollectAndCount(c))

	expected := `
# HELP vectorindex_pool_in_use Connections currently checked out.
# TYPE vectorindex_pool_in_use gauge
vectorindex_pool_in_use 2
# HELP vectorindex_pool_wait_seconds_total Total time spent waiting for a slot.
# TYPE vectorindex_pool_wait_seconds_total counter
vectorindex_pool_wait_seconds_total 1.5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"vectorindex_pool_in_use", "vectorindex_pool_wait_seconds_total"))
}

func TestTraceObserver(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, &keywordModel{}, testConfig(), WithObserver(NewTraceObserver(tp)))
	ctx := context.Background()
	require.NoError(t, f.ix.CreateVector(ctx, "a", []float32{1, 0, 0}, nil))
	_ = f.ix.DeleteBatch(ctx, []string{"a", "missing"}, testTable)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range rec.Ended() {
		byName[s.Name()] = s
	}

	created := byName["vectorindex.create_vector"]
	require.NotNil(t, created)
	assert.Equal(t, codes.Ok, created.Status().Code)

	batch := byName["vectorindex.delete_batch"]
	require.NotNil(t, batch)
	assert.Equal(t, codes.Error, batch.Status().Code)
	var events []string
	for _, e := range batch.Events() {
		events = append(events, e.Name)
	}
	assert.Contains(t, events, "rollback")
	assert.Contains(t, events, "exception")
}

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := NewLogObserver(zap.New(core))
	ctx := logging.WithRequestID(context.Background(), "req-7")

	ctx = o.RequestIssued(ctx, OpTopN, "docs")
	o.RetryAttempted(ctx, OpTopN, 1, time.Millisecond, vecerr.ErrPoolTimeout)
	o.OperationFinished(ctx, OpTopN, "docs", time.Millisecond, nil)
	o.OperationFinished(ctx, OpDelete, "docs", time.Millisecond, &vecerr.MissingIDError{Table: "docs", ID: "x"})

	assert.Equal(t, 1, logs.FilterMessage("retrying index request").Len())
	failed := logs.FilterMessage("index operation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, string(vecerr.KindMissingID), failed[0].ContextMap()["kind"])
	assert.Equal(t, "req-7", failed[0].ContextMap()["request.id"])
	assert.Equal(t, "req-7", logs.FilterMessage("retrying index request").All()[0].ContextMap()["request.id"])
}

func TestObserversFanOut(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	assert.IsType(t, NopObserver{}, Observers())
	assert.Same(t, a, Observers(nil, a))

	o := Observers(a, b)
	ctx := o.RequestIssued(context.Background(), OpRead, "docs")
	o.OperationFinished(ctx, OpRead, "docs", 0, nil)
	assert.Len(t, a.finished[OpRead], 1)
	assert.Len(t, b.finished[OpRead], 1)
}
