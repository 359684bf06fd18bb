package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/vectorindex/internal/credential"
	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/indexconfig"
	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

func newTestConn(t *testing.T) (*Conn, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	cfg := DefaultConfig()
	s := newStore(cfg, fc, zaptest.NewLogger(t))
	c, err := s.Dial(context.Background())
	require.NoError(t, err)
	return c.(*Conn), fc
}

func testSpec(name string) store.TableSpec {
	return store.TableSpec{
		Name:       name,
		Field:      "embedding",
		Dimensions: 3,
		Metric:     similarity.Cosine,
		IndexType:  indexconfig.HNSW(indexconfig.HNSWParams{EfConstruction: 100, MaxConnections: 8, EfSearch: 64}),
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty host", mutate: func(c *Config) { c.Host = "" }, wantErr: "store.qdrant.host"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "store.qdrant.port"},
		{name: "zero request timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "store.qdrant.request_timeout"},
		{name: "nul in api key", mutate: func(c *Config) { c.APIKey = credential.New("a\x00b") }, wantErr: "store.qdrant.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, vecerr.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Host: "qdrant.internal"}
	cfg.ApplyDefaults()
	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1000, cfg.HybridCandidates)
}

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("doc-1").GetUuid()
	assert.Equal(t, a, pointID("doc-1").GetUuid())
	assert.NotEqual(t, a, pointID("doc-2").GetUuid())
	assert.Len(t, a, 36)
}

func TestDistance(t *testing.T) {
	d, err := distance(similarity.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, qdrant.Distance_Euclid, d)

	for _, fn := range []similarity.Function{similarity.Jaccard, similarity.Hamming} {
		_, err := distance(fn)
		assert.ErrorIs(t, err, vecerr.ErrConfiguration, fn)
	}
}

func TestEnsureTable(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestConn(t)

	spec := testSpec("docs")
	threads := 4
	spec.Advanced.NumThreads = &threads
	spec.Advanced.Quantization = &indexconfig.QuantizationParams{Bits: 8, QuantizerType: "scalar"}
	require.NoError(t, c.EnsureTable(ctx, spec))

	created := fc.collections["docs"].create
	assert.Equal(t, uint64(3), created.GetVectorsConfig().GetParams().GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, created.GetVectorsConfig().GetParams().GetDistance())
	assert.Equal(t, uint64(8), created.GetHnswConfig().GetM())
	assert.Equal(t, uint64(100), created.GetHnswConfig().GetEfConstruct())
	assert.Equal(t, uint64(4), created.GetHnswConfig().GetMaxIndexingThreads())
	assert.NotNil(t, created.GetQuantizationConfig().GetScalar())

	t.Run("idempotent", func(t *testing.T) {
		assert.NoError(t, c.EnsureTable(ctx, spec))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		other := spec
		other.Dimensions = 5
		err := c.EnsureTable(ctx, other)
		var de *vecerr.DimensionError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, 3, de.Expected)
		assert.Equal(t, 5, de.Actual)
	})

	t.Run("ivf unsupported", func(t *testing.T) {
		ivf := testSpec("ivf")
		ivf.IndexType = indexconfig.IVF(indexconfig.DefaultIVF)
		assert.ErrorIs(t, c.EnsureTable(ctx, ivf), vecerr.ErrConfiguration)
	})

	t.Run("flat disables graph", func(t *testing.T) {
		flat := testSpec("flat")
		flat.IndexType = indexconfig.BruteForce()
		require.NoError(t, c.EnsureTable(ctx, flat))
		assert.Equal(t, uint64(0), fc.collections["flat"].create.GetHnswConfig().GetM())
	})

	t.Run("unsupported quantization", func(t *testing.T) {
		q := testSpec("quant")
		q.Advanced.Quantization = &indexconfig.QuantizationParams{Bits: 4}
		assert.ErrorIs(t, c.EnsureTable(ctx, q), vecerr.ErrConfiguration)
	})
}

func seed(t *testing.T, c *Conn, table string, recs ...store.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.EnsureTable(ctx, testSpec(table)))
	for _, r := range recs {
		require.NoError(t, c.Insert(ctx, table, "embedding", r))
	}
}

func TestInsertGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConn(t)
	seed(t, c, "docs", store.Record{
		ID:       "a",
		Vector:   []float32{1, 0, 0},
		Metadata: map[string]any{"lang": "go", "stars": 42, "tags": []string{"db", "search"}},
	})

	rec, ok, err := c.Get(ctx, "docs", "embedding", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", rec.ID)
	assert.Equal(t, []float32{1, 0, 0}, rec.Vector)
	assert.Equal(t, map[string]any{
		"lang":  "go",
		"stars": float64(42),
		"tags":  []any{"db", "search"},
	}, rec.Metadata)

	_, ok, err = c.Get(ctx, "docs", "embedding", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	err = c.Insert(ctx, "docs", "embedding", store.Record{ID: "a", Vector: []float32{0, 1, 0}})
	assert.ErrorIs(t, err, vecerr.ErrDuplicateID)
	assert.ErrorIs(t, err, vecerr.ErrValidation)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestConn(t)
	seed(t, c, "docs",
		store.Record{ID: "b", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"title": "graph search"}},
		store.Record{ID: "a", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"title": "vector search"}},
		store.Record{ID: "c", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"title": "search engines"}},
		store.Record{ID: "d", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"title": "cooking"}},
	)

	q := store.Query{
		Table:     "docs",
		Field:     "embedding",
		Vector:    []float32{1, 0, 0},
		Metric:    similarity.Cosine,
		Mode:      store.ModeApproximate,
		IndexType: testSpec("docs").IndexType,
		Limit:     3,
	}

	t.Run("orders by score then id", func(t *testing.T) {
		hits, err := c.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []string{"a", "b", "d"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.Nil(t, hits[0].Metadata)
		assert.Equal(t, uint64(64), fc.lastQuery.GetParams().GetHnswEf())
	})

	t.Run("exact mode", func(t *testing.T) {
		exact := q
		exact.Mode = store.ModeExact
		_, err := c.Search(ctx, exact)
		require.NoError(t, err)
		assert.True(t, fc.lastQuery.GetParams().GetExact())
	})

	t.Run("metadata", func(t *testing.T) {
		withMeta := q
		withMeta.WithMetadata = true
		withMeta.Limit = 1
		hits, err := c.Search(ctx, withMeta)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		var meta map[string]any
		require.NoError(t, json.Unmarshal(hits[0].Metadata, &meta))
		assert.Equal(t, "vector search", meta["title"])
	})

	t.Run("hybrid drops rows without lexical match", func(t *testing.T) {
		hybrid := q
		hybrid.Limit = 10
		hybrid.LexicalQuery = "search"
		hybrid.LexicalWeight = 0.5
		hits, err := c.Search(ctx, hybrid)
		require.NoError(t, err)
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		assert.Equal(t, []string{"a", "b", "c"}, ids)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.InDelta(t, 0.5, hits[2].Score, 1e-6)
		assert.Equal(t, uint64(1000), fc.lastQuery.GetLimit())
	})

	t.Run("filter is sent to the server", func(t *testing.T) {
		f, err := filter.Parse("title = 'cooking'")
		require.NoError(t, err)
		filtered := q
		filtered.Filter = f
		_, err = c.Search(ctx, filtered)
		require.NoError(t, err)
		assert.NotNil(t, fc.lastQuery.GetFilter())
	})

	t.Run("missing collection", func(t *testing.T) {
		missing := q
		missing.Table = "nope"
		_, err := c.Search(ctx, missing)
		assert.ErrorIs(t, err, vecerr.ErrDatastore)
		assert.False(t, vecerr.Retryable(err))
	})

	t.Run("zero limit", func(t *testing.T) {
		zero := q
		zero.Limit = 0
		hits, err := c.Search(ctx, zero)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSearch_EuclideanScoresHigherIsBetter(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConn(t)
	spec := testSpec("l2")
	spec.Metric = similarity.Euclidean
	require.NoError(t, c.EnsureTable(ctx, spec))
	require.NoError(t, c.Insert(ctx, "l2", "embedding", store.Record{ID: "near", Vector: []float32{1, 0, 0}}))
	require.NoError(t, c.Insert(ctx, "l2", "embedding", store.Record{ID: "far", Vector: []float32{4, 0, 0}}))

	hits, err := c.Search(ctx, store.Query{
		Table: "l2", Vector: []float32{1, 0, 0}, Metric: similarity.Euclidean, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.25, hits[1].Score, 1e-6)
}

func TestTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit applies staged changes", func(t *testing.T) {
		c, _ := newTestConn(t)
		seed(t, c, "docs",
			store.Record{ID: "a", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"v": 1}},
			store.Record{ID: "b", Vector: []float32{0, 1, 0}},
		)
		tx, err := c.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Update(ctx, "docs", "embedding", store.Update{ID: "a", Metadata: map[string]any{"v": 2}}))
		require.NoError(t, tx.Delete(ctx, "docs", "b"))
		require.NoError(t, tx.Insert(ctx, "docs", "embedding", store.Record{ID: "c", Vector: []float32{0, 0, 1}}))
		require.NoError(t, tx.Commit())

		rec, ok, err := c.Get(ctx, "docs", "embedding", "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(2), rec.Metadata["v"])
		assert.Equal(t, []float32{1, 0, 0}, rec.Vector, "nil vector keeps the stored one")

		_, ok, _ = c.Get(ctx, "docs", "embedding", "b")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "docs", "embedding", "c")
		assert.True(t, ok)

		assert.ErrorIs(t, tx.Commit(), vecerr.ErrDatastore)
		assert.NoError(t, tx.Rollback())
	})

	t.Run("missing id is reported at staging time", func(t *testing.T) {
		c, fc := newTestConn(t)
		seed(t, c, "docs", store.Record{ID: "a", Vector: []float32{1, 0, 0}})
		before := fc.upserts

		tx, err := c.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Delete(ctx, "docs", "a"))
		err = tx.Delete(ctx, "docs", "a")
		var missing *vecerr.MissingIDError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "a", missing.ID)

		err = tx.Update(ctx, "docs", "embedding", store.Update{ID: "ghost"})
		assert.ErrorIs(t, err, vecerr.ErrMissingID)
		require.NoError(t, tx.Rollback())

		assert.Equal(t, before, fc.upserts)
		_, ok, _ := c.Get(ctx, "docs", "embedding", "a")
		assert.True(t, ok, "rollback leaves the record untouched")
	})

	t.Run("failed request restores applied writes", func(t *testing.T) {
		c, fc := newTestConn(t)
		seed(t, c, "one", store.Record{ID: "a", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"v": "old"}})
		seed(t, c, "two", store.Record{ID: "b", Vector: []float32{0, 1, 0}})

		tx, err := c.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Update(ctx, "one", "embedding", store.Update{ID: "a", Metadata: map[string]any{"v": "new"}}))
		require.NoError(t, tx.Insert(ctx, "one", "embedding", store.Record{ID: "fresh", Vector: []float32{0, 0, 1}}))
		require.NoError(t, tx.Update(ctx, "two", "embedding", store.Update{ID: "b", Metadata: map[string]any{"v": "new"}}))

		calls := 0
		fc.failUpsert = func(collection string) error {
			calls++
			if collection == "two" && calls == 2 {
				return status.Error(codes.Unavailable, "connection reset")
			}
			return nil
		}
		err = tx.Commit()
		require.Error(t, err)
		assert.ErrorIs(t, err, vecerr.ErrConnection)

		rec, ok, err := c.Get(ctx, "one", "embedding", "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "old", rec.Metadata["v"])
		_, ok, _ = c.Get(ctx, "one", "embedding", "fresh")
		assert.False(t, ok)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      error
		retryable bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), vecerr.ErrConnection, true},
		{"aborted", status.Error(codes.Aborted, "conflict"), vecerr.ErrDatastore, true},
		{"exhausted", status.Error(codes.ResourceExhausted, "slow down"), vecerr.ErrDatastore, true},
		{"deadline", context.DeadlineExceeded, vecerr.ErrDatastore, true},
		{"invalid", status.Error(codes.InvalidArgument, "bad"), vecerr.ErrDatastore, false},
		{"not found", status.Error(codes.NotFound, "gone"), vecerr.ErrDatastore, false},
		{"canceled", context.Canceled, vecerr.ErrDatastore, false},
		{"plain", errors.New("boom"), vecerr.ErrDatastore, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.retryable, vecerr.Retryable(err))
		})
	}
}

func TestPing(t *testing.T) {
	c, fc := newTestConn(t)
	assert.NoError(t, c.Ping(context.Background()))
	fc.healthErr = status.Error(codes.Unavailable, "down")
	assert.ErrorIs(t, c.Ping(context.Background()), vecerr.ErrConnection)
}

func TestConn_ClosedRejectsCalls(t *testing.T) {
	c, _ := newTestConn(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureTable(ctx, testSpec("docs")))
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.EnsureTable(ctx, testSpec("docs")), vecerr.ErrConnection)
	_, err := c.Search(ctx, store.Query{
		Table:  "docs",
		Vector: []float32{1, 0, 0},
		Metric: similarity.Cosine,
		Limit:  1,
	})
	assert.ErrorIs(t, err, vecerr.ErrConnection)
	_, _, err = c.Get(ctx, "docs", "embedding", "a")
	assert.ErrorIs(t, err, vecerr.ErrConnection)
	err = c.Insert(ctx, "docs", "embedding", store.Record{ID: "a", Vector: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, vecerr.ErrConnection)
	_, err = c.Begin(ctx)
	assert.ErrorIs(t, err, vecerr.ErrConnection)
	assert.ErrorIs(t, c.Ping(ctx), vecerr.ErrConnection)
}
