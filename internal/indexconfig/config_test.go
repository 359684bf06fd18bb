package indexconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

func validConfig() Config {
	return New("test_index", "embedding", similarity.Cosine, BruteForce(), 768, 1000)
}

func intPtr(v int) *int { return &v }

func TestNewAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 0.5, cfg.HybridWeight)
	assert.NoError(t, cfg.Validate())
}

func TestValidateFieldChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty name", func(c *Config) { c.IndexName = "" }, "index_name"},
		{"bad name", func(c *Config) { c.IndexName = "a b" }, "index_name"},
		{"empty property", func(c *Config) { c.EmbeddingProperty = "" }, "embedding_property"},
		{"property injection", func(c *Config) { c.EmbeddingProperty = "x; DROP" }, "embedding_property"},
		{"zero dims", func(c *Config) { c.Dimensions = 0 }, "dimensions"},
		{"zero max elements", func(c *Config) { c.MaxElements = 0 }, "max_elements"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"batch too big", func(c *Config) { c.BatchSize = 1001 }, "batch_size"},
		{"retries too many", func(c *Config) { c.MaxRetries = 11 }, "max_retries"},
		{"zero conns", func(c *Config) { c.Advanced.MaxConnections = intPtr(0) }, "advanced.max_connections"},
		{"too many conns", func(c *Config) { c.Advanced.MaxConnections = intPtr(101) }, "advanced.max_connections"},
		{"zero threads", func(c *Config) { c.Advanced.NumThreads = intPtr(0) }, "advanced.num_threads"},
		{"too many threads", func(c *Config) { c.Advanced.NumThreads = intPtr(65) }, "advanced.num_threads"},
		{"min above max conns", func(c *Config) {
			c.Advanced.MaxConnections = intPtr(2)
			c.Advanced.MinConnections = intPtr(3)
		}, "advanced.min_connections"},
		{"unknown metric", func(c *Config) { c.SimilarityFunction = "chebyshev" }, "similarity_function"},
		{"unknown index kind", func(c *Config) { c.IndexType = IndexType{Kind: "lsh"} }, "index_type"},
		{"foreign params", func(c *Config) { c.IndexType = IndexType{Kind: KindHNSW, IVF: &IVFParams{NCentroids: 1, NIter: 1}} }, "index_type"},
		{"bad hnsw", func(c *Config) { c.IndexType = HNSW(HNSWParams{EfConstruction: 0, MaxConnections: 16}) }, "index_type"},
		{"flat dims", func(c *Config) { c.IndexType = Flat(FlatParams{Dimension: 3}) }, "index_type"},
		{"hybrid weight", func(c *Config) { c.HybridWeight = 1.5 }, "hybrid_weight"},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }, "retry_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, vecerr.ErrConfiguration)

			var fe *vecerr.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestValidateReportsFirstViolation(t *testing.T) {
	cfg := validConfig()
	cfg.IndexName = ""
	cfg.Dimensions = 0
	cfg.BatchSize = 0

	var fe *vecerr.FieldError
	require.True(t, errors.As(cfg.Validate(), &fe))
	assert.Equal(t, "index_name", fe.Field)

	cfg.IndexName = "ok"
	require.True(t, errors.As(cfg.Validate(), &fe))
	assert.Equal(t, "dimensions", fe.Field)

	cfg.Dimensions = 3
	require.True(t, errors.As(cfg.Validate(), &fe))
	assert.Equal(t, "batch_size", fe.Field)
}

func TestValidateBoundaries(t *testing.T) {
	cfg := validConfig()
	cfg.BatchSize = 1000
	cfg.MaxRetries = 10
	cfg.Advanced.MaxConnections = intPtr(100)
	cfg.Advanced.NumThreads = intPtr(64)
	assert.NoError(t, cfg.Validate())

	cfg.BatchSize = 1
	cfg.MaxRetries = 0
	cfg.Advanced.MaxConnections = intPtr(1)
	cfg.Advanced.NumThreads = intPtr(1)
	assert.NoError(t, cfg.Validate())
}

func TestIndexTypeVariants(t *testing.T) {
	for _, it := range []IndexType{
		HNSW(HNSWParams{EfConstruction: 100, MaxConnections: 8}),
		IVF(IVFParams{NCentroids: 16, NIter: 4}),
		Flat(FlatParams{Dimension: 768}),
		BruteForce(),
		{Kind: KindHNSW},
	} {
		cfg := validConfig()
		cfg.IndexType = it
		assert.NoError(t, cfg.Validate(), it.String())
	}

	assert.True(t, HNSW(DefaultHNSW).Approximate())
	assert.True(t, IVF(DefaultIVF).Approximate())
	assert.False(t, BruteForce().Approximate())
	assert.False(t, Flat(FlatParams{}).Approximate())
}

func TestEffectiveIndexTypeAppliesAdvanced(t *testing.T) {
	cfg := validConfig()
	cfg.IndexType = HNSW(HNSWParams{EfConstruction: 100, MaxConnections: 8})
	cfg.Advanced.HNSW = &HNSWParams{EfConstruction: 400, MaxConnections: 32, EfSearch: 128}

	eff := cfg.EffectiveIndexType()
	assert.Equal(t, 400, eff.HNSWParams().EfConstruction)
	assert.Equal(t, 128, eff.HNSWParams().EfSearch)
	assert.Equal(t, 100, cfg.IndexType.HNSWParams().EfConstruction, "original untouched")
}

func TestThreads(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 1, cfg.Threads())
	cfg.Advanced.NumThreads = intPtr(8)
	assert.Equal(t, 8, cfg.Threads())
}

func TestKindUnmarshalText(t *testing.T) {
	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("BruteForce")))
	assert.Equal(t, KindBruteForce, k)
	require.NoError(t, k.UnmarshalText([]byte("HNSW")))
	assert.Equal(t, KindHNSW, k)
	assert.Error(t, k.UnmarshalText([]byte("annoy")))
}
