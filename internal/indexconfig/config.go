// Package indexconfig describes how a vector index is laid out and searched:
// its name, the record property holding embeddings, the similarity metric,
// the index strategy and the operational knobs used by batch and retry
// logic.
//
// Config is a plain value object. Optional settings live in Advanced as
// pointer fields, nil meaning "unset, use the backend default".
package indexconfig

import (
	"regexp"
	"time"

	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Defaults applied by New.
const (
	DefaultBatchSize    = 100
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 100 * time.Millisecond
	DefaultHybridWeight = 0.5

	MaxBatchSize  = 1000
	MaxRetries    = 10
	MaxConns      = 100
	MaxNumThreads = 64
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	indexNamePattern  = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)
)

// Config describes one vector index.
type Config struct {
	IndexName          string              `koanf:"index_name" json:"index_name"`
	EmbeddingProperty  string              `koanf:"embedding_property" json:"embedding_property"`
	SimilarityFunction similarity.Function `koanf:"similarity_function" json:"similarity_function"`
	IndexType          IndexType           `koanf:"index_type" json:"index_type"`
	Dimensions         int                 `koanf:"dimensions" json:"dimensions"`
	MaxElements        int                 `koanf:"max_elements" json:"max_elements"`
	Advanced           Advanced            `koanf:"advanced" json:"advanced"`

	// BatchSize bounds how many records are embedded per call in bulk
	// ingestion.
	BatchSize int `koanf:"batch_size" json:"batch_size"`

	// MaxRetries is the number of extra attempts made for store or network
	// failures. Validation failures are never retried.
	MaxRetries int `koanf:"max_retries" json:"max_retries"`

	// RetryDelay is the first backoff interval; it doubles per attempt.
	RetryDelay time.Duration `koanf:"retry_delay" json:"retry_delay"`

	// HybridWeight is the lexical share of a hybrid score, in [0, 1].
	HybridWeight float64 `koanf:"hybrid_weight" json:"hybrid_weight"`
}

// Advanced holds optional tuning. Every field is optional.
type Advanced struct {
	// HNSW, IVF and Flat override the parameters of the matching index type.
	HNSW *HNSWParams `koanf:"hnsw" json:"hnsw,omitempty"`
	IVF  *IVFParams  `koanf:"ivf" json:"ivf,omitempty"`
	Flat *FlatParams `koanf:"flat" json:"flat,omitempty"`

	// Quantization enables vector compression where the backend has it.
	Quantization *QuantizationParams `koanf:"quantization" json:"quantization,omitempty"`

	// NumThreads caps concurrent embedding calls during bulk ingestion.
	// Default 1.
	NumThreads *int `koanf:"num_threads" json:"num_threads,omitempty"`

	// AllowReplaceDeleted lets the backend reuse slots of deleted vectors.
	// Recorded with the index definition. Default false.
	AllowReplaceDeleted *bool `koanf:"allow_replace_deleted" json:"allow_replace_deleted,omitempty"`

	// MaxConnections and MinConnections size the connection pool when the
	// pool section leaves them unset.
	MaxConnections *int `koanf:"max_connections" json:"max_connections,omitempty"`
	MinConnections *int `koanf:"min_connections" json:"min_connections,omitempty"`
}

// New returns a Config with default batch, retry and hybrid settings.
func New(name, property string, fn similarity.Function, indexType IndexType, dimensions, maxElements int) Config {
	return Config{
		IndexName:          name,
		EmbeddingProperty:  property,
		SimilarityFunction: fn,
		IndexType:          indexType,
		Dimensions:         dimensions,
		MaxElements:        maxElements,
		BatchSize:          DefaultBatchSize,
		MaxRetries:         DefaultMaxRetries,
		RetryDelay:         DefaultRetryDelay,
		HybridWeight:       DefaultHybridWeight,
	}
}

// EffectiveIndexType merges Advanced overrides into the configured variant.
func (c Config) EffectiveIndexType() IndexType {
	t := c.IndexType
	switch t.Kind {
	case KindHNSW:
		if c.Advanced.HNSW != nil {
			p := *c.Advanced.HNSW
			t.HNSW = &p
		}
	case KindIVF:
		if c.Advanced.IVF != nil {
			p := *c.Advanced.IVF
			t.IVF = &p
		}
	case KindFlat:
		if c.Advanced.Flat != nil {
			p := *c.Advanced.Flat
			t.Flat = &p
		}
	}
	return t
}

// Threads returns the configured ingestion parallelism, at least 1.
func (c Config) Threads() int {
	if c.Advanced.NumThreads != nil && *c.Advanced.NumThreads > 0 {
		return *c.Advanced.NumThreads
	}
	return 1
}

// Validate checks the configuration and returns the first violation as a
// *vecerr.FieldError naming the offending field. Checks run in a fixed
// order: index_name, embedding_property, dimensions, max_elements,
// batch_size, max_retries, advanced.max_connections, advanced.num_threads,
// then the remaining fields.
func (c Config) Validate() error {
	if c.IndexName == "" {
		return vecerr.Config("index_name", "must not be empty")
	}
	if !indexNamePattern.MatchString(c.IndexName) {
		return vecerr.Config("index_name", "%q may contain only letters, digits, '_' and '-'", c.IndexName)
	}
	if c.EmbeddingProperty == "" {
		return vecerr.Config("embedding_property", "must not be empty")
	}
	if !identifierPattern.MatchString(c.EmbeddingProperty) {
		return vecerr.Config("embedding_property", "%q is not a valid identifier", c.EmbeddingProperty)
	}
	if c.Dimensions <= 0 {
		return vecerr.Config("dimensions", "must be greater than 0, got %d", c.Dimensions)
	}
	if c.MaxElements <= 0 {
		return vecerr.Config("max_elements", "must be greater than 0, got %d", c.MaxElements)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return vecerr.Config("batch_size", "must be between 1 and %d, got %d", MaxBatchSize, c.BatchSize)
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetries {
		return vecerr.Config("max_retries", "must be between 0 and %d, got %d", MaxRetries, c.MaxRetries)
	}
	if n := c.Advanced.MaxConnections; n != nil && (*n < 1 || *n > MaxConns) {
		return vecerr.Config("advanced.max_connections", "must be between 1 and %d, got %d", MaxConns, *n)
	}
	if n := c.Advanced.NumThreads; n != nil && (*n < 1 || *n > MaxNumThreads) {
		return vecerr.Config("advanced.num_threads", "must be between 1 and %d, got %d", MaxNumThreads, *n)
	}
	if n := c.Advanced.MinConnections; n != nil {
		if *n < 0 {
			return vecerr.Config("advanced.min_connections", "must not be negative, got %d", *n)
		}
		if m := c.Advanced.MaxConnections; m != nil && *n > *m {
			return vecerr.Config("advanced.min_connections", "%d exceeds max_connections %d", *n, *m)
		}
	}
	if !c.SimilarityFunction.Valid() {
		return vecerr.Config("similarity_function", "unknown function %q", c.SimilarityFunction)
	}
	if err := c.EffectiveIndexType().validate(c.Dimensions); err != nil {
		return vecerr.Config("index_type", "%v", err)
	}
	if q := c.Advanced.Quantization; q != nil && (q.Bits <= 0 || q.Bits > 32) {
		return vecerr.Config("advanced.quantization.bits", "must be between 1 and 32, got %d", q.Bits)
	}
	if c.HybridWeight < 0 || c.HybridWeight > 1 {
		return vecerr.Config("hybrid_weight", "must be between 0 and 1, got %g", c.HybridWeight)
	}
	if c.RetryDelay < 0 {
		return vecerr.Config("retry_delay", "must not be negative, got %s", c.RetryDelay)
	}
	return nil
}
