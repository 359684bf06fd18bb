package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/embeddings"
	"github.com/fyrsmithlabs/vectorindex/internal/indexconfig"
	"github.com/fyrsmithlabs/vectorindex/internal/pool"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// MaxVectorDimensions is the longest vector any operation accepts.
const MaxVectorDimensions = 65536

// maxRetryDelay caps the exponential backoff.
const maxRetryDelay = 10 * time.Second

var tablePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// reservedPrefixes are table names used by the stores themselves.
var reservedPrefixes = []string{"_vector_", "sqlite_"}

// Index runs searches and mutations against one store through a
// connection pool. It is safe for concurrent use.
type Index struct {
	model    embeddings.Model
	cfg      indexconfig.Config
	pool     *pool.Pool[store.Conn]
	table    string
	observer Observer
	logger   *zap.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Index.
type Option func(*Index)

// WithTable sets the table used by CreateVector and ReadVector. Defaults
// to the index name.
func WithTable(table string) Option {
	return func(ix *Index) { ix.table = table }
}

// WithObserver sets the event observer. Combine several with Observers.
func WithObserver(o Observer) Option {
	return func(ix *Index) {
		if o != nil {
			ix.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New validates cfg and checks that the model produces vectors of
// cfg.Dimensions.
func New(model embeddings.Model, cfg indexconfig.Config, p *pool.Pool[store.Conn], opts ...Option) (*Index, error) {
	if model == nil {
		return nil, vecerr.Config("embedding_model", "model is required")
	}
	if p == nil {
		return nil, vecerr.Config("pool", "connection pool is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d := model.Dimensions(); d != cfg.Dimensions {
		return nil, &vecerr.DimensionError{Expected: cfg.Dimensions, Actual: d}
	}

	ix := &Index{
		model:    model,
		cfg:      cfg,
		pool:     p,
		table:    cfg.IndexName,
		observer: NopObserver{},
		logger:   zap.NewNop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if err := validateTable(ix.table); err != nil {
		return nil, vecerr.Config("table", "%v", err)
	}
	ix.logger = ix.logger.Named("vectorindex").With(zap.String("index", cfg.IndexName))
	return ix, nil
}

// Config returns the index configuration.
func (ix *Index) Config() indexconfig.Config { return ix.cfg }

// Table returns the default table.
func (ix *Index) Table() string { return ix.table }

// EnsureIndex creates table with the configured metric and index type.
// Calling it for an existing table with the same dimensions is a no-op.
func (ix *Index) EnsureIndex(ctx context.Context, table string) error {
	return ix.run(ctx, OpEnsureIndex, table, func(ctx context.Context) error {
		if err := validateTable(table); err != nil {
			return err
		}
		spec := store.TableSpec{
			Name:        table,
			Field:       ix.cfg.EmbeddingProperty,
			Dimensions:  ix.cfg.Dimensions,
			Metric:      ix.cfg.SimilarityFunction,
			IndexType:   ix.cfg.EffectiveIndexType(),
			MaxElements: ix.cfg.MaxElements,
			Advanced:    ix.cfg.Advanced,
		}
		return ix.retry(ctx, OpEnsureIndex, func(ctx context.Context) error {
			return ix.withConn(ctx, func(c store.Conn) error {
				return c.EnsureTable(ctx, spec)
			})
		})
	})
}

// Ping leases a connection and checks that the store answers. It is not
// retried.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.withConn(ctx, func(c store.Conn) error {
		return c.Ping(ctx)
	})
}

// run reports op to the observer around fn.
func (ix *Index) run(ctx context.Context, op Operation, table string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx = ix.observer.RequestIssued(ctx, op, table)
	err := fn(ctx)
	ix.observer.OperationFinished(ctx, op, table, time.Since(start), err)
	return err
}

// retry calls fn until it succeeds, fails with a non-retryable error or
// the retry budget is spent.
func (ix *Index) retry(ctx context.Context, op Operation, fn func(ctx context.Context) error) error {
	delay := ix.cfg.RetryDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !vecerr.Retryable(err) || attempt >= ix.cfg.MaxRetries {
			if err != nil && attempt > 0 {
				return fmt.Errorf("after %d retries: %w", attempt, err)
			}
			return err
		}
		ix.observer.RetryAttempted(ctx, op, attempt+1, delay, err)
		if serr := ix.sleep(ctx, delay); serr != nil {
			return errors.Join(err, serr)
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// withConn leases a connection for fn. A connection that failed with a
// connection error is discarded instead of returned to the pool.
func (ix *Index) withConn(ctx context.Context, fn func(store.Conn) error) error {
	lease, err := ix.pool.Get(ctx)
	if err != nil {
		return err
	}
	err = fn(lease.Conn())
	if errors.Is(err, vecerr.ErrConnection) {
		ix.pool.Discard(lease)
		return err
	}
	if perr := ix.pool.Put(lease); perr != nil {
		ix.logger.Debug("returning connection", zap.Error(perr))
	}
	return err
}

// embed returns the embedding of text, checked against the configured
// dimensions.
func (ix *Index) embed(ctx context.Context, op Operation, text string) ([]float32, error) {
	var vec []float32
	err := ix.retry(ctx, op, func(ctx context.Context) error {
		var err error
		vec, err = ix.model.EmbedText(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := ix.checkVector(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// checkVector validates a caller or model supplied vector.
func (ix *Index) checkVector(v []float32) error {
	if len(v) == 0 {
		return vecerr.Invalid("vector", "must not be empty")
	}
	if len(v) > MaxVectorDimensions {
		return vecerr.Invalid("vector", "has %d dimensions, the maximum is %d", len(v), MaxVectorDimensions)
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return vecerr.Invalid("vector", "element %d is not finite", i)
		}
	}
	if len(v) != ix.cfg.Dimensions {
		return &vecerr.DimensionError{Expected: ix.cfg.Dimensions, Actual: len(v)}
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return vecerr.Invalid("id", "must not be empty")
	}
	return nil
}

func validateTable(table string) error {
	if table == "" {
		return vecerr.Invalid("table", "must not be empty")
	}
	if !tablePattern.MatchString(table) {
		return vecerr.Invalid("table", "%q may contain only letters, digits, '_' and '-'", table)
	}
	lower := strings.ToLower(table)
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(lower, p) {
			return vecerr.Invalid("table", "%q uses the reserved prefix %q", table, p)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
