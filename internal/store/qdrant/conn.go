package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/vectorindex/internal/indexconfig"
	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Conn is a logical connection. Qdrant stores a single unnamed vector per
// point, so the field argument of the store methods is only recorded in
// collection metadata.
type Conn struct {
	store  *Store
	closed atomic.Bool
}

var _ store.Conn = (*Conn)(nil)

// distance maps a similarity function onto a Qdrant distance.
func distance(fn similarity.Function) (qdrant.Distance, error) {
	switch fn {
	case similarity.Cosine:
		return qdrant.Distance_Cosine, nil
	case similarity.Euclidean:
		return qdrant.Distance_Euclid, nil
	case similarity.DotProduct:
		return qdrant.Distance_Dot, nil
	case similarity.Manhattan:
		return qdrant.Distance_Manhattan, nil
	}
	return 0, vecerr.Config("similarity_function", "%q is not supported by qdrant", fn)
}

// score converts a Qdrant score into a higher-is-better similarity. Qdrant
// reports raw distances for Euclid and Manhattan.
func score(fn similarity.Function, s float32) float64 {
	switch fn {
	case similarity.Euclidean, similarity.Manhattan:
		return 1 / (1 + float64(s))
	}
	return float64(s)
}

// EnsureTable creates the collection when missing. An existing collection
// with a different vector size is a dimension mismatch.
func (c *Conn) EnsureTable(ctx context.Context, spec store.TableSpec) error {
	if err := c.checkOpen("ensure table"); err != nil {
		return err
	}
	dist, err := distance(spec.Metric)
	if err != nil {
		return err
	}
	req := &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(spec.Dimensions),
			Distance: dist,
		}),
		Metadata: qdrant.NewValueMap(map[string]any{
			"embedding_property":  spec.Field,
			"similarity_function": string(spec.Metric),
			"index_type":          spec.IndexType.String(),
			"max_elements":        int64(spec.MaxElements),
		}),
	}

	switch spec.IndexType.Kind {
	case indexconfig.KindIVF:
		return vecerr.Config("index_type", "ivf is not supported by qdrant")
	case indexconfig.KindHNSW:
		p := spec.IndexType.HNSWParams()
		req.HnswConfig = &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(p.MaxConnections)),
			EfConstruct: qdrant.PtrOf(uint64(p.EfConstruction)),
		}
	default:
		// m=0 disables graph construction; every query scans.
		req.HnswConfig = &qdrant.HnswConfigDiff{M: qdrant.PtrOf(uint64(0))}
	}
	if n := spec.Advanced.NumThreads; n != nil && *n > 0 {
		req.HnswConfig.MaxIndexingThreads = qdrant.PtrOf(uint64(*n))
	}
	if q := spec.Advanced.Quantization; q != nil {
		switch q.Bits {
		case 8:
			req.QuantizationConfig = qdrant.NewQuantizationScalar(&qdrant.ScalarQuantization{
				Type: qdrant.QuantizationType_Int8,
			})
		case 1:
			req.QuantizationConfig = qdrant.NewQuantizationBinary(&qdrant.BinaryQuantization{})
		default:
			return vecerr.Config("advanced.quantization.bits", "qdrant supports 1 or 8 bits, got %d", q.Bits)
		}
	}

	rctx, cancel := c.store.requestContext(ctx)
	defer cancel()

	exists, err := c.store.client.CollectionExists(rctx, spec.Name)
	if err != nil {
		return classify("ensure table", err)
	}
	if exists {
		info, err := c.store.client.GetCollectionInfo(rctx, spec.Name)
		if err != nil {
			return classify("ensure table", err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if int(size) != spec.Dimensions {
			return &vecerr.DimensionError{Expected: int(size), Actual: spec.Dimensions}
		}
		return nil
	}

	if err := c.store.client.CreateCollection(rctx, req); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return classify("ensure table", err)
	}
	c.store.logger.Info("created collection",
		zap.String("collection", spec.Name),
		zap.Int("dimensions", spec.Dimensions),
		zap.String("distance", dist.String()),
		zap.String("index_type", spec.IndexType.String()),
	)
	return nil
}

// searchParams selects exact or HNSW search for a query.
func searchParams(q store.Query) *qdrant.SearchParams {
	if q.Mode == store.ModeExact || !q.IndexType.Approximate() {
		return &qdrant.SearchParams{Exact: qdrant.PtrOf(true)}
	}
	if p := q.IndexType.HNSWParams(); p.EfSearch > 0 {
		return &qdrant.SearchParams{HnswEf: qdrant.PtrOf(uint64(p.EfSearch))}
	}
	return nil
}

// Search runs a query against the collection. In hybrid mode the top
// HybridCandidates vector hits are rescored with the lexical score of
// their metadata text and those without a lexical match are dropped.
func (c *Conn) Search(ctx context.Context, q store.Query) ([]store.Hit, error) {
	if err := c.checkOpen("search"); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		return nil, nil
	}
	if _, err := distance(q.Metric); err != nil {
		return nil, err
	}
	flt, err := convertFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	hybrid := q.LexicalQuery != ""
	limit := q.Limit
	payload := qdrant.NewWithPayloadInclude(payloadIDKey)
	if hybrid || q.WithMetadata {
		payload = qdrant.NewWithPayload(true)
	}
	if hybrid && limit < c.store.cfg.HybridCandidates {
		limit = c.store.cfg.HybridCandidates
	}

	rctx, cancel := c.store.requestContext(ctx)
	defer cancel()
	points, err := c.store.client.Query(rctx, &qdrant.QueryPoints{
		CollectionName: q.Table,
		Query:          qdrant.NewQuery(q.Vector...),
		Filter:         flt,
		Params:         searchParams(q),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    payload,
	})
	if err != nil {
		return nil, classify("search", err)
	}

	hits := make([]store.Hit, 0, len(points))
	for _, p := range points {
		id, meta, err := decodePayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		h := store.Hit{ID: id, Score: score(q.Metric, p.GetScore())}
		if hybrid {
			lex := similarity.Lexical(similarity.MetadataText(meta), q.LexicalQuery)
			if lex <= 0 {
				continue
			}
			h.Score = similarity.Hybrid(lex, h.Score, q.LexicalWeight)
		}
		if q.WithMetadata {
			if meta == nil {
				meta = map[string]any{}
			}
			raw, err := json.Marshal(meta)
			if err != nil {
				return nil, &vecerr.SerializationError{ID: id, Err: err}
			}
			h.Metadata = raw
		}
		hits = append(hits, h)
	}

	// Qdrant does not order equal scores deterministically.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// Get reads one record with its vector.
func (c *Conn) Get(ctx context.Context, table, _ string, id string) (store.Record, bool, error) {
	if err := c.checkOpen("get"); err != nil {
		return store.Record{}, false, err
	}
	rctx, cancel := c.store.requestContext(ctx)
	defer cancel()
	return c.get(rctx, table, id)
}

func (c *Conn) get(ctx context.Context, table, id string) (store.Record, bool, error) {
	points, err := c.store.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: table,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return store.Record{}, false, classify("get", err)
	}
	if len(points) == 0 {
		return store.Record{}, false, nil
	}
	rec, err := recordFromPoint(points[0])
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

// Insert writes one record. Qdrant upserts overwrite, so the id is checked
// first; a concurrent writer can still race this check.
func (c *Conn) Insert(ctx context.Context, table, _ string, rec store.Record) error {
	if err := c.checkOpen("insert"); err != nil {
		return err
	}
	rctx, cancel := c.store.requestContext(ctx)
	defer cancel()

	_, exists, err := c.get(rctx, table, rec.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q in collection %q", vecerr.ErrDuplicateID, rec.ID, table)
	}
	point, err := pointFromRecord(rec)
	if err != nil {
		return err
	}
	return c.upsert(rctx, table, []*qdrant.PointStruct{point})
}

func (c *Conn) upsert(ctx context.Context, table string, points []*qdrant.PointStruct) error {
	_, err := c.store.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: table,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return classify("upsert", err)
	}
	return nil
}

func (c *Conn) delete(ctx context.Context, table string, ids []*qdrant.PointId) error {
	_, err := c.store.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: table,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(ids),
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

// Begin starts a staged transaction bound to ctx.
func (c *Conn) Begin(ctx context.Context) (store.Tx, error) {
	if err := c.checkOpen("begin"); err != nil {
		return nil, err
	}
	return newTx(ctx, c), nil
}

// Ping runs a server health check.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.checkOpen("ping"); err != nil {
		return err
	}
	rctx, cancel := c.store.requestContext(ctx)
	defer cancel()
	if _, err := c.store.client.HealthCheck(rctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close marks the logical connection closed. The gRPC client is owned by
// the Store.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

// classify maps gRPC failures onto the error taxonomy. Unavailable means
// the server could not be reached; the other transient codes are marked
// retryable.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return vecerr.Transient(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return vecerr.Datastore(op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable:
		return vecerr.Connection(op, err)
	case codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return vecerr.Transient(op, err)
	}
	return vecerr.Datastore(op, err)
}

// errConnClosed is returned by every method after Close.
var errConnClosed = errors.New("connection closed")

func (c *Conn) checkOpen(op string) error {
	if c.closed.Load() {
		return vecerr.Connection(op, errConnClosed)
	}
	return nil
}
