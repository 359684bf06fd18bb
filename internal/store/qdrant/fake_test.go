package qdrant

import (
	"context"
	"sort"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
)

type fakeCollection struct {
	size     uint64
	distance qdrant.Distance
	create   *qdrant.CreateCollection
	points   map[string]*qdrant.RetrievedPoint
}

// fakeClient is an in-memory stand-in for *qdrant.Client. Query ignores
// filters; the translated filter is kept in lastQuery for inspection.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	lastQuery   *qdrant.QueryPoints

	// failUpsert, when set, decides whether an upsert to a collection fails.
	failUpsert func(collection string) error
	upserts    int
	deletes    int
	healthErr  error
}

var _ client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{collections: make(map[string]*fakeCollection)}
}

func (f *fakeClient) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &qdrant.HealthCheckReply{Title: "fake", Version: "1.16.2"}, nil
}

func (f *fakeClient) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeClient) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[name]
	if !ok {
		return nil, status.Error(codes.NotFound, "collection not found")
	}
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: c.size, Distance: c.distance}),
			},
		},
	}, nil
}

func (f *fakeClient) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[req.CollectionName]; ok {
		return status.Error(codes.AlreadyExists, "collection exists")
	}
	params := req.GetVectorsConfig().GetParams()
	f.collections[req.CollectionName] = &fakeCollection{
		size:     params.GetSize(),
		distance: params.GetDistance(),
		create:   req,
		points:   make(map[string]*qdrant.RetrievedPoint),
	}
	return nil
}

func (f *fakeClient) collection(name string) (*fakeCollection, error) {
	c, ok := f.collections[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "collection %s not found", name)
	}
	return c, nil
}

func (f *fakeClient) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = req
	c, err := f.collection(req.CollectionName)
	if err != nil {
		return nil, err
	}
	query := req.GetQuery().GetNearest().GetDense().GetData()

	var out []*qdrant.ScoredPoint
	for _, p := range c.points {
		v := vectorOf(p.GetVectors())
		var s float64
		switch c.distance {
		case qdrant.Distance_Euclid:
			sim, _ := similarity.Score(similarity.Euclidean, query, v)
			s = 1/sim - 1
		case qdrant.Distance_Dot:
			s, _ = similarity.Score(similarity.DotProduct, query, v)
		default:
			s, _ = similarity.Score(similarity.Cosine, query, v)
		}
		out = append(out, &qdrant.ScoredPoint{
			Id:      p.Id,
			Payload: p.Payload,
			Score:   float32(s),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c.distance == qdrant.Distance_Euclid {
			return out[i].Score < out[j].Score
		}
		return out[i].Score > out[j].Score
	})
	if n := int(req.GetLimit()); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeClient) Get(_ context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.collection(req.CollectionName)
	if err != nil {
		return nil, err
	}
	var out []*qdrant.RetrievedPoint
	for _, id := range req.Ids {
		if p, ok := c.points[id.GetUuid()]; ok {
			out = append(out, proto.Clone(p).(*qdrant.RetrievedPoint))
		}
	}
	return out, nil
}

func (f *fakeClient) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		if err := f.failUpsert(req.CollectionName); err != nil {
			return nil, err
		}
	}
	c, err := f.collection(req.CollectionName)
	if err != nil {
		return nil, err
	}
	f.upserts++
	for _, p := range req.Points {
		c.points[p.Id.GetUuid()] = &qdrant.RetrievedPoint{
			Id:      p.Id,
			Payload: p.Payload,
			Vectors: &qdrant.VectorsOutput{
				VectorsOptions: &qdrant.VectorsOutput_Vector{
					Vector: &qdrant.VectorOutput{
						Vector: &qdrant.VectorOutput_Dense{
							Dense: &qdrant.DenseVector{Data: p.GetVectors().GetVector().GetDense().GetData()},
						},
					},
				},
			},
		}
	}
	return &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}, nil
}

func (f *fakeClient) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.collection(req.CollectionName)
	if err != nil {
		return nil, err
	}
	f.deletes++
	for _, id := range req.GetPoints().GetPoints().GetIds() {
		delete(c.points, id.GetUuid())
	}
	return &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}, nil
}

func (f *fakeClient) Close() error { return nil }
