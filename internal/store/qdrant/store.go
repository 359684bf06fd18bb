// Package qdrant implements store.Conn on top of Qdrant's gRPC API.
//
// Record ids are arbitrary strings while Qdrant point ids must be UUIDs or
// integers, so every id is mapped to a name-based UUID (version 5) and the
// original id is kept in the payload. Metadata lives under its own payload
// key.
//
// Qdrant has no multi-request transactions. Tx stages mutations, checks
// that targeted ids exist when the mutation is staged, and applies them on
// Commit; if a later request fails, the already-applied ones are undone
// from snapshots taken at staging time.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// client is the subset of *qdrant.Client used by the store.
type client interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Get(ctx context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

var _ client = (*qdrant.Client)(nil)

// idNamespace seeds the name-based point ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("vectorindex.record"))

// pointID maps a record id onto its Qdrant point id.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(idNamespace, []byte(id)).String())
}

// Store owns the gRPC client. The client multiplexes requests over its own
// connections, so Dial hands out lightweight logical connections.
type Store struct {
	cfg    Config
	client client
	logger *zap.Logger
}

// Open connects to Qdrant and verifies the server answers a health check
// within DialTimeout.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if cfg.APIKey != nil && cfg.APIKey.IsSet() {
		qcfg.APIKey = cfg.APIKey.Reveal()
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	c, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, vecerr.Connection("qdrant connect", err)
	}

	s := newStore(cfg, c, logger)
	hctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if _, err := c.HealthCheck(hctx); err != nil {
		_ = c.Close()
		return nil, vecerr.Connection("qdrant health check", err)
	}

	logger.Info("connected to qdrant",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Bool("tls", cfg.UseTLS),
		logging.Credential("api_key", cfg.APIKey),
	)
	return s, nil
}

func newStore(cfg Config, c client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cfg: cfg, client: c, logger: logger.Named("qdrant")}
}

// Dial returns a logical connection sharing the store's client.
func (s *Store) Dial(ctx context.Context) (store.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, vecerr.Connection("dial", err)
	}
	return &Conn{store: s}, nil
}

// Close shuts down the gRPC client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close qdrant client: %w", err)
	}
	return nil
}

// requestContext bounds one request by RequestTimeout.
func (s *Store) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
