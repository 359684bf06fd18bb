package vectorindex

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Operation names an index call, as reported to observers.
type Operation string

// Index operations.
const (
	OpTopN         Operation = "top_n"
	OpTopNIDs      Operation = "top_n_ids"
	OpHybridSearch Operation = "hybrid_search"
	OpCreate       Operation = "create_vector"
	OpRead         Operation = "read_vector"
	OpUpdate       Operation = "update_embedding"
	OpDelete       Operation = "delete_embedding"
	OpUpdateBatch  Operation = "update_batch"
	OpDeleteBatch  Operation = "delete_batch"
	OpAddDocuments Operation = "add_documents"
	OpEnsureIndex  Operation = "ensure_index"
)

// Observer receives lifecycle events from an Index. Implementations must
// be safe for concurrent use and must not block.
type Observer interface {
	// RequestIssued is called when an operation starts. The returned
	// context is used for the rest of the operation.
	RequestIssued(ctx context.Context, op Operation, table string) context.Context

	// RetryAttempted is called before a retry sleeps. attempt counts from 1.
	RetryAttempted(ctx context.Context, op Operation, attempt int, delay time.Duration, err error)

	// BatchRolledBack is called when a batch mutation was rolled back.
	BatchRolledBack(ctx context.Context, op Operation, table string, size int, err error)

	// OperationFinished is called once per operation with its outcome.
	OperationFinished(ctx context.Context, op Operation, table string, elapsed time.Duration, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RequestIssued(ctx context.Context, _ Operation, _ string) context.Context {
	return ctx
}
func (NopObserver) RetryAttempted(context.Context, Operation, int, time.Duration, error) {}
func (NopObserver) BatchRolledBack(context.Context, Operation, string, int, error)      {}
func (NopObserver) OperationFinished(context.Context, Operation, string, time.Duration, error) {
}

// LogObserver writes events to a zap logger. Successful operations are
// logged at debug level, failures at warn.
type LogObserver struct {
	Logger *zap.Logger
}

// NewLogObserver returns a LogObserver; a nil logger logs nothing.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) RequestIssued(ctx context.Context, op Operation, table string) context.Context {
	o.Logger.Debug("index request issued", o.fields(ctx, op, table)...)
	return ctx
}

func (o *LogObserver) RetryAttempted(ctx context.Context, op Operation, attempt int, delay time.Duration, err error) {
	o.Logger.Info("retrying index request", append(o.fields(ctx, op, ""),
		zap.Int("attempt", attempt),
		zap.Duration("backoff", delay),
		zap.Error(err),
	)...)
}

func (o *LogObserver) BatchRolledBack(ctx context.Context, op Operation, table string, size int, err error) {
	o.Logger.Warn("batch rolled back", append(o.fields(ctx, op, table),
		zap.Int("size", size),
		zap.Error(err),
	)...)
}

func (o *LogObserver) OperationFinished(ctx context.Context, op Operation, table string, elapsed time.Duration, err error) {
	fields := append(o.fields(ctx, op, table), zap.Duration("duration", elapsed))
	if err != nil {
		o.Logger.Warn("index operation failed",
			append(fields, zap.String("kind", string(vecerr.KindOf(err))), zap.Error(err))...)
		return
	}
	o.Logger.Debug("index operation finished", fields...)
}

// fields carries the request id and span from ctx alongside the operation.
func (o *LogObserver) fields(ctx context.Context, op Operation, table string) []zap.Field {
	fields := append(logging.ContextFields(ctx), zap.String("operation", string(op)))
	if table != "" {
		fields = append(fields, zap.String("table", table))
	}
	return fields
}

// multiObserver fans events out to several observers in order.
type multiObserver []Observer

// Observers combines observers into one. Nil entries are skipped.
func Observers(obs ...Observer) Observer {
	var out multiObserver
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiObserver) RequestIssued(ctx context.Context, op Operation, table string) context.Context {
	for _, o := range m {
		ctx = o.RequestIssued(ctx, op, table)
	}
	return ctx
}

func (m multiObserver) RetryAttempted(ctx context.Context, op Operation, attempt int, delay time.Duration, err error) {
	for _, o := range m {
		o.RetryAttempted(ctx, op, attempt, delay, err)
	}
}

func (m multiObserver) BatchRolledBack(ctx context.Context, op Operation, table string, size int, err error) {
	for _, o := range m {
		o.BatchRolledBack(ctx, op, table, size, err)
	}
}

func (m multiObserver) OperationFinished(ctx context.Context, op Operation, table string, elapsed time.Duration, err error) {
	for _, o := range m {
		o.OperationFinished(ctx, op, table, elapsed, err)
	}
}
