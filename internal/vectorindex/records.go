package vectorindex

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vectorindex/internal/embeddings"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// ContentKey is the metadata key AddDocuments stores document text under.
const ContentKey = "content"

// Document is a text to embed and store.
type Document struct {
	// ID is generated when empty.
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateVector inserts a record into the default table. An existing id
// fails with vecerr.ErrDuplicateID; records are never overwritten.
func (ix *Index) CreateVector(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	return ix.run(ctx, OpCreate, ix.table, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		if err := ix.checkVector(vector); err != nil {
			return err
		}
		rec := store.Record{ID: id, Vector: vector, Metadata: metadata}
		return ix.retry(ctx, OpCreate, func(ctx context.Context) error {
			return ix.withConn(ctx, func(c store.Conn) error {
				return c.Insert(ctx, ix.table, ix.cfg.EmbeddingProperty, rec)
			})
		})
	})
}

// ReadVector returns a record of the default table, or nil when the id does
// not exist.
func (ix *Index) ReadVector(ctx context.Context, id string) (*store.Record, error) {
	var out *store.Record
	err := ix.run(ctx, OpRead, ix.table, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		return ix.retry(ctx, OpRead, func(ctx context.Context) error {
			return ix.withConn(ctx, func(c store.Conn) error {
				rec, ok, err := c.Get(ctx, ix.table, ix.cfg.EmbeddingProperty, id)
				if err != nil {
					return err
				}
				if ok {
					out = &rec
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEmbedding replaces the metadata of a record and, when vector is
// non-nil, its embedding. A nil vector keeps the stored one; an empty
// non-nil vector is invalid. A missing record fails with
// *vecerr.MissingIDError.
func (ix *Index) UpdateEmbedding(ctx context.Context, id, table string, metadata map[string]any, vector []float32) error {
	return ix.run(ctx, OpUpdate, table, func(ctx context.Context) error {
		u := store.Update{ID: id, Vector: vector, Metadata: metadata}
		if err := ix.checkUpdate(u); err != nil {
			return err
		}
		if err := validateTable(table); err != nil {
			return err
		}
		return ix.inTx(ctx, OpUpdate, func(ctx context.Context, tx store.Tx) error {
			return tx.Update(ctx, table, ix.cfg.EmbeddingProperty, u)
		})
	})
}

// DeleteEmbedding removes a record. A missing record fails with
// *vecerr.MissingIDError.
func (ix *Index) DeleteEmbedding(ctx context.Context, id, table string) error {
	return ix.run(ctx, OpDelete, table, func(ctx context.Context) error {
		if err := validateID(id); err != nil {
			return err
		}
		if err := validateTable(table); err != nil {
			return err
		}
		return ix.inTx(ctx, OpDelete, func(ctx context.Context, tx store.Tx) error {
			return tx.Delete(ctx, table, id)
		})
	})
}

// UpdateBatch applies updates in one transaction. Every update is
// validated before the store is touched; if any record is missing nothing
// is changed.
func (ix *Index) UpdateBatch(ctx context.Context, updates []store.Update, table string) error {
	return ix.run(ctx, OpUpdateBatch, table, func(ctx context.Context) error {
		if len(updates) == 0 {
			return vecerr.Invalid("updates", "batch is empty")
		}
		if err := validateTable(table); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(updates))
		for _, u := range updates {
			if err := ix.checkUpdate(u); err != nil {
				return err
			}
			if _, dup := seen[u.ID]; dup {
				return vecerr.Invalid("updates", "id %q appears more than once", u.ID)
			}
			seen[u.ID] = struct{}{}
		}
		return ix.batch(ctx, OpUpdateBatch, table, len(updates), func(ctx context.Context, tx store.Tx) error {
			for _, u := range updates {
				if err := tx.Update(ctx, table, ix.cfg.EmbeddingProperty, u); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// DeleteBatch removes ids in one transaction. If any id is missing nothing
// is deleted.
func (ix *Index) DeleteBatch(ctx context.Context, ids []string, table string) error {
	return ix.run(ctx, OpDeleteBatch, table, func(ctx context.Context) error {
		if len(ids) == 0 {
			return vecerr.Invalid("ids", "batch is empty")
		}
		if err := validateTable(table); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if err := validateID(id); err != nil {
				return err
			}
			if _, dup := seen[id]; dup {
				return vecerr.Invalid("ids", "id %q appears more than once", id)
			}
			seen[id] = struct{}{}
		}
		return ix.batch(ctx, OpDeleteBatch, table, len(ids), func(ctx context.Context, tx store.Tx) error {
			for _, id := range ids {
				if err := tx.Delete(ctx, table, id); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// AddDocuments embeds docs in chunks of Config.BatchSize, at most
// Config.Threads chunks at a time, and inserts them in one transaction.
// The content is stored in the metadata under ContentKey unless the
// document metadata already sets it. It returns the record ids in input
// order.
func (ix *Index) AddDocuments(ctx context.Context, table string, docs []Document) ([]string, error) {
	var ids []string
	err := ix.run(ctx, OpAddDocuments, table, func(ctx context.Context) error {
		if len(docs) == 0 {
			return vecerr.Invalid("documents", "batch is empty")
		}
		if err := validateTable(table); err != nil {
			return err
		}
		ids = make([]string, len(docs))
		seen := make(map[string]struct{}, len(docs))
		for i, d := range docs {
			if strings.TrimSpace(d.Content) == "" {
				return vecerr.Invalid("documents", "document %d has no content", i)
			}
			id := d.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, dup := seen[id]; dup {
				return vecerr.Invalid("documents", "id %q appears more than once", id)
			}
			seen[id] = struct{}{}
			ids[i] = id
		}

		vectors, err := ix.embedDocuments(ctx, docs)
		if err != nil {
			return err
		}

		return ix.batch(ctx, OpAddDocuments, table, len(docs), func(ctx context.Context, tx store.Tx) error {
			for i, d := range docs {
				meta := make(map[string]any, len(d.Metadata)+1)
				for k, v := range d.Metadata {
					meta[k] = v
				}
				if _, ok := meta[ContentKey]; !ok {
					meta[ContentKey] = d.Content
				}
				rec := store.Record{ID: ids[i], Vector: vectors[i], Metadata: meta}
				if err := tx.Insert(ctx, table, ix.cfg.EmbeddingProperty, rec); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (ix *Index) embedDocuments(ctx context.Context, docs []Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Threads())
	for start := 0; start < len(docs); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = docs[start+i].Content
			}
			var chunk [][]float32
			err := ix.retry(gctx, OpAddDocuments, func(ctx context.Context) error {
				var err error
				chunk, err = embeddings.EmbedTexts(ctx, ix.model, texts)
				return err
			})
			if err != nil {
				return err
			}
			if len(chunk) != len(texts) {
				return vecerr.Connection("embed", errors.New("model returned a short batch"))
			}
			for i, v := range chunk {
				if err := ix.checkVector(v); err != nil {
					return err
				}
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (ix *Index) checkUpdate(u store.Update) error {
	if err := validateID(u.ID); err != nil {
		return err
	}
	if u.Vector != nil {
		return ix.checkVector(u.Vector)
	}
	return nil
}

// inTx runs fn in a transaction on a leased connection, retrying the
// whole transaction on retryable failures.
func (ix *Index) inTx(ctx context.Context, op Operation, fn func(ctx context.Context, tx store.Tx) error) error {
	return ix.retry(ctx, op, func(ctx context.Context) error {
		return ix.withConn(ctx, func(c store.Conn) error {
			tx, err := c.Begin(ctx)
			if err != nil {
				return err
			}
			if err := fn(ctx, tx); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					ix.logger.Warn("rollback failed", zap.String("operation", string(op)), zap.Error(rerr))
				}
				return err
			}
			return tx.Commit()
		})
	})
}

// batch is inTx for multi-record mutations; failures are reported to the
// observer as rollbacks.
func (ix *Index) batch(ctx context.Context, op Operation, table string, size int, fn func(ctx context.Context, tx store.Tx) error) error {
	err := ix.inTx(ctx, op, fn)
	if err != nil {
		ix.observer.BatchRolledBack(ctx, op, table, size, err)
	}
	return err
}
