package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

var errTxDone = errors.New("transaction already committed or rolled back")

type changeKey struct {
	table string
	id    string
}

// change tracks one record touched by a transaction: its state before the
// transaction and the state to write on commit.
type change struct {
	original store.Record
	existed  bool
	final    *store.Record // nil deletes the record
}

// Tx stages mutations in memory. Nothing reaches the server before Commit.
type Tx struct {
	ctx     context.Context
	conn    *Conn
	changes map[changeKey]*change
	order   []changeKey
	done    bool
}

var _ store.Tx = (*Tx)(nil)

func newTx(ctx context.Context, c *Conn) *Tx {
	return &Tx{ctx: ctx, conn: c, changes: make(map[changeKey]*change)}
}

// current returns the state of a record as seen by this transaction,
// fetching and snapshotting it on first touch.
func (t *Tx) current(ctx context.Context, table, id string) (*change, error) {
	if t.done {
		return nil, vecerr.Datastore("tx", errTxDone)
	}
	k := changeKey{table: table, id: id}
	if ch, ok := t.changes[k]; ok {
		return ch, nil
	}
	rec, ok, err := t.conn.Get(ctx, table, "", id)
	if err != nil {
		return nil, err
	}
	ch := &change{original: rec, existed: ok}
	if ok {
		snapshot := rec
		ch.final = &snapshot
	}
	t.changes[k] = ch
	t.order = append(t.order, k)
	return ch, nil
}

// Insert stages a new record. The id must not exist.
func (t *Tx) Insert(ctx context.Context, table, _ string, rec store.Record) error {
	ch, err := t.current(ctx, table, rec.ID)
	if err != nil {
		return err
	}
	if ch.final != nil {
		return fmt.Errorf("%w: %q in collection %q", vecerr.ErrDuplicateID, rec.ID, table)
	}
	ch.final = &rec
	return nil
}

// Update stages new metadata and, when given, a new vector.
func (t *Tx) Update(ctx context.Context, table, _ string, u store.Update) error {
	ch, err := t.current(ctx, table, u.ID)
	if err != nil {
		return err
	}
	if ch.final == nil {
		return &vecerr.MissingIDError{Table: table, ID: u.ID}
	}
	next := store.Record{ID: u.ID, Vector: ch.final.Vector, Metadata: u.Metadata}
	if u.Vector != nil {
		next.Vector = u.Vector
	}
	ch.final = &next
	return nil
}

// Delete stages a removal.
func (t *Tx) Delete(ctx context.Context, table, id string) error {
	ch, err := t.current(ctx, table, id)
	if err != nil {
		return err
	}
	if ch.final == nil {
		return &vecerr.MissingIDError{Table: table, ID: id}
	}
	ch.final = nil
	return nil
}

// step is one write request of a commit.
type step struct {
	table   string
	keys    []changeKey
	upserts []*qdrant.PointStruct
	deletes []*qdrant.PointId
}

// Commit writes the staged changes, one upsert and one delete request per
// collection. If a request fails, the requests that already succeeded are
// undone from the snapshots.
func (t *Tx) Commit() error {
	if t.done {
		return vecerr.Datastore("commit", errTxDone)
	}
	t.done = true

	steps, err := t.plan()
	if err != nil {
		return err
	}

	var applied []step
	for _, s := range steps {
		rctx, cancel := t.conn.store.requestContext(t.ctx)
		if len(s.upserts) > 0 {
			err = t.conn.upsert(rctx, s.table, s.upserts)
		} else {
			err = t.conn.delete(rctx, s.table, s.deletes)
		}
		cancel()
		if err != nil {
			if cerr := t.compensate(applied); cerr != nil {
				return errors.Join(err, cerr)
			}
			return err
		}
		applied = append(applied, s)
	}
	return nil
}

func (t *Tx) plan() ([]step, error) {
	var tables []string
	upserts := make(map[string]*step)
	deletes := make(map[string]*step)
	for _, k := range t.order {
		ch := t.changes[k]
		switch {
		case ch.final != nil:
			p, err := pointFromRecord(*ch.final)
			if err != nil {
				return nil, err
			}
			s, ok := upserts[k.table]
			if !ok {
				s = &step{table: k.table}
				upserts[k.table] = s
				if _, seen := deletes[k.table]; !seen {
					tables = append(tables, k.table)
				}
			}
			s.keys = append(s.keys, k)
			s.upserts = append(s.upserts, p)
		case ch.existed:
			s, ok := deletes[k.table]
			if !ok {
				s = &step{table: k.table}
				deletes[k.table] = s
				if _, seen := upserts[k.table]; !seen {
					tables = append(tables, k.table)
				}
			}
			s.keys = append(s.keys, k)
			s.deletes = append(s.deletes, pointID(k.id))
		}
	}

	var steps []step
	for _, table := range tables {
		if s, ok := upserts[table]; ok {
			steps = append(steps, *s)
		}
		if s, ok := deletes[table]; ok {
			steps = append(steps, *s)
		}
	}
	return steps, nil
}

// compensate restores the pre-transaction state of every record written by
// an applied step. It runs even if the transaction context has ended.
func (t *Tx) compensate(applied []step) error {
	if len(applied) == 0 {
		return nil
	}
	ctx := context.WithoutCancel(t.ctx)
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		s := applied[i]
		var restore []*qdrant.PointStruct
		var remove []*qdrant.PointId
		for _, k := range s.keys {
			ch := t.changes[k]
			if !ch.existed {
				remove = append(remove, pointID(k.id))
				continue
			}
			p, err := pointFromRecord(ch.original)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			restore = append(restore, p)
		}
		rctx, cancel := t.conn.store.requestContext(ctx)
		if len(restore) > 0 {
			if err := t.conn.upsert(rctx, s.table, restore); err != nil {
				errs = append(errs, err)
			}
		}
		if len(remove) > 0 {
			if err := t.conn.delete(rctx, s.table, remove); err != nil {
				errs = append(errs, err)
			}
		}
		cancel()
	}
	if len(errs) > 0 {
		t.conn.store.logger.Error("commit compensation failed; collection may hold partial writes",
			zap.Int("steps", len(applied)),
			zap.Error(errors.Join(errs...)),
		)
		return vecerr.Datastore("compensate", errors.Join(errs...))
	}
	t.conn.store.logger.Warn("commit failed; applied writes were restored",
		zap.Int("steps", len(applied)),
	)
	return nil
}

// Rollback discards staged changes. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	t.done = true
	t.changes = nil
	t.order = nil
	return nil
}
