// Package store defines the capability a vector index needs from its
// backing database: a connection that can run similarity queries with a
// pushed-down predicate, plus transactions for all-or-nothing mutation.
//
// Backends live in subpackages (sqlite, qdrant). Connections are not safe
// for concurrent use; callers lease them from a pool.Pool.
package store

import (
	"context"
	"encoding/json"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/indexconfig"
	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
)

// Record is one stored row.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Update replaces the metadata of a record and, when Vector is non-nil,
// its embedding.
type Update struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// TableSpec describes a table or collection to create.
type TableSpec struct {
	Name        string
	Field       string
	Dimensions  int
	Metric      similarity.Function
	IndexType   indexconfig.IndexType
	MaxElements int
	Advanced    indexconfig.Advanced
}

// SearchMode selects how a query trades recall for speed.
type SearchMode int

const (
	// ModeExact scans every candidate.
	ModeExact SearchMode = iota
	// ModeApproximate uses the index structure when the backend has one.
	ModeApproximate
)

// Query is a similarity request.
type Query struct {
	Table  string
	Field  string
	Vector []float32
	Metric similarity.Function
	Mode   SearchMode

	// IndexType carries strategy parameters, such as the HNSW ef, for
	// backends that honour them.
	IndexType indexconfig.IndexType

	// Filter is evaluated by the store before ranking.
	Filter *filter.Expression

	// LexicalQuery switches the query to hybrid mode: only rows whose
	// metadata text shares a token with it qualify, and the score becomes
	// LexicalWeight*lexical + (1-LexicalWeight)*vector.
	LexicalQuery  string
	LexicalWeight float64

	Limit int

	// WithMetadata requests the raw metadata payload in each Hit.
	WithMetadata bool
}

// Hit is one ranked row. Hits are ordered by Score descending, then ID
// ascending.
type Hit struct {
	ID       string
	Score    float64
	Metadata json.RawMessage
}

// Conn is a single logical connection to a store.
type Conn interface {
	// EnsureTable creates the table if missing. It is idempotent.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// Search runs a similarity query. A missing table is a datastore error.
	Search(ctx context.Context, q Query) ([]Hit, error)

	// Get fetches one record; ok is false when the id is absent.
	Get(ctx context.Context, table, field, id string) (rec Record, ok bool, err error)

	// Insert writes one record; an existing id fails with
	// vecerr.ErrDuplicateID.
	Insert(ctx context.Context, table, field string, rec Record) error

	// Begin starts a transaction bound to ctx.
	Begin(ctx context.Context) (Tx, error)

	// Ping checks that the connection is usable.
	Ping(ctx context.Context) error

	Close() error
}

// Tx groups mutations that commit or roll back together. Update and Delete
// report a missing id with *vecerr.MissingIDError.
type Tx interface {
	Insert(ctx context.Context, table, field string, rec Record) error
	Update(ctx context.Context, table, field string, u Update) error
	Delete(ctx context.Context, table, id string) error
	Commit() error
	Rollback() error
}
