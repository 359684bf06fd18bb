package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

var filterColumns = filter.Columns{ID: `"id"`, Metadata: `"metadata"`}

// execer is satisfied by both *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is one physical SQLite connection.
type Conn struct {
	conn   *sql.Conn
	logger *zap.Logger
}

var _ store.Conn = (*Conn)(nil)

// EnsureTable creates the record table and registers its definition. A
// table that already exists with different dimensions is a dimension
// mismatch.
func (c *Conn) EnsureTable(ctx context.Context, spec store.TableSpec) error {
	if spec.Field == "id" || spec.Field == "metadata" {
		return vecerr.Config("embedding_property", "%q collides with a reserved column", spec.Field)
	}

	var dims int
	err := c.conn.QueryRowContext(ctx,
		`SELECT dimensions FROM _vector_indexes WHERE name = ?`, spec.Name).Scan(&dims)
	switch {
	case err == nil:
		if dims != spec.Dimensions {
			return &vecerr.DimensionError{Expected: dims, Actual: spec.Dimensions}
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return classify("ensure table", err)
	}

	definition, err := json.Marshal(spec)
	if err != nil {
		return &vecerr.SerializationError{ID: spec.Name, Err: err}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id"       TEXT PRIMARY KEY,
	%s         BLOB NOT NULL,
	"metadata" TEXT NOT NULL DEFAULT '{}'
)`, quoteIdent(spec.Name), quoteIdent(spec.Field))
	if _, err := c.conn.ExecContext(ctx, ddl); err != nil {
		return classify("ensure table", err)
	}
	_, err = c.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO _vector_indexes (name, field, dimensions, metric, index_type, definition)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		spec.Name, spec.Field, spec.Dimensions, string(spec.Metric), spec.IndexType.String(), string(definition))
	if err != nil {
		return classify("ensure table", err)
	}
	return nil
}

// Search ranks rows by similarity inside SQLite. The filter is compiled
// into the WHERE clause, so limit applies after filtering.
func (c *Conn) Search(ctx context.Context, q store.Query) ([]store.Hit, error) {
	where, filterArgs, err := filter.CompileSQL(q.Filter, filterColumns)
	if err != nil {
		return nil, vecerr.Config("filter", "%v", err)
	}
	vec := encodeVector(q.Vector)
	table, field := quoteIdent(q.Table), quoteIdent(q.Field)

	metaCol := `NULL`
	if q.WithMetadata {
		metaCol = `"metadata"`
	}

	var stmt string
	var args []any
	if q.LexicalQuery == "" {
		stmt = fmt.Sprintf(`SELECT "id", %s, vector_similarity(?, %s, ?) AS score
FROM %s
WHERE %s
ORDER BY score DESC, "id" ASC
LIMIT ?`, metaCol, field, table, where)
		args = append(args, string(q.Metric), vec)
		args = append(args, filterArgs...)
		args = append(args, q.Limit)
	} else {
		stmt = fmt.Sprintf(`SELECT id, meta, (? * lex + ? * vec) AS score FROM (
	SELECT "id" AS id, %s AS meta,
		lexical_score("metadata", ?) AS lex,
		vector_similarity(?, %s, ?) AS vec
	FROM %s
	WHERE %s
)
WHERE lex > 0
ORDER BY score DESC, id ASC
LIMIT ?`, metaCol, field, table, where)
		args = append(args, q.LexicalWeight, 1-q.LexicalWeight, q.LexicalQuery, string(q.Metric), vec)
		args = append(args, filterArgs...)
		args = append(args, q.Limit)
	}

	rows, err := c.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify("search", err)
	}
	defer rows.Close()

	var hits []store.Hit
	for rows.Next() {
		var (
			h    store.Hit
			meta sql.NullString
		)
		if err := rows.Scan(&h.ID, &meta, &h.Score); err != nil {
			return nil, classify("search", err)
		}
		if meta.Valid {
			h.Metadata = json.RawMessage(meta.String)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("search", err)
	}
	return hits, nil
}

// Get reads one record.
func (c *Conn) Get(ctx context.Context, table, field, id string) (store.Record, bool, error) {
	return getRecord(ctx, c.conn, table, field, id)
}

// Insert writes one record outside a transaction.
func (c *Conn) Insert(ctx context.Context, table, field string, rec store.Record) error {
	return insertRecord(ctx, c.conn, table, field, rec)
}

// Begin starts an immediate transaction.
func (c *Conn) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &Tx{tx: tx}, nil
}

// Ping checks the connection.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close releases the physical connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Tx is a SQLite transaction.
type Tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) Insert(ctx context.Context, table, field string, rec store.Record) error {
	return insertRecord(ctx, t.tx, table, field, rec)
}

// Update replaces the metadata and, if given, the vector of an existing
// record.
func (t *Tx) Update(ctx context.Context, table, field string, u store.Update) error {
	meta, err := marshalMetadata(u.ID, u.Metadata)
	if err != nil {
		return err
	}
	var res sql.Result
	if u.Vector != nil {
		res, err = t.tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET "metadata" = ?, %s = ? WHERE "id" = ?`, quoteIdent(table), quoteIdent(field)),
			meta, encodeVector(u.Vector), u.ID)
	} else {
		res, err = t.tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET "metadata" = ? WHERE "id" = ?`, quoteIdent(table)),
			meta, u.ID)
	}
	if err != nil {
		return classify("update", err)
	}
	return requireAffected(res, table, u.ID)
}

// Delete removes a record.
func (t *Tx) Delete(ctx context.Context, table, id string) error {
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE "id" = ?`, quoteIdent(table)), id)
	if err != nil {
		return classify("delete", err)
	}
	return requireAffected(res, table, id)
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify("rollback", err)
	}
	return nil
}

func getRecord(ctx context.Context, q execer, table, field, id string) (store.Record, bool, error) {
	var (
		rec  store.Record
		blob []byte
		meta string
	)
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT "id", %s, "metadata" FROM %s WHERE "id" = ?`, quoteIdent(field), quoteIdent(table)),
		id).Scan(&rec.ID, &blob, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, classify("get", err)
	}
	if rec.Vector, err = decodeVector(blob); err != nil {
		return store.Record{}, false, &vecerr.SerializationError{ID: id, Err: err}
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return store.Record{}, false, &vecerr.SerializationError{ID: id, Err: err}
	}
	return rec, true, nil
}

func insertRecord(ctx context.Context, q execer, table, field string, rec store.Record) error {
	meta, err := marshalMetadata(rec.ID, rec.Metadata)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s ("id", %s, "metadata") VALUES (?, ?, ?)`, quoteIdent(table), quoteIdent(field)),
		rec.ID, encodeVector(rec.Vector), meta)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: %q in table %q", vecerr.ErrDuplicateID, rec.ID, table)
		}
		return classify("insert", err)
	}
	return nil
}

func marshalMetadata(id string, m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", &vecerr.SerializationError{ID: id, Err: err}
	}
	return string(b), nil
}

func requireAffected(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return &vecerr.MissingIDError{Table: table, ID: id}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// classify maps driver errors onto the error taxonomy. Lock contention is
// transient; a dead connection is a connection error.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return vecerr.Transient(op, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return vecerr.Connection(op, err)
		}
		return vecerr.Datastore(op, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return vecerr.Connection(op, err)
	}
	return vecerr.Datastore(op, err)
}
