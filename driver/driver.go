// Package driver defines the boundary between the mapping layer and the
// database client that executes statements against Cassandra. The mapping
// packages produce Statement values and consume Results; everything about
// connections, the wire protocol and retries lives behind the Client
// interface.
package driver

import (
	"context"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
)

// StatementKind tells the client how to run a statement and what shape of
// result to collect.
type StatementKind int

const (
	// KindWrite is an unconditional mutation; no rows are expected back.
	KindWrite StatementKind = iota
	// KindSelect is a read; all result rows are collected.
	KindSelect
	// KindConditional is a lightweight transaction; the result carries the
	// applied flag and, when not applied, the current row.
	KindConditional
)

// Statement is the builder output: CQL text plus the values bound to its
// placeholders. Values are always bound, never inlined into the text.
type Statement struct {
	Text     string
	Values   []interface{}
	Keyspace string
	Table    string
	Kind     StatementKind

	// Per-statement execution options. Nil/zero means use the client default.
	Consistency *gocql.Consistency
	RetryPolicy gocql.RetryPolicy
}

// Row is a single result row keyed by column name.
type Row map[string]interface{}

// Result is what comes back from executing a statement.
type Result struct {
	Rows []Row
	// Applied reports the outcome of a conditional write. It is true for
	// unconditional statements.
	Applied bool
}

// One returns the first row, or nil if the result is empty.
func (r *Result) One() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// PreparedStatement is an opaque reusable handle for a parsed statement,
// keyed by its CQL text.
type PreparedStatement interface {
	Text() string
}

// ColumnMeta describes one live column of a remote table.
type ColumnMeta struct {
	Name    string
	CQLType string
}

// Batch is a group of statements executed atomically by the store.
type Batch struct {
	Statements  []*Statement
	Consistency *gocql.Consistency
	RetryPolicy gocql.RetryPolicy
}

// Client is the external database client consumed by the mapping layer.
type Client interface {
	// Prepare parses the statement text once and returns a reusable handle.
	Prepare(ctx context.Context, text string) (PreparedStatement, error)

	// Execute binds stmt.Values to a prepared handle and runs it.
	Execute(ctx context.Context, ps PreparedStatement, stmt *Statement) (*Result, error)

	// ExecuteBatch runs all statements in the batch as one atomic unit.
	ExecuteBatch(ctx context.Context, batch *Batch) error

	// TableColumns reports the live columns of keyspace.table. ok is false
	// when the table does not exist.
	TableColumns(ctx context.Context, keyspace, table string) (cols []ColumnMeta, ok bool, err error)

	// ExecuteDDL runs a schema-altering statement.
	ExecuteDDL(ctx context.Context, text string) error
}
