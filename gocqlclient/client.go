// Package gocqlclient implements driver.Client on top of the Apache
// Cassandra gocql driver. It is the only package that touches the wire:
// session setup, statement execution, CAS result interpretation, batches
// and live schema metadata all live here.
package gocqlclient

import (
	"context"
	"fmt"
	"time"

	gocql "github.com/apache/cassandra-gocql-driver/v2"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/internal/logger"
)

// Client is a gocql-backed driver.Client.
type Client struct {
	session     *gocql.Session
	consistency gocql.Consistency
}

// preparedStatement pins normalized statement text. gocql maintains its own
// per-node prepared cache keyed by text, so the handle carries no
// server-side state of its own.
type preparedStatement struct {
	text string
}

func (p *preparedStatement) Text() string { return p.text }

// NewClient connects to the cluster described by cfg and returns a client.
func NewClient(cfg *Config) (*Client, error) {
	cluster := gocql.NewCluster(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	cluster.Consistency = gocql.LocalOne

	if cfg.RequestTimeout > 0 {
		cluster.Timeout = time.Duration(cfg.RequestTimeout) * time.Second
	} else {
		cluster.Timeout = 10 * time.Second
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = time.Duration(cfg.ConnectTimeout) * time.Second
	} else {
		cluster.ConnectTimeout = 10 * time.Second
	}

	if cfg.Keyspace != "" {
		cluster.Keyspace = cfg.Keyspace
	}
	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	consistency := gocql.LocalOne
	if cfg.Consistency != "" {
		c, err := ParseConsistency(cfg.Consistency)
		if err != nil {
			return nil, err
		}
		consistency = c
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	logger.DebugfToFile("Client", "connected to %s:%d", cfg.Host, cfg.Port)

	return &Client{session: session, consistency: consistency}, nil
}

// WrapSession adapts an existing gocql session the application already
// owns. The caller keeps responsibility for closing it.
func WrapSession(session *gocql.Session) *Client {
	return &Client{session: session, consistency: gocql.LocalOne}
}

// Close shuts the underlying session down.
func (c *Client) Close() {
	c.session.Close()
}

// Prepare returns the reusable handle for the statement text.
func (c *Client) Prepare(_ context.Context, text string) (driver.PreparedStatement, error) {
	return &preparedStatement{text: text}, nil
}

// Execute binds the statement values and runs it, collecting the result
// shape its kind calls for.
func (c *Client) Execute(ctx context.Context, ps driver.PreparedStatement, stmt *driver.Statement) (*driver.Result, error) {
	q := c.query(ctx, ps.Text(), stmt.Values, stmt.Consistency, stmt.RetryPolicy)

	switch stmt.Kind {
	case driver.KindConditional:
		row := make(driver.Row)
		applied, err := q.MapScanCAS(row)
		if err != nil {
			return nil, err
		}
		res := &driver.Result{Applied: applied}
		if len(row) > 0 {
			res.Rows = []driver.Row{row}
		}
		return res, nil

	case driver.KindSelect:
		iter := q.Iter()
		var rows []driver.Row
		for {
			row := make(driver.Row)
			if !iter.MapScan(row) {
				break
			}
			rows = append(rows, row)
		}
		if err := iter.Close(); err != nil {
			return nil, err
		}
		return &driver.Result{Rows: rows, Applied: true}, nil

	default:
		if err := q.Exec(); err != nil {
			return nil, err
		}
		return &driver.Result{Applied: true}, nil
	}
}

// ExecuteBatch runs all statements as one logged batch.
func (c *Client) ExecuteBatch(ctx context.Context, batch *driver.Batch) error {
	b := c.session.Batch(gocql.LoggedBatch).WithContext(ctx)
	for _, stmt := range batch.Statements {
		b.Query(stmt.Text, stmt.Values...)
	}
	if batch.Consistency != nil {
		b.Consistency(*batch.Consistency)
	} else {
		b.Consistency(c.consistency)
	}
	if batch.RetryPolicy != nil {
		b.RetryPolicy(batch.RetryPolicy)
	}
	return b.Exec()
}

// TableColumns reports the live columns of keyspace.table from the
// cluster's schema metadata.
func (c *Client) TableColumns(_ context.Context, keyspace, table string) ([]driver.ColumnMeta, bool, error) {
	ksMeta, err := c.session.KeyspaceMetadata(keyspace)
	if err != nil {
		// gocql surfaces a missing keyspace as an error; that is a sync
		// failure, not an absent table.
		return nil, false, fmt.Errorf("failed to get keyspace metadata: %w", err)
	}
	tableMeta, ok := ksMeta.Tables[table]
	if !ok {
		return nil, false, nil
	}

	cols := make([]driver.ColumnMeta, 0, len(tableMeta.Columns))
	for name, colMeta := range tableMeta.Columns {
		cols = append(cols, driver.ColumnMeta{
			Name:    name,
			CQLType: formatTypeInfo(colMeta.Type),
		})
	}
	return cols, true, nil
}

// ExecuteDDL runs a schema-altering statement at the session default
// consistency.
func (c *Client) ExecuteDDL(ctx context.Context, text string) error {
	logger.DebugfToFile("Client", "DDL: %s", text)
	return c.session.Query(text).WithContext(ctx).Exec()
}

func (c *Client) query(ctx context.Context, text string, values []interface{}, consistency *gocql.Consistency, retry gocql.RetryPolicy) *gocql.Query {
	q := c.session.Query(text, values...).WithContext(ctx)
	if consistency != nil {
		q.Consistency(*consistency)
	} else {
		q.Consistency(c.consistency)
	}
	if retry != nil {
		q.RetryPolicy(retry)
	}
	return q
}

// formatTypeInfo renders gocql type metadata as a CQL type string.
func formatTypeInfo(typeInfo gocql.TypeInfo) string {
	if typeInfo == nil {
		return "unknown"
	}

	switch typeInfo.Type() {
	case gocql.TypeList, gocql.TypeSet, gocql.TypeMap:
		if collType, ok := typeInfo.(gocql.CollectionType); ok {
			switch collType.Type() {
			case gocql.TypeList:
				return fmt.Sprintf("list<%s>", formatTypeInfo(collType.Elem))
			case gocql.TypeSet:
				return fmt.Sprintf("set<%s>", formatTypeInfo(collType.Elem))
			case gocql.TypeMap:
				return fmt.Sprintf("map<%s, %s>", formatTypeInfo(collType.Key), formatTypeInfo(collType.Elem))
			}
		}
	}

	return typeName(typeInfo.Type())
}

// typeName converts gocql.Type to its CQL name.
func typeName(t gocql.Type) string {
	switch t {
	case gocql.TypeAscii:
		return "ascii"
	case gocql.TypeBigInt:
		return "bigint"
	case gocql.TypeBlob:
		return "blob"
	case gocql.TypeBoolean:
		return "boolean"
	case gocql.TypeCounter:
		return "counter"
	case gocql.TypeDecimal:
		return "decimal"
	case gocql.TypeDouble:
		return "double"
	case gocql.TypeFloat:
		return "float"
	case gocql.TypeInt:
		return "int"
	case gocql.TypeSmallInt:
		return "smallint"
	case gocql.TypeTinyInt:
		return "tinyint"
	case gocql.TypeText:
		return "text"
	case gocql.TypeTimestamp:
		return "timestamp"
	case gocql.TypeUUID:
		return "uuid"
	case gocql.TypeVarchar:
		return "varchar"
	case gocql.TypeVarint:
		return "varint"
	case gocql.TypeTimeUUID:
		return "timeuuid"
	case gocql.TypeInet:
		return "inet"
	case gocql.TypeDate:
		return "date"
	case gocql.TypeTime:
		return "time"
	case gocql.TypeDuration:
		return "duration"
	default:
		return "unknown"
	}
}
