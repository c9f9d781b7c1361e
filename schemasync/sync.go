// Package schemasync reconciles remote table definitions with entity
// metadata. The policy is additive only: it creates missing tables, adds
// missing columns and secondary indexes, and never drops or retypes
// anything that already exists. Sync runs at most once per entity per
// process; a failure leaves the entity unsynced so the next operation
// retries.
package schemasync

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/internal/logger"
	"github.com/axonops/cqlmapper/meta"
)

// SyncError reports a failed DDL statement during schema sync.
type SyncError struct {
	Table string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("schema sync %s: %v", e.Table, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Synchronizer issues the DDL needed to make remote tables match entity
// metadata. Concurrent first calls for the same table share one in-flight
// sync; races across independent processes are tolerated by the store's
// idempotent IF NOT EXISTS DDL, not by this layer.
type Synchronizer struct {
	client driver.Client
	group  singleflight.Group
}

// New returns a Synchronizer backed by the given client.
func New(client driver.Client) *Synchronizer {
	return &Synchronizer{client: client}
}

// Sync ensures the remote schema is compatible with the entity metadata and
// marks the entity synced on success. Subsequent calls are no-ops.
func (s *Synchronizer) Sync(ctx context.Context, e *meta.Entity, keyspace string) error {
	if e.Synced() {
		return nil
	}

	key := qualify(keyspace, e.Table)
	_, err, _ := s.group.Do(key, func() (interface{}, error) {
		if e.Synced() {
			return nil, nil
		}
		if err := s.sync(ctx, e, keyspace); err != nil {
			return nil, &SyncError{Table: key, Err: err}
		}
		e.MarkSynced()
		logger.DebugfToFile("SchemaSync", "synced %s", key)
		return nil, nil
	})
	return err
}

func (s *Synchronizer) sync(ctx context.Context, e *meta.Entity, keyspace string) error {
	cols, ok, err := s.client.TableColumns(ctx, keyspace, e.Table)
	if err != nil {
		return err
	}

	if !ok {
		if err := s.client.ExecuteDDL(ctx, CreateTableCQL(e, keyspace)); err != nil {
			return err
		}
		return s.createIndexes(ctx, e, keyspace)
	}

	live := make(map[string]string, len(cols))
	for _, c := range cols {
		live[c.Name] = c.CQLType
	}
	for _, f := range e.Fields {
		liveType, exists := live[f.Column]
		if !exists {
			if err := s.client.ExecuteDDL(ctx, AddColumnCQL(e, keyspace, f)); err != nil {
				return err
			}
			continue
		}
		if !typesMatch(liveType, f.CQLType) {
			// Narrowing or retyping a live column is out of policy.
			logger.DebugfToFile("SchemaSync", "skipping non-additive change on %s.%s: %s -> %s",
				qualify(keyspace, e.Table), f.Column, liveType, f.CQLType)
		}
	}
	return s.createIndexes(ctx, e, keyspace)
}

func (s *Synchronizer) createIndexes(ctx context.Context, e *meta.Entity, keyspace string) error {
	for _, f := range e.Fields {
		if !f.Indexed || f.IsKey {
			continue
		}
		if err := s.client.ExecuteDDL(ctx, CreateIndexCQL(e, keyspace, f)); err != nil {
			return err
		}
	}
	return nil
}

// CreateTableCQL renders the table definition for an entity: one column per
// mapped field and the primary key clause from the key field.
func CreateTableCQL(e *meta.Entity, keyspace string) string {
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Column + " " + f.CQLType
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		qualify(keyspace, e.Table), strings.Join(cols, ", "), e.Key().Column)
}

// AddColumnCQL renders the additive column change for one field.
func AddColumnCQL(e *meta.Entity, keyspace string, f *meta.Field) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s",
		qualify(keyspace, e.Table), f.Column, f.CQLType)
}

// CreateIndexCQL renders the secondary index for one field.
func CreateIndexCQL(e *meta.Entity, keyspace string, f *meta.Field) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)",
		e.Table, f.Column, qualify(keyspace, e.Table), f.Column)
}

func qualify(keyspace, table string) string {
	if keyspace == "" {
		return table
	}
	return keyspace + "." + table
}

// typesMatch compares a live column type against the declared one,
// ignoring case and whitespace differences in collection definitions.
func typesMatch(live, declared string) bool {
	norm := func(s string) string {
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, " ", "")
		// varchar and text are the same type server-side
		s = strings.ReplaceAll(s, "varchar", "text")
		return s
	}
	return norm(live) == norm(declared)
}
