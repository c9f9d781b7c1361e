// Package mapper is the public façade of the mapping layer. A Session
// wraps a driver.Client and orchestrates, for every operation:
// sync-schema-if-needed, build statement, resolve prepared handle through
// the statement cache, execute, interpret the result.
//
//	session := mapper.NewSession("ks", client)
//	ok, err := session.Save(ctx, &user, nil)
//	found, err := session.Get(ctx, &user, user.ID, nil)
package mapper

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/axonops/cqlmapper/builder"
	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/internal/logger"
	"github.com/axonops/cqlmapper/meta"
	"github.com/axonops/cqlmapper/schemasync"
	"github.com/axonops/cqlmapper/stmtcache"
)

// Session maps entities onto tables through an external database client.
// It is safe for concurrent use; create one per keyspace or share one
// process-wide.
type Session struct {
	client    driver.Client
	keyspace  string
	registry  *meta.Registry
	cache     *stmtcache.Cache
	syncer    *schemasync.Synchronizer
	doNotSync atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry substitutes an isolated metadata registry, e.g. in tests.
func WithRegistry(r *meta.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithCache substitutes a private prepared-statement cache instead of the
// process-wide one.
func WithCache(c *stmtcache.Cache) Option {
	return func(s *Session) { s.cache = c }
}

// WithoutSync disables schema synchronization for this session. The caller
// is then responsible for the remote schema matching the metadata.
func WithoutSync() Option {
	return func(s *Session) { s.doNotSync.Store(true) }
}

// NewSession returns a mapping session over the given keyspace and client.
func NewSession(keyspace string, client driver.Client, opts ...Option) *Session {
	s := &Session{
		client:   client,
		keyspace: keyspace,
		registry: meta.Default(),
		syncer:   schemasync.New(client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DoNotSync reports whether schema sync is disabled for this session.
func (s *Session) DoNotSync() bool { return s.doNotSync.Load() }

// SetDoNotSync enables or disables schema sync for this session.
func (s *Session) SetDoNotSync(disabled bool) { s.doNotSync.Store(disabled) }

// Get loads the row with the given id into entity, which must be a pointer
// to a mapped struct. It returns false when no such row exists.
func (s *Session) Get(ctx context.Context, entity, id interface{}, opts *driver.ReadOptions) (bool, error) {
	e, err := s.prepareOp(ctx, entity)
	if err != nil {
		return false, err
	}
	stmt := builder.Select(e, id, s.keyspaceFor(e), opts)
	res, err := s.execute(ctx, stmt)
	if err != nil {
		return false, err
	}
	row := res.One()
	if row == nil {
		return false, nil
	}
	return true, populate(e, entity, row)
}

// GetByQuery runs a raw CQL query and fills dest, a pointer to a slice of
// mapped structs (*[]T or *[]*T), with one instance per row.
func (s *Session) GetByQuery(ctx context.Context, dest interface{}, query string, values ...interface{}) error {
	e, elemPtr, err := s.destMeta(dest)
	if err != nil {
		return err
	}
	if err := s.maybeSync(ctx, e); err != nil {
		return err
	}
	stmt := &driver.Statement{
		Text:     query,
		Values:   values,
		Keyspace: s.keyspaceFor(e),
		Table:    e.Table,
		Kind:     driver.KindSelect,
	}
	res, err := s.execute(ctx, stmt)
	if err != nil {
		return err
	}
	return fillSlice(e, dest, elemPtr, res.Rows)
}

// Save persists the entity. For entities with a version field the write is
// conditional: ok is false, with a nil error, when the store did not apply
// it because the version no longer matched. On an applied conditional
// update the in-memory version field is advanced to the stored value.
func (s *Session) Save(ctx context.Context, entity interface{}, opts *driver.WriteOptions) (bool, error) {
	e, err := s.prepareOp(ctx, entity)
	if err != nil {
		return false, err
	}
	stmt, err := builder.Save(e, entity, s.keyspaceFor(e), opts)
	if err != nil {
		return false, err
	}
	res, err := s.execute(ctx, stmt)
	if err != nil {
		return false, err
	}
	if e.HasVersion() {
		if !res.Applied {
			logger.DebugfToFile("Session", "optimistic lock miss on %s", e.Table)
			return false, nil
		}
		ver := e.Version()
		if cur := reflect.ValueOf(ver.ValueOf(entity)).Int(); cur != 0 {
			ver.SetValue(entity, cur+1)
		}
	}
	return true, nil
}

// SaveAsync is the non-blocking form of Save. The Future resolves with the
// raw execution result; for versioned entities the caller inspects
// Result.Applied.
func (s *Session) SaveAsync(ctx context.Context, entity interface{}, opts *driver.WriteOptions) *driver.Future {
	e, err := s.prepareOp(ctx, entity)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	stmt, err := builder.Save(e, entity, s.keyspaceFor(e), opts)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	return s.executeAsync(ctx, stmt)
}

// Delete removes the row the entity maps to, using its primary key value.
func (s *Session) Delete(ctx context.Context, entity interface{}, opts *driver.WriteOptions) error {
	e, err := s.prepareOp(ctx, entity)
	if err != nil {
		return err
	}
	stmt := builder.Delete(e, e.KeyValueOf(entity), s.keyspaceFor(e), opts)
	_, err = s.execute(ctx, stmt)
	return err
}

// DeleteAsync is the non-blocking form of Delete.
func (s *Session) DeleteAsync(ctx context.Context, entity interface{}, opts *driver.WriteOptions) *driver.Future {
	e, err := s.prepareOp(ctx, entity)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	return s.executeAsync(ctx, builder.Delete(e, e.KeyValueOf(entity), s.keyspaceFor(e), opts))
}

// DeleteByID removes the row with the given id. prototype identifies the
// entity type, e.g. &User{}.
func (s *Session) DeleteByID(ctx context.Context, prototype, id interface{}, opts *driver.WriteOptions) error {
	e, err := s.prepareOp(ctx, prototype)
	if err != nil {
		return err
	}
	_, err = s.execute(ctx, builder.Delete(e, id, s.keyspaceFor(e), opts))
	return err
}

// DeleteByIDAsync is the non-blocking form of DeleteByID.
func (s *Session) DeleteByIDAsync(ctx context.Context, prototype, id interface{}, opts *driver.WriteOptions) *driver.Future {
	e, err := s.prepareOp(ctx, prototype)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	return s.executeAsync(ctx, builder.Delete(e, id, s.keyspaceFor(e), opts))
}

// Append adds item(s) to the list, set or map property of the row with the
// given id.
func (s *Session) Append(ctx context.Context, prototype, id interface{}, property string, item interface{}, opts *driver.WriteOptions) error {
	return s.mutate(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.Append(e, id, property, item, s.keyspaceFor(e), opts)
	})
}

// AppendAsync is the non-blocking form of Append.
func (s *Session) AppendAsync(ctx context.Context, prototype, id interface{}, property string, item interface{}, opts *driver.WriteOptions) *driver.Future {
	return s.mutateAsync(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.Append(e, id, property, item, s.keyspaceFor(e), opts)
	})
}

// Prepend adds item(s) at the beginning of the list property.
func (s *Session) Prepend(ctx context.Context, prototype, id interface{}, property string, item interface{}, opts *driver.WriteOptions) error {
	return s.mutate(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.Prepend(e, id, property, item, s.keyspaceFor(e), opts)
	})
}

// PrependAsync is the non-blocking form of Prepend.
func (s *Session) PrependAsync(ctx context.Context, prototype, id interface{}, property string, item interface{}, opts *driver.WriteOptions) *driver.Future {
	return s.mutateAsync(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.Prepend(e, id, property, item, s.keyspaceFor(e), opts)
	})
}

// ReplaceAt places item at position idx of the list property.
func (s *Session) ReplaceAt(ctx context.Context, prototype, id interface{}, property string, item interface{}, idx int, opts *driver.WriteOptions) error {
	return s.mutate(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.ReplaceAt(e, id, property, item, idx, s.keyspaceFor(e), opts)
	})
}

// ReplaceAtAsync is the non-blocking form of ReplaceAt.
func (s *Session) ReplaceAtAsync(ctx context.Context, prototype, id interface{}, property string, item interface{}, idx int, opts *driver.WriteOptions) *driver.Future {
	return s.mutateAsync(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.ReplaceAt(e, id, property, item, idx, s.keyspaceFor(e), opts)
	})
}

// Remove discards item(s) from the collection property: values from lists
// and sets, a key from maps.
func (s *Session) Remove(ctx context.Context, prototype, id interface{}, property string, item interface{}, opts *driver.WriteOptions) error {
	return s.mutate(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.Remove(e, id, property, item, s.keyspaceFor(e), opts)
	})
}

// RemoveAsync is the non-blocking form of Remove.
func (s *Session) RemoveAsync(ctx context.Context, prototype, id interface{}, property string, item interface{}, opts *driver.WriteOptions) *driver.Future {
	return s.mutateAsync(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.Remove(e, id, property, item, s.keyspaceFor(e), opts)
	})
}

// UpdateValue sets a single property of the row with the given id. A nil
// value deletes the column rather than writing an empty value.
func (s *Session) UpdateValue(ctx context.Context, prototype, id interface{}, property string, value interface{}, opts *driver.WriteOptions) error {
	return s.mutate(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.UpdateValue(e, id, property, value, s.keyspaceFor(e), opts)
	})
}

// UpdateValueAsync is the non-blocking form of UpdateValue.
func (s *Session) UpdateValueAsync(ctx context.Context, prototype, id interface{}, property string, value interface{}, opts *driver.WriteOptions) *driver.Future {
	return s.mutateAsync(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.UpdateValue(e, id, property, value, s.keyspaceFor(e), opts)
	})
}

// DeleteValue removes the value of a single property.
func (s *Session) DeleteValue(ctx context.Context, prototype, id interface{}, property string, opts *driver.WriteOptions) error {
	return s.mutate(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.DeleteColumn(e, id, property, s.keyspaceFor(e), opts)
	})
}

// DeleteValueAsync is the non-blocking form of DeleteValue.
func (s *Session) DeleteValueAsync(ctx context.Context, prototype, id interface{}, property string, opts *driver.WriteOptions) *driver.Future {
	return s.mutateAsync(ctx, prototype, func(e *meta.Entity) (*driver.Statement, error) {
		return builder.DeleteColumn(e, id, property, s.keyspaceFor(e), opts)
	})
}

// mutate runs the maybe-sync → build → execute pipeline for one mutation.
func (s *Session) mutate(ctx context.Context, prototype interface{}, build func(*meta.Entity) (*driver.Statement, error)) error {
	e, err := s.prepareOp(ctx, prototype)
	if err != nil {
		return err
	}
	stmt, err := build(e)
	if err != nil {
		return err
	}
	_, err = s.execute(ctx, stmt)
	return err
}

func (s *Session) mutateAsync(ctx context.Context, prototype interface{}, build func(*meta.Entity) (*driver.Statement, error)) *driver.Future {
	e, err := s.prepareOp(ctx, prototype)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	stmt, err := build(e)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	return s.executeAsync(ctx, stmt)
}

// prepareOp resolves metadata and runs schema sync if needed. Local
// validation failures surface here, before any statement is submitted.
func (s *Session) prepareOp(ctx context.Context, entity interface{}) (*meta.Entity, error) {
	e, err := s.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	if err := s.maybeSync(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Session) maybeSync(ctx context.Context, e *meta.Entity) error {
	if s.doNotSync.Load() {
		return nil
	}
	return s.syncer.Sync(ctx, e, s.keyspaceFor(e))
}

func (s *Session) keyspaceFor(e *meta.Entity) string {
	if e.KeyspaceOverride != "" {
		return e.KeyspaceOverride
	}
	return s.keyspace
}

func (s *Session) stmtCache() *stmtcache.Cache {
	if s.cache != nil {
		return s.cache
	}
	return stmtcache.Default()
}

func (s *Session) execute(ctx context.Context, stmt *driver.Statement) (*driver.Result, error) {
	ps, err := s.stmtCache().GetOrPrepare(ctx, s.client, stmt.Text)
	if err != nil {
		return nil, err
	}
	return s.client.Execute(ctx, ps, stmt)
}

func (s *Session) executeAsync(ctx context.Context, stmt *driver.Statement) *driver.Future {
	return driver.Go(func() (*driver.Result, error) {
		return s.execute(ctx, stmt)
	})
}
