package mapper

import (
	"context"

	"github.com/axonops/cqlmapper/builder"
	"github.com/axonops/cqlmapper/driver"
)

// Batch accumulates saves and deletes for atomic joint execution. Shared
// options apply to the whole unit; the store applies or fails the batch as
// one. Statement building is deferred to Execute so the whole batch shares
// one sync pass per entity type.
type Batch struct {
	s       *Session
	pending []func(ctx context.Context) (*driver.Statement, error)
	opts    *driver.BatchOptions
}

// WithBatch returns an empty batch accumulator bound to this session.
func (s *Session) WithBatch() *Batch {
	return &Batch{s: s}
}

// Save adds the entity save to the batch. Versioned entities keep their
// conditional write semantics inside the batch.
func (b *Batch) Save(entity interface{}) *Batch {
	return b.SaveWithOptions(entity, nil)
}

// SaveWithOptions adds the entity save with per-statement write options.
func (b *Batch) SaveWithOptions(entity interface{}, opts *driver.WriteOptions) *Batch {
	b.pending = append(b.pending, func(ctx context.Context) (*driver.Statement, error) {
		e, err := b.s.prepareOp(ctx, entity)
		if err != nil {
			return nil, err
		}
		return builder.Save(e, entity, b.s.keyspaceFor(e), opts)
	})
	return b
}

// Delete adds the entity delete to the batch.
func (b *Batch) Delete(entity interface{}) *Batch {
	b.pending = append(b.pending, func(ctx context.Context) (*driver.Statement, error) {
		e, err := b.s.prepareOp(ctx, entity)
		if err != nil {
			return nil, err
		}
		return builder.Delete(e, e.KeyValueOf(entity), b.s.keyspaceFor(e), nil), nil
	})
	return b
}

// DeleteByID adds a delete keyed by id for the prototype's entity type.
func (b *Batch) DeleteByID(prototype, id interface{}) *Batch {
	b.pending = append(b.pending, func(ctx context.Context) (*driver.Statement, error) {
		e, err := b.s.prepareOp(ctx, prototype)
		if err != nil {
			return nil, err
		}
		return builder.Delete(e, id, b.s.keyspaceFor(e), nil), nil
	})
	return b
}

// WithOptions sets consistency and retry policy for the whole batch.
func (b *Batch) WithOptions(opts *driver.BatchOptions) *Batch {
	b.opts = opts
	return b
}

// Execute builds all accumulated statements and runs them as one atomic
// unit. A build failure aborts before anything is submitted.
func (b *Batch) Execute(ctx context.Context) error {
	batch, err := b.build(ctx)
	if err != nil {
		return err
	}
	return b.s.client.ExecuteBatch(ctx, batch)
}

// ExecuteAsync is the non-blocking form of Execute.
func (b *Batch) ExecuteAsync(ctx context.Context) *driver.Future {
	batch, err := b.build(ctx)
	if err != nil {
		return driver.Resolved(nil, err)
	}
	return driver.Go(func() (*driver.Result, error) {
		return nil, b.s.client.ExecuteBatch(ctx, batch)
	})
}

func (b *Batch) build(ctx context.Context) (*driver.Batch, error) {
	batch := &driver.Batch{}
	if b.opts != nil {
		batch.Consistency = b.opts.Consistency
		batch.RetryPolicy = b.opts.RetryPolicy
	}
	for _, step := range b.pending {
		stmt, err := step(ctx)
		if err != nil {
			return nil, err
		}
		batch.Statements = append(batch.Statements, stmt)
	}
	return batch, nil
}
