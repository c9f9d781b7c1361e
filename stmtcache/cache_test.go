package stmtcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/cqlmapper/driver"
)

type fakePrepared struct{ text string }

func (p *fakePrepared) Text() string { return p.text }

// countingClient counts Prepare calls; every other Client method panics
// since the cache must never reach them.
type countingClient struct {
	prepares atomic.Int64
	err      error
}

func (c *countingClient) Prepare(_ context.Context, text string) (driver.PreparedStatement, error) {
	c.prepares.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &fakePrepared{text: text}, nil
}

func (c *countingClient) Execute(context.Context, driver.PreparedStatement, *driver.Statement) (*driver.Result, error) {
	panic("unexpected Execute")
}

func (c *countingClient) ExecuteBatch(context.Context, *driver.Batch) error {
	panic("unexpected ExecuteBatch")
}

func (c *countingClient) TableColumns(context.Context, string, string) ([]driver.ColumnMeta, bool, error) {
	panic("unexpected TableColumns")
}

func (c *countingClient) ExecuteDDL(context.Context, string) error {
	panic("unexpected ExecuteDDL")
}

func TestGetOrPrepare(t *testing.T) {
	cache, err := New(10)
	require.NoError(t, err)
	client := &countingClient{}

	ps1, err := cache.GetOrPrepare(context.Background(), client, "SELECT a FROM t WHERE id = ?")
	require.NoError(t, err)
	ps2, err := cache.GetOrPrepare(context.Background(), client, "SELECT a FROM t WHERE id = ?")
	require.NoError(t, err)

	assert.Same(t, ps1, ps2)
	assert.EqualValues(t, 1, client.prepares.Load())
	assert.Equal(t, 1, cache.Len())

	_, err = cache.GetOrPrepare(context.Background(), client, "SELECT b FROM t WHERE id = ?")
	require.NoError(t, err)
	assert.EqualValues(t, 2, client.prepares.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestGetOrPrepareConcurrent(t *testing.T) {
	cache, err := New(10)
	require.NoError(t, err)
	client := &countingClient{}

	const n = 32
	results := make([]driver.PreparedStatement, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ps, err := cache.GetOrPrepare(context.Background(), client, "INSERT INTO t (a) VALUES (?)")
			assert.NoError(t, err)
			results[i] = ps
		}(i)
	}
	wg.Wait()

	// concurrent first calls share one in-flight preparation
	assert.EqualValues(t, 1, client.prepares.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestGetOrPrepareErrorNotCached(t *testing.T) {
	cache, err := New(10)
	require.NoError(t, err)
	client := &countingClient{err: errors.New("server unavailable")}

	_, err = cache.GetOrPrepare(context.Background(), client, "SELECT a FROM t")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	// the next attempt retries the preparation
	client.err = nil
	ps, err := cache.GetOrPrepare(context.Background(), client, "SELECT a FROM t")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t", ps.Text())
	assert.EqualValues(t, 2, client.prepares.Load())
}

func TestEviction(t *testing.T) {
	cache, err := New(2)
	require.NoError(t, err)
	client := &countingClient{}

	for i := 0; i < 5; i++ {
		_, err := cache.GetOrPrepare(context.Background(), client, fmt.Sprintf("SELECT %d FROM t", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len())

	// an evicted entry is re-prepared on the next request
	before := client.prepares.Load()
	_, err = cache.GetOrPrepare(context.Background(), client, "SELECT 0 FROM t")
	require.NoError(t, err)
	assert.Equal(t, before+1, client.prepares.Load())
}

func TestPurge(t *testing.T) {
	cache, err := New(10)
	require.NoError(t, err)
	client := &countingClient{}

	_, err = cache.GetOrPrepare(context.Background(), client, "SELECT a FROM t")
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestDefaultCache(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	assert.Same(t, Default(), Default())

	replacement, err := New(5)
	require.NoError(t, err)
	SetDefault(replacement)
	assert.Same(t, replacement, Default())
}
