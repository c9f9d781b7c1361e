package schemasync

import (
	"context"
	"errors"
	"sync"
	"testing"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/meta"
)

type device struct {
	ID       gocql.UUID `cql:"id,key"`
	Name     string     `cql:"name,index"`
	Location string     `cql:"location"`
	Tags     []string   `cql:"tags,set"`
}

// fakeClient serves canned table metadata and records every DDL statement.
type fakeClient struct {
	mu     sync.Mutex
	tables map[string][]driver.ColumnMeta // "ks.table" -> columns
	ddl    []string
	ddlErr error
}

func (c *fakeClient) Prepare(_ context.Context, text string) (driver.PreparedStatement, error) {
	panic("unexpected Prepare")
}

func (c *fakeClient) Execute(context.Context, driver.PreparedStatement, *driver.Statement) (*driver.Result, error) {
	panic("unexpected Execute")
}

func (c *fakeClient) ExecuteBatch(context.Context, *driver.Batch) error {
	panic("unexpected ExecuteBatch")
}

func (c *fakeClient) TableColumns(_ context.Context, keyspace, table string) ([]driver.ColumnMeta, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cols, ok := c.tables[keyspace+"."+table]
	return cols, ok, nil
}

func (c *fakeClient) ExecuteDDL(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ddlErr != nil {
		return c.ddlErr
	}
	c.ddl = append(c.ddl, text)
	return nil
}

func (c *fakeClient) statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ddl...)
}

func deviceMeta(t *testing.T) *meta.Entity {
	t.Helper()
	e, err := meta.NewRegistry().Get(&device{})
	require.NoError(t, err)
	return e
}

func TestSyncCreatesMissingTable(t *testing.T) {
	e := deviceMeta(t)
	client := &fakeClient{tables: map[string][]driver.ColumnMeta{}}
	syncer := New(client)

	require.NoError(t, syncer.Sync(context.Background(), e, "ks"))
	assert.True(t, e.Synced())

	ddl := client.statements()
	require.Len(t, ddl, 2)
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS ks.device (id uuid, name text, location text, tags set<text>, PRIMARY KEY (id))",
		ddl[0])
	assert.Equal(t,
		"CREATE INDEX IF NOT EXISTS device_name_idx ON ks.device (name)",
		ddl[1])
}

func TestSyncAddsMissingColumns(t *testing.T) {
	e := deviceMeta(t)
	client := &fakeClient{tables: map[string][]driver.ColumnMeta{
		"ks.device": {
			{Name: "id", CQLType: "uuid"},
			{Name: "name", CQLType: "text"},
		},
	}}
	syncer := New(client)

	require.NoError(t, syncer.Sync(context.Background(), e, "ks"))

	ddl := client.statements()
	require.Len(t, ddl, 3)
	assert.Equal(t, "ALTER TABLE ks.device ADD location text", ddl[0])
	assert.Equal(t, "ALTER TABLE ks.device ADD tags set<text>", ddl[1])
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS device_name_idx ON ks.device (name)", ddl[2])
}

func TestSyncIgnoresNonAdditiveChanges(t *testing.T) {
	e := deviceMeta(t)
	client := &fakeClient{tables: map[string][]driver.ColumnMeta{
		"ks.device": {
			{Name: "id", CQLType: "uuid"},
			{Name: "name", CQLType: "text"},
			{Name: "location", CQLType: "int"}, // retyping is out of policy
			{Name: "tags", CQLType: "set<text>"},
		},
	}}
	syncer := New(client)

	require.NoError(t, syncer.Sync(context.Background(), e, "ks"))

	// only the index, no ALTER for the mismatched column
	ddl := client.statements()
	require.Len(t, ddl, 1)
	assert.Contains(t, ddl[0], "CREATE INDEX")
}

func TestSyncRunsOnce(t *testing.T) {
	e := deviceMeta(t)
	client := &fakeClient{tables: map[string][]driver.ColumnMeta{}}
	syncer := New(client)

	require.NoError(t, syncer.Sync(context.Background(), e, "ks"))
	first := len(client.statements())

	require.NoError(t, syncer.Sync(context.Background(), e, "ks"))
	assert.Equal(t, first, len(client.statements()), "second sync must issue no DDL")
}

func TestSyncConcurrent(t *testing.T) {
	e := deviceMeta(t)
	client := &fakeClient{tables: map[string][]driver.ColumnMeta{}}
	syncer := New(client)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, syncer.Sync(context.Background(), e, "ks"))
		}()
	}
	wg.Wait()

	assert.Len(t, client.statements(), 2, "concurrent first syncs share one pass")
}

func TestSyncFailureRetries(t *testing.T) {
	e := deviceMeta(t)
	client := &fakeClient{tables: map[string][]driver.ColumnMeta{}, ddlErr: errors.New("timeout")}
	syncer := New(client)

	err := syncer.Sync(context.Background(), e, "ks")
	require.Error(t, err)
	var sErr *SyncError
	assert.ErrorAs(t, err, &sErr)
	assert.Equal(t, "ks.device", sErr.Table)
	assert.False(t, e.Synced(), "a failed sync must leave the entity unsynced")

	// the failure clears, the next operation retries the full sync
	client.ddlErr = nil
	require.NoError(t, syncer.Sync(context.Background(), e, "ks"))
	assert.True(t, e.Synced())
	assert.Len(t, client.statements(), 2)
}

func TestTypesMatch(t *testing.T) {
	assert.True(t, typesMatch("text", "text"))
	assert.True(t, typesMatch("varchar", "text"))
	assert.True(t, typesMatch("set<text>", "set< text >"))
	assert.True(t, typesMatch("MAP<text, bigint>", "map<text,bigint>"))
	assert.False(t, typesMatch("int", "bigint"))
}
