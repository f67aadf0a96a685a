package coordinator

import (
	"context"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/partition"
	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
)

// singleNodeFixture builds a Coordinator whose ring contains only self,
// so every query's replica set is exactly {self} and Execute never needs
// a real Transport — enough to exercise the DDL and single-replica data
// paths without standing up sockets.
func singleNodeFixture(t *testing.T) (*Coordinator, *schema.Envelope) {
	t.Helper()
	self := netip.MustParseAddr("10.0.0.1")
	ring := partition.NewRing()
	ring.AddNode(self)
	engine := storage.NewEngine(t.TempDir(), self, nil)

	env := schema.NewEnvelope()
	var mu sync.Mutex

	c := NewCoordinator(
		self,
		engine,
		nil,
		func() *partition.Ring { return ring },
		func() *schema.Envelope { mu.Lock(); defer mu.Unlock(); return env },
		func(fn func(*schema.Envelope) error) error {
			mu.Lock()
			defer mu.Unlock()
			return fn(env)
		},
		nil,
	)
	return c, env
}

func TestExecuteCreateKeyspaceAndTable(t *testing.T) {
	c, env := singleNodeFixture(t)
	ctx := context.Background()

	out, err := c.Execute(ctx, "CREATE KEYSPACE sky WITH replication = {'class':'SimpleStrategy','replication_factor':1}",
		&query.Query{Kind: query.KindCreateKeyspace, CreateKeyspace: &query.CreateKeyspace{Name: "sky", ReplicationClass: "SimpleStrategy", ReplicationFactor: 1}},
		LevelOne)
	require.NoError(t, err)
	assert.True(t, out.SchemaChange)
	_, ok := env.Keyspace("sky")
	assert.True(t, ok)

	out, err = c.Execute(ctx, "CREATE TABLE sky.flights (route ASCII, departs_at TIMESTAMP, gate ASCII, PRIMARY KEY (route, departs_at))",
		&query.Query{Kind: query.KindCreateTable, CreateTable: &query.CreateTable{
			Keyspace: "sky", Table: "flights",
			Columns: []schema.Column{
				{Name: "route", Type: schema.Ascii, IsPartitionKey: true},
				{Name: "departs_at", Type: schema.Timestamp, IsClusteringColumn: true, ClusteringOrder: schema.Asc},
				{Name: "gate", Type: schema.Ascii, AllowsNull: true},
			},
		}},
		LevelOne)
	require.NoError(t, err)
	assert.True(t, out.SchemaChange)
	_, ok = env.Table("sky", "flights")
	assert.True(t, ok)
}

func TestExecuteInsertThenSelectRoundTrips(t *testing.T) {
	c, env := singleNodeFixture(t)
	ctx := context.Background()

	ks, err := schema.NewKeyspace("sky", "SimpleStrategy", 1)
	require.NoError(t, err)
	tbl := flightsTable(t)
	env.Keyspaces["sky"] = ks
	ks.Tables["flights"] = tbl
	require.NoError(t, c.engine.CreateKeyspace("sky"))
	require.NoError(t, c.engine.CreateTable("sky", tbl))

	_, err = c.Execute(ctx, "INSERT INTO sky.flights (route, departs_at, gate) VALUES ('BOS-JFK', 1000, 'A1')",
		&query.Query{Kind: query.KindInsert, Insert: &query.Insert{
			Keyspace: "sky", Table: "flights",
			Columns: []string{"route", "departs_at", "gate"},
			Values:  []string{"BOS-JFK", "1000", "A1"},
		}},
		LevelOne)
	require.NoError(t, err)

	out, err := c.Execute(ctx, "SELECT * FROM sky.flights WHERE route = 'BOS-JFK'",
		&query.Query{Kind: query.KindSelect, Select: &query.Select{
			Keyspace: "sky", Table: "flights",
			Where: query.Predicate{Equals: map[string]string{"route": "BOS-JFK"}},
		}},
		LevelOne)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, []string{"route", "departs_at", "gate"}, out.SelectColumns)
}

func TestExecuteSelectAllConsistencyOnSingleNodeRingReturnsEmpty(t *testing.T) {
	c, env := singleNodeFixture(t)
	ctx := context.Background()

	ks, err := schema.NewKeyspace("sky", "SimpleStrategy", 3)
	require.NoError(t, err)
	tbl := flightsTable(t)
	env.Keyspaces["sky"] = ks
	ks.Tables["flights"] = tbl
	require.NoError(t, c.engine.CreateKeyspace("sky"))
	require.NoError(t, c.engine.CreateTable("sky", tbl))

	// The ring only has self, so ClampReplicationFactor(3) clamps to 1
	// replica and ALL needs just that one OK — always reachable here.
	// Unreachable-predicate behavior itself is covered in openquery_test.go.
	out, err := c.Execute(ctx, "SELECT * FROM sky.flights WHERE route = 'BOS-JFK'",
		&query.Query{Kind: query.KindSelect, Select: &query.Select{
			Keyspace: "sky", Table: "flights",
			Where: query.Predicate{Equals: map[string]string{"route": "BOS-JFK"}},
		}},
		LevelAll)
	require.NoError(t, err)
	assert.Empty(t, out.Rows)
}

func TestExecuteUnknownKeyspaceErrors(t *testing.T) {
	c, _ := singleNodeFixture(t)
	ctx := context.Background()
	_, err := c.Execute(ctx, "SELECT * FROM nope.flights WHERE route = 'x'",
		&query.Query{Kind: query.KindSelect, Select: &query.Select{
			Keyspace: "nope", Table: "flights",
			Where: query.Predicate{Equals: map[string]string{"route": "x"}},
		}},
		LevelOne)
	assert.Error(t, err)
}
