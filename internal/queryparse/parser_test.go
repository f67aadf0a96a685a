package queryparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
)

func TestParseCreateKeyspace(t *testing.T) {
	q, err := Parse(`CREATE KEYSPACE sky WITH replication = {'class':'SimpleStrategy','replication_factor':3}`)
	require.NoError(t, err)
	require.Equal(t, query.KindCreateKeyspace, q.Kind)
	assert.Equal(t, "sky", q.CreateKeyspace.Name)
	assert.Equal(t, "SimpleStrategy", q.CreateKeyspace.ReplicationClass)
	assert.Equal(t, uint32(3), q.CreateKeyspace.ReplicationFactor)
}

func TestParseCreateTable(t *testing.T) {
	q, err := Parse(`CREATE TABLE sky.flights (route ASCII, departs_at TIMESTAMP, gate ASCII, PRIMARY KEY (route, departs_at)) WITH CLUSTERING ORDER BY (departs_at DESC)`)
	require.NoError(t, err)
	require.Equal(t, query.KindCreateTable, q.Kind)
	ct := q.CreateTable
	assert.Equal(t, "sky", ct.Keyspace)
	assert.Equal(t, "flights", ct.Table)
	require.Len(t, ct.Columns, 3)
	assert.True(t, ct.Columns[0].IsPartitionKey)
	assert.True(t, ct.Columns[1].IsClusteringColumn)
	assert.Equal(t, schema.Desc, ct.Columns[1].ClusteringOrder)
	assert.True(t, ct.Columns[2].AllowsNull)
}

func TestParseInsertWithIfNotExists(t *testing.T) {
	q, err := Parse(`INSERT INTO sky.flights (route, departs_at, gate) VALUES ('BOS-JFK', 1000, 'A1') IF NOT EXISTS`)
	require.NoError(t, err)
	require.Equal(t, query.KindInsert, q.Kind)
	assert.True(t, q.Insert.IfNotExists)
	assert.Equal(t, []string{"route", "departs_at", "gate"}, q.Insert.Columns)
	assert.Equal(t, []string{"BOS-JFK", "1000", "A1"}, q.Insert.Values)
}

func TestParseUpdate(t *testing.T) {
	q, err := Parse(`UPDATE sky.flights SET gate = 'B2' WHERE route = 'BOS-JFK' AND departs_at = 1000`)
	require.NoError(t, err)
	require.Equal(t, query.KindUpdate, q.Kind)
	assert.Equal(t, "B2", q.Update.Set["gate"])
	assert.Equal(t, "BOS-JFK", q.Update.Where.Equals["route"])
	assert.Equal(t, "1000", q.Update.Where.Equals["departs_at"])
}

func TestParseDeleteWholeRow(t *testing.T) {
	q, err := Parse(`DELETE FROM sky.flights WHERE route = 'BOS-JFK'`)
	require.NoError(t, err)
	require.Equal(t, query.KindDelete, q.Kind)
	assert.Nil(t, q.Delete.Columns)
}

func TestParseDeleteColumns(t *testing.T) {
	q, err := Parse(`DELETE gate FROM sky.flights WHERE route = 'BOS-JFK'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"gate"}, q.Delete.Columns)
}

func TestParseSelectWithOrderAndLimit(t *testing.T) {
	q, err := Parse(`SELECT route, gate FROM sky.flights WHERE route = 'BOS-JFK' AND departs_at > 500 ORDER BY departs_at DESC LIMIT 10`)
	require.NoError(t, err)
	require.Equal(t, query.KindSelect, q.Kind)
	sel := q.Select
	assert.Equal(t, []string{"route", "gate"}, sel.Columns)
	assert.Equal(t, "BOS-JFK", sel.Where.Equals["route"])
	assert.Equal(t, "500", sel.Where.Greater["departs_at"])
	assert.Equal(t, "departs_at", sel.OrderBy)
	assert.False(t, sel.OrderAsc)
	assert.Equal(t, 10, sel.Limit)
}

func TestParseSelectStar(t *testing.T) {
	q, err := Parse(`SELECT * FROM sky.flights WHERE route = 'BOS-JFK'`)
	require.NoError(t, err)
	assert.Empty(t, q.Select.Columns)
}

func TestParseUse(t *testing.T) {
	q, err := Parse(`USE sky`)
	require.NoError(t, err)
	assert.Equal(t, "sky", q.Use.Keyspace)
}

func TestParseUnknownStatementErrors(t *testing.T) {
	_, err := Parse(`FROBNICATE everything`)
	assert.Error(t, err)
}
