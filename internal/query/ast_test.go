package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/nimbusdb/internal/schema"
)

func TestNeededResponseModeByKind(t *testing.T) {
	assert.Equal(t, ModeOne, (&Query{Kind: KindCreateKeyspace}).NeededResponseMode())
	assert.Equal(t, ModeOne, (&Query{Kind: KindUse}).NeededResponseMode())
	assert.Equal(t, ModeReplicationFactor, (&Query{Kind: KindInsert}).NeededResponseMode())
	assert.Equal(t, ModeReplicationFactor, (&Query{Kind: KindSelect}).NeededResponseMode())
}

func TestKeyspaceAccessor(t *testing.T) {
	q := &Query{Kind: KindInsert, Insert: &Insert{Keyspace: "sky", Table: "flights"}}
	assert.Equal(t, "sky", q.Keyspace())
}

func flightsTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("flights", []schema.Column{
		{Name: "id", Type: schema.Int, IsPartitionKey: true},
		{Name: "ts", Type: schema.Timestamp, IsClusteringColumn: true, ClusteringOrder: schema.Desc},
		{Name: "gate", Type: schema.Ascii, AllowsNull: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestPredicateMatchesConjunction(t *testing.T) {
	tbl := flightsTable(t)
	p := Predicate{Equals: map[string]string{"id": "1"}, Greater: map[string]string{"ts": "1000"}}
	assert.True(t, p.Matches(tbl, []string{"1", "2000", "A1"}))
	assert.False(t, p.Matches(tbl, []string{"1", "500", "A1"}))
	assert.False(t, p.Matches(tbl, []string{"2", "2000", "A1"}))
}

func TestHasPartitionKeyEquality(t *testing.T) {
	tbl := flightsTable(t)
	assert.True(t, Predicate{Equals: map[string]string{"id": "1"}}.HasPartitionKeyEquality(tbl))
	assert.False(t, Predicate{}.HasPartitionKeyEquality(tbl))
}
