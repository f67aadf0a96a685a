package nodeops

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/wire"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{
		Self:    netip.MustParseAddr("10.0.0.1"),
		DataDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)
	return n
}

func TestNewRejectsInvalidSelf(t *testing.T) {
	_, err := New(Config{DataDir: t.TempDir()}, nil)
	assert.Error(t, err)
}

func TestNewSeedsRingWithSelf(t *testing.T) {
	n := newTestNode(t)
	ring := n.Ring()
	assert.True(t, ring.Contains(n.Self()))
	assert.Equal(t, 1, len(ring.Nodes()))
}

func TestMutateSchemaPublishesCloneAndGossipsIt(t *testing.T) {
	n := newTestNode(t)
	before := n.Snapshot()

	err := n.MutateSchema(func(env *schema.Envelope) error {
		ks, err := schema.NewKeyspace("sky", "SimpleStrategy", 1)
		if err != nil {
			return err
		}
		env.Keyspaces["sky"] = ks
		return nil
	})
	require.NoError(t, err)

	after := n.Snapshot()
	assert.NotSame(t, before, after)
	_, ok := after.Keyspace("sky")
	assert.True(t, ok)
	_, ok = before.Keyspace("sky")
	assert.False(t, ok, "mutating the clone must not affect the previously published snapshot")
}

func TestMutateSchemaPropagatesFnError(t *testing.T) {
	n := newTestNode(t)
	before := n.Snapshot()

	sentinel := assert.AnError
	err := n.MutateSchema(func(env *schema.Envelope) error { return sentinel })
	assert.Equal(t, sentinel, err)
	assert.Same(t, before, n.Snapshot(), "a failed mutation must not publish its clone")
}

func TestAckRegisterTakeForget(t *testing.T) {
	n := newTestNode(t)

	ch := n.registerAck(7)
	resp := wire.InternodeResponse{OpenQueryID: 7, Status: wire.StatusOK}
	ch <- resp

	got, ok := n.takeAck(7)
	require.True(t, ok)
	assert.Equal(t, resp, <-got)

	_, ok = n.takeAck(7)
	assert.False(t, ok, "takeAck must remove the slot")

	n.registerAck(8)
	n.forgetAck(8)
	_, ok = n.takeAck(8)
	assert.False(t, ok)
}
