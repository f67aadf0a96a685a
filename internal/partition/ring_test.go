package partition

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrs(t *testing.T, ss ...string) []netip.Addr {
	t.Helper()
	out := make([]netip.Addr, len(ss))
	for i, s := range ss {
		a, err := netip.ParseAddr(s)
		require.NoError(t, err)
		out[i] = a
	}
	return out
}

func TestOwnerFailsOnEmptyRing(t *testing.T) {
	r := NewRing()
	_, err := r.Owner([]byte("k"))
	require.Error(t, err)
}

func TestOwnerDeterministic(t *testing.T) {
	r := NewRing()
	for _, a := range addrs(t, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5") {
		r.AddNode(a)
	}
	o1, err := r.Owner([]byte("user:123"))
	require.NoError(t, err)
	o2, err := r.Owner([]byte("user:123"))
	require.NoError(t, err)
	assert.Equal(t, o1, o2)
}

func TestSuccessorsDistinctAndExcludeSelf(t *testing.T) {
	r := NewRing()
	nodes := addrs(t, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5")
	for _, a := range nodes {
		r.AddNode(a)
	}
	owner, err := r.Owner([]byte("flight:42"))
	require.NoError(t, err)

	succ := r.Successors(owner, 3)
	require.Len(t, succ, 3)
	seen := map[netip.Addr]bool{owner: true}
	for _, s := range succ {
		assert.False(t, seen[s], "successor %s duplicates an earlier node", s)
		assert.NotEqual(t, owner, s)
		seen[s] = true
	}
}

func TestSuccessorsShorterThanRequestedOnSmallRing(t *testing.T) {
	r := NewRing()
	a := addrs(t, "10.0.0.1", "10.0.0.2")
	for _, n := range a {
		r.AddNode(n)
	}
	succ := r.Successors(a[0], 5)
	assert.Len(t, succ, 1)
}

func TestClampReplicationFactor(t *testing.T) {
	r := NewRing()
	for _, a := range addrs(t, "10.0.0.1", "10.0.0.2", "10.0.0.3") {
		r.AddNode(a)
	}
	assert.Equal(t, uint32(3), r.ClampReplicationFactor(5))
	assert.Equal(t, uint32(2), r.ClampReplicationFactor(2))
}

func TestRemoveNodeAndContains(t *testing.T) {
	r := NewRing()
	a := addrs(t, "10.0.0.1", "10.0.0.2")
	r.AddNode(a[0])
	r.AddNode(a[1])
	assert.True(t, r.Contains(a[0]))

	r.RemoveNode(a[0])
	assert.False(t, r.Contains(a[0]))
	assert.True(t, r.Contains(a[1]))
	assert.Equal(t, 1, r.Size())
}

func TestAddNodeIdempotent(t *testing.T) {
	r := NewRing()
	a := addrs(t, "10.0.0.1")[0]
	r.AddNode(a)
	r.AddNode(a)
	assert.Equal(t, 1, r.Size())
}
