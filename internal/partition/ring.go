// Package partition implements the consistent-hash ring that maps a
// partition key to its owning node and to the ordered successor replicas,
// per spec section 4.1.
//
// The ring hashes each node's IPv4 address to a single 64-bit token with
// github.com/cespare/xxhash/v2 (a fixed, non-cryptographic hash; every
// node in a cluster must use the same build of this package, since a
// different hash produces an incompatible ring). Partition keys are
// hashed the same way and walked clockwise to the first token >= the
// key's token, wrapping around zero.
package partition

import (
	"net/netip"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// token is one node's position on the ring.
type token struct {
	hash uint64
	addr netip.Addr
}

// Ring is a consistent-hash ring over node IPv4 addresses. The zero value
// is not usable; construct with NewRing. Ring itself does no locking:
// the node runtime builds each ring fresh, publishes it behind its own
// mutex, and never mutates it afterwards, so readers share a published
// ring without further synchronization.
type Ring struct {
	tokens []token
}

// NewRing returns an empty ring.
func NewRing() *Ring {
	return &Ring{}
}

func hashAddr(addr netip.Addr) uint64 {
	b := addr.As4()
	return xxhash.Sum64(b[:])
}

// AddNode inserts addr into the ring. Re-adding an already-present node is
// a no-op.
func (r *Ring) AddNode(addr netip.Addr) {
	addr = addr.Unmap()
	h := hashAddr(addr)
	idx := r.search(h)
	if idx < len(r.tokens) && r.tokens[idx].hash == h && r.tokens[idx].addr == addr {
		return
	}
	r.tokens = slices.Insert(r.tokens, idx, token{hash: h, addr: addr})
}

// RemoveNode deletes addr from the ring, if present.
func (r *Ring) RemoveNode(addr netip.Addr) {
	addr = addr.Unmap()
	h := hashAddr(addr)
	idx := r.search(h)
	for idx < len(r.tokens) && r.tokens[idx].hash == h {
		if r.tokens[idx].addr == addr {
			r.tokens = slices.Delete(r.tokens, idx, idx+1)
			return
		}
		idx++
	}
}

// Contains reports whether addr is currently on the ring.
func (r *Ring) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	h := hashAddr(addr)
	idx := r.search(h)
	for idx < len(r.tokens) && r.tokens[idx].hash == h {
		if r.tokens[idx].addr == addr {
			return true
		}
		idx++
	}
	return false
}

// Size returns the number of nodes on the ring.
func (r *Ring) Size() int { return len(r.tokens) }

// Nodes returns a copy of the current ring membership, in ring order.
func (r *Ring) Nodes() []netip.Addr {
	out := make([]netip.Addr, len(r.tokens))
	for i, t := range r.tokens {
		out[i] = t.addr
	}
	return out
}

// search returns the index of the first token with hash >= h.
func (r *Ring) search(h uint64) int {
	return sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].hash >= h })
}

// Owner hashes key and returns the first node clockwise from the key's
// token, wrapping around. It fails only when the ring is empty.
func (r *Ring) Owner(key []byte) (netip.Addr, error) {
	if len(r.tokens) == 0 {
		return netip.Addr{}, nimberr.ErrRingEmpty
	}
	h := xxhash.Sum64(key)
	idx := r.search(h)
	if idx == len(r.tokens) {
		idx = 0
	}
	return r.tokens[idx].addr, nil
}

// Successors returns the n distinct ring-successors after addr, wrapping,
// never including addr itself. If the ring (minus addr) has fewer than n
// other nodes, the returned slice is shorter than n — callers must clamp
// replication_factor to ring size themselves (spec §4.5, §8 boundary:
// "replication_factor > ring_size clamps to ring_size").
func (r *Ring) Successors(addr netip.Addr, n int) []netip.Addr {
	addr = addr.Unmap()
	if n <= 0 || len(r.tokens) == 0 {
		return nil
	}
	h := hashAddr(addr)
	start := r.search(h)
	// If addr itself isn't on the ring (e.g. it was just removed), start
	// is still the correct insertion point to walk successors from.
	out := make([]netip.Addr, 0, n)
	seen := map[netip.Addr]bool{addr: true}
	for i := 0; i < len(r.tokens) && len(out) < n; i++ {
		idx := (start + i) % len(r.tokens)
		cand := r.tokens[idx].addr
		if seen[cand] {
			continue
		}
		seen[cand] = true
		out = append(out, cand)
	}
	return out
}

// ClampReplicationFactor returns min(rf, ring size), per the boundary
// behavior in spec §8. A zero-size ring clamps to zero.
func (r *Ring) ClampReplicationFactor(rf uint32) uint32 {
	if size := uint32(len(r.tokens)); rf > size {
		return size
	}
	return rf
}
