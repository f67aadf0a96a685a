// Package nodeops assembles the per-process node runtime spec section
// 4.8 describes: the TLS client listener, the plaintext internode
// listener, the outbound connection cache, and the background loops that
// keep local storage and the partition ring in step with the gossiped
// schema and membership view.
//
// Node holds every piece of state spec section 5 calls "a single
// critical state object" — partitioner, gossiper, schema pointer, open
// queries — but splits that one conceptual lock into one mutex per
// subsystem (Node's own ring+schema pointer swap, the gossiper's
// internal mutex, the coordinator's open-query table mutex) rather than
// a single node-wide lock, the same per-subsystem split
// internal/coordinator's OpenQuery doc comment documents for its own piece.
package nodeops
