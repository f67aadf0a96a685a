// Package gossip implements nimbusdb's cluster membership and schema
// propagation protocol (spec section 4.4): a push-pull, three-way
// SYN/ACK/ACK2 digest exchange, heartbeats ordered by (generation,
// version), and convergence of the gossiped schema envelope by
// maximum timestamp.
//
// Gossiper itself is a pure state machine — CreateSyn/HandleSyn/
// HandleAck/HandleAck2 only ever touch the in-memory endpoint table,
// never a socket. The Run loop drives periodic heartbeats and gossip
// rounds through a caller-supplied Dialer, so the actual internode
// transport (internal/wire framing over TCP) lives in the node
// runtime, not here — mirroring the separation the teacher keeps
// between its shard registry (pure state) and its HTTP transport.
package gossip
