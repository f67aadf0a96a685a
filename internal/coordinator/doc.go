// Package coordinator implements the query execution path any node runs
// when it receives a client query directly (spec section 4.7): dispatch
// to the owning replica set via the partitioner, an open-query table
// applying consistency-level predicates to the responses that stream
// back in (section 4.5), and read repair on the winning rows of a
// SELECT (section 4.6).
//
// Unlike the teacher, which runs a dedicated coordinator process talking
// HTTP to worker nodes, nimbusdb has no distinguished coordinator role:
// every node links this package in and calls into it for whatever
// queries its own client listener happens to receive. The package knows
// nothing about sockets; it is handed a Transport for outbound sends and
// expects inbound InternodeResponse frames to be routed back to it via
// HandleResponse by the node runtime's internode listener.
package coordinator
