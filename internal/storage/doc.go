// Package storage implements nimbusdb's per-node, on-disk row store:
// keyspace/table CSV-like segment files with a companion sparse index
// file per table, supporting clustering-ordered inserts, updates,
// deletes, selects, and bulk redistribution after a ring change (spec
// section 4.3).
//
// # Layout
//
// Every node roots its data under a single directory (typically
// including the node's own address, so multiple nodes can share a test
// machine):
//
//	<root>/<keyspace>/<table>.seg
//	<root>/<keyspace>/<table>.idx
//	<root>/<keyspace>/replication/<table>.seg
//	<root>/<keyspace>/replication/<table>.idx
//
// The primary files hold rows this node owns (partitioner.Owner(pk) ==
// this node); the replication files hold rows this node stores only as a
// replica (this node is one of the owner's successors). Keeping them as
// separate files, rather than a flag column, means a full-table SELECT
// never has to filter owned rows out of replicated ones or vice versa.
//
// # Segment format
//
// Each line is `v1,v2,...,vN;ts` — column values in table-declared
// order, joined by commas, then a semicolon and the row's write
// timestamp. The first line of every segment file is a header of
// comma-joined column names, written by CreateTable and never
// validated on read: storage does not compare it with the table's
// schema, and the node's schema-materialization loop re-runs
// CreateTable only for tables new to the schema it adopts.
//
// # Index format
//
// Each line is `partition_head,start_byte,end_byte` — the partition
// key's column values joined by a NUL byte, and the half-open byte
// range `[start_byte, end_byte)` of that partition's contiguous run
// within the segment file (header excluded). SELECT uses the index to
// seek directly to a partition's run instead of scanning the whole
// file. This keys the index by partition, not by the first clustering
// column's value alone (see DESIGN.md): a run is only ever looked up by
// partition-key equality, and keying by clustering value risks merging
// byte ranges across unrelated partitions that happen to share one.
//
// # Concurrency and durability
//
// Every mutation (CreateTable, Insert, Update, Delete) rewrites the
// full segment+index pair to temp files and renames them over the
// originals, so a concurrent SELECT always sees either the pre- or
// post-mutation content, never a partial write (spec §5). Writers to
// the same (keyspace, table, replica-or-not) file pair are serialized by
// a per-path mutex; readers take no lock.
package storage
