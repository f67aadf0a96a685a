// Package query defines the typed query AST the distributed execution
// core consumes. The SQL-like parser that produces this AST from a query
// string is out of scope for this spec (spec §1); this package exists so
// the coordinator, storage engine, and wire codec all agree on one shape
// for "a parsed query" without depending on a parser implementation.
package query

import "github.com/dreamware/nimbusdb/internal/schema"

// Kind discriminates which variant of Query is populated.
type Kind int

const (
	KindCreateKeyspace Kind = iota
	KindDropKeyspace
	KindCreateTable
	KindDropTable
	KindUse
	KindInsert
	KindUpdate
	KindDelete
	KindSelect
)

// NeededResponseMode says how many replicas a query variant must hear
// from before the open-query handler can apply a consistency predicate
// (spec §4.5): schema DDL and USE are applied locally and need only one
// response, while data operations fan out to the partition's full
// replica set.
type NeededResponseMode int

const (
	ModeOne NeededResponseMode = iota
	ModeReplicationFactor
)

// Query is a parsed, typed query. Exactly one of the variant fields is
// non-nil, selected by Kind.
type Query struct {
	Kind Kind

	CreateKeyspace *CreateKeyspace
	DropKeyspace   *DropKeyspace
	CreateTable    *CreateTable
	DropTable      *DropTable
	Use            *Use
	Insert         *Insert
	Update         *Update
	Delete         *Delete
	Select         *Select
}

// NeededResponseMode reports the fan-out mode for q's variant.
func (q *Query) NeededResponseMode() NeededResponseMode {
	switch q.Kind {
	case KindInsert, KindUpdate, KindDelete, KindSelect:
		return ModeReplicationFactor
	default:
		return ModeOne
	}
}

// Keyspace returns the keyspace name the query targets, or "" for
// queries (like CreateKeyspace) that name it as the thing being created
// rather than a target.
func (q *Query) Keyspace() string {
	switch q.Kind {
	case KindDropKeyspace:
		return q.DropKeyspace.Name
	case KindCreateTable:
		return q.CreateTable.Keyspace
	case KindDropTable:
		return q.DropTable.Keyspace
	case KindInsert:
		return q.Insert.Keyspace
	case KindUpdate:
		return q.Update.Keyspace
	case KindDelete:
		return q.Delete.Keyspace
	case KindSelect:
		return q.Select.Keyspace
	default:
		return ""
	}
}

// CreateKeyspace is `CREATE KEYSPACE name WITH replication = {...}`.
type CreateKeyspace struct {
	Name              string
	ReplicationClass  string
	ReplicationFactor uint32
}

// DropKeyspace is `DROP KEYSPACE name`.
type DropKeyspace struct {
	Name string
}

// CreateTable is `CREATE TABLE ks.table (...) WITH CLUSTERING ORDER BY (...)`.
type CreateTable struct {
	Keyspace string
	Table    string
	Columns  []schema.Column
}

// DropTable is `DROP TABLE ks.table`.
type DropTable struct {
	Keyspace string
	Table    string
}

// Use is `USE keyspace`.
type Use struct {
	Keyspace string
}

// Insert is `INSERT INTO ks.table (cols...) VALUES (vals...) [IF NOT EXISTS]`.
type Insert struct {
	Keyspace    string
	Table       string
	Columns     []string
	Values      []string
	IfNotExists bool
}

// Update is `UPDATE ks.table SET col=val,... WHERE <pk eq> [IF <cond>]`.
type Update struct {
	Keyspace string
	Table    string
	Set      map[string]string
	Where    Predicate
	If       Predicate // zero value (no clauses) means unconditional
}

// Delete is `DELETE [cols...] FROM ks.table WHERE <pk eq [+ck eq]>`.
// A nil Columns means delete whole rows; non-nil means clear those
// columns to empty strings.
type Delete struct {
	Keyspace string
	Table    string
	Columns  []string
	Where    Predicate
}

// Select is `SELECT cols... FROM ks.table WHERE <pk eq [+ck cmp]> [ORDER BY] [LIMIT]`.
type Select struct {
	Keyspace string
	Table    string
	Columns  []string // projected columns; empty means all
	Where    Predicate
	OrderBy  string // column name; "" means unspecified
	OrderAsc bool
	Limit    int // 0 means unlimited
}
