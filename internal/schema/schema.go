// Package schema defines nimbusdb's data model types: column data types,
// table and keyspace schemas, and the schema envelope gossiped between
// nodes and used by the storage engine to validate rows.
//
// These types correspond directly to spec section 3 (Data model); they
// carry no I/O or network logic of their own, so the wire codec
// (internal/wire) and storage engine (internal/storage) both depend on
// this package rather than reimplementing the shapes.
package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DataType enumerates the column types nimbusdb supports.
type DataType uint8

const (
	Int DataType = iota
	Ascii
	Boolean
	Float
	Double
	Timestamp
	Uuid
)

func (d DataType) String() string {
	switch d {
	case Int:
		return "INT"
	case Ascii:
		return "ASCII"
	case Boolean:
		return "BOOLEAN"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Timestamp:
		return "TIMESTAMP"
	case Uuid:
		return "UUID"
	default:
		return "UNKNOWN"
	}
}

// Validate reports whether s parses as a literal of type d. Validation is
// intentionally loose (the parser, out of scope here, is expected to have
// already shaped the literal); this only protects the storage engine's
// segment format from silently accepting garbage.
func (d DataType) Validate(s string) error {
	switch d {
	case Int:
		_, err := strconv.ParseInt(s, 10, 64)
		return err
	case Ascii:
		return nil
	case Boolean:
		_, err := strconv.ParseBool(s)
		return err
	case Float:
		_, err := strconv.ParseFloat(s, 32)
		return err
	case Double:
		_, err := strconv.ParseFloat(s, 64)
		return err
	case Timestamp:
		_, err := strconv.ParseInt(s, 10, 64)
		return err
	case Uuid:
		_, err := uuid.Parse(s)
		return err
	default:
		return fmt.Errorf("unknown data type %d", d)
	}
}

// Compare orders two literals of type d, returning <0, 0, >0 the way
// strings.Compare does. Numeric types compare numerically; ASCII and UUID
// compare lexicographically, which is sufficient for UUID since nimbusdb
// never needs UUID range queries (spec §4.3 only allows =,<,> on
// clustering columns, and UUID is never used as one in the examples this
// spec targets, but comparison must still be total for the index).
func (d DataType) Compare(a, b string) int {
	switch d {
	case Int, Timestamp:
		ai, aerr := strconv.ParseInt(a, 10, 64)
		bi, berr := strconv.ParseInt(b, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	case Float, Double:
		af, aerr := strconv.ParseFloat(a, 64)
		bf, berr := strconv.ParseFloat(b, 64)
		if aerr == nil && berr == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a, b)
}

// ClusteringOrder is the declared sort direction of a clustering column.
type ClusteringOrder string

const (
	Asc  ClusteringOrder = "ASC"
	Desc ClusteringOrder = "DESC"
)

// Column describes one column of a table.
type Column struct {
	Name               string
	Type               DataType
	IsPartitionKey     bool
	IsClusteringColumn bool
	AllowsNull         bool
	ClusteringOrder    ClusteringOrder
}

// Table is the ordered column list for one table, along with its derived
// partition-key and clustering-key column indices (cached by NewTable
// and Envelope.Clone so the hot insert/select paths don't rescan the
// column list for every row).
type Table struct {
	Name    string
	Columns []Column

	partitionKeyIdx  []int
	clusteringKeyIdx []int
}

// NewTable validates columns and returns a Table with its key-column
// indices precomputed.
func NewTable(name string, columns []Column) (*Table, error) {
	t := &Table{Name: name, Columns: columns}
	if err := t.reindex(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) reindex() error {
	t.partitionKeyIdx = nil
	t.clusteringKeyIdx = nil
	for i, c := range t.Columns {
		if c.IsPartitionKey {
			t.partitionKeyIdx = append(t.partitionKeyIdx, i)
		}
		if c.IsClusteringColumn {
			t.clusteringKeyIdx = append(t.clusteringKeyIdx, i)
		}
	}
	if len(t.partitionKeyIdx) == 0 {
		return fmt.Errorf("table %s: needs at least one partition key column", t.Name)
	}
	return nil
}

// PartitionKeyIndices returns the column indices making up the partition key.
func (t *Table) PartitionKeyIndices() []int { return t.partitionKeyIdx }

// ClusteringKeyIndices returns the column indices making up the clustering key.
func (t *Table) ClusteringKeyIndices() []int { return t.clusteringKeyIdx }

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PartitionKeyValues extracts the partition-key column values, in
// table-declared order, from a full row of values.
func (t *Table) PartitionKeyValues(values []string) []string {
	out := make([]string, len(t.partitionKeyIdx))
	for i, idx := range t.partitionKeyIdx {
		out[i] = values[idx]
	}
	return out
}

// ClusteringKeyValues extracts the clustering-key column values from a
// full row of values.
func (t *Table) ClusteringKeyValues(values []string) []string {
	out := make([]string, len(t.clusteringKeyIdx))
	for i, idx := range t.clusteringKeyIdx {
		out[i] = values[idx]
	}
	return out
}

// CompareClustering orders two rows' full value slices by the table's
// clustering column order, honoring each column's ASC/DESC direction. A
// DESC column reverses that single column's comparator, not the whole
// tuple (spec §9 explicitly forbids the double-inversion the original
// source's INSERT path applied).
func (t *Table) CompareClustering(a, b []string) int {
	for _, idx := range t.clusteringKeyIdx {
		col := t.Columns[idx]
		c := col.Type.Compare(a[idx], b[idx])
		if col.ClusteringOrder == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// PartitionKeyBytes renders a row's partition key as the byte string the
// partitioner hashes. Column values are joined with a NUL byte, which
// cannot appear in a validated literal of any supported type except
// ASCII: ASCII validation accepts any bytes, so ASCII values containing
// NUL can render two different keys the same.
func (t *Table) PartitionKeyBytes(values []string) []byte {
	pk := t.PartitionKeyValues(values)
	return []byte(strings.Join(pk, "\x00"))
}

// Keyspace is a named collection of tables sharing a replication policy.
type Keyspace struct {
	Name              string
	ReplicationClass  string
	ReplicationFactor uint32
	Tables            map[string]*Table
}

// NewKeyspace returns an empty keyspace; ReplicationFactor must be >= 1.
func NewKeyspace(name, replicationClass string, replicationFactor uint32) (*Keyspace, error) {
	if replicationFactor < 1 {
		return nil, fmt.Errorf("keyspace %s: replication_factor must be >= 1", name)
	}
	return &Keyspace{
		Name:              name,
		ReplicationClass:  replicationClass,
		ReplicationFactor: replicationFactor,
		Tables:            make(map[string]*Table),
	}, nil
}

// Envelope is the cluster-wide schema snapshot gossiped between nodes:
// a map of keyspaces plus the wall-clock timestamp of its last local
// mutation, which breaks ties during convergence (spec §3, invariant I3).
type Envelope struct {
	Timestamp int64
	Keyspaces map[string]*Keyspace
}

// NewEnvelope returns an empty envelope stamped with the current time.
func NewEnvelope() *Envelope {
	return &Envelope{Timestamp: time.Now().UnixMilli(), Keyspaces: make(map[string]*Keyspace)}
}

// Clone returns a deep-enough copy of the envelope for copy-on-write
// snapshotting: nodes hand out Clone()'d envelopes so a mutator can bump
// Timestamp and add/remove keyspaces without racing concurrent readers.
func (e *Envelope) Clone() *Envelope {
	out := &Envelope{Timestamp: e.Timestamp, Keyspaces: make(map[string]*Keyspace, len(e.Keyspaces))}
	for name, ks := range e.Keyspaces {
		nks := &Keyspace{
			Name:              ks.Name,
			ReplicationClass:  ks.ReplicationClass,
			ReplicationFactor: ks.ReplicationFactor,
			Tables:            make(map[string]*Table, len(ks.Tables)),
		}
		for tname, t := range ks.Tables {
			nt := &Table{Name: t.Name, Columns: append([]Column(nil), t.Columns...)}
			_ = nt.reindex()
			nks.Tables[tname] = nt
		}
		out.Keyspaces[name] = nks
	}
	return out
}

// Keyspace looks up a keyspace by name.
func (e *Envelope) Keyspace(name string) (*Keyspace, bool) {
	ks, ok := e.Keyspaces[name]
	return ks, ok
}

// Table looks up a table within a keyspace by name.
func (e *Envelope) Table(keyspace, table string) (*Table, bool) {
	ks, ok := e.Keyspaces[keyspace]
	if !ok {
		return nil, false
	}
	t, ok := ks.Tables[table]
	return t, ok
}

// Touch bumps the envelope's timestamp to at least now, guaranteeing
// monotonicity even if the system clock hasn't advanced since the last
// mutation (invariant I3).
func (e *Envelope) Touch() {
	now := time.Now().UnixMilli()
	if now <= e.Timestamp {
		now = e.Timestamp + 1
	}
	e.Timestamp = now
}
