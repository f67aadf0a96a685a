package query

import "github.com/dreamware/nimbusdb/internal/schema"

// Predicate is the parser-validated conjunctive WHERE form spec §4.3
// describes: equality on the partition key (always required), plus
// optional equality/less-than/greater-than constraints on clustering
// columns, all combined by AND. UPDATE requires every clustering column
// named in the table to appear in Equals (no range updates); SELECT may
// mix Equals/Less/Greater freely across clustering columns.
type Predicate struct {
	Equals  map[string]string
	Less    map[string]string // exclusive upper bound
	Greater map[string]string // exclusive lower bound
}

// IsZero reports whether p has no clauses at all (used for UPDATE's
// optional IF condition, where a zero Predicate means unconditional).
func (p Predicate) IsZero() bool {
	return len(p.Equals) == 0 && len(p.Less) == 0 && len(p.Greater) == 0
}

// HasPartitionKeyEquality reports whether p equates every partition-key
// column of tbl, which spec §4.3 requires for UPDATE/DELETE/SELECT.
func (p Predicate) HasPartitionKeyEquality(tbl *schema.Table) bool {
	for _, idx := range tbl.PartitionKeyIndices() {
		if _, ok := p.Equals[tbl.Columns[idx].Name]; !ok {
			return false
		}
	}
	return true
}

// Matches reports whether values (a full row, in table-declared column
// order) satisfies every clause of p.
func (p Predicate) Matches(tbl *schema.Table, values []string) bool {
	for name, want := range p.Equals {
		idx := tbl.ColumnIndex(name)
		if idx < 0 || tbl.Columns[idx].Type.Compare(values[idx], want) != 0 {
			return false
		}
	}
	for name, bound := range p.Less {
		idx := tbl.ColumnIndex(name)
		if idx < 0 || tbl.Columns[idx].Type.Compare(values[idx], bound) >= 0 {
			return false
		}
	}
	for name, bound := range p.Greater {
		idx := tbl.ColumnIndex(name)
		if idx < 0 || tbl.Columns[idx].Type.Compare(values[idx], bound) <= 0 {
			return false
		}
	}
	return true
}

// PartitionKeyValues extracts the partition-key values named by p's
// equality clauses, in tbl's declared column order — the bytes the
// coordinator hashes through the partitioner to find the owning node.
func (p Predicate) PartitionKeyValues(tbl *schema.Table) []string {
	out := make([]string, len(tbl.PartitionKeyIndices()))
	for i, idx := range tbl.PartitionKeyIndices() {
		out[i] = p.Equals[tbl.Columns[idx].Name]
	}
	return out
}
