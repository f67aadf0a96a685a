package storage

import (
	"sync"
	"sync/atomic"
)

// TableStats tracks per-table operation counts and lifecycle state,
// adapted from the teacher's per-shard stats: counters are atomic so the
// hot insert/select path never blocks on a stats update, while the
// rarely-changed active flag is guarded by a mutex.
type TableStats struct {
	inserts uint64
	updates uint64
	deletes uint64
	selects uint64

	mu     sync.RWMutex
	active bool
}

func (s *TableStats) IncInsert() { atomic.AddUint64(&s.inserts, 1) }
func (s *TableStats) IncUpdate() { atomic.AddUint64(&s.updates, 1) }
func (s *TableStats) IncDelete() { atomic.AddUint64(&s.deletes, 1) }
func (s *TableStats) IncSelect() { atomic.AddUint64(&s.selects, 1) }

// MarkActive records that the table's files have been materialized on
// this node.
func (s *TableStats) MarkActive() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

// Snapshot is a point-in-time, safe-to-retain copy of a table's stats.
type Snapshot struct {
	Inserts, Updates, Deletes, Selects uint64
	Active                             bool
}

func (s *TableStats) Snapshot() Snapshot {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	return Snapshot{
		Inserts: atomic.LoadUint64(&s.inserts),
		Updates: atomic.LoadUint64(&s.updates),
		Deletes: atomic.LoadUint64(&s.deletes),
		Selects: atomic.LoadUint64(&s.selects),
		Active:  active,
	}
}

// TableStatsRegistry holds one TableStats per (keyspace, table) this
// node has materialized, keyed by "keyspace/table".
type TableStatsRegistry struct {
	mu    sync.RWMutex
	byKey map[string]*TableStats
}

func NewTableStatsRegistry() *TableStatsRegistry {
	return &TableStatsRegistry{byKey: make(map[string]*TableStats)}
}

func registryKey(keyspace, table string) string { return keyspace + "/" + table }

// Table returns the stats entry for (keyspace, table), creating it if
// this is the first reference.
func (r *TableStatsRegistry) Table(keyspace, table string) *TableStats {
	key := registryKey(keyspace, table)
	r.mu.RLock()
	s, ok := r.byKey[key]
	r.mu.RUnlock()
	if ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byKey[key]; ok {
		return s
	}
	s = &TableStats{}
	r.byKey[key] = s
	return s
}

// Drop removes a table's stats entry, called when the table is dropped.
func (r *TableStatsRegistry) Drop(keyspace, table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, registryKey(keyspace, table))
}

// All returns a snapshot of every tracked table's stats, keyed by
// "keyspace/table" — used by the debug HTTP endpoint (spec
// supplemented feature, see SPEC_FULL.md).
func (r *TableStatsRegistry) All() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.byKey))
	for k, s := range r.byKey {
		out[k] = s.Snapshot()
	}
	return out
}
