package coordinator

import (
	"net/netip"
	"sync"

	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// accumulated is one replica's response folded into an OpenQuery, kept
// for read repair (spec section 4.6 needs the replica address alongside
// each row).
type accumulated struct {
	Replica  netip.Addr
	Response wire.InternodeResponse
}

// Outcome is what Execute ultimately returns to the client handler: one
// of Void (INSERT/UPDATE/DELETE success), Rows+SelectColumns
// (SELECT success), SchemaChange/SetKeyspace (DDL/USE), or Err.
type Outcome struct {
	Err           error
	Void          bool
	Rows          []wire.Row
	SelectColumns []string
	SchemaChange  bool
	SetKeyspace   string
}

// OpenQuery is the coordinator-side record of one distributed query in
// flight (spec section 4.5's "Open query" type). It is mutated only
// through OpenQueryTable's methods, which serialize access with a single
// mutex — the spec's "per-node lock that also guards endpoint state,
// partitioner, and schema pointers" is approximated here by giving the
// open-query table its own lock, since nimbusdb splits that coarse lock
// per subsystem rather than sharing one across the whole node (see
// internal/nodeops's package doc).
type OpenQuery struct {
	ID              uint32
	NeededResponses int
	Consistency     Level
	Query           *query.Query
	Table           *schema.Table

	accumulated []accumulated
	okCount     int
	errCount    int

	// Reply carries the single Outcome this query closes with. Buffered
	// by 1 so the closing AddResponse call never blocks on a reader that
	// hasn't started select-ing yet.
	Reply chan Outcome
}

// OpenQueryTable is the per-coordinator registry of in-flight queries
// (spec section 4.5), generalizing the teacher's ShardRegistry's
// RWMutex-guarded-map-behind-copy-out-accessors idiom from a fixed shard
// count to an unbounded, short-lived set of query ids.
type OpenQueryTable struct {
	mu      sync.Mutex
	nextID  uint32
	queries map[uint32]*OpenQuery
}

// NewOpenQueryTable returns an empty registry.
func NewOpenQueryTable() *OpenQueryTable {
	return &OpenQueryTable{queries: make(map[uint32]*OpenQuery)}
}

// Register creates and stores a new OpenQuery, returning it.
func (t *OpenQueryTable) Register(q *query.Query, tbl *schema.Table, level Level, neededResponses int) *OpenQuery {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	oq := &OpenQuery{
		ID:              t.nextID,
		NeededResponses: neededResponses,
		Consistency:     level,
		Query:           q,
		Table:           tbl,
		Reply:           make(chan Outcome, 1),
	}
	t.queries[oq.ID] = oq
	return oq
}

// ReserveID hands out an id from the same counter as Register without
// registering a query for it — used for read repair's corrective
// InternodeQuery sends, which don't need a tracked open query (spec
// section 4.6 doesn't ask the coordinator to wait on repair acks).
func (t *OpenQueryTable) ReserveID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}

// Get looks up an open query by id.
func (t *OpenQueryTable) Get(id uint32) (*OpenQuery, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	oq, ok := t.queries[id]
	return oq, ok
}

// Delete removes an open query, e.g. when its client connection drops.
func (t *OpenQueryTable) Delete(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queries, id)
}

// AddResponse folds one replica's response into the named open query and
// applies the consistency predicate (spec section 4.5): the query closes
// as soon as enough OKs have arrived to satisfy the level, or as soon as
// too many errors have arrived for it to ever be satisfiable. Returns the
// query (nil if id is unknown or already closed) and whether this call
// closed it — invariant I7, ok_count+error_count <= needed_responses,
// holds because a closed query is removed from the table immediately.
func (t *OpenQueryTable) AddResponse(id uint32, replica netip.Addr, resp wire.InternodeResponse) (*OpenQuery, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	oq, ok := t.queries[id]
	if !ok {
		return nil, false
	}
	oq.accumulated = append(oq.accumulated, accumulated{Replica: replica, Response: resp})
	if resp.Status == wire.StatusOK {
		oq.okCount++
	} else {
		oq.errCount++
	}

	required := RequiredOKs(oq.Consistency, oq.NeededResponses)
	closed := oq.okCount >= required ||
		oq.NeededResponses-oq.errCount < required ||
		oq.okCount+oq.errCount >= oq.NeededResponses
	if closed {
		delete(t.queries, id)
	}
	return oq, closed
}
