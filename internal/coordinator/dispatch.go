package coordinator

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/nimbusdb/internal/nimberr"
	"github.com/dreamware/nimbusdb/internal/partition"
	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
	"github.com/dreamware/nimbusdb/internal/wire"
)

const (
	keyspaceWaitRetries = 5
	keyspaceWaitDelay   = 20 * time.Millisecond
)

// Transport sends an internode query to a replica; the reply arrives
// asynchronously on the node's internode listener, which must route it
// back to this coordinator via HandleResponse (spec section 4.7 step 5,
// section 4.8).
type Transport interface {
	SendQuery(ctx context.Context, to netip.Addr, q wire.InternodeQuery) error
}

// Coordinator runs the execution path of spec section 4.7 for whatever
// client queries this node's own client listener happens to receive.
type Coordinator struct {
	self      netip.Addr
	engine    *storage.Engine
	transport Transport
	queries   *OpenQueryTable
	log       *logrus.Entry

	// ring and snapshot read the node's current partitioner and schema
	// pointer; mutateSchema applies a DDL mutation under the node's own
	// schema lock and bumps its timestamp. All three are owned by the
	// node runtime (internal/nodeops), not by Coordinator itself — spec
	// section 5 keeps partitioner/schema under one node-wide mutex that
	// this package never reaches for directly.
	ring         func() *partition.Ring
	snapshot     func() *schema.Envelope
	mutateSchema func(func(*schema.Envelope) error) error

	mu           sync.Mutex
	nextClientID uint32
}

// NewCoordinator builds a Coordinator for node self.
func NewCoordinator(
	self netip.Addr,
	engine *storage.Engine,
	transport Transport,
	ring func() *partition.Ring,
	snapshot func() *schema.Envelope,
	mutateSchema func(func(*schema.Envelope) error) error,
	log *logrus.Entry,
) *Coordinator {
	return &Coordinator{
		self:         self,
		engine:       engine,
		transport:    transport,
		queries:      NewOpenQueryTable(),
		log:          log,
		ring:         ring,
		snapshot:     snapshot,
		mutateSchema: mutateSchema,
	}
}

func (c *Coordinator) nextClient() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextClientID++
	return c.nextClientID
}

// Execute runs a parsed query to completion (spec section 4.7). raw is
// the original query string the client sent, forwarded as-is to
// replicas, which re-parse it locally (spec section 4.2's InternodeQuery
// carries a query string, not an AST; the receiving node runtime
// parses it with internal/queryparse).
func (c *Coordinator) Execute(ctx context.Context, raw string, q *query.Query, level Level) (Outcome, error) {
	switch q.Kind {
	case query.KindUse:
		return Outcome{SetKeyspace: q.Use.Keyspace}, nil
	case query.KindCreateKeyspace, query.KindDropKeyspace, query.KindCreateTable, query.KindDropTable:
		return c.executeDDL(q)
	default:
		return c.executeDataOp(ctx, raw, q, level)
	}
}

func (c *Coordinator) executeDDL(q *query.Query) (Outcome, error) {
	err := c.mutateSchema(func(env *schema.Envelope) error {
		switch q.Kind {
		case query.KindCreateKeyspace:
			cmd := q.CreateKeyspace
			ks, err := schema.NewKeyspace(cmd.Name, cmd.ReplicationClass, cmd.ReplicationFactor)
			if err != nil {
				return nimberr.Schemaf("create keyspace %s: %v", cmd.Name, err)
			}
			if err := c.engine.CreateKeyspace(cmd.Name); err != nil {
				return err
			}
			env.Keyspaces[cmd.Name] = ks
		case query.KindDropKeyspace:
			name := q.DropKeyspace.Name
			if err := c.engine.DropKeyspace(name); err != nil {
				return err
			}
			delete(env.Keyspaces, name)
		case query.KindCreateTable:
			cmd := q.CreateTable
			ks, ok := env.Keyspace(cmd.Keyspace)
			if !ok {
				return nimberr.Schemaf("keyspace %q not found", cmd.Keyspace)
			}
			tbl, err := schema.NewTable(cmd.Table, cmd.Columns)
			if err != nil {
				return nimberr.Schemaf("create table %s: %v", cmd.Table, err)
			}
			if err := c.engine.CreateTable(cmd.Keyspace, tbl); err != nil {
				return err
			}
			ks.Tables[cmd.Table] = tbl
		case query.KindDropTable:
			cmd := q.DropTable
			if err := c.engine.DropTable(cmd.Keyspace, cmd.Table); err != nil {
				return err
			}
			if ks, ok := env.Keyspace(cmd.Keyspace); ok {
				delete(ks.Tables, cmd.Table)
			}
		}
		env.Touch()
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{SchemaChange: true}, nil
}

// ensureKeyspace waits briefly and re-checks up to a small bounded
// number of times to absorb gossip lag, per spec section 4.7 step 2.
func (c *Coordinator) ensureKeyspace(ctx context.Context, name string) (*schema.Envelope, error) {
	var env *schema.Envelope
	for i := 0; i < keyspaceWaitRetries; i++ {
		env = c.snapshot()
		if _, ok := env.Keyspace(name); ok {
			return env, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(keyspaceWaitDelay):
		}
	}
	return nil, nimberr.Schemaf("keyspace %q not known to this node", name)
}

func dataOpTable(q *query.Query) string {
	switch q.Kind {
	case query.KindInsert:
		return q.Insert.Table
	case query.KindUpdate:
		return q.Update.Table
	case query.KindDelete:
		return q.Delete.Table
	case query.KindSelect:
		return q.Select.Table
	default:
		return ""
	}
}

func fullRowFromColumns(tbl *schema.Table, columns, values []string) []string {
	full := make([]string, len(tbl.Columns))
	byName := make(map[string]string, len(columns))
	for i, c := range columns {
		byName[c] = values[i]
	}
	for i, col := range tbl.Columns {
		full[i] = byName[col.Name]
	}
	return full
}

// joinPK matches schema.Table.PartitionKeyBytes's separator exactly, so
// a predicate-derived key and a row-derived key hash to the same token.
func joinPK(vals []string) []byte {
	return []byte(strings.Join(vals, "\x00"))
}

func columnNames(tbl *schema.Table) []string {
	names := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		names[i] = c.Name
	}
	return names
}

// partitionKeyBytes computes the bytes the partitioner hashes to find
// the owning replica for q, per its variant's WHERE clause or (for
// INSERT) its VALUES list.
func partitionKeyBytes(tbl *schema.Table, q *query.Query) ([]byte, error) {
	switch q.Kind {
	case query.KindInsert:
		full := fullRowFromColumns(tbl, q.Insert.Columns, q.Insert.Values)
		return tbl.PartitionKeyBytes(full), nil
	case query.KindUpdate:
		if !q.Update.Where.HasPartitionKeyEquality(tbl) {
			return nil, nimberr.Schemaf("update: WHERE must equate the full partition key")
		}
		return joinPK(q.Update.Where.PartitionKeyValues(tbl)), nil
	case query.KindDelete:
		if !q.Delete.Where.HasPartitionKeyEquality(tbl) {
			return nil, nimberr.Schemaf("delete: WHERE must equate the full partition key")
		}
		return joinPK(q.Delete.Where.PartitionKeyValues(tbl)), nil
	case query.KindSelect:
		if !q.Select.Where.HasPartitionKeyEquality(tbl) {
			return nil, nimberr.Schemaf("select: WHERE must equate the full partition key")
		}
		return joinPK(q.Select.Where.PartitionKeyValues(tbl)), nil
	default:
		return nil, nimberr.Schemaf("not a data operation")
	}
}

func queryTimestamp(q *query.Query) int64 {
	switch q.Kind {
	case query.KindInsert, query.KindUpdate, query.KindDelete:
		return time.Now().UnixMilli()
	default:
		return 0
	}
}

func (c *Coordinator) executeDataOp(ctx context.Context, raw string, q *query.Query, level Level) (Outcome, error) {
	ksName := q.Keyspace()
	env, err := c.ensureKeyspace(ctx, ksName)
	if err != nil {
		return Outcome{}, err
	}
	tbl, ok := env.Table(ksName, dataOpTable(q))
	if !ok {
		return Outcome{}, nimberr.Schemaf("table %s.%s not found", ksName, dataOpTable(q))
	}
	ks, _ := env.Keyspace(ksName)

	pkBytes, err := partitionKeyBytes(tbl, q)
	if err != nil {
		return Outcome{}, err
	}
	ring := c.ring()
	owner, err := ring.Owner(pkBytes)
	if err != nil {
		return Outcome{}, err
	}
	rf := int(ring.ClampReplicationFactor(ks.ReplicationFactor))
	replicas := append([]netip.Addr{owner}, ring.Successors(owner, rf-1)...)

	oq := c.queries.Register(q, tbl, level, len(replicas))
	ts := queryTimestamp(q)
	clientID := c.nextClient()

	// Remote sends fan out concurrently via errgroup: a slow or
	// unreachable replica must never hold up the others, since the open
	// query closes as soon as consistency is satisfied regardless of
	// which replicas have answered yet (spec section 4.7 step 4).
	var g errgroup.Group
	for _, r := range replicas {
		r := r
		isRepl := r != owner
		if r == c.self {
			resp := c.applyLocal(oq.ID, ksName, tbl, q, owner, isRepl, ts)
			c.feedResponse(ctx, ksName, r, resp)
			continue
		}
		if c.transport == nil {
			c.feedResponse(ctx, ksName, r, wire.InternodeResponse{OpenQueryID: oq.ID, Status: wire.StatusErr, ErrorMessage: "no internode transport configured"})
			continue
		}
		iq := wire.InternodeQuery{
			QueryString:  raw,
			OpenQueryID:  oq.ID,
			ClientID:     clientID,
			Replication:  isRepl,
			KeyspaceName: ksName,
			Timestamp:    ts,
		}
		g.Go(func() error {
			if err := c.transport.SendQuery(ctx, r, iq); err != nil {
				c.feedResponse(ctx, ksName, r, wire.InternodeResponse{OpenQueryID: oq.ID, Status: wire.StatusErr, ErrorMessage: err.Error()})
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && c.log != nil {
		c.log.WithError(err).Debugf("dispatch: at least one replica send failed for open query %d", oq.ID)
	}

	select {
	case out := <-oq.Reply:
		return out, out.Err
	case <-ctx.Done():
		c.queries.Delete(oq.ID)
		return Outcome{}, ctx.Err()
	}
}

// applyLocal runs q against this node's own storage engine, shaping the
// result the way a remote replica's reply would look on the wire — so
// the open-query handler treats local and remote responses identically.
func (c *Coordinator) applyLocal(oqID uint32, ksName string, tbl *schema.Table, q *query.Query, owner netip.Addr, isReplication bool, ts int64) wire.InternodeResponse {
	var err error
	var rows []storage.SelectRow
	switch q.Kind {
	case query.KindInsert:
		err = c.engine.Insert(storage.InsertInput{
			Keyspace: ksName, Table: tbl, Columns: q.Insert.Columns, Values: q.Insert.Values,
			IsReplication: isReplication, IfNotExists: q.Insert.IfNotExists, Timestamp: ts, Owner: owner,
		})
	case query.KindUpdate:
		err = c.engine.Update(storage.UpdateInput{
			Keyspace: ksName, Table: tbl, Set: q.Update.Set, Where: q.Update.Where,
			IsReplication: isReplication, Timestamp: ts,
		})
	case query.KindDelete:
		err = c.engine.Delete(storage.DeleteInput{
			Keyspace: ksName, Table: tbl, Columns: q.Delete.Columns, Where: q.Delete.Where,
			IsReplication: isReplication, Timestamp: ts,
		})
	case query.KindSelect:
		// Replicas always answer with full rows, regardless of the
		// client's projected column list: read repair (section 4.6)
		// needs every column to extract keys and compare, and OrderBy/
		// Limit are applied once, after repair, not per replica.
		rows, err = c.engine.Select(storage.SelectInput{
			Keyspace: ksName, Table: tbl, Where: q.Select.Where, IsReplication: isReplication,
		})
	}
	if err != nil {
		return wire.InternodeResponse{OpenQueryID: oqID, Status: wire.StatusErr, ErrorMessage: err.Error()}
	}

	resp := wire.InternodeResponse{OpenQueryID: oqID, Status: wire.StatusOK}
	if q.Kind == query.KindSelect {
		names := columnNames(tbl)
		resp.Columns = names
		resp.SelectColumns = q.Select.Columns
		for _, r := range rows {
			vals := make([]string, len(names))
			for i, n := range names {
				vals[i] = r.Values[n]
			}
			resp.Rows = append(resp.Rows, wire.Row{Values: vals, Timestamp: r.Timestamp})
		}
	}
	return resp
}

// HandleInternodeQuery runs an InternodeQuery another node dispatched to
// this one as a replica: q is iq.QueryString already re-parsed by the
// node runtime's own parser (spec section 4.2's note that replicas
// re-parse the query string rather than receiving an AST). It resolves
// the current owner the same way the dispatching coordinator did so the
// local applyLocal sanity check (in.Owner vs in.IsReplication) agrees,
// then applies iq.Replication/iq.Timestamp exactly as the coordinator's
// own local replica would (spec section 4.7 step 4-5).
func (c *Coordinator) HandleInternodeQuery(ctx context.Context, iq wire.InternodeQuery, q *query.Query) wire.InternodeResponse {
	ksName := iq.KeyspaceName
	env, err := c.ensureKeyspace(ctx, ksName)
	if err != nil {
		return wire.InternodeResponse{OpenQueryID: iq.OpenQueryID, Status: wire.StatusErr, ErrorMessage: err.Error()}
	}
	tbl, ok := env.Table(ksName, dataOpTable(q))
	if !ok {
		return wire.InternodeResponse{OpenQueryID: iq.OpenQueryID, Status: wire.StatusErr, ErrorMessage: fmt.Sprintf("table %s.%s not found", ksName, dataOpTable(q))}
	}
	pkBytes, err := partitionKeyBytes(tbl, q)
	if err != nil {
		return wire.InternodeResponse{OpenQueryID: iq.OpenQueryID, Status: wire.StatusErr, ErrorMessage: err.Error()}
	}
	owner, err := c.ring().Owner(pkBytes)
	if err != nil {
		return wire.InternodeResponse{OpenQueryID: iq.OpenQueryID, Status: wire.StatusErr, ErrorMessage: err.Error()}
	}
	return c.applyLocal(iq.OpenQueryID, ksName, tbl, q, owner, iq.Replication, iq.Timestamp)
}

// HandleResponse routes an InternodeResponse frame the node's internode
// listener just decoded back into the open query it answers (spec
// section 4.7 step 5, section 4.8).
func (c *Coordinator) HandleResponse(ctx context.Context, ksName string, replica netip.Addr, resp wire.InternodeResponse) {
	c.feedResponse(ctx, ksName, replica, resp)
}

// Lookup returns the open query registered under id, for callers (the
// internode listener) that need to recover its keyspace name before
// calling HandleResponse — an InternodeResponse frame carries only the
// open-query id, not the keyspace it belongs to.
func (c *Coordinator) Lookup(id uint32) (*OpenQuery, bool) {
	return c.queries.Get(id)
}

// ReserveQueryID hands out an id from the same counter Execute's open
// queries are registered under, without registering one — used by the
// node runtime's bulk redistribution sweep (spec section 9) the same
// way read repair reserves an id for its own fire-and-forget corrective
// writes, so a redistribution move and a live open query can never
// collide on the same id.
func (c *Coordinator) ReserveQueryID() uint32 {
	return c.queries.ReserveID()
}

func (c *Coordinator) feedResponse(ctx context.Context, ksName string, replica netip.Addr, resp wire.InternodeResponse) {
	oq, closed := c.queries.AddResponse(resp.OpenQueryID, replica, resp)
	if oq == nil || !closed {
		return
	}
	out := c.finish(ctx, ksName, oq)
	select {
	case oq.Reply <- out:
	default:
	}
}

func (c *Coordinator) finish(ctx context.Context, ksName string, oq *OpenQuery) Outcome {
	required := RequiredOKs(oq.Consistency, oq.NeededResponses)
	if oq.okCount < required {
		return Outcome{Err: nimberr.Consistencyf("consistency level %s unreachable: %d ok of %d required", oq.Consistency, oq.okCount, required)}
	}
	if oq.Query.Kind != query.KindSelect {
		return Outcome{Void: true}
	}

	rows, err := repairRows(ctx, ksName, oq.Table, c.ring(), c.self, oq.accumulated, c.engine, c.transport, c.queries.ReserveID)
	if err != nil {
		return Outcome{Err: err}
	}
	sel := oq.Query.Select
	rows = projectAndOrder(oq.Table, rows, sel)
	return Outcome{Rows: rows, SelectColumns: selectColumnNames(oq.Table, sel)}
}

func projectAndOrder(tbl *schema.Table, rows []wire.Row, sel *query.Select) []wire.Row {
	if sel.OrderBy != "" {
		if idx := tbl.ColumnIndex(sel.OrderBy); idx >= 0 {
			sort.SliceStable(rows, func(i, j int) bool {
				c := tbl.Columns[idx].Type.Compare(rows[i].Values[idx], rows[j].Values[idx])
				if sel.OrderAsc {
					return c < 0
				}
				return c > 0
			})
		}
	}
	if sel.Limit > 0 && len(rows) > sel.Limit {
		rows = rows[:sel.Limit]
	}
	if len(sel.Columns) == 0 {
		return rows
	}
	out := make([]wire.Row, len(rows))
	for i, r := range rows {
		vals := make([]string, len(sel.Columns))
		for j, name := range sel.Columns {
			if idx := tbl.ColumnIndex(name); idx >= 0 {
				vals[j] = r.Values[idx]
			}
		}
		out[i] = wire.Row{Values: vals, Timestamp: r.Timestamp}
	}
	return out
}

func selectColumnNames(tbl *schema.Table, sel *query.Select) []string {
	if len(sel.Columns) == 0 {
		return columnNames(tbl)
	}
	return sel.Columns
}
