package nodeops

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/dreamware/nimbusdb/internal/partition"
	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// moveAckTimeout bounds how long the redistribution sweep waits for a
// new owner's ack before giving up on that row for this sweep (it will
// be picked up again on the next sweep — spec section 5's "no retry in
// the same tick" cancellation rule, applied to redistribution instead
// of a single send).
const moveAckTimeout = 5 * time.Second

// RunReconcile drives the ring and schema reconciliation loops until ctx
// is canceled, generalizing original_source/node/src/lib.rs's
// reconciliation loop: every tick rebuilds the partitioner ring from the
// gossiper's live endpoints and materializes any schema the gossiper has
// converged on that this node's local storage hasn't caught up to yet.
func (n *Node) RunReconcile(ctx context.Context) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.reconcileRing()
			n.reconcileSchema()
		}
	}
}

// reconcileRing rebuilds the ring from the gossiper's current live-
// endpoint view and swaps it in. partition.Ring has no safe in-place
// update for concurrent readers (see DESIGN.md), so every tick builds a
// fresh one rather than mutating the published ring. If the node set
// actually changed, it kicks off a redistribution sweep in the
// background (spec section 4.4: "if the ring changed, start a
// redistribution pass").
func (n *Node) reconcileRing() {
	previous := n.Ring()
	live := n.gossiper.LiveEndpoints()
	fresh := partition.NewRing()
	for _, addr := range live {
		fresh.AddNode(addr)
	}
	n.setRing(fresh)

	if ringNodeSetChanged(previous, fresh) {
		go func() {
			if err := n.RedistributeData(context.Background()); err != nil {
				n.log.WithError(err).Warn("redistribution sweep failed")
			}
		}()
	}
}

// ringNodeSetChanged reports whether a and b own a different set of
// nodes, ignoring token placement order.
func ringNodeSetChanged(a, b *partition.Ring) bool {
	an, bn := a.Nodes(), b.Nodes()
	if len(an) != len(bn) {
		return true
	}
	for _, addr := range an {
		if !b.Contains(addr) {
			return true
		}
	}
	return false
}

// reconcileSchema adopts the gossiper's most up-to-date schema envelope
// once it's newer than what this node has locally, materializing the
// keyspace/table diff against storage before publishing it.
func (n *Node) reconcileSchema() {
	best := n.gossiper.MostUpToDateSchema()
	if best == nil {
		return
	}
	current := n.Snapshot()
	if best.Timestamp <= current.Timestamp {
		return
	}
	if err := n.materializeSchema(current, best); err != nil {
		n.log.WithError(err).Warn("schema materialization failed")
		return
	}
	n.mu.Lock()
	n.schema = best
	n.mu.Unlock()
	n.gossiper.SetSchema(best)
}

// materializeSchema creates/drops the keyspace and table directories
// storage needs to match target, diffed against current.
func (n *Node) materializeSchema(current, target *schema.Envelope) error {
	for name, ks := range target.Keyspaces {
		oldKs, existed := current.Keyspaces[name]
		if !existed {
			if err := n.engine.CreateKeyspace(name); err != nil {
				return err
			}
		}
		for tname, tbl := range ks.Tables {
			var oldTbl *schema.Table
			if existed {
				oldTbl = oldKs.Tables[tname]
			}
			if oldTbl == nil {
				if err := n.engine.CreateTable(name, tbl); err != nil {
					return err
				}
			}
		}
		if existed {
			for tname := range oldKs.Tables {
				if _, stillThere := ks.Tables[tname]; !stillThere {
					if err := n.engine.DropTable(name, tname); err != nil {
						return err
					}
				}
			}
		}
	}
	for name := range current.Keyspaces {
		if _, stillThere := target.Keyspaces[name]; !stillThere {
			if err := n.engine.DropKeyspace(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// RedistributeData sweeps every table this node stores (primary and
// replica copies) for rows the current ring now assigns to a different
// owner, moves each to its new owner, and only deletes the local copy
// once that owner has acknowledged the insert — storage.RelocatingRow's
// doc comment requires this ordering so a ring change racing with a
// crash can't lose a row (spec section 9's redistribute_data, §8
// scenario 6).
func (n *Node) RedistributeData(ctx context.Context) error {
	env := n.Snapshot()
	ring := n.Ring()

	for ksName, ks := range env.Keyspaces {
		rf := int(ring.ClampReplicationFactor(ks.ReplicationFactor))
		replicasFn := func(pk []byte) []netip.Addr {
			owner, err := ring.Owner(pk)
			if err != nil {
				return []netip.Addr{n.self}
			}
			return append([]netip.Addr{owner}, ring.Successors(owner, rf-1)...)
		}

		for _, tbl := range ks.Tables {
			for _, isRepl := range []bool{false, true} {
				moves, err := n.engine.PlanRedistribution(ksName, tbl, isRepl, replicasFn)
				if err != nil {
					return err
				}
				for _, mv := range moves {
					n.relocateRow(ctx, tbl, mv, isRepl)
				}
			}
		}
	}
	return nil
}

// fullKeyEquals builds the equality predicate that pins down exactly the
// one row values represents, matching the full primary key (partition
// plus clustering columns) rather than the partition key alone so a
// redistribution delete can't remove a sibling row sharing the same
// partition.
func fullKeyEquals(tbl *schema.Table, values []string) query.Predicate {
	eq := make(map[string]string)
	for _, idx := range tbl.PartitionKeyIndices() {
		eq[tbl.Columns[idx].Name] = values[idx]
	}
	for _, idx := range tbl.ClusteringKeyIndices() {
		eq[tbl.Columns[idx].Name] = values[idx]
	}
	return query.Predicate{Equals: eq}
}

// quoteLiteral single-quotes v for embedding in a synthesized query
// string. queryparse's lexer scans a quoted literal up to the next
// single quote with no escape syntax, so a value itself containing a
// quote cannot round-trip through this path; values come from the
// storage engine's own earlier Insert/Update path which accepted them
// the same way, so in practice this mirrors what the engine already
// stores.
func quoteLiteral(v string) string {
	return "'" + v + "'"
}

func (n *Node) relocateRow(ctx context.Context, tbl *schema.Table, mv storage.RelocatingRow, wasReplication bool) {
	id := n.coord.ReserveQueryID()
	ch := n.registerAck(id)

	names := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		names[i] = c.Name
	}
	quoted := make([]string, len(mv.Values))
	for i, v := range mv.Values {
		quoted[i] = quoteLiteral(v)
	}
	raw := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)", mv.Keyspace, mv.Table, strings.Join(names, ","), strings.Join(quoted, ","))
	// NewOwner is always the row's current primary (see
	// storage.PlanRedistribution), so the copy lands in its primary file.
	iq := wire.InternodeQuery{
		QueryString:  raw,
		OpenQueryID:  id,
		Replication:  false,
		KeyspaceName: mv.Keyspace,
		Timestamp:    mv.Timestamp,
	}
	if err := n.transport.SendQuery(ctx, mv.NewOwner, iq); err != nil {
		n.forgetAck(id)
		n.log.WithError(err).Debugf("redistribution: send to %s failed", mv.NewOwner)
		return
	}

	select {
	case resp := <-ch:
		if resp.Status != wire.StatusOK {
			n.log.Warnf("redistribution: %s rejected moved row: %s", mv.NewOwner, resp.ErrorMessage)
			return
		}
	case <-time.After(moveAckTimeout):
		n.forgetAck(id)
		n.log.Debugf("redistribution: timed out waiting for %s's ack", mv.NewOwner)
		return
	case <-ctx.Done():
		n.forgetAck(id)
		return
	}

	where := fullKeyEquals(tbl, mv.Values)
	if err := n.engine.Delete(storage.DeleteInput{
		Keyspace:      mv.Keyspace,
		Table:         tbl,
		Where:         where,
		IsReplication: wasReplication,
		Timestamp:     mv.Timestamp,
	}); err != nil {
		n.log.WithError(err).Warn("redistribution: failed deleting relocated row locally")
	}
}
