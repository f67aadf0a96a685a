package coordinator

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/dreamware/nimbusdb/internal/partition"
	"github.com/dreamware/nimbusdb/internal/schema"
	"github.com/dreamware/nimbusdb/internal/storage"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// rowKeyOf renders a response row's partition+clustering key as a map
// key, so rows from different replicas that name the same logical row
// can be grouped (spec section 4.6 step 1).
func rowKeyOf(tbl *schema.Table, values []string) string {
	pk := tbl.PartitionKeyValues(values)
	ck := tbl.ClusteringKeyValues(values)
	return strings.Join(pk, "\x00") + "\x01" + strings.Join(ck, "\x00")
}

// rowLess breaks a read-repair timestamp tie by lexicographic value
// comparison, deterministically (spec section 4.6 step 2).
func rowLess(a, b []string) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
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

func synthesizeInsert(ksName string, tbl *schema.Table, values []string) string {
	names := columnNames(tbl)
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)", ksName, tbl.Name, strings.Join(names, ","), strings.Join(quoted, ","))
}

// repairRows implements spec section 4.6: group accumulated responses by
// row key, keep the newest-timestamped value per key as the winner, and
// repair every replica that reported an older value for that key —
// applied locally via engine when the lagging replica is self, or sent
// as a fire-and-forget InternodeQuery INSERT otherwise. It returns the
// winning rows, full-column (projection to the client's select list
// happens one level up, after repair).
func repairRows(ctx context.Context, ksName string, tbl *schema.Table, ring *partition.Ring, self netip.Addr, responses []accumulated, engine *storage.Engine, transport Transport, reserveID func() uint32) ([]wire.Row, error) {
	type seen struct {
		replica netip.Addr
		row     wire.Row
	}
	byKey := map[string][]seen{}
	for _, resp := range responses {
		if resp.Response.Status != wire.StatusOK {
			continue
		}
		for _, row := range resp.Response.Rows {
			k := rowKeyOf(tbl, row.Values)
			byKey[k] = append(byKey[k], seen{resp.Replica, row})
		}
	}

	winners := make([]wire.Row, 0, len(byKey))
	for _, group := range byKey {
		best := group[0]
		for _, s := range group[1:] {
			if s.row.Timestamp > best.row.Timestamp ||
				(s.row.Timestamp == best.row.Timestamp && rowLess(best.row.Values, s.row.Values)) {
				best = s
			}
		}
		winners = append(winners, best.row)

		pkBytes := tbl.PartitionKeyBytes(best.row.Values)
		owner, err := ring.Owner(pkBytes)
		if err != nil {
			return nil, err
		}

		for _, s := range group {
			if s.row.Timestamp >= best.row.Timestamp {
				continue
			}
			if s.replica == self {
				// Best-effort: a failed local repair write doesn't fail the
				// read itself, since the client already gets the correct
				// (winning) row back.
				_ = engine.Insert(storage.InsertInput{
					Keyspace:      ksName,
					Table:         tbl,
					Columns:       columnNames(tbl),
					Values:        best.row.Values,
					IsReplication: owner != self,
					Timestamp:     best.row.Timestamp,
					Owner:         owner,
				})
				continue
			}
			if transport == nil {
				continue
			}
			iq := wire.InternodeQuery{
				QueryString:  synthesizeInsert(ksName, tbl, best.row.Values),
				OpenQueryID:  reserveID(),
				Replication:  owner != s.replica,
				KeyspaceName: ksName,
				Timestamp:    best.row.Timestamp,
			}
			_ = transport.SendQuery(ctx, s.replica, iq)
		}
	}
	return winners, nil
}
