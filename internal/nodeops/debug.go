package nodeops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ServeDebug runs the operator-facing debug HTTP server until ctx is
// canceled. It is deliberately separate from the internode listener,
// which speaks binary internal/wire frames, not HTTP (see DESIGN.md's
// "debug endpoints get their own port" decision).
func (n *Node) ServeDebug(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/ring", n.handleDebugRing)
	mux.HandleFunc("/debug/schema", n.handleDebugSchema)

	s := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type debugRingEntry struct {
	Addr string `json:"addr"`
}

func (n *Node) handleDebugRing(w http.ResponseWriter, _ *http.Request) {
	ring := n.Ring()
	nodes := ring.Nodes()
	entries := make([]debugRingEntry, len(nodes))
	for i, a := range nodes {
		entries[i] = debugRingEntry{Addr: a.String()}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

type debugTable struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

type debugKeyspace struct {
	Name   string       `json:"name"`
	Tables []debugTable `json:"tables"`
}

func (n *Node) handleDebugSchema(w http.ResponseWriter, _ *http.Request) {
	env := n.Snapshot()
	out := make([]debugKeyspace, 0, len(env.Keyspaces))
	for name, ks := range env.Keyspaces {
		dk := debugKeyspace{Name: name}
		for tname, tbl := range ks.Tables {
			cols := make([]string, len(tbl.Columns))
			for i, c := range tbl.Columns {
				cols[i] = c.Name
			}
			dk.Tables = append(dk.Tables, debugTable{Name: tname, Columns: cols})
		}
		out = append(out, dk)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
