package nodeops

import (
	"context"
	"net"

	"github.com/dreamware/nimbusdb/internal/coordinator"
	"github.com/dreamware/nimbusdb/internal/queryparse"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// clientState is the per-connection Startup -> Authenticate ->
// Authenticated state machine spec section 4.8 describes.
type clientState int

const (
	stateAwaitingStartup clientState = iota
	stateAwaitingAuthResponse
	stateAuthenticated
)

// ServeClient accepts connections on the TLS client listener until ctx
// is canceled. lis is expected to already be wrapped with tls.Listener
// by the caller (cmd/node), since TLS configuration (certificate
// loading) is a startup concern, not a per-connection one.
func (n *Node) ServeClient(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				n.log.WithError(err).Warn("client accept failed")
				continue
			}
		}
		go n.handleClientConn(ctx, conn)
	}
}

func (n *Node) handleClientConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	state := stateAwaitingStartup
	for {
		body, err := wire.ReadFrame(conn, n.cfg.maxFrameLen())
		if err != nil {
			return
		}
		frame, err := wire.DecodeClientFrame(body)
		if err != nil {
			n.log.WithError(err).Debug("malformed client frame, closing connection")
			return
		}

		switch state {
		case stateAwaitingStartup:
			if frame.Kind != wire.FrameStartup {
				n.writeClientError(conn, "expected Startup")
				return
			}
			if err := n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameAuthenticate}); err != nil {
				return
			}
			state = stateAwaitingAuthResponse

		case stateAwaitingAuthResponse:
			if frame.Kind != wire.FrameAuthResponse {
				n.writeClientError(conn, "expected AuthResponse")
				return
			}
			ar, err := wire.DecodeAuthResponse(frame.Body)
			if err != nil {
				n.writeClientError(conn, "malformed AuthResponse")
				return
			}
			// Naive password equality, per spec section 6 and
			// SPEC_FULL.md section 5's explicit non-strengthening of
			// this non-goal: no constant-time comparison, no hashing.
			if ar.Password != n.cfg.AuthPassword {
				if err := n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameAuthenticate}); err != nil {
					return
				}
				continue
			}
			if err := n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameAuthSuccess}); err != nil {
				return
			}
			state = stateAuthenticated

		case stateAuthenticated:
			if frame.Kind != wire.FrameQuery {
				n.writeClientError(conn, "expected Query")
				continue
			}
			n.handleClientQuery(ctx, conn, frame.Body)
		}
	}
}

func (n *Node) handleClientQuery(ctx context.Context, conn net.Conn, body []byte) {
	cq, err := wire.DecodeClientQuery(body)
	if err != nil {
		n.writeClientError(conn, "malformed Query frame")
		return
	}
	level, err := coordinator.ParseLevel(cq.Consistency)
	if err != nil {
		n.writeClientError(conn, err.Error())
		return
	}
	q, err := queryparse.Parse(cq.QueryString)
	if err != nil {
		n.writeClientError(conn, err.Error())
		return
	}
	outcome, err := n.coord.Execute(ctx, cq.QueryString, q, level)
	if err != nil {
		n.writeClientError(conn, err.Error())
		return
	}
	n.writeOutcome(conn, outcome)
}

func (n *Node) writeOutcome(conn net.Conn, outcome coordinator.Outcome) {
	switch {
	case outcome.SchemaChange:
		n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameResultSchemaChange})
	case outcome.SetKeyspace != "":
		body := wire.ResultSetKeyspace{Keyspace: outcome.SetKeyspace}.Encode()
		n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameResultSetKeyspace, Body: body})
	case outcome.Void:
		n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameResultVoid})
	default:
		body := wire.ResultRows{Columns: outcome.SelectColumns, Rows: outcome.Rows}.Encode()
		n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameResultRows, Body: body})
	}
}

func (n *Node) writeClientError(conn net.Conn, message string) {
	body := wire.ClientError{Message: message}.Encode()
	_ = n.writeClientFrame(conn, wire.ClientFrame{Kind: wire.FrameError, Body: body})
}

func (n *Node) writeClientFrame(conn net.Conn, f wire.ClientFrame) error {
	if err := wire.WriteFrame(conn, f.Encode()); err != nil {
		n.log.WithError(err).Debug("failed writing client frame")
		return err
	}
	return nil
}
