package nodeops

import (
	"context"
	"net"
	"net/netip"

	"github.com/dreamware/nimbusdb/internal/queryparse"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// ServeInternode accepts connections on the plaintext internode
// listener until ctx is canceled (spec section 4.8: "internode handler:
// reads a length-framed InternodeMessage and dispatches to one of three
// processors — inbound Query, inbound Response, inbound Gossip").
func (n *Node) ServeInternode(ctx context.Context, lis net.Listener) error {
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
				n.log.WithError(err).Warn("internode accept failed")
				continue
			}
		}
		go n.handleInternodeConn(ctx, conn)
	}
}

func (n *Node) handleInternodeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		body, err := wire.ReadFrame(conn, n.cfg.maxFrameLen())
		if err != nil {
			return // spec section 7: protocol/connection errors just close the connection
		}
		msg, err := wire.DecodeInternodeMessage(body)
		if err != nil {
			n.log.WithError(err).Debug("malformed internode message, closing connection")
			return
		}
		reply, hasReply := n.dispatchInternode(ctx, msg)
		if !hasReply {
			continue
		}
		out := wire.InternodeMessage{From: n.self, Kind: wire.KindGossip, Body: reply}
		if err := wire.WriteFrame(conn, out.Encode()); err != nil {
			n.log.WithError(err).Debug("failed writing gossip reply")
			return
		}
	}
}

// dispatchInternode applies one decoded InternodeMessage and reports a
// reply payload only for Gossip messages, whose sender (gossip.Dialer)
// blocks on a synchronous reply over the same connection; Query and
// Response messages are fire-and-forget (spec section 4.8).
func (n *Node) dispatchInternode(ctx context.Context, msg wire.InternodeMessage) (reply []byte, hasReply bool) {
	switch msg.Kind {
	case wire.KindQuery:
		n.handleInboundQuery(ctx, msg)
		return nil, false
	case wire.KindResponse:
		n.handleInboundResponse(ctx, msg)
		return nil, false
	case wire.KindGossip:
		return n.handleInboundGossip(msg)
	default:
		return nil, false
	}
}

func (n *Node) handleInboundQuery(ctx context.Context, msg wire.InternodeMessage) {
	iq, err := wire.DecodeInternodeQuery(msg.Body)
	if err != nil {
		n.log.WithError(err).Debug("malformed internode query")
		return
	}
	q, err := queryparse.Parse(iq.QueryString)
	if err != nil {
		n.sendResponse(ctx, msg.From, wire.InternodeResponse{OpenQueryID: iq.OpenQueryID, Status: wire.StatusErr, ErrorMessage: err.Error()})
		return
	}
	resp := n.coord.HandleInternodeQuery(ctx, iq, q)
	n.sendResponse(ctx, msg.From, resp)
}

func (n *Node) sendResponse(ctx context.Context, to netip.Addr, resp wire.InternodeResponse) {
	if err := n.transport.SendResponse(ctx, to, resp); err != nil {
		n.log.WithError(err).Debugf("failed sending response for open query %d to %s", resp.OpenQueryID, to)
	}
}

func (n *Node) handleInboundResponse(ctx context.Context, msg wire.InternodeMessage) {
	resp, err := wire.DecodeInternodeResponse(msg.Body)
	if err != nil {
		n.log.WithError(err).Debug("malformed internode response")
		return
	}
	// A redistribution move's ack arrives on this same Response path but
	// was never registered as an open query (it was only reserved, like
	// read repair's corrective writes) — check for a waiting mover
	// first so it isn't silently dropped by the coordinator's lookup.
	if ch, ok := n.takeAck(resp.OpenQueryID); ok {
		ch <- resp
		return
	}
	var ksName string
	if oq, ok := n.coord.Lookup(resp.OpenQueryID); ok {
		ksName = oq.Query.Keyspace()
	}
	n.coord.HandleResponse(ctx, ksName, msg.From, resp)
}

func (n *Node) handleInboundGossip(msg wire.InternodeMessage) ([]byte, bool) {
	gm, err := wire.DecodeGossipMessage(msg.Body)
	if err != nil {
		n.log.WithError(err).Debug("malformed gossip message")
		return nil, false
	}
	switch gm.Kind {
	case wire.GossipSyn:
		syn, err := wire.DecodeSyn(gm.Payload)
		if err != nil {
			n.log.WithError(err).Debug("malformed syn")
			return nil, false
		}
		ack := n.gossiper.HandleSyn(syn)
		reply := wire.GossipMessage{From: n.self, Kind: wire.GossipAck, Payload: ack.Encode()}
		return reply.Encode(), true
	case wire.GossipAck2:
		ack2, err := wire.DecodeAck2(gm.Payload)
		if err != nil {
			n.log.WithError(err).Debug("malformed ack2")
			return nil, false
		}
		n.gossiper.HandleAck2(ack2)
		reply := wire.GossipMessage{From: n.self, Kind: wire.GossipAck2}
		return reply.Encode(), true
	default:
		// An inbound Ack is never expected here: Acks are consumed
		// synchronously by Transport.Gossip's own read, not routed
		// through this listener.
		reply := wire.GossipMessage{From: n.self, Kind: gm.Kind}
		return reply.Encode(), true
	}
}
