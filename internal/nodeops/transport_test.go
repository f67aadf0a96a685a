package nodeops

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/gossip"
	"github.com/dreamware/nimbusdb/internal/wire"
)

// listenInternode binds internodePort on loopback so Transport's
// fixed-port dialing reaches it, and runs handle once per accepted
// connection's first frame.
func listenInternode(t *testing.T, handle func(body []byte) (reply []byte, ok bool)) func() {
	t.Helper()
	lis, err := net.Listen("tcp", internodeAddr(netip.MustParseAddr("127.0.0.1")))
	require.NoError(t, err)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				body, err := wire.ReadFrame(c, defaultMaxFrameLen)
				if err != nil {
					return
				}
				if reply, ok := handle(body); ok {
					_ = wire.WriteFrame(c, reply)
				}
			}(conn)
		}
	}()
	return func() { lis.Close() }
}

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	self := netip.MustParseAddr("10.0.0.1")
	g := gossip.New(self, []netip.Addr{netip.MustParseAddr("127.0.0.1")}, logrus.NewEntry(logrus.New()))
	return newTransport(self, time.Second, defaultMaxFrameLen, g, logrus.NewEntry(logrus.New()))
}

func TestSendQueryEncodesInternodeMessage(t *testing.T) {
	received := make(chan wire.InternodeMessage, 1)
	closeLis := listenInternode(t, func(body []byte) ([]byte, bool) {
		msg, err := wire.DecodeInternodeMessage(body)
		require.NoError(t, err)
		received <- msg
		return nil, false
	})
	defer closeLis()

	tr := newTestTransport(t)
	peer := netip.MustParseAddr("127.0.0.1")
	err := tr.SendQuery(context.Background(), peer, wire.InternodeQuery{QueryString: "SELECT 1", OpenQueryID: 4})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, wire.KindQuery, msg.Kind)
		q, err := wire.DecodeInternodeQuery(msg.Body)
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", q.QueryString)
		assert.Equal(t, uint32(4), q.OpenQueryID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query frame")
	}
}

func TestSendQueryReusesCachedConnection(t *testing.T) {
	var conns int
	lis, err := net.Listen("tcp", internodeAddr(netip.MustParseAddr("127.0.0.1")))
	require.NoError(t, err)
	defer lis.Close()
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			conns++
			go func(c net.Conn) {
				defer c.Close()
				for {
					if _, err := wire.ReadFrame(c, defaultMaxFrameLen); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	tr := newTestTransport(t)
	peer := netip.MustParseAddr("127.0.0.1")
	for i := 0; i < 3; i++ {
		err := tr.SendQuery(context.Background(), peer, wire.InternodeQuery{OpenQueryID: uint32(i)})
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, conns, "repeated sends to the same peer must reuse one cached connection")
}

func TestEvictClosesAndMarksUnreachable(t *testing.T) {
	tr := newTestTransport(t)
	peer := netip.MustParseAddr("127.0.0.1")
	client, server := net.Pipe()
	defer server.Close()

	tr.mu.Lock()
	tr.conns[internodeAddr(peer)] = client
	tr.mu.Unlock()

	tr.evict(peer, client)

	tr.mu.Lock()
	_, cached := tr.conns[internodeAddr(peer)]
	tr.mu.Unlock()
	assert.False(t, cached)

	status, ok := tr.gossiper.Status(peer)
	require.True(t, ok)
	assert.Equal(t, wire.Dead, status)
}

func TestGossipDialsUncachedConnection(t *testing.T) {
	closeLis := listenInternode(t, func(body []byte) ([]byte, bool) {
		msg, err := wire.DecodeInternodeMessage(body)
		require.NoError(t, err)
		assert.Equal(t, wire.KindGossip, msg.Kind)
		reply := wire.InternodeMessage{From: netip.MustParseAddr("127.0.0.1"), Kind: wire.KindGossip, Body: wire.GossipMessage{From: netip.MustParseAddr("127.0.0.1"), Kind: wire.GossipAck}.Encode()}
		return reply.Encode(), true
	})
	defer closeLis()

	tr := newTestTransport(t)
	peer := netip.MustParseAddr("127.0.0.1")
	reply, err := tr.Gossip(context.Background(), peer, wire.GossipMessage{From: tr.self, Kind: wire.GossipSyn})
	require.NoError(t, err)
	assert.Equal(t, wire.GossipAck, reply.Kind)

	tr.mu.Lock()
	_, cached := tr.conns[internodeAddr(peer)]
	tr.mu.Unlock()
	assert.False(t, cached, "Gossip must not leave its connection in the shared cache")
}
