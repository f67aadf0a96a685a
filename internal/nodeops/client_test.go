package nodeops

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nimbusdb/internal/wire"
)

func readClientFrame(t *testing.T, conn net.Conn) wire.ClientFrame {
	t.Helper()
	body, err := wire.ReadFrame(conn, defaultMaxFrameLen)
	require.NoError(t, err)
	f, err := wire.DecodeClientFrame(body)
	require.NoError(t, err)
	return f
}

func writeClientFrameTo(t *testing.T, conn net.Conn, f wire.ClientFrame) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(conn, f.Encode()))
}

func TestHandleClientConnAuthRejectsWrongPassword(t *testing.T) {
	n := newTestNodeWithTable(t)
	n.cfg.AuthPassword = "sesame"
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		n.handleClientConn(context.Background(), server)
		close(done)
	}()

	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameStartup})
	f := readClientFrame(t, client)
	assert.Equal(t, wire.FrameAuthenticate, f.Kind)

	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameAuthResponse, Body: wire.AuthResponse{Password: "wrong"}.Encode()})
	f = readClientFrame(t, client)
	assert.Equal(t, wire.FrameAuthenticate, f.Kind, "a bad password must re-send Authenticate, not close the connection")

	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameAuthResponse, Body: wire.AuthResponse{Password: "sesame"}.Encode()})
	f = readClientFrame(t, client)
	assert.Equal(t, wire.FrameAuthSuccess, f.Kind)

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleClientConn did not exit after connection closed")
	}
}

func TestHandleClientConnRunsQueryAfterAuth(t *testing.T) {
	n := newTestNodeWithTable(t)
	n.cfg.AuthPassword = ""
	client, server := net.Pipe()
	defer client.Close()

	go n.handleClientConn(context.Background(), server)

	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameStartup})
	require.Equal(t, wire.FrameAuthenticate, readClientFrame(t, client).Kind)
	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameAuthResponse, Body: wire.AuthResponse{}.Encode()})
	require.Equal(t, wire.FrameAuthSuccess, readClientFrame(t, client).Kind)

	q := wire.ClientQuery{
		QueryString: "INSERT INTO sky.flights (route, gate) VALUES ('AA1', 'G1')",
		Consistency: "one",
	}
	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameQuery, Body: q.Encode()})
	f := readClientFrame(t, client)
	assert.Equal(t, wire.FrameResultVoid, f.Kind)

	sel := wire.ClientQuery{QueryString: "SELECT * FROM sky.flights WHERE route = 'AA1'", Consistency: "one"}
	writeClientFrameTo(t, client, wire.ClientFrame{Kind: wire.FrameQuery, Body: sel.Encode()})
	f = readClientFrame(t, client)
	require.Equal(t, wire.FrameResultRows, f.Kind)
	rows, err := wire.DecodeResultRows(f.Body)
	require.NoError(t, err)
	require.Len(t, rows.Rows, 1)
}
