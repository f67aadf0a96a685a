package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFrameRoundTrip(t *testing.T) {
	f := ClientFrame{Kind: FrameQuery, Body: ClientQuery{QueryString: "SELECT * FROM sky.flights", Consistency: "quorum"}.Encode()}
	got, err := DecodeClientFrame(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, FrameQuery, got.Kind)
	q, err := DecodeClientQuery(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM sky.flights", q.QueryString)
	assert.Equal(t, "quorum", q.Consistency)
}

func TestAuthResponseRoundTrip(t *testing.T) {
	got, err := DecodeAuthResponse(AuthResponse{Password: "hunter2"}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Password)
}

func TestResultRowsRoundTrip(t *testing.T) {
	r := ResultRows{
		Columns: []string{"route", "gate"},
		Rows:    []Row{{Values: []string{"BOS-JFK", "A1"}, Timestamp: 100}},
	}
	got, err := DecodeResultRows(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestResultSetKeyspaceRoundTrip(t *testing.T) {
	got, err := DecodeResultSetKeyspace(ResultSetKeyspace{Keyspace: "sky"}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "sky", got.Keyspace)
}

func TestClientErrorRoundTrip(t *testing.T) {
	got, err := DecodeClientError(ClientError{Message: "schema: keyspace not found"}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "schema: keyspace not found", got.Message)
}

func TestDecodeClientFrameRejectsUnknownKind(t *testing.T) {
	_, err := DecodeClientFrame([]byte{0xff})
	assert.Error(t, err)
}
