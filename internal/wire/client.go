package wire

import "github.com/dreamware/nimbusdb/internal/nimberr"

// ClientFrameKind tags a frame on the client-facing TLS connection
// (spec §6). The client protocol's exact byte-for-byte layout is out of
// scope for this spec ("client wire framing: we specify only frame
// kinds") — this package gives each named frame kind a concrete,
// length-prefixed encoding in the same style as the internode frames, so
// the TLS listener's Startup/Authenticate/Authenticated state machine
// has something real to read and write.
type ClientFrameKind uint8

const (
	FrameStartup ClientFrameKind = iota
	FrameAuthenticate
	FrameAuthResponse
	FrameAuthSuccess
	FrameQuery
	FrameResultVoid
	FrameResultRows
	FrameResultSchemaChange
	FrameResultSetKeyspace
	FrameError
)

// ClientFrame is the outermost client-connection frame: kind(1) + body,
// where body is the pre-encoded payload for that kind (empty for
// Startup/Authenticate/AuthSuccess/ResultVoid).
type ClientFrame struct {
	Kind ClientFrameKind
	Body []byte
}

func (f ClientFrame) Encode() []byte {
	e := &encoder{}
	e.writeUint8(uint8(f.Kind))
	e.writeRaw(f.Body)
	return e.bytes()
}

func DecodeClientFrame(b []byte) (ClientFrame, error) {
	d := newDecoder(b)
	kindByte, err := d.readUint8()
	if err != nil {
		return ClientFrame{}, err
	}
	if kindByte > uint8(FrameError) {
		return ClientFrame{}, nimberr.Decodef("invalid client frame kind %d", kindByte)
	}
	return ClientFrame{Kind: ClientFrameKind(kindByte), Body: d.buf}, nil
}

// AuthResponse carries the client's claimed password (spec §6's
// AuthResponse(password)).
type AuthResponse struct {
	Password string
}

func (a AuthResponse) Encode() []byte {
	e := &encoder{}
	e.writeString(a.Password)
	return e.bytes()
}

func DecodeAuthResponse(b []byte) (AuthResponse, error) {
	d := newDecoder(b)
	pw, err := d.readString()
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Password: pw}, d.expectEmpty()
}

// ClientQuery carries a client's raw query string and requested
// consistency level (spec §6's Query(string, consistency)).
type ClientQuery struct {
	QueryString string
	Consistency string
}

func (q ClientQuery) Encode() []byte {
	e := &encoder{}
	e.writeString(q.QueryString)
	e.writeString(q.Consistency)
	return e.bytes()
}

func DecodeClientQuery(b []byte) (ClientQuery, error) {
	d := newDecoder(b)
	qs, err := d.readString()
	if err != nil {
		return ClientQuery{}, err
	}
	level, err := d.readString()
	if err != nil {
		return ClientQuery{}, err
	}
	return ClientQuery{QueryString: qs, Consistency: level}, d.expectEmpty()
}

// ResultRows is the body of a FrameResultRows response: the projected
// column list and the matching rows, after read repair and
// ORDER BY/LIMIT have already been applied (spec §4.6, §4.7).
type ResultRows struct {
	Columns []string
	Rows    []Row
}

func (r ResultRows) Encode() []byte {
	e := &encoder{}
	e.writeUint32(uint32(len(r.Columns)))
	for _, c := range r.Columns {
		e.writeString(c)
	}
	e.writeUint32(uint32(len(r.Rows)))
	for _, row := range r.Rows {
		row.encode(e)
	}
	return e.bytes()
}

func DecodeResultRows(b []byte) (ResultRows, error) {
	d := newDecoder(b)
	colN, err := d.readUint32()
	if err != nil {
		return ResultRows{}, err
	}
	cols := make([]string, 0, colN)
	for i := uint32(0); i < colN; i++ {
		c, err := d.readString()
		if err != nil {
			return ResultRows{}, err
		}
		cols = append(cols, c)
	}
	rowN, err := d.readUint32()
	if err != nil {
		return ResultRows{}, err
	}
	rows := make([]Row, 0, rowN)
	for i := uint32(0); i < rowN; i++ {
		row, err := decodeRow(d)
		if err != nil {
			return ResultRows{}, err
		}
		rows = append(rows, row)
	}
	return ResultRows{Columns: cols, Rows: rows}, d.expectEmpty()
}

// ResultSetKeyspace is the body of a FrameResultSetKeyspace response: the
// keyspace a USE statement switched the client session to.
type ResultSetKeyspace struct {
	Keyspace string
}

func (r ResultSetKeyspace) Encode() []byte {
	e := &encoder{}
	e.writeString(r.Keyspace)
	return e.bytes()
}

func DecodeResultSetKeyspace(b []byte) (ResultSetKeyspace, error) {
	d := newDecoder(b)
	ks, err := d.readString()
	if err != nil {
		return ResultSetKeyspace{}, err
	}
	return ResultSetKeyspace{Keyspace: ks}, d.expectEmpty()
}

// ClientError is the body of a FrameError response: a short,
// stack-trace-free description (spec §7's "no stack traces and no
// retriable hints").
type ClientError struct {
	Message string
}

func (e ClientError) Encode() []byte {
	enc := &encoder{}
	enc.writeString(e.Message)
	return enc.bytes()
}

func DecodeClientError(b []byte) (ClientError, error) {
	d := newDecoder(b)
	msg, err := d.readString()
	if err != nil {
		return ClientError{}, err
	}
	return ClientError{Message: msg}, d.expectEmpty()
}
