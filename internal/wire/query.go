package wire

// InternodeQuery carries a coordinator-dispatched query to a replica: the
// raw query string (the parser is out of scope for this spec; replicas
// re-parse it locally), the open-query id the replica must echo back in
// its InternodeResponse, the client connection id (for diagnostics), the
// replication flag (is this a primary write/read or a replica copy), the
// target keyspace, and the write timestamp (spec §4.2, §4.7).
type InternodeQuery struct {
	QueryString  string
	OpenQueryID  uint32
	ClientID     uint32
	Replication  bool
	KeyspaceName string
	Timestamp    int64
}

func (q InternodeQuery) Encode() []byte {
	e := &encoder{}
	e.writeString(q.QueryString)
	e.writeUint32(q.OpenQueryID)
	e.writeUint32(q.ClientID)
	e.writeBool(q.Replication)
	e.writeString(q.KeyspaceName)
	e.writeInt64(q.Timestamp)
	return e.bytes()
}

func DecodeInternodeQuery(b []byte) (InternodeQuery, error) {
	d := newDecoder(b)
	qs, err := d.readString()
	if err != nil {
		return InternodeQuery{}, err
	}
	oqid, err := d.readUint32()
	if err != nil {
		return InternodeQuery{}, err
	}
	cid, err := d.readUint32()
	if err != nil {
		return InternodeQuery{}, err
	}
	repl, err := d.readBool()
	if err != nil {
		return InternodeQuery{}, err
	}
	ks, err := d.readString()
	if err != nil {
		return InternodeQuery{}, err
	}
	ts, err := d.readInt64()
	if err != nil {
		return InternodeQuery{}, err
	}
	return InternodeQuery{
		QueryString:  qs,
		OpenQueryID:  oqid,
		ClientID:     cid,
		Replication:  repl,
		KeyspaceName: ks,
		Timestamp:    ts,
	}, d.expectEmpty()
}
