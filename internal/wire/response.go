package wire

// ResponseStatus tags an InternodeResponse as success or failure.
type ResponseStatus uint8

const (
	StatusOK  ResponseStatus = 0
	StatusErr ResponseStatus = 1
)

// Row is one on-wire result row: its column values in table-declared
// order, plus the write timestamp used for read-repair comparisons
// (spec §4.6).
type Row struct {
	Values    []string
	Timestamp int64
}

func (r Row) encode(e *encoder) {
	e.writeUint32(uint32(len(r.Values)))
	for _, v := range r.Values {
		e.writeString(v)
	}
	e.writeInt64(r.Timestamp)
}

// rowValueMinSize is one Row value's smallest possible encoded size: an
// empty length-prefixed string.
const rowValueMinSize = 4

func decodeRow(d *decoder) (Row, error) {
	n, err := d.readCount(rowValueMinSize)
	if err != nil {
		return Row{}, err
	}
	vals := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.readString()
		if err != nil {
			return Row{}, err
		}
		vals = append(vals, v)
	}
	ts, err := d.readInt64()
	if err != nil {
		return Row{}, err
	}
	return Row{Values: vals, Timestamp: ts}, nil
}

// InternodeResponse is a replica's reply to an InternodeQuery: either an
// error message, or (for OK responses) the full column header, the
// client's projected column list, and the matching rows (spec §3, §4.2).
type InternodeResponse struct {
	OpenQueryID   uint32
	Status        ResponseStatus
	ErrorMessage  string
	Columns       []string
	SelectColumns []string
	Rows          []Row
}

func (r InternodeResponse) Encode() []byte {
	e := &encoder{}
	e.writeUint32(r.OpenQueryID)
	e.writeUint8(uint8(r.Status))
	switch r.Status {
	case StatusErr:
		e.writeString(r.ErrorMessage)
	default:
		e.writeUint32(uint32(len(r.Columns)))
		for _, c := range r.Columns {
			e.writeString(c)
		}
		e.writeUint32(uint32(len(r.SelectColumns)))
		for _, c := range r.SelectColumns {
			e.writeString(c)
		}
		e.writeUint32(uint32(len(r.Rows)))
		for _, row := range r.Rows {
			row.encode(e)
		}
	}
	return e.bytes()
}

func DecodeInternodeResponse(b []byte) (InternodeResponse, error) {
	d := newDecoder(b)
	id, err := d.readUint32()
	if err != nil {
		return InternodeResponse{}, err
	}
	statusByte, err := d.readUint8()
	if err != nil {
		return InternodeResponse{}, err
	}
	resp := InternodeResponse{OpenQueryID: id, Status: ResponseStatus(statusByte)}
	if resp.Status == StatusErr {
		msg, err := d.readString()
		if err != nil {
			return InternodeResponse{}, err
		}
		resp.ErrorMessage = msg
		return resp, d.expectEmpty()
	}
	colN, err := d.readUint32()
	if err != nil {
		return InternodeResponse{}, err
	}
	for i := uint32(0); i < colN; i++ {
		c, err := d.readString()
		if err != nil {
			return InternodeResponse{}, err
		}
		resp.Columns = append(resp.Columns, c)
	}
	selN, err := d.readUint32()
	if err != nil {
		return InternodeResponse{}, err
	}
	for i := uint32(0); i < selN; i++ {
		c, err := d.readString()
		if err != nil {
			return InternodeResponse{}, err
		}
		resp.SelectColumns = append(resp.SelectColumns, c)
	}
	rowN, err := d.readUint32()
	if err != nil {
		return InternodeResponse{}, err
	}
	for i := uint32(0); i < rowN; i++ {
		row, err := decodeRow(d)
		if err != nil {
			return InternodeResponse{}, err
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp, d.expectEmpty()
}
