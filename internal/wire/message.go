package wire

import (
	"net/netip"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// MessageKind tags an InternodeMessage's body type.
type MessageKind uint8

const (
	KindQuery MessageKind = iota
	KindResponse
	KindGossip
)

// InternodeMessage is the outermost internode frame: from-ip(4) +
// kind(1) + body, where body is the pre-encoded Query/Response/Gossip
// payload (spec §4.2). This is what ReadFrame/WriteFrame exchange on the
// plaintext internode TCP listener (spec §4.8).
type InternodeMessage struct {
	From netip.Addr
	Kind MessageKind
	Body []byte
}

func (m InternodeMessage) Encode() []byte {
	e := &encoder{}
	ip4 := m.From.As4()
	e.writeRaw(ip4[:])
	e.writeUint8(uint8(m.Kind))
	e.writeRaw(m.Body)
	return e.bytes()
}

func DecodeInternodeMessage(b []byte) (InternodeMessage, error) {
	d := newDecoder(b)
	raw, err := d.readRaw(4)
	if err != nil {
		return InternodeMessage{}, err
	}
	from := netip.AddrFrom4([4]byte(raw))
	kindByte, err := d.readUint8()
	if err != nil {
		return InternodeMessage{}, err
	}
	if kindByte > uint8(KindGossip) {
		return InternodeMessage{}, nimberr.Decodef("invalid internode message kind %d", kindByte)
	}
	return InternodeMessage{From: from, Kind: MessageKind(kindByte), Body: d.buf}, nil
}
