package wire

import (
	"net/netip"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// Syn is the initiating gossip message: the sender's view of every
// endpoint it knows, reduced to digests (spec §4.4 step 4).
type Syn struct {
	Digests []Digest
}

func (s Syn) Encode() []byte {
	e := &encoder{}
	e.writeUint32(uint32(len(s.Digests)))
	for _, d := range s.Digests {
		d.encode(e)
	}
	return e.bytes()
}

// digestMinSize is a Digest's smallest possible encoded size: 4-byte
// IPv4 address + 16-byte generation + 4-byte version.
const digestMinSize = 4 + 16 + 4

func DecodeSyn(b []byte) (Syn, error) {
	d := newDecoder(b)
	n, err := d.readCount(digestMinSize)
	if err != nil {
		return Syn{}, err
	}
	digests := make([]Digest, 0, n)
	for i := uint32(0); i < n; i++ {
		dg, err := decodeDigest(d)
		if err != nil {
			return Syn{}, err
		}
		digests = append(digests, dg)
	}
	return Syn{Digests: digests}, d.expectEmpty()
}

// AckInfo pairs a digest with the full application state the sender is
// pushing for it, used in both Ack.UpdatedInfo and Ack2.UpdatedInfo.
type AckInfo struct {
	Digest Digest
	State  ApplicationState
}

func (a AckInfo) encode(e *encoder) {
	a.Digest.encode(e)
	a.State.encode(e)
}

func decodeAckInfo(d *decoder) (AckInfo, error) {
	dg, err := decodeDigest(d)
	if err != nil {
		return AckInfo{}, err
	}
	st, err := decodeApplicationState(d)
	if err != nil {
		return AckInfo{}, err
	}
	return AckInfo{Digest: dg, State: st}, nil
}

// Ack replies to a Syn: StaleDigests asks the peer to push full state for
// endpoints where we're behind; UpdatedInfo pushes full state for
// endpoints where we're ahead (spec §4.4).
type Ack struct {
	StaleDigests []Digest
	UpdatedInfo  []AckInfo
}

// Spec §4.2 frames each AckInfo entry with a leading 4-byte tag before
// the Digest+AppState pair; nimbusdb doesn't need the tag to
// disambiguate entry types (UpdatedInfo is homogeneous), so it is
// written as a fixed sentinel and verified, not interpreted, on decode.
const ackInfoTag uint32 = 0x41434b31 // "ACK1"

func (a Ack) Encode() []byte {
	e := &encoder{}
	e.writeUint32(uint32(len(a.StaleDigests)))
	for _, d := range a.StaleDigests {
		d.encode(e)
	}
	e.writeUint32(uint32(len(a.UpdatedInfo)))
	for _, info := range a.UpdatedInfo {
		e.writeUint32(ackInfoTag)
		info.encode(e)
	}
	return e.bytes()
}

// appStateMinSize is an ApplicationState's smallest possible encoded
// size: status(4) + version(4) + an empty Schema (timestamp(8) +
// keyspaces-count(4)).
const appStateMinSize = 4 + 4 + 8 + 4

// ackInfoMinSize is an AckInfo's smallest possible encoded size: a
// Digest plus a minimal ApplicationState. ackInfoEntryMinSize adds the
// leading 4-byte tag Ack writes before each UpdatedInfo entry (Ack2
// writes no tag).
const ackInfoMinSize = digestMinSize + appStateMinSize
const ackInfoEntryMinSize = 4 + ackInfoMinSize

func DecodeAck(b []byte) (Ack, error) {
	d := newDecoder(b)
	staleN, err := d.readCount(digestMinSize)
	if err != nil {
		return Ack{}, err
	}
	stale := make([]Digest, 0, staleN)
	for i := uint32(0); i < staleN; i++ {
		dg, err := decodeDigest(d)
		if err != nil {
			return Ack{}, err
		}
		stale = append(stale, dg)
	}
	infoN, err := d.readCount(ackInfoEntryMinSize)
	if err != nil {
		return Ack{}, err
	}
	info := make([]AckInfo, 0, infoN)
	for i := uint32(0); i < infoN; i++ {
		tag, err := d.readUint32()
		if err != nil {
			return Ack{}, err
		}
		if tag != ackInfoTag {
			return Ack{}, nimberr.Decodef("invalid ack info tag %#x", tag)
		}
		ai, err := decodeAckInfo(d)
		if err != nil {
			return Ack{}, err
		}
		info = append(info, ai)
	}
	return Ack{StaleDigests: stale, UpdatedInfo: info}, d.expectEmpty()
}

// Ack2 is the final leg of the SYN/ACK/ACK2 exchange, pushing full state
// for every digest the peer marked stale in its Ack (spec §4.4).
type Ack2 struct {
	UpdatedInfo []AckInfo
}

func (a Ack2) Encode() []byte {
	e := &encoder{}
	e.writeUint32(uint32(len(a.UpdatedInfo)))
	for _, info := range a.UpdatedInfo {
		info.encode(e)
	}
	return e.bytes()
}

func DecodeAck2(b []byte) (Ack2, error) {
	d := newDecoder(b)
	n, err := d.readCount(ackInfoMinSize)
	if err != nil {
		return Ack2{}, err
	}
	info := make([]AckInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		ai, err := decodeAckInfo(d)
		if err != nil {
			return Ack2{}, err
		}
		info = append(info, ai)
	}
	return Ack2{UpdatedInfo: info}, d.expectEmpty()
}

// GossipPayloadKind tags which of Syn/Ack/Ack2 a GossipMessage carries.
type GossipPayloadKind uint8

const (
	GossipSyn GossipPayloadKind = iota
	GossipAck
	GossipAck2
)

// GossipMessage wraps a Syn/Ack/Ack2 payload with the sender's address,
// per spec §4.2's "from-ip(4) + payload-tag(1) + payload".
type GossipMessage struct {
	From    netip.Addr
	Kind    GossipPayloadKind
	Payload []byte // pre-encoded Syn/Ack/Ack2 body
}

func (g GossipMessage) Encode() []byte {
	e := &encoder{}
	ip4 := g.From.As4()
	e.writeRaw(ip4[:])
	e.writeUint8(uint8(g.Kind))
	e.writeRaw(g.Payload)
	return e.bytes()
}

func DecodeGossipMessage(b []byte) (GossipMessage, error) {
	d := newDecoder(b)
	raw, err := d.readRaw(4)
	if err != nil {
		return GossipMessage{}, err
	}
	from := netip.AddrFrom4([4]byte(raw))
	kindByte, err := d.readUint8()
	if err != nil {
		return GossipMessage{}, err
	}
	if kindByte > uint8(GossipAck2) {
		return GossipMessage{}, nimberr.Decodef("invalid gossip payload kind %d", kindByte)
	}
	return GossipMessage{From: from, Kind: GossipPayloadKind(kindByte), Payload: d.buf}, nil
}
