package wire

import "net/netip"

// Heartbeat is a node's (generation, version) pair. Generation is the
// node-start epoch; version increments on every gossip tick and on every
// application-state change. Ordering is lexicographic (generation,
// version), per spec §3 invariant I1.
type Heartbeat struct {
	GenerationLo uint64
	GenerationHi uint64
	Version      uint32
}

// Less reports whether h sorts strictly before other.
func (h Heartbeat) Less(other Heartbeat) bool {
	if h.GenerationHi != other.GenerationHi {
		return h.GenerationHi < other.GenerationHi
	}
	if h.GenerationLo != other.GenerationLo {
		return h.GenerationLo < other.GenerationLo
	}
	return h.Version < other.Version
}

// Equal reports whether h and other are the same (generation, version).
func (h Heartbeat) Equal(other Heartbeat) bool {
	return h.GenerationHi == other.GenerationHi && h.GenerationLo == other.GenerationLo && h.Version == other.Version
}

func (h Heartbeat) encode(e *encoder) {
	e.writeUint128(h.GenerationLo, h.GenerationHi)
	e.writeUint32(h.Version)
}

func decodeHeartbeat(d *decoder) (Heartbeat, error) {
	lo, hi, err := d.readUint128()
	if err != nil {
		return Heartbeat{}, err
	}
	v, err := d.readUint32()
	if err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat{GenerationLo: lo, GenerationHi: hi, Version: v}, nil
}

// Digest is a compact witness of an endpoint's heartbeat: just enough to
// compare staleness without shipping the full application state.
type Digest struct {
	Addr      netip.Addr
	Heartbeat Heartbeat
}

func (d Digest) encode(e *encoder) {
	ip4 := d.Addr.As4()
	e.writeRaw(ip4[:])
	d.Heartbeat.encode(e)
}

func decodeDigest(d *decoder) (Digest, error) {
	raw, err := d.readRaw(4)
	if err != nil {
		return Digest{}, err
	}
	addr := netip.AddrFrom4([4]byte(raw))
	hb, err := decodeHeartbeat(d)
	if err != nil {
		return Digest{}, err
	}
	return Digest{Addr: addr, Heartbeat: hb}, nil
}

// EncodeDigest/DecodeDigest expose the Digest codec standalone for tests
// and for callers (e.g. the gossiper) that serialize a single digest
// outside of a larger frame.
func EncodeDigest(d Digest) []byte {
	e := &encoder{}
	d.encode(e)
	return e.bytes()
}

func DecodeDigest(b []byte) (Digest, error) {
	d := newDecoder(b)
	v, err := decodeDigest(d)
	if err != nil {
		return Digest{}, err
	}
	return v, d.expectEmpty()
}
