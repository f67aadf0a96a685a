// Package wire implements the internode binary message framing described
// in spec section 4.2: fixed-width big-endian integers, length-prefixed
// strings and lists, and one-byte-tagged optionals. Every decoder is
// bounds-checked against the remaining buffer; a truncated or malformed
// frame returns a *nimberr.Error of KindDecode rather than panicking, so
// the caller (the internode connection handler) can close the offending
// connection without taking down the node (spec §4.2, §7, §9).
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// encoder accumulates an internode frame's bytes.
type encoder struct {
	buf []byte
}

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) writeUint8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeUint128(lo, hi uint64) {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], hi)
	binary.BigEndian.PutUint64(b[8:16], lo)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeRaw(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) writeString(s string) {
	e.writeUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) writeBool(b bool) {
	if b {
		e.writeUint8(1)
	} else {
		e.writeUint8(0)
	}
}

// decoder consumes a frame's bytes, tracking the remaining slice so every
// read can be bounds-checked.
type decoder struct {
	buf []byte
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) need(n int) error {
	if len(d.buf) < n {
		return nimberr.Decodef("need %d bytes, have %d", n, len(d.buf))
	}
	return nil
}

func (d *decoder) readUint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[0]
	d.buf = d.buf[1:]
	return v, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[:4])
	d.buf = d.buf[4:]
	return v, nil
}

func (d *decoder) readInt64() (int64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(d.buf[:8]))
	d.buf = d.buf[8:]
	return v, nil
}

// readUint128 returns a generation value as (lo, hi) 64-bit halves; the
// wire format is a plain 16-byte big-endian integer, which nimbusdb
// never needs arithmetic on beyond equality/ordering, so it is kept split
// rather than promoted to a math/big.Int.
func (d *decoder) readUint128() (lo, hi uint64, err error) {
	if err := d.need(16); err != nil {
		return 0, 0, err
	}
	hi = binary.BigEndian.Uint64(d.buf[0:8])
	lo = binary.BigEndian.Uint64(d.buf[8:16])
	d.buf = d.buf[16:]
	return lo, hi, nil
}

func (d *decoder) readRaw(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	v := d.buf[:n]
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	if n > uint32(len(d.buf)) {
		return "", nimberr.Decodef("string length %d exceeds remaining %d", n, len(d.buf))
	}
	b, err := d.readRaw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readBool() (bool, error) {
	v, err := d.readUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, nimberr.Decodef("invalid bool tag %d", v)
	}
}

// readCount reads a uint32 element count for a slice/map the caller is
// about to preallocate with make(..., n), and rejects it before that
// allocation happens if the remaining buffer couldn't possibly hold
// that many elements (each at least minElemSize bytes) — mirroring
// readString's own bounds check above. Without this, a malformed frame
// declaring a count near math.MaxUint32 forces a multi-gigabyte
// allocation instead of failing with a DecodeError (spec §4.2, §7).
func (d *decoder) readCount(minElemSize int) (uint32, error) {
	n, err := d.readUint32()
	if err != nil {
		return 0, err
	}
	if minElemSize > 0 && uint64(n) > uint64(len(d.buf))/uint64(minElemSize) {
		return 0, nimberr.Decodef("element count %d exceeds what remaining %d bytes could hold", n, len(d.buf))
	}
	return n, nil
}

func (d *decoder) remaining() int { return len(d.buf) }

func (d *decoder) expectEmpty() error {
	if len(d.buf) != 0 {
		return nimberr.Decodef("trailing %d bytes after frame", len(d.buf))
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r: a 4-byte big-endian
// length followed by that many bytes. This is the outer framing used by
// both the client and internode TCP listeners so a single read loop can
// hand complete frames to the appropriate decoder.
func ReadFrame(r interface{ Read([]byte) (int, error) }, maxLen uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxLen {
		return nil, nimberr.Decodef("frame length %d exceeds max %d", n, maxLen)
	}
	body := make([]byte, n)
	if _, err := readFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame prepends a 4-byte big-endian length to body and writes both
// to w in one call.
func WriteFrame(w interface{ Write([]byte) (int, error) }, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
