package slsk

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Reader decodes the primitive Soulseek wire types (little-endian
// integers, length-prefixed strings, reverse-order IPv4 addresses, and
// single-byte booleans) out of one frame's payload bytes.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many unread bytes are left in this frame.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// String reads a u32 length prefix followed by that many raw bytes.
func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// Bytes reads a u32 length prefix followed by that many raw bytes,
// returned as a copy (safe to retain past the frame's lifetime).
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// RawRemaining returns every unread byte in the frame as a copy, without
// a length prefix (used for the zlib-compressed tail of SharesReply /
// SearchReply, and for opaque Unknown payloads).
func (r *Reader) RawRemaining() []byte {
	out := make([]byte, r.Remaining())
	copy(out, r.buf[r.pos:])
	r.pos = len(r.buf)
	return out
}

// IPv4 reads four bytes in Soulseek's reversed dotted-notation order and
// returns them in normal (a.b.c.d) order.
func (r *Reader) IPv4() ([4]byte, error) {
	var ip [4]byte
	if err := r.need(4); err != nil {
		return ip, err
	}
	ip[0], ip[1], ip[2], ip[3] = r.buf[r.pos+3], r.buf[r.pos+2], r.buf[r.pos+1], r.buf[r.pos]
	r.pos += 4
	return ip, nil
}

// U32Slice reads a u32 count followed by that many u32 elements, used by
// a handful of server messages (e.g. room user-count vectors).
func (r *Reader) U32Slice() ([]uint32, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i], err = r.U32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// StringSlice reads a u32 count followed by that many length-prefixed
// strings, used by vector-of-string server messages (e.g. RoomList).
func (r *Reader) StringSlice() ([]string, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = r.String()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Writer accumulates a message payload (everything after length+code) in
// wire order. Callers write length+code themselves via WriteHeader once
// the payload is complete, since the length must be known up front.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) U8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) String(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *Writer) Bytes(p []byte) {
	w.U32(uint32(len(p)))
	w.buf.Write(p)
}

// Raw appends bytes without any length prefix (used to splice in a
// zlib-compressed payload after writing its own size has already happened
// some other way, or to append already-framed sub-messages).
func (w *Writer) Raw(p []byte) { w.buf.Write(p) }

func (w *Writer) IPv4(ip [4]byte) {
	w.buf.Write([]byte{ip[3], ip[2], ip[1], ip[0]})
}

func (w *Writer) Len() int { return w.buf.Len() }

// Payload returns the accumulated bytes written so far.
func (w *Writer) Payload() []byte { return w.buf.Bytes() }
