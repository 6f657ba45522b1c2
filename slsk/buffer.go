package slsk

// Buffer is a growable accumulator for bytes read off a TCP stream. Each
// connection owns exactly one; decode only advances the cursor on success
// so an incomplete frame never loses unconsumed bytes.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer with a small initial capacity, mirroring
// the 4KiB starting allocation peer connections use on the wire.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, 4096)}
}

// Fill appends freshly read bytes to the buffer.
func (b *Buffer) Fill(p []byte) {
	b.data = append(b.data, p...)
}

// Len reports how many unconsumed bytes remain.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes exposes the unconsumed bytes for reading without consuming them.
func (b *Buffer) Bytes() []byte { return b.data }

// Advance drops n bytes from the front of the buffer. It must only be
// called after a successful decode, by exactly header length + declared
// body length.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	copy(b.data, b.data[n:])
	b.data = b.data[:len(b.data)-n]
}
