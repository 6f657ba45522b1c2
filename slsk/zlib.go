package slsk

import (
	"bytes"
	"compress/zlib"
	"io"
)

// inflate decompresses a zlib-wrapped payload. Decompression failure
// surfaces as a decode error to the caller, who attaches family/code
// context.
func inflate(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// deflate compresses a payload with zlib, the transparent compression
// SharesReply and SearchReply use on the wire.
func deflate(raw []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(raw)
	_ = w.Close()
	return buf.Bytes()
}
