package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// InflateRaw decompresses a raw (headerless) DEFLATE stream, as used by
// EWF compressed chunks and QCOW2 compressed clusters.
func InflateRaw(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, decoderErr("deflate", err.Error())
	}
	return out, nil
}

// InflateZlib decompresses a zlib-wrapped DEFLATE stream (2-byte header,
// Adler-32 trailer), as used by UDIF zlib block-table entries.
func InflateZlib(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, decoderErr("zlib", err.Error())
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, decoderErr("zlib", err.Error())
	}
	return out, nil
}
