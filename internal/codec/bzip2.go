package codec

import (
	"bytes"
	"compress/bzip2"
	"io"
)

// InflateBzip2 decompresses a bzip2 stream, as used by UDIF bzip2
// block-table entries. The standard library's bzip2 reader is
// decompress-only, matching this package's contract exactly.
func InflateBzip2(compressed []byte) ([]byte, error) {
	r := bzip2.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, decoderErr("bzip2", err.Error())
	}
	return out, nil
}
