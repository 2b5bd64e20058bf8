// Package codec implements the decompress-only codecs the storage-image
// and file-system decoders need: deflate/zlib, bzip2, LZFSE/LZVN, LZMA,
// ADC, LZNT1, LZXPRESS and a generic Huffman decoder. None of these
// support compression; every entry point here takes a compressed byte
// slice and returns the decoded bytes. The ADC, XPRESS-Huffman, LZVN
// and LZMA entry points also take the expected output size.
package codec

import (
	kerr "github.com/keramics/keramics/pkg/errors"
)

// decoderErr wraps a low-level codec failure as a KindDecoder trace
// error rooted at "codec.<name>".
func decoderErr(name, message string) *kerr.TraceError {
	return kerr.New(kerr.KindDecoder, "codec."+name, message)
}
