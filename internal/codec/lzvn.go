package codec

import kerr "github.com/keramics/keramics/pkg/errors"

// DecompressLZVN decompresses an LZVN-coded byte run to expectedSize
// bytes. LZVN payloads are only known to appear wrapped in an outer
// LZFSE "bvxv" block in this codebase's test corpus; no LZVN-only image
// has been exercised against this decoder.
//
// The opcode table is not reproduced here: Apple's distance/length
// bit-packing for LZVN is not available with enough confidence to
// implement without a reference to check against, and a wrong-but-
// plausible-looking decode is worse than an explicit unsupported error.
func DecompressLZVN(data []byte, expectedSize int) ([]byte, error) {
	_ = expectedSize
	if len(data) == 0 {
		return nil, nil
	}
	return nil, kerr.New(kerr.KindUnsupported, "lzvn", "LZVN opcode decoding is not implemented")
}
