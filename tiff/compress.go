package tiff

// Compression schemes (defined in various places in the spec and
// supplements). Only the ones the HDR decoder meets are named.
const (
	cNone       = 1
	cLZW        = 5
	cDeflate    = 8 // zlib compression.
	cPackBits   = 32773
	cDeflateOld = 32946 // Superseded by cDeflate.
	cSGILogRLE  = 34676 // LogL and LogLuv strips.
)

// unpackBits decodes PackBits-compressed data, as described in
// section 9 (p. 42) of the TIFF spec.
func unpackBits(src []byte) ([]byte, error) {
	dst := make([]byte, 0, 2*len(src))
	for len(src) > 0 {
		code := int(int8(src[0]))
		src = src[1:]
		switch {
		case code >= 0:
			if len(src) < code+1 {
				return nil, TruncatedError("PackBits literal run")
			}
			dst = append(dst, src[:code+1]...)
			src = src[code+1:]
		case code == -128:
			// No-op.
		default:
			if len(src) < 1 {
				return nil, TruncatedError("PackBits replicate run")
			}
			for j := 0; j < 1-code; j++ {
				dst = append(dst, src[0])
			}
			src = src[1:]
		}
	}
	return dst, nil
}

// unRLE decodes the SGI Log run-length encoding used by LogLuv and LogL
// strips. Each of the pixel's byte planes is encoded separately per
// scanline and the output is interleaved.
func unRLE(src []byte, bytesPerPixel, width, height int) ([]byte, error) {
	dst := make([]byte, width*height*bytesPerPixel)

	next := func() (byte, error) {
		if len(src) == 0 {
			return 0, TruncatedError("SGI RLE stream")
		}
		b := src[0]
		src = src[1:]
		return b, nil
	}

	for row := 0; row < height; row++ {
		rowOffset := row * width * bytesPerPixel
		for plane := 0; plane < bytesPerPixel; plane++ {
			offset := rowOffset + plane
			for pixels := width; pixels > 0; {
				b, err := next()
				if err != nil {
					return nil, err
				}
				run := int(b)
				if b&128 != 0 {
					// A run of the same value.
					run += 2 - 128
					if b, err = next(); err != nil {
						return nil, err
					}
					pixels -= run
					for ; run > 0; run-- {
						dst[offset] = b
						offset += bytesPerPixel
					}
				} else {
					// A non-run, copied data.
					pixels -= run
					for ; run > 0; run-- {
						if b, err = next(); err != nil {
							return nil, err
						}
						dst[offset] = b
						offset += bytesPerPixel
					}
				}
				if pixels < 0 {
					return nil, FormatError("SGI RLE run overflow")
				}
			}
		}
	}
	return dst, nil
}
