package fiv

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"os"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"

	"github.com/pjanx/fiv-sub001/cms"
	"github.com/pjanx/fiv-sub001/surface"
)

// ExportWebP encodes a frame, or the whole frame cycle it belongs to,
// as a lossless WebP with the head surface's metadata attached. A non-nil
// icc overrides the profile embedded in the source.
func ExportWebP(head, frame *surface.Surface, icc []byte) ([]byte, error) {
	if icc == nil {
		icc = head.ICC
	}

	var frames []*surface.Surface
	frame.EachFrame(func(f *surface.Surface) {
		frames = append(frames, f)
	})
	animated := len(frames) > 1

	type encoded struct {
		chunks   []riffChunk
		duration int
	}
	var streams []encoded
	width, height := frame.Width, frame.Height
	anyALPH := false
	for _, f := range frames {
		if f.Width != width || f.Height != height {
			return nil, MalformedError("webp: mismatched frame sizes")
		}
		bitstream, err := encodeWebPFrame(f)
		if err != nil {
			return nil, err
		}
		streams = append(streams, encoded{
			chunks:   bitstream,
			duration: f.Duration,
		})
		for _, c := range bitstream {
			anyALPH = anyALPH || c.id == "ALPH"
		}
	}

	w := newRIFFWriter("WEBP")
	vp8x := make([]byte, 10)
	// VP8L carries its alpha inline; the flag goes with ALPH chunks only,
	// and decoders reject VP8X-alpha over a bare VP8L still.
	if anyALPH {
		vp8x[0] |= 0x10
	}
	if icc != nil {
		vp8x[0] |= 0x20
	}
	if head.Exif != nil {
		vp8x[0] |= 0x08
	}
	if head.XMP != nil {
		vp8x[0] |= 0x04
	}
	if animated {
		vp8x[0] |= 0x02
	}
	putLE24(vp8x[4:], width-1)
	putLE24(vp8x[7:], height-1)
	w.chunk("VP8X", vp8x)

	if icc != nil {
		w.chunk("ICCP", icc)
	}

	if animated {
		anim := make([]byte, 6)
		binary.LittleEndian.PutUint16(anim[4:], uint16(head.LoopCount))
		w.chunk("ANIM", anim)

		for _, s := range streams {
			var payload bytes.Buffer
			header := make([]byte, 16)
			putLE24(header[6:], width-1)
			putLE24(header[9:], height-1)
			putLE24(header[12:], s.duration)
			// Frames are full composites already: do not blend, do not
			// dispose.
			header[15] = 0x02
			payload.Write(header)
			frameChunks(&payload, s.chunks)
			w.chunk("ANMF", payload.Bytes())
		}
	} else {
		for _, c := range streams[0].chunks {
			w.chunk(c.id, c.data)
		}
	}

	if head.Exif != nil {
		w.chunk("EXIF", head.Exif)
	}
	if head.XMP != nil {
		w.chunk("XMP ", head.XMP)
	}
	return w.bytes(), nil
}

func frameChunks(dst *bytes.Buffer, chunks []riffChunk) {
	for _, c := range chunks {
		var header [8]byte
		copy(header[:4], c.id)
		binary.LittleEndian.PutUint32(header[4:], uint32(len(c.data)))
		dst.Write(header[:])
		dst.Write(c.data)
		if len(c.data)&1 != 0 {
			dst.WriteByte(0)
		}
	}
}

// encodeWebPFrame encodes one surface losslessly and extracts the bare
// bitstream chunks back out of the encoder's container.
func encodeWebPFrame(s *surface.Surface) ([]riffChunk, error) {
	img := surfaceToNRGBA(s)

	var buf bytes.Buffer
	err := webp.Encode(&buf, img, &webp.Options{Lossless: true, Exact: true})
	if err != nil {
		return nil, errors.Wrap(err, "webp")
	}
	_, chunks, _, err := parseRIFF(buf.Bytes())
	if err != nil {
		return nil, err
	}

	var bitstream []riffChunk
	for _, c := range chunks {
		switch c.id {
		case "ALPH", "VP8 ", "VP8L":
			bitstream = append(bitstream, c)
		}
	}
	if len(bitstream) == 0 {
		return nil, MalformedError("webp: encoder emitted no bitstream")
	}
	return bitstream, nil
}

// surfaceToNRGBA lifts any surface format back to straight-alpha 8-bit
// RGBA, the encoder's input format.
func surfaceToNRGBA(s *surface.Surface) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	le := binary.LittleEndian

	for y := 0; y < s.Height; y++ {
		src := s.Data[y*s.Stride:]
		dst := img.Pix[y*img.Stride:]
		switch s.Format {
		case surface.ARGB32:
			row := make([]byte, 4*s.Width)
			copy(row, src[:4*s.Width])
			cms.UnpremultiplyARGB32(row)
			for x := 0; x < s.Width; x++ {
				dst[4*x+0] = row[4*x+2]
				dst[4*x+1] = row[4*x+1]
				dst[4*x+2] = row[4*x+0]
				dst[4*x+3] = row[4*x+3]
			}
		case surface.RGB24:
			for x := 0; x < s.Width; x++ {
				dst[4*x+0] = src[4*x+2]
				dst[4*x+1] = src[4*x+1]
				dst[4*x+2] = src[4*x+0]
				dst[4*x+3] = 0xFF
			}
		case surface.RGB30:
			for x := 0; x < s.Width; x++ {
				v := le.Uint32(src[4*x:])
				dst[4*x+0] = byte(v >> 22)
				dst[4*x+1] = byte(v >> 12)
				dst[4*x+2] = byte(v >> 2)
				dst[4*x+3] = 0xFF
			}
		case surface.RGBA128F:
			for x := 0; x < s.Width; x++ {
				r := math.Float32frombits(le.Uint32(src[16*x+0:]))
				g := math.Float32frombits(le.Uint32(src[16*x+4:]))
				b := math.Float32frombits(le.Uint32(src[16*x+8:]))
				a := math.Float32frombits(le.Uint32(src[16*x+12:]))
				if a > 0 && a < 1 {
					r, g, b = r/a, g/a, b/a
				}
				dst[4*x+0] = clamp8(r)
				dst[4*x+1] = clamp8(g)
				dst[4*x+2] = clamp8(b)
				dst[4*x+3] = clamp8(a)
			}
		}
	}
	return img
}

func clamp8(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xFF
	}
	return byte(v*255 + 0.5)
}

// Save writes the frame, or its whole animation, losslessly as WebP.
func Save(head, frame *surface.Surface, icc []byte, path string) error {
	out, err := ExportWebP(head, frame, icc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0666)
}

// The Exiv2 sidecar format is a bare JPEG marker stream: a magic pair,
// the usual metadata segments, then EOI. ICC profiles are chunked at
// 65507 bytes, the limit other writers of APP2 ICC sequences use.
const iccChunkLimit = 65507

var sigICC = []byte("ICC_PROFILE\x00")

// EncodeSidecar serializes the head surface's metadata as an Exiv2
// sidecar stream.
func EncodeSidecar(head *surface.Surface) []byte {
	var out bytes.Buffer
	out.Write([]byte{0xFF, 0x01})
	out.WriteString("Exiv2")

	if head.Exif != nil {
		writeSegment(&out, 0xE1, sigExif, head.Exif)
	}
	if icc := head.ICC; icc != nil {
		total := (len(icc) + iccChunkLimit - 1) / iccChunkLimit
		for seq := 1; seq <= total; seq++ {
			chunk := icc
			if len(chunk) > iccChunkLimit {
				chunk = chunk[:iccChunkLimit]
			}
			icc = icc[len(chunk):]

			header := append(append([]byte{}, sigICC...),
				byte(seq), byte(total))
			writeSegment(&out, 0xE2, header, chunk)
		}
	}
	if head.XMP != nil {
		writeSegment(&out, 0xE1,
			[]byte("http://ns.adobe.com/xap/1.0/\x00"), head.XMP)
	}

	out.Write([]byte{0xFF, 0xD9})
	return out.Bytes()
}

func writeSegment(out *bytes.Buffer, marker byte, sig, payload []byte) {
	out.Write([]byte{0xFF, marker})
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(2+len(sig)+len(payload)))
	out.Write(length[:])
	out.Write(sig)
	out.Write(payload)
}

// SaveMetadata writes the surface's metadata sidecar next to an export.
func SaveMetadata(head *surface.Surface, path string) error {
	return os.WriteFile(path, EncodeSidecar(head), 0666)
}
