package fiv

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/gen2brain/jpegli"
	"github.com/pkg/errors"

	"github.com/pjanx/fiv-sub001/surface"
)

// The thumbnailer IPC format: a native-endian 24-byte header of a
// 64-bit user-data word and four 32-bit words (width, height, stride,
// format), then stride × height raw pixel bytes. Both ends of the pipe
// are the same machine, so the byte order travels for free. This module
// stores the orientation in the user-data word; other producers may put
// anything there.
const thumbnailHeaderLen = 24

// EncodeThumbnail serializes a surface for the thumbnailer pipe.
func EncodeThumbnail(s *surface.Surface) []byte {
	ne := binary.NativeEndian
	out := make([]byte, thumbnailHeaderLen+len(s.Data))
	ne.PutUint64(out[0:], uint64(s.Orientation))
	ne.PutUint32(out[8:], uint32(s.Width))
	ne.PutUint32(out[12:], uint32(s.Height))
	ne.PutUint32(out[16:], uint32(s.Stride))
	ne.PutUint32(out[20:], uint32(s.Format))
	copy(out[thumbnailHeaderLen:], s.Data)
	return out
}

// DecodeThumbnail reconstructs a surface from the pipe serialization.
func DecodeThumbnail(data []byte) (*surface.Surface, error) {
	if len(data) < thumbnailHeaderLen {
		return nil, TruncatedError("thumbnail header")
	}
	ne := binary.NativeEndian
	userData := ne.Uint64(data[0:])
	width := int(ne.Uint32(data[8:]))
	height := int(ne.Uint32(data[12:]))
	stride := int(ne.Uint32(data[16:]))
	format := surface.Format(ne.Uint32(data[20:]))

	s, err := surface.New(format, width, height)
	if err != nil {
		return nil, err
	}
	if s.Stride != stride || len(s.Data) != len(data)-thumbnailHeaderLen {
		return nil, MalformedError("thumbnail geometry mismatch")
	}
	copy(s.Data, data[thumbnailHeaderLen:])
	if userData >= 1 && userData <= 8 {
		s.Orientation = int(userData)
	}
	return s, nil
}

// WriteThumbnail streams the serialization to the other end of the pipe,
// refusing to dump binary data onto an interactive terminal.
func WriteThumbnail(f *os.File, s *surface.Surface) error {
	if info, err := f.Stat(); err == nil &&
		info.Mode()&os.ModeCharDevice != 0 {
		return errors.New("refusing to write binary data to a terminal")
	}
	_, err := f.Write(EncodeThumbnail(s))
	return err
}

// EncodeSearchImage renders a surface into a compact interchange format
// for content search services: JPEG for opaque images, PNG when the
// transparency matters, and JPEG over black as the fallback. It returns
// the payload together with its media type.
func EncodeSearchImage(s *surface.Surface) ([]byte, string, error) {
	img := surfaceToNRGBA(s)

	if s.Format.Opaque() || img.Opaque() {
		out, err := encodeSearchJPEG(img)
		return out, "image/jpeg", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err == nil {
		return buf.Bytes(), "image/png", nil
	}

	// Composite on black and fall back to JPEG.
	flattened := image.NewNRGBA(img.Bounds())
	draw.Draw(flattened, flattened.Bounds(),
		image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(flattened, flattened.Bounds(), img, image.Point{}, draw.Over)
	out, err := encodeSearchJPEG(flattened)
	return out, "image/jpeg", err
}

func encodeSearchJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
		Quality:           90,
		ChromaSubsampling: image.YCbCrSubsampleRatio444,
	})
	if err != nil {
		return nil, errors.Wrap(err, "jpeg")
	}
	return buf.Bytes(), nil
}
