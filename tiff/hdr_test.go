package tiff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeHDRRejectsPredictor(t *testing.T) {
	le := binary.LittleEndian
	buf := buildTIFF([]ifdEntry{
		{tagPredictor, Short, 1, le.AppendUint16(nil, 2)},
	}, 0)

	info := &Info{
		Offset:        8,
		Width:         1,
		Height:        1,
		BitsPerSample: 16,
		Photometric:   PhotometricLogL,
	}
	_, err := DecodeHDR(buf, info)
	assert.IsType(t, UnsupportedError(""), err)
}

func TestDecodeHDRRejectsLDR(t *testing.T) {
	info := &Info{Photometric: PhotometricRGB, BitsPerSample: 8}
	_, err := DecodeHDR([]byte(leHeader), info)
	assert.IsType(t, FormatError(""), err)
}
