package fiv

import (
	"bytes"
	"encoding/binary"
)

// riffChunk is one FourCC-tagged chunk of a RIFF container, without its
// pad byte.
type riffChunk struct {
	id   string
	data []byte
}

// parseRIFF splits a RIFF container into its chunk list. A container
// whose declared or chunk sizes overrun the buffer is reported as
// truncated, with everything that did fit still returned.
func parseRIFF(data []byte) (form string, chunks []riffChunk,
	truncated bool, err error) {
	le := binary.LittleEndian
	if len(data) < 12 || !bytes.Equal(data[:4], magicRIFF) {
		return "", nil, false, MalformedError("not a RIFF container")
	}
	declared := int64(le.Uint32(data[4:])) + 8
	if declared > int64(len(data)) {
		truncated = true
	}
	form = string(data[8:12])

	for p := 12; len(data)-p >= 8; {
		size := int(le.Uint32(data[p+4:]))
		if size < 0 || len(data)-p-8 < size {
			truncated = true
			return
		}
		chunks = append(chunks, riffChunk{
			id:   string(data[p : p+4]),
			data: data[p+8 : p+8+size],
		})
		p += 8 + size + size&1
	}
	return
}

// riffWriter accumulates chunks and emits the complete container with
// its total size patched in.
type riffWriter struct {
	form   string
	chunks bytes.Buffer
}

func newRIFFWriter(form string) *riffWriter {
	return &riffWriter{form: form}
}

func (w *riffWriter) chunk(id string, data []byte) {
	var header [8]byte
	copy(header[:4], id)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(data)))
	w.chunks.Write(header[:])
	w.chunks.Write(data)
	if len(data)&1 != 0 {
		w.chunks.WriteByte(0)
	}
}

func (w *riffWriter) bytes() []byte {
	out := make([]byte, 12+w.chunks.Len())
	copy(out[:4], magicRIFF)
	binary.LittleEndian.PutUint32(out[4:], uint32(4+w.chunks.Len()))
	copy(out[8:12], w.form)
	copy(out[12:], w.chunks.Bytes())
	return out
}
