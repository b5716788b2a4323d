package tiff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ifdEntry is a raw 12-byte entry for the stream builder below.
type ifdEntry struct {
	tag   uint16
	typ   Type
	count uint32
	value []byte // Inline when ≤ 4 bytes, appended and referenced otherwise.
}

// buildTIFF assembles a little-endian stream with a single IFD.
func buildTIFF(entries []ifdEntry, next uint32) []byte {
	le := binary.LittleEndian
	buf := []byte(leHeader)
	buf = le.AppendUint32(buf, 8) // IFD0 directly after the header.
	buf = le.AppendUint16(buf, uint16(len(entries)))

	tail := make([]byte, 0)
	tailStart := 8 + 2 + len(entries)*ifdLen + 4
	for _, e := range entries {
		buf = le.AppendUint16(buf, e.tag)
		buf = le.AppendUint16(buf, uint16(e.typ))
		buf = le.AppendUint32(buf, e.count)
		if len(e.value) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.value)
			buf = append(buf, inline...)
		} else {
			buf = le.AppendUint32(buf, uint32(tailStart+len(tail)))
			tail = append(tail, e.value...)
		}
	}
	buf = le.AppendUint32(buf, next)
	return append(buf, tail...)
}

func TestCursorHeader(t *testing.T) {
	_, err := NewCursor([]byte("NOTATIFF"))
	assert.Error(t, err)
	assert.IsType(t, FormatError(""), err)

	_, err = NewCursor([]byte("II\x2a"))
	assert.IsType(t, TruncatedError(""), err)

	c, err := NewCursor([]byte("MM\x00\x2a\x00\x00\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, c.ByteOrder())

	// A zero first-IFD offset is an empty, valid chain.
	ok, err := c.NextIFD()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorEntries(t *testing.T) {
	le := binary.LittleEndian
	buf := buildTIFF([]ifdEntry{
		{tag: 256, typ: Long, count: 1, value: le.AppendUint32(nil, 640)},
		{tag: 274, typ: Short, count: 1, value: le.AppendUint16(nil, 6)},
		{tag: 318, typ: Rational, count: 2, value: []byte{
			0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, // 1/2
			0x03, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, // 3/4
		}},
	}, 0)

	c, err := NewCursor(buf)
	require.NoError(t, err)
	ok, err := c.NextIFD()
	require.NoError(t, err)
	require.True(t, ok)

	var e Entry
	ok, err = c.NextEntry(&e)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(256), e.Tag)
	v, err := e.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(640), v)
	assert.False(t, e.NextValue())

	ok, err = c.NextEntry(&e)
	require.NoError(t, err)
	require.True(t, ok)
	v, err = e.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)

	// Rational values iterate through the out-of-line array.
	ok, err = c.NextEntry(&e)
	require.NoError(t, err)
	require.True(t, ok)
	num, den, err := e.Rational()
	require.NoError(t, err)
	assert.Equal(t, int64(1), num)
	assert.Equal(t, int64(2), den)
	require.True(t, e.NextValue())
	num, den, err = e.Rational()
	require.NoError(t, err)
	assert.Equal(t, int64(3), num)
	assert.Equal(t, int64(4), den)
	assert.False(t, e.NextValue())

	ok, err = c.NextEntry(&e)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.NextIFD()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorTruncatedValueOffset(t *testing.T) {
	buf := buildTIFF([]ifdEntry{
		{tag: 273, typ: Long, count: 4, value: make([]byte, 16)},
	}, 0)
	// Cut into the out-of-line value array.
	buf = buf[:len(buf)-8]

	c, err := NewCursor(buf)
	require.NoError(t, err)
	_, err = c.NextIFD()
	require.NoError(t, err)

	var e Entry
	ok, err := c.NextEntry(&e)
	assert.True(t, ok)
	assert.IsType(t, TruncatedError(""), err)
}

func TestCursorTypeWidening(t *testing.T) {
	le := binary.LittleEndian
	buf := buildTIFF([]ifdEntry{
		{tag: 1, typ: Byte, count: 1, value: []byte{0xFF}},
		{tag: 2, typ: SShort, count: 1, value: le.AppendUint16(nil, 0xFFFF)},
		{tag: 3, typ: Double, count: 1,
			value: le.AppendUint64(nil, 0x3FF0000000000000)}, // 1.0
		{tag: 4, typ: ASCII, count: 3, value: []byte("ab\x00")},
	}, 0)

	c, err := NewCursor(buf)
	require.NoError(t, err)
	_, err = c.NextIFD()
	require.NoError(t, err)

	var e Entry
	_, err = c.NextEntry(&e)
	require.NoError(t, err)
	v, err := e.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(255), v)

	_, err = c.NextEntry(&e)
	require.NoError(t, err)
	v, err = e.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)

	_, err = c.NextEntry(&e)
	require.NoError(t, err)
	f, err := e.Real()
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)
	_, err = e.Integer()
	assert.IsType(t, TypeMismatchError(""), err)

	_, err = c.NextEntry(&e)
	require.NoError(t, err)
	_, _, err = e.Rational()
	assert.IsType(t, TypeMismatchError(""), err)
}

func TestSubIFD(t *testing.T) {
	le := binary.LittleEndian

	// IFD0 with a sub-IFD pointer; sub-IFD appended by hand.
	sub := []byte{0x01, 0x00, // one entry
		0x0e, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x2a, 0x00, 0x00, 0x00,
	}
	sub = append(sub, 0, 0, 0, 0) // no further IFD

	head := buildTIFF([]ifdEntry{
		{tag: 330, typ: Long, count: 1, value: le.AppendUint32(nil, 0)},
	}, 0)
	subOffset := uint32(len(head))
	le.PutUint32(head[10+8:], subOffset) // patch inline value of tag 330
	buf := append(head, sub...)

	c, err := NewCursor(buf)
	require.NoError(t, err)
	_, err = c.NextIFD()
	require.NoError(t, err)

	var e Entry
	_, err = c.NextEntry(&e)
	require.NoError(t, err)
	off, err := e.Integer()
	require.NoError(t, err)

	s, err := c.SubIFD(off)
	require.NoError(t, err)
	ok, err := s.NextEntry(&e)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(270), e.Tag)
	v, err := e.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	// The parent cursor is still usable after the descent.
	ok, err = c.NextIFD()
	require.NoError(t, err)
	assert.False(t, ok)
}
