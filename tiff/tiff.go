// Package tiff implements a forward-only cursor over TIFF Image File
// Directories, as used by TIFF proper, Exif and the CIPA Multi-Picture
// Format. It does no interpretation beyond widening entry values.
//
// A tiff image file contains one or more images. The metadata
// of each image is contained in an Image File Directory (IFD),
// which contains entries of 12 bytes each. An IFD entry consists of
//
//   - a tag, which describes the signification of the entry,
//   - the data type and length of the entry,
//   - the data itself or a pointer to it if it is more than 4 bytes.
package tiff

import (
	"encoding/binary"
	"math"
)

const (
	leHeader = "II\x2A\x00" // Header for little-endian files.
	beHeader = "MM\x00\x2A" // Header for big-endian files.

	ifdLen = 12 // Length of an IFD entry in bytes.
)

// A FormatError reports that the input is not a valid TIFF stream.
type FormatError string

func (e FormatError) Error() string {
	return "tiff: malformed header: " + string(e)
}

// A TruncatedError reports that the input ended before a structure completed.
type TruncatedError string

func (e TruncatedError) Error() string {
	return "tiff: truncated: " + string(e)
}

// A TypeMismatchError reports a value read under an incompatible entry type.
type TypeMismatchError string

func (e TypeMismatchError) Error() string {
	return "tiff: type mismatch: " + string(e)
}

// An UnsupportedError reports a valid feature this package does not decode.
type UnsupportedError string

func (e UnsupportedError) Error() string {
	return "tiff: unsupported feature: " + string(e)
}

// Type is an IFD entry data type (p. 14-16 of the TIFF 6.0 spec,
// extended by the IFD type of TIFF Supplement 1).
type Type uint16

const (
	Byte      Type = 1
	ASCII     Type = 2
	Short     Type = 3
	Long      Type = 4
	Rational  Type = 5
	SByte     Type = 6
	Undefined Type = 7
	SShort    Type = 8
	SLong     Type = 9
	SRational Type = 10
	Float     Type = 11
	Double    Type = 12
	IFD       Type = 13
)

// Size returns the length of one value of the type in bytes,
// or zero for unknown types.
func (t Type) Size() int {
	switch t {
	case Byte, ASCII, SByte, Undefined:
		return 1
	case Short, SShort:
		return 2
	case Long, SLong, Float, IFD:
		return 4
	case Rational, SRational, Double:
		return 8
	}
	return 0
}

// Entry is a single IFD entry together with a value cursor.
// Values are iterated with NextValue and widened with Integer,
// Rational and Real.
type Entry struct {
	Tag       uint16
	Type      Type
	Remaining int // Values left under the cursor, current one included.

	p     []byte // Current value position, Remaining×Type.Size() bytes.
	order binary.ByteOrder
}

// NextValue advances the entry to its next value.
// It returns false once the value array is exhausted.
func (e *Entry) NextValue() bool {
	if e.Remaining <= 1 {
		e.Remaining = 0
		return false
	}
	e.Remaining--
	e.p = e.p[e.Type.Size():]
	return true
}

// Integer widens the current value to an int64. Integer-like types are
// accepted uniformly, per the TIFF 6.0 recommendation that readers accept
// BYTE, SHORT and LONG interchangeably.
func (e *Entry) Integer() (int64, error) {
	if e.Remaining <= 0 {
		return 0, TypeMismatchError("no value")
	}
	switch e.Type {
	case Byte, ASCII, Undefined:
		return int64(e.p[0]), nil
	case SByte:
		return int64(int8(e.p[0])), nil
	case Short:
		return int64(e.order.Uint16(e.p)), nil
	case SShort:
		return int64(int16(e.order.Uint16(e.p))), nil
	case Long, IFD:
		return int64(e.order.Uint32(e.p)), nil
	case SLong:
		return int64(int32(e.order.Uint32(e.p))), nil
	}
	return 0, TypeMismatchError("not an integer type")
}

// Bytes returns the raw value array of a byte-sized entry, from the
// current value onwards, or nil for wider types.
func (e *Entry) Bytes() []byte {
	if e.Type.Size() != 1 || e.Remaining <= 0 {
		return nil
	}
	return e.p[:e.Remaining]
}

// Rational returns the current value as a numerator/denominator pair.
func (e *Entry) Rational() (num, den int64, err error) {
	if e.Remaining <= 0 {
		return 0, 0, TypeMismatchError("no value")
	}
	switch e.Type {
	case Rational:
		return int64(e.order.Uint32(e.p)), int64(e.order.Uint32(e.p[4:])), nil
	case SRational:
		return int64(int32(e.order.Uint32(e.p))),
			int64(int32(e.order.Uint32(e.p[4:]))), nil
	}
	return 0, 0, TypeMismatchError("not a rational type")
}

// Real widens the current value to a float64.
func (e *Entry) Real() (float64, error) {
	switch e.Type {
	case Float:
		if e.Remaining <= 0 {
			return 0, TypeMismatchError("no value")
		}
		return float64(math.Float32frombits(e.order.Uint32(e.p))), nil
	case Double:
		if e.Remaining <= 0 {
			return 0, TypeMismatchError("no value")
		}
		return math.Float64frombits(e.order.Uint64(e.p)), nil
	case Rational, SRational:
		num, den, err := e.Rational()
		if err != nil {
			return 0, err
		}
		if den == 0 {
			return 0, nil
		}
		return float64(num) / float64(den), nil
	default:
		i, err := e.Integer()
		return float64(i), err
	}
}

// Cursor iterates the IFD chain of a TIFF byte stream. Independent cursors
// obtained through SubIFD may descend into sub-IFDs without invalidating
// their parent.
type Cursor struct {
	buf       []byte
	order     binary.ByteOrder
	off       int
	remaining int // Entries left in the current IFD.
}

// NewCursor detects the byte order of buf and positions the cursor after
// the header, before the first IFD. NextIFD enters IFD0.
func NewCursor(buf []byte) (*Cursor, error) {
	if len(buf) < 8 {
		return nil, TruncatedError("header")
	}
	c := &Cursor{buf: buf, off: 4}
	switch string(buf[0:4]) {
	case leHeader:
		c.order = binary.LittleEndian
	case beHeader:
		c.order = binary.BigEndian
	default:
		return nil, FormatError("not a TIFF byte order mark")
	}
	return c, nil
}

// ByteOrder returns the detected byte order of the stream.
func (c *Cursor) ByteOrder() binary.ByteOrder { return c.order }

// NextIFD reads the next-IFD offset at the current position and seeks to
// that directory. A zero offset terminates the chain. All entries of the
// current IFD must have been iterated first.
func (c *Cursor) NextIFD() (bool, error) {
	// Unread values within the current IFD get skipped here.
	c.off += c.remaining * ifdLen
	c.remaining = 0
	if c.off < 0 || c.off+4 > len(c.buf) {
		return false, TruncatedError("next-IFD offset")
	}
	offset := int(c.order.Uint32(c.buf[c.off:]))
	if offset == 0 {
		return false, nil
	}
	return c.seek(offset)
}

// SubIFD returns an independent cursor positioned inside the IFD at the
// given stream offset, with its own remaining-entry count.
func (c *Cursor) SubIFD(offset int64) (*Cursor, error) {
	sub := &Cursor{buf: c.buf, order: c.order}
	if _, err := sub.seek(int(offset)); err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *Cursor) seek(offset int) (bool, error) {
	if offset < 0 || offset+2 > len(c.buf) {
		return false, TruncatedError("IFD offset")
	}
	c.remaining = int(c.order.Uint16(c.buf[offset:]))
	c.off = offset + 2
	if c.off+c.remaining*ifdLen > len(c.buf) {
		c.remaining = 0
		return false, TruncatedError("IFD entries")
	}
	return true, nil
}

// NextEntry reads the next entry of the current IFD into e.
// It returns false once the directory is exhausted.
func (c *Cursor) NextEntry(e *Entry) (bool, error) {
	if c.remaining <= 0 {
		return false, nil
	}
	c.remaining--

	p := c.buf[c.off:]
	c.off += ifdLen

	*e = Entry{
		Tag:   c.order.Uint16(p),
		Type:  Type(c.order.Uint16(p[2:])),
		order: c.order,
	}
	count := int(c.order.Uint32(p[4:]))
	size := e.Type.Size()
	if size == 0 || count == 0 {
		// Unknown type or empty array: expose the entry for its tag,
		// without any iterable values.
		return true, nil
	}
	if count > (len(c.buf)-8)/size {
		return true, TruncatedError("entry value array")
	}

	if size*count <= 4 {
		e.p = p[8 : 8+size*count]
	} else {
		offset := int(c.order.Uint32(p[8:]))
		if offset < 0 || offset+size*count > len(c.buf) {
			return true, TruncatedError("entry value offset")
		}
		e.p = c.buf[offset : offset+size*count]
	}
	e.Remaining = count
	return true, nil
}
