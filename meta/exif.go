// Package meta extracts metadata from Exif/TIFF streams, JPEG marker
// streams, Photoshop Image Resources, IPTC IIM datasets, ICC profiles
// and the CIPA Multi-Picture Format index.
package meta

import (
	"github.com/pjanx/fiv-sub001/tiff"
)

// Exif and TIFF tags looked up by this package.
const (
	tagJPEGInterchangeFormat       = 513
	tagJPEGInterchangeFormatLength = 514

	tagOrientation           = 274
	tagWhitePoint            = 318
	tagPrimaryChromaticities = 319
	tagExifIFDPointer        = 34665

	// Exif sub-IFD.
	tagColorSpace = 40961
	tagGamma      = 42240
)

// Exif ColorSpace values.
const (
	ColorSpaceSRGB         = 1
	ColorSpaceUncalibrated = 0xFFFF
)

// Orientation iterates IFD0 of an Exif TIFF stream and returns the value
// of the Orientation tag when it is present and within 1..8.
// It returns 0 otherwise, which callers treat as "top-left" downstream.
func Orientation(exifTIFF []byte) int {
	c, err := tiff.NewCursor(exifTIFF)
	if err != nil {
		return 0
	}
	if ok, err := c.NextIFD(); err != nil || !ok {
		return 0
	}

	var e tiff.Entry
	for {
		ok, err := c.NextEntry(&e)
		if err != nil || !ok {
			return 0
		}
		if e.Tag != tagOrientation {
			continue
		}
		v, err := e.Integer()
		if err != nil || v < 1 || v > 8 {
			return 0
		}
		return int(v)
	}
}

// ExifColor carries the colour-description parameters an Exif stream may
// declare instead of an embedded ICC profile.
type ExifColor struct {
	ColorSpace int // -1 when absent.

	Gamma         float64
	WhitePoint    [2]float64
	Primaries     [6]float64
	HasGamma      bool
	HasWhitePoint bool
	HasPrimaries  bool
}

// Parametric reports whether the stream declares a complete set of
// chromaticity/gamma/whitepoint parameters for an uncalibrated space.
func (c ExifColor) Parametric() bool {
	return c.ColorSpace == ColorSpaceUncalibrated &&
		c.HasGamma && c.HasWhitePoint && c.HasPrimaries
}

func entryReals(e *tiff.Entry, out []float64) bool {
	for i := range out {
		v, err := e.Real()
		if err != nil {
			return false
		}
		out[i] = v
		if i+1 < len(out) && !e.NextValue() {
			return false
		}
	}
	return true
}

// ColorInfo collects WhitePoint and PrimaryChromaticities from IFD0 and
// ColorSpace and Gamma from the Exif sub-IFD.
func ColorInfo(exifTIFF []byte) ExifColor {
	info := ExifColor{ColorSpace: -1}
	c, err := tiff.NewCursor(exifTIFF)
	if err != nil {
		return info
	}
	if ok, err := c.NextIFD(); err != nil || !ok {
		return info
	}

	var exifIFD int64 = -1
	var e tiff.Entry
	for {
		ok, err := c.NextEntry(&e)
		if err != nil || !ok {
			break
		}
		switch e.Tag {
		case tagWhitePoint:
			info.HasWhitePoint = entryReals(&e, info.WhitePoint[:])
		case tagPrimaryChromaticities:
			info.HasPrimaries = entryReals(&e, info.Primaries[:])
		case tagExifIFDPointer:
			if v, err := e.Integer(); err == nil {
				exifIFD = v
			}
		}
	}
	if exifIFD < 0 {
		return info
	}

	sub, err := c.SubIFD(exifIFD)
	if err != nil {
		return info
	}
	for {
		ok, err := sub.NextEntry(&e)
		if err != nil || !ok {
			break
		}
		switch e.Tag {
		case tagColorSpace:
			if v, err := e.Integer(); err == nil {
				info.ColorSpace = int(v)
			}
		case tagGamma:
			if v, err := e.Real(); err == nil {
				info.Gamma = v
				info.HasGamma = true
			}
		}
	}
	return info
}

// Thumbnail returns the JFIF preview embedded in IFD1 of an Exif stream,
// or nil when there is none.
func Thumbnail(exifTIFF []byte) []byte {
	c, err := tiff.NewCursor(exifTIFF)
	if err != nil {
		return nil
	}
	if ok, err := c.NextIFD(); err != nil || !ok {
		return nil
	}
	var e tiff.Entry
	for { // Drain IFD0.
		ok, err := c.NextEntry(&e)
		if err != nil || !ok {
			break
		}
	}
	if ok, err := c.NextIFD(); err != nil || !ok {
		return nil
	}

	var offset, length int64 = -1, -1
	for {
		ok, err := c.NextEntry(&e)
		if err != nil || !ok {
			break
		}
		switch e.Tag {
		case tagJPEGInterchangeFormat:
			offset, _ = e.Integer()
		case tagJPEGInterchangeFormatLength:
			length, _ = e.Integer()
		}
	}
	if offset < 0 || length <= 0 ||
		offset+length > int64(len(exifTIFF)) {
		return nil
	}
	return exifTIFF[offset : offset+length]
}
