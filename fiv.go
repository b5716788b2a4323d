// Package fiv decodes still images and animations from memory into a
// graph of pixel surfaces, carrying along Exif, ICC, XMP and thumbnail
// metadata, and re-encodes such graphs as WebP with an Exiv2-compatible
// metadata sidecar.
package fiv

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pjanx/fiv-sub001/cms"
	"github.com/pjanx/fiv-sub001/surface"
)

// MediaTypes lists the MIME types the dispatcher can open.
var MediaTypes = []string{
	"image/bmp",
	"image/gif",
	"image/png",
	"image/x-tga",
	"image/jpeg",
	"image/webp",
	"image/x-dcraw",
	"image/svg+xml",
	"image/x-xcursor",
	"image/heic",
	"image/heif",
	"image/avif",
	"image/tiff",
}

// maxDimension is the Cairo/pixman coordinate limit; surfaces beyond it
// cannot be displayed and decoders either downscale or refuse.
const maxDimension = 32767

// A TruncatedError reports input that ended before a structure completed.
type TruncatedError string

func (e TruncatedError) Error() string { return "fiv: truncated: " + string(e) }

// A MalformedError reports a violated magic number or fundamental field.
type MalformedError string

func (e MalformedError) Error() string { return "fiv: malformed: " + string(e) }

// An UnsupportedError reports a known format with an unimplemented feature.
type UnsupportedError string

func (e UnsupportedError) Error() string {
	return "fiv: unsupported: " + string(e)
}

// A DimensionError reports dimensions beyond platform limits.
type DimensionError string

func (e DimensionError) Error() string {
	return "fiv: dimensions out of range: " + string(e)
}

// fatal reports errors that must not be swallowed by the fallback chain.
func fatal(err error) bool {
	var alloc surface.AllocationError
	var dimension DimensionError
	return errors.As(err, &alloc) || errors.As(err, &dimension)
}

// Context configures a decode and accumulates its warnings. The zero
// value decodes with no colour management at the screen's default DPI.
type Context struct {
	// URI of the source, used for relative references in SVG only.
	URI string
	// CMM drives colour management when non-nil.
	CMM *cms.CMM
	// TargetProfile is the display profile pixels are transformed into.
	TargetProfile *cms.Profile
	// ScreenDPI rasterizes resolution-independent sources; 96 when zero.
	ScreenDPI float64
	// FirstFrameOnly stops each page after one frame.
	FirstFrameOnly bool
	// Enhance selects the high-quality JPEG decompression path.
	Enhance bool
	// AssumeSRGB extends the implicit source-is-sRGB fallback to the
	// wide-bit-depth paths; the 8-bit paths always apply it.
	AssumeSRGB bool

	// Warnings accumulates recoverable defects across the whole decode.
	Warnings []string
}

// Warn appends a formatted warning.
func (c *Context) Warn(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Context) dpi() float64 {
	if c.ScreenDPI > 0 {
		return c.ScreenDPI
	}
	return 96
}

// finishARGB32 colour-manages a still-unassociated ARGB32 surface and
// premultiplies it, in that order.
func (c *Context) finishARGB32(s *surface.Surface, src *cms.Profile) {
	if c.CMM != nil && c.TargetProfile != nil {
		c.CMM.TransformARGB32(s.Data, src, c.TargetProfile)
	}
	cms.PremultiplyARGB32(s.Data)
}

// transformRGB24 colour-manages an opaque surface in place; there is no
// alpha to premultiply.
func (c *Context) transformRGB24(s *surface.Surface, src *cms.Profile) {
	if c.CMM != nil && c.TargetProfile != nil {
		c.CMM.TransformARGB32(s.Data, src, c.TargetProfile)
	}
}

// sourceProfile turns raw ICC bytes into a profile, when management is on.
func (c *Context) sourceProfile(icc []byte) *cms.Profile {
	if c.CMM == nil || icc == nil {
		return nil
	}
	return c.CMM.NewProfile(icc)
}

// Open sniffs the format of data and decodes it into a surface graph,
// returning the head of the page list. Decoders for single formats fail
// hard; the fallback chain records failures as warnings and moves on.
// The warning list survives in the context even on success.
func Open(ctx *Context, data []byte) (*surface.Surface, error) {
	head, err := dispatch(ctx, data)
	if err != nil {
		return nil, err
	}
	applyOrientation(head)
	return head, nil
}

// applyOrientation is the Exif post-pass: every page that carries an
// Exif blob has its orientation re-read from it. Running it twice with
// the same blobs is harmless.
func applyOrientation(head *surface.Surface) {
	head.EachPage(func(page *surface.Surface) {
		if page.Exif == nil {
			return
		}
		if o := exifOrientation(page.Exif); o != 0 {
			page.EachFrame(func(frame *surface.Surface) {
				frame.Orientation = o
			})
		}
	})
}
