// Package surface holds decoded pixel data together with its metadata and
// the links that tie frames into animation cycles and pages into documents.
package surface

import (
	"math"
)

// Format is the pixel layout of a surface. All formats use four-byte-aligned
// rows; the 8-bit formats store one pixel as B, G, R, A bytes in memory
// (little-endian ARGB words, the layout compositors want).
type Format int

const (
	// ARGB32 is 8-bit premultiplied BGRA.
	ARGB32 Format = iota
	// RGB24 is 8-bit opaque BGR in a 32-bit cell; the alpha byte is 0xFF.
	RGB24
	// RGB30 is opaque 10:10:10:2; the two top bits are set to full scale.
	RGB30
	// RGBA128F is premultiplied RGBA with one float32 per channel.
	RGBA128F
)

// BytesPerPixel returns the size of one pixel in bytes.
func (f Format) BytesPerPixel() int {
	if f == RGBA128F {
		return 16
	}
	return 4
}

// Opaque reports whether the format cannot carry transparency.
func (f Format) Opaque() bool {
	return f == RGB24 || f == RGB30
}

// An AllocationError reports a refused or failed pixel allocation.
type AllocationError string

func (e AllocationError) Error() string {
	return "surface: allocation refused: " + string(e)
}

// Surface is a single decoded image: a pixel buffer, its metadata, and
// links to sibling frames (a cycle within a page) and pages (a nil-
// terminated list). Metadata blobs are immutable once attached.
type Surface struct {
	Format Format
	Width  int
	Height int
	Stride int // Row length in bytes, a multiple of 4.
	Data   []byte

	Exif      []byte
	ICC       []byte
	XMP       []byte
	Thumbnail []byte
	Text      map[string]string

	// Orientation is the Exif orientation to apply on display, 1..8.
	Orientation int

	// LoopCount is the number of animation iterations, zero for infinite.
	LoopCount int
	// Duration is how long this frame shows, in milliseconds.
	Duration int

	// Render re-rasterizes resolution-independent sources at a new size.
	Render func(width, height int) *Surface

	frameNext, framePrevious *Surface
	pageNext, pagePrevious   *Surface
}

// New allocates a zeroed surface. The stride is rounded up to a multiple
// of four bytes; zero dimensions and overflowing buffer sizes are refused.
func New(format Format, width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, AllocationError("zero or negative dimensions")
	}
	bpp := format.BytesPerPixel()
	if width > (math.MaxInt-3)/bpp {
		return nil, AllocationError("row length overflow")
	}
	stride := (width*bpp + 3) &^ 3
	if height > math.MaxInt/stride {
		return nil, AllocationError("buffer size overflow")
	}

	s := &Surface{
		Format: format,
		Width:  width,
		Height: height,
		Stride: stride,
		Data:   make([]byte, stride*height),

		Orientation: 1,
	}
	// A lone surface is a frame cycle of length one.
	s.frameNext, s.framePrevious = s, s
	return s, nil
}

// FrameNext returns the next frame of this page's cycle.
func (s *Surface) FrameNext() *Surface { return s.frameNext }

// FramePrevious returns the previous frame of this page's cycle; on a page
// head that is the page's last frame.
func (s *Surface) FramePrevious() *Surface { return s.framePrevious }

// PageNext returns the following page, or nil at the end of the document.
func (s *Surface) PageNext() *Surface { return s.pageNext }

// PagePrevious returns the preceding page, or nil on the first page.
func (s *Surface) PagePrevious() *Surface { return s.pagePrevious }

// AppendFrame links frame at the end of the cycle headed by s.
func (s *Surface) AppendFrame(frame *Surface) {
	last := s.framePrevious
	last.frameNext = frame
	frame.framePrevious = last
	frame.frameNext = s
	s.framePrevious = frame
}

// AppendPage links page after the last page of the list containing s.
func (s *Surface) AppendPage(page *Surface) {
	last := s
	for last.pageNext != nil {
		last = last.pageNext
	}
	last.pageNext = page
	page.pagePrevious = last
}

// Frames returns the length of the frame cycle of this page.
func (s *Surface) Frames() int {
	n := 1
	for it := s.frameNext; it != s; it = it.frameNext {
		n++
	}
	return n
}

// Pages counts the pages from s to the end of the list.
func (s *Surface) Pages() int {
	n := 0
	for it := s; it != nil; it = it.pageNext {
		n++
	}
	return n
}

// EachPage calls fn for s and every following page.
func (s *Surface) EachPage(fn func(*Surface)) {
	for it := s; it != nil; it = it.pageNext {
		fn(it)
	}
}

// EachFrame calls fn for every frame of this page's cycle, starting at s.
func (s *Surface) EachFrame(fn func(*Surface)) {
	fn(s)
	for it := s.frameNext; it != s; it = it.frameNext {
		fn(it)
	}
}
