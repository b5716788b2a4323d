package surface

import (
	"image"
	"image/color"
	"image/draw"
)

// Disposal says how a frame's pixels are reconciled with the canvas
// before the next frame draws.
type Disposal uint8

const (
	DisposalNone Disposal = iota
	DisposalBackground
	DisposalPrevious
)

// Blend selects the paint operator for a frame's own pixels.
type Blend uint8

const (
	BlendOver Blend = iota
	BlendSource
)

// Compositor builds full-canvas animation frames from the sub-rectangle
// updates animated formats encode. Frames come in file order; every call
// yields a snapshot of the whole canvas as a premultiplied ARGB32 surface.
type Compositor struct {
	canvas *image.RGBA

	prevDisposal   Disposal
	prevRect       image.Rectangle
	prevBackground color.RGBA
	started        bool
	warnedPrevious bool
}

// NewCompositor returns a compositor over a transparent width×height canvas.
func NewCompositor(width, height int) *Compositor {
	return &Compositor{
		canvas: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Frame paints the next decoded frame into rect and returns the resulting
// canvas. The background colour is used if this frame's disposal asks for
// it before the next frame; it is taken as display-space and not colour-
// managed, matching what existing viewers do with it.
//
// The returned warning is non-empty at most once, when the unimplemented
// DisposalPrevious is first encountered.
func (c *Compositor) Frame(src image.Image, rect image.Rectangle,
	disposal Disposal, blend Blend, background color.RGBA,
) (*Surface, string, error) {
	warning := ""
	if c.started {
		switch c.prevDisposal {
		case DisposalBackground:
			fill := c.prevRect.Intersect(c.canvas.Bounds())
			draw.Draw(c.canvas, fill,
				image.NewUniform(c.prevBackground), image.Point{}, draw.Src)
		case DisposalPrevious:
			if !c.warnedPrevious {
				c.warnedPrevious = true
				warning = "restore-to-previous frame disposal " +
					"is not implemented"
			}
		}
	}
	c.started = true
	c.prevDisposal = disposal
	c.prevRect = rect
	c.prevBackground = background

	op := draw.Over
	if blend == BlendSource {
		op = draw.Src
	}
	clipped := rect.Intersect(c.canvas.Bounds())
	draw.Draw(c.canvas, clipped, src, src.Bounds().Min.Add(
		clipped.Min.Sub(rect.Min)), op)

	out, err := FromRGBA(c.canvas)
	if err != nil {
		return nil, warning, err
	}
	return out, warning, nil
}
