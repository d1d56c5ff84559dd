package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultOutlineColor is used when an annotation colour cannot be parsed.
const DefaultOutlineColor = "#00FF00"

// Annotation describes one rectangle to draw on a frame.
type Annotation struct {
	// Rect is relative to the frame origin.
	Rect image.Rectangle

	// Label is drawn above the rectangle's top-left corner. May be empty.
	Label string
}

// ParseColor parses a hex colour such as "#FF8800".
// Invalid input falls back to DefaultOutlineColor.
func ParseColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(DefaultOutlineColor)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Annotate returns a copy of the frame with each annotation drawn as a
// rectangle outline of the given thickness plus its label.
//
// The input frame is never modified. Rectangles are clamped to the frame;
// empty rectangles only get their label drawn at the frame's top-left corner.
func Annotate(frame image.Image, annotations []Annotation, outline color.Color, thickness int) *image.RGBA {
	bounds := frame.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	result := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(result, result.Bounds(), frame, bounds.Min, draw.Src)

	if thickness < 1 {
		thickness = 1
	}

	for _, a := range annotations {
		rect := ClampRect(a.Rect, width, height)
		if !rect.Empty() {
			drawOutline(result, rect, outline, thickness)
		}
		if a.Label != "" {
			drawLabel(result, rect.Min.X, rect.Min.Y, a.Label, outline)
		}
	}

	return result
}

// drawOutline paints the border of rect, growing inward by thickness pixels.
func drawOutline(img *image.RGBA, rect image.Rectangle, c color.Color, thickness int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness),
		image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y),
		image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(rect), src, image.Point{}, draw.Src)
	}
}

// drawLabel renders text with basicfont on a black strip. The baseline sits
// just above (x, y) when there is room, otherwise just inside the rectangle.
func drawLabel(img *image.RGBA, x, y int, text string, fg color.Color) {
	face := basicfont.Face7x13
	labelWidth := font.MeasureString(face, text).Ceil()
	labelHeight := face.Metrics().Height.Ceil()

	top := y - labelHeight - 1
	if top < 0 {
		top = y + 1
	}
	bg := image.Rect(x, top, x+labelWidth+2, top+labelHeight+1).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(color.RGBA{0, 0, 0, 180}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x + 1), Y: fixed.I(top + face.Metrics().Ascent.Ceil())},
	}
	d.DrawString(text)
}
