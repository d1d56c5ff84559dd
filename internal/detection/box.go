package detection

import (
	"fmt"
	"image"
)

// Box is an axis-aligned rectangle in frame pixel coordinates.
//
// Width and Height are never negative. The zero Box denotes "no object found".
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns Width × Height.
func (b Box) Area() int {
	return b.Width * b.Height
}

// Empty reports whether the box has zero area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.Width, b.Height)
}

// BoxFromRect converts an image.Rectangle to a Box. Empty rectangles give the
// zero Box.
func BoxFromRect(r image.Rectangle) Box {
	r = r.Canon()
	if r.Empty() {
		return Box{}
	}
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Largest returns the box with the greatest area.
//
// Only a strictly greater area replaces the current choice, so on ties the
// first box in the slice wins. An empty slice returns the zero Box.
func Largest(boxes []Box) Box {
	var best Box
	for _, b := range boxes {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best
}
