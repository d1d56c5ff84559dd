package detection

import (
	"image"
)

// point is a pixel coordinate relative to the mask origin.
type point struct {
	X, Y int
}

// ContourBoxes returns the bounding rectangle of every external contour in a
// binary mask. Any non-zero pixel is foreground.
//
// Foreground pixels are grouped into 8-connected components. The outer
// boundary of a component is its external contour, and the rectangle that
// encloses that boundary also encloses the whole component, so the component
// extents are exactly the external contours' bounding rectangles. Components
// sitting inside the hole of another component yield smaller rectangles that
// lie within their parent's rectangle; they never change which rectangle is
// largest.
//
// Boxes are ordered by the raster position (row, then column) of each
// component's first pixel. The order is deterministic for a fixed mask.
func ContourBoxes(mask *image.Gray) []Box {
	bounds := mask.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	visited := make([]bool, width*height)
	boxes := make([]Box, 0)

	for y := 0; y < height; y++ {
		row := mask.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < width; x++ {
			if mask.Pix[row+x] == 0 || visited[y*width+x] {
				continue
			}
			boxes = append(boxes, floodFill(mask, visited, x, y, width, height))
		}
	}

	return boxes
}

// floodFill marks the component containing (startX, startY) as visited and
// returns its bounding box.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow on
// large components. Uses 8-connectivity (includes diagonal neighbors).
func floodFill(mask *image.Gray, visited []bool, startX, startY, width, height int) Box {
	bounds := mask.Bounds()
	minX, minY := startX, startY
	maxX, maxY := startX, startY

	visited[startY*width+startX] = true
	stack := []point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}

		for dy := -1; dy <= 1; dy++ {
			ny := p.Y + dy
			if ny < 0 || ny >= height {
				continue
			}
			row := mask.PixOffset(bounds.Min.X, bounds.Min.Y+ny)
			for dx := -1; dx <= 1; dx++ {
				nx := p.X + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= width {
					continue
				}
				idx := ny*width + nx
				if visited[idx] || mask.Pix[row+nx] == 0 {
					continue
				}
				visited[idx] = true
				stack = append(stack, point{X: nx, Y: ny})
			}
		}
	}

	return BoxFromRect(image.Rect(minX, minY, maxX+1, maxY+1))
}
