package imaging

import (
	"image"
)

// ToGray converts a frame to an 8-bit grayscale image anchored at (0,0).
//
// Luminance uses the ITU-R BT.601 weights (0.299*R + 0.587*G + 0.114*B),
// the same weights camera pipelines use for their BGR to gray conversion.
// The result is always a fresh image, so it can be kept as a reference frame
// while the camera reuses its own buffers.
func ToGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			srcOff := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*out.Stride:y*out.Stride+width], src.Pix[srcOff:srcOff+width])
		}
	case *image.RGBA:
		for y := 0; y < height; y++ {
			row := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < width; x++ {
				i := row + 4*x
				out.Pix[y*out.Stride+x] = luminance(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			row := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < width; x++ {
				i := row + 4*x
				out.Pix[y*out.Stride+x] = luminance(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				out.Pix[y*out.Stride+x] = luminance(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			}
		}
	}

	return out
}

// luminance converts one RGB sample to gray, rounding to nearest.
func luminance(r, g, b uint8) uint8 {
	v := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b) + 0.5
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
