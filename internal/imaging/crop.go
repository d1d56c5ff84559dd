package imaging

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the quality used when encoding crops for OCR.
const DefaultJPEGQuality = 95

// CropFrame extracts a rectangular region from a colour frame.
//
// The rectangle is relative to the frame origin and is clamped to the frame
// bounds. An empty rectangle, or one that does not overlap the frame at all,
// returns nil: there is nothing to crop.
func CropFrame(frame image.Image, rect image.Rectangle) image.Image {
	bounds := frame.Bounds()
	rect = rect.Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(frame, rect)
}

// ClampRect clamps a rectangle given relative to the frame origin so it lies
// within a width x height frame.
func ClampRect(rect image.Rectangle, width, height int) image.Rectangle {
	return image.Rect(
		clamp(rect.Min.X, 0, width),
		clamp(rect.Min.Y, 0, height),
		clamp(rect.Max.X, 0, width),
		clamp(rect.Max.Y, 0, height),
	)
}

// EncodeJPEG encodes an image as JPEG, the format the OCR collaborator
// consumes. A quality outside 1..100 falls back to DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("cannot encode nil image")
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
