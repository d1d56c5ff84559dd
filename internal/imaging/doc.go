// Package imaging provides the frame-level image operations used by the
// inspection station.
//
// This package implements grayscale conversion, clamped cropping, JPEG
// encoding for the OCR collaborator, frame annotation for operator snapshots,
// and a thread-safe on-disk image cache used by replay cameras. All operations
// work with standard Go image.Image types and use a coordinate system where
// (0,0) is at the top-left corner, X increases rightward, and Y increases
// downward.
//
// # Coordinate System
//
// Rectangles handed to this package are relative to the frame origin, not to
// frame.Bounds().Min. Frames produced by cameras normally start at (0,0), so
// the two coincide; sub-images are translated before use.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The remaining functions are
// stateless and never mutate their inputs, so reference frames may be shared
// between goroutines as long as nobody writes to them.
package imaging
