// Package detection locates a box on the transporter belt by comparing a live
// frame with a stored reference frame of the empty belt.
//
// # Pipeline
//
// The default SSIMDetector follows a fixed pipeline:
//
//  1. Grayscale: convert the colour frame with ITU-R BT.601 weights
//  2. Similarity: compute a per-pixel structural similarity (SSIM) map
//     between the reference and the grayscale frame
//  3. Rescale: map similarity values to 0-255 intensities
//  4. Threshold: inverted binary threshold with Otsu's automatic level, so
//     dissimilar pixels become foreground
//  5. Contours: collect the bounding rectangle of every external contour
//  6. Select: keep the rectangle with the largest area
//
// DiffDetector replaces steps 2-4 with blur, absolute difference, a fixed
// threshold, and dilation. It is cheaper and more sensitive to lighting drift.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at the top-left corner of the frame
//   - X increases rightward
//   - Y increases downward
//
// Boxes are relative to the frame origin, so a frame whose bounds do not
// start at (0,0) still yields boxes starting at (0,0).
//
// # Limitations
//
// Exactly one object per frame is assumed. When several disjoint objects
// appear, only the largest bounding rectangle is returned. A zero Box means
// nothing was found and is not an error.
package detection
