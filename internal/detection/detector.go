package detection

import (
	"fmt"
	"image"
	"strings"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/imaging"
)

// Detection methods accepted by New.
const (
	MethodSSIM = "ssim"
	MethodDiff = "diff"
)

// Detector finds the region of a frame most likely to contain a foreign
// object, given a grayscale reference of the empty scene.
//
// Implementations are pure computations: they never block and never modify
// their inputs. An error is returned only when the inputs cannot be compared
// (for example a reference captured at a different resolution).
type Detector interface {
	Detect(reference *image.Gray, frame image.Image) (Box, error)
}

// New returns the detector for a method name. An empty name selects SSIM.
func New(method string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", MethodSSIM:
		return SSIMDetector{}, nil
	case MethodDiff:
		return NewDiffDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detection method: %q", method)
	}
}

// SSIMDetector isolates an object via structural similarity, Otsu
// thresholding and external contours. See the package documentation for the
// pipeline.
type SSIMDetector struct{}

// Detect returns the largest bounding rectangle of the regions dissimilar
// to the reference, or the zero Box when the frame matches the reference.
func (d SSIMDetector) Detect(reference *image.Gray, frame image.Image) (Box, error) {
	mask, err := d.Mask(reference, frame)
	if err != nil {
		return Box{}, err
	}
	return Largest(ContourBoxes(mask)), nil
}

// Mask returns the binary foreground mask (255 = dissimilar to reference).
func (SSIMDetector) Mask(reference *image.Gray, frame image.Image) (*image.Gray, error) {
	gray := imaging.ToGray(frame)

	ssim, err := SSIMMap(reference, gray)
	if err != nil {
		return nil, fmt.Errorf("failed to compute similarity: %w", err)
	}

	similarity := SimilarityImage(ssim, gray.Bounds().Dx(), gray.Bounds().Dy())
	return ThresholdInverted(similarity, OtsuLevel(similarity)), nil
}

// DiffDetector isolates an object by blurring both images, taking their
// absolute difference, applying a fixed threshold and dilating the result.
type DiffDetector struct {
	// BlurRadius is the Gaussian blur radius applied to both images.
	BlurRadius float64

	// Threshold is the smallest difference (0-255) that counts as change.
	// Differences strictly greater than Threshold are foreground.
	Threshold uint8

	// DilateRadius grows foreground regions so that fragments of one object
	// merge into a single contour.
	DilateRadius float64
}

// NewDiffDetector returns a DiffDetector with the usual defaults: blur
// radius 10 (roughly a 21x21 kernel), threshold 25, dilation radius 2.
func NewDiffDetector() DiffDetector {
	return DiffDetector{BlurRadius: 10, Threshold: 25, DilateRadius: 2}
}

// Detect returns the largest bounding rectangle of the changed regions.
func (d DiffDetector) Detect(reference *image.Gray, frame image.Image) (Box, error) {
	mask, err := d.Mask(reference, frame)
	if err != nil {
		return Box{}, err
	}
	return Largest(ContourBoxes(mask)), nil
}

// Mask returns the dilated binary change mask (255 = changed).
func (d DiffDetector) Mask(reference *image.Gray, frame image.Image) (*image.Gray, error) {
	gray := imaging.ToGray(frame)

	rb := reference.Bounds()
	gb := gray.Bounds()
	if rb.Dx() != gb.Dx() || rb.Dy() != gb.Dy() {
		return nil, fmt.Errorf("reference is %dx%d but frame is %dx%d",
			rb.Dx(), rb.Dy(), gb.Dx(), gb.Dy())
	}

	var ref, cur image.Image = reference, gray
	if d.BlurRadius > 0 {
		ref = blur.Gaussian(reference, d.BlurRadius)
		cur = blur.Gaussian(gray, d.BlurRadius)
	}

	delta := blend.Difference(ref, cur)
	var changed image.Image = segment.Threshold(delta, thresholdLevel(d.Threshold))
	if d.DilateRadius > 0 {
		changed = effect.Dilate(changed, d.DilateRadius)
	}

	return imaging.ToGray(changed), nil
}

// thresholdLevel converts "strictly greater than t" into the inclusive level
// used by segment.Threshold.
func thresholdLevel(t uint8) uint8 {
	if t == 255 {
		return 255
	}
	return t + 1
}
