package detection

import (
	"fmt"
	"image"
	"math"
)

// SSIM parameters. They match the usual defaults for 8-bit images: a 7x7
// uniform window, data range 255, K1 = 0.01, K2 = 0.03, and sample
// covariance normalisation.
const (
	ssimWindow    = 7
	ssimDataRange = 255.0
	ssimK1        = 0.01
	ssimK2        = 0.03
)

// SSIMMap computes the structural similarity of every pixel of two grayscale
// images of identical size.
//
// The result is row-major with len = width*height. Values are at most 1,
// where 1 means locally identical; strongly anti-correlated windows may go
// below 0. Window statistics near the border are computed over a mirrored
// ("reflect") extension of the image.
//
// # Algorithm
//
// For each window with means ux, uy, sample variances vx, vy and sample
// covariance vxy:
//
//	S = ((2*ux*uy + C1) * (2*vxy + C2)) / ((ux² + uy² + C1) * (vx + vy + C2))
//
// with C1 = (K1*255)² and C2 = (K2*255)². Window sums come from integral
// images, so the cost is linear in the number of pixels.
func SSIMMap(reference, frame *image.Gray) ([]float64, error) {
	rb := reference.Bounds()
	fb := frame.Bounds()
	if rb.Dx() != fb.Dx() || rb.Dy() != fb.Dy() {
		return nil, fmt.Errorf("reference is %dx%d but frame is %dx%d",
			rb.Dx(), rb.Dy(), fb.Dx(), fb.Dy())
	}

	width := rb.Dx()
	height := rb.Dy()
	if width == 0 || height == 0 {
		return []float64{}, nil
	}

	pad := ssimWindow / 2
	pw := width + 2*pad
	ph := height + 2*pad

	// Integral images over the reflect-padded inputs. Entry (x, y) holds the
	// sum over padded pixels [0,x) × [0,y). Sums are exact integers.
	stride := pw + 1
	sx := make([]int64, stride*(ph+1))
	sy := make([]int64, stride*(ph+1))
	sxx := make([]int64, stride*(ph+1))
	syy := make([]int64, stride*(ph+1))
	sxy := make([]int64, stride*(ph+1))

	for py := 0; py < ph; py++ {
		srcY := reflectIndex(py-pad, height)
		refRow := reference.PixOffset(rb.Min.X, rb.Min.Y+srcY)
		frameRow := frame.PixOffset(fb.Min.X, fb.Min.Y+srcY)

		var rx, ry, rxx, ryy, rxy int64
		for px := 0; px < pw; px++ {
			srcX := reflectIndex(px-pad, width)
			a := int64(reference.Pix[refRow+srcX])
			b := int64(frame.Pix[frameRow+srcX])

			rx += a
			ry += b
			rxx += a * a
			ryy += b * b
			rxy += a * b

			i := (py+1)*stride + px + 1
			up := py*stride + px + 1
			sx[i] = sx[up] + rx
			sy[i] = sy[up] + ry
			sxx[i] = sxx[up] + rxx
			syy[i] = syy[up] + ryy
			sxy[i] = sxy[up] + rxy
		}
	}

	n := float64(ssimWindow * ssimWindow)
	covNorm := n / (n - 1)
	c1 := (ssimK1 * ssimDataRange) * (ssimK1 * ssimDataRange)
	c2 := (ssimK2 * ssimDataRange) * (ssimK2 * ssimDataRange)

	windowSum := func(s []int64, x, y int) float64 {
		x2, y2 := x+ssimWindow, y+ssimWindow
		return float64(s[y2*stride+x2] - s[y*stride+x2] - s[y2*stride+x] + s[y*stride+x])
	}

	out := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Window centred on (x, y) starts at padded (x, y)
			ux := windowSum(sx, x, y) / n
			uy := windowSum(sy, x, y) / n
			uxx := windowSum(sxx, x, y) / n
			uyy := windowSum(syy, x, y) / n
			uxy := windowSum(sxy, x, y) / n

			vx := covNorm * (uxx - ux*ux)
			vy := covNorm * (uyy - uy*uy)
			vxy := covNorm * (uxy - ux*uy)

			a1 := 2*ux*uy + c1
			a2 := 2*vxy + c2
			b1 := ux*ux + uy*uy + c1
			b2 := vx + vy + c2

			out[y*width+x] = (a1 * a2) / (b1 * b2)
		}
	}

	return out, nil
}

// SimilarityImage rescales an SSIM map to an 8-bit image using
// clamp(round(v*255), 0, 255).
func SimilarityImage(ssim []float64, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range ssim {
		s := math.Round(v * 255)
		switch {
		case s < 0:
			s = 0
		case s > 255:
			s = 255
		}
		img.Pix[i] = uint8(s)
	}
	return img
}

// reflectIndex maps an index outside [0, n) back inside by mirroring about
// the edges, repeating the edge pixel: ... 2 1 0 | 0 1 2 ... n-1 | n-1 n-2 ...
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}
