package detection

import (
	"image"
)

// OtsuLevel selects the threshold that maximises the between-class variance
// of the image histogram.
//
// Pixels <= level form one class and pixels > level the other. The first
// level reaching the maximum wins. When every pixel has the same value there
// is no split at all and the level is 0.
func OtsuLevel(img *image.Gray) uint8 {
	var hist [256]int64
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		row := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for _, v := range img.Pix[row : row+bounds.Dx()] {
			hist[v]++
		}
	}

	var total, sum int64
	for i, c := range hist {
		total += c
		sum += int64(i) * c
	}
	if total == 0 {
		return 0
	}

	var (
		c1, s1   int64
		maxSigma float64
		level    int
	)
	for i := 0; i < 256; i++ {
		c1 += hist[i]
		s1 += int64(i) * hist[i]
		c2 := total - c1
		if c1 == 0 || c2 == 0 {
			continue
		}

		q1 := float64(c1) / float64(total)
		q2 := float64(c2) / float64(total)
		mu1 := float64(s1) / float64(c1)
		mu2 := float64(sum-s1) / float64(c2)
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)

		if sigma > maxSigma {
			maxSigma = sigma
			level = i
		}
	}

	return uint8(level)
}

// ThresholdInverted returns a binary mask where pixels <= level become 255
// (foreground) and pixels > level become 0.
func ThresholdInverted(img *image.Gray, level uint8) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		row := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x, v := range img.Pix[row : row+bounds.Dx()] {
			if v <= level {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
