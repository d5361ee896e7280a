package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// ToGray converts any image to an 8-bit grayscale image whose bounds start at
// (0,0).
//
// Color pixels are reduced with ITU-R BT.601 luminance weights
// (0.299*R + 0.587*G + 0.114*B). A *image.Gray that already starts at the
// origin is returned as-is; callers must not mutate the result.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}

	src := imaging.Grayscale(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride:]
		drow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			drow[x] = srow[x*4]
		}
	}
	return dst
}

// Blur applies a Gaussian blur with the given sigma and returns a new gray
// image of the same size.
func Blur(gray *image.Gray, sigma float64) *image.Gray {
	return ToGray(imaging.Blur(gray, sigma))
}

// Fit downscales img so that neither side exceeds maxDim, preserving the
// aspect ratio. It returns the resized image and the factor that maps
// coordinates in the result back to the original (>= 1). Images already
// within bounds are returned unchanged with factor 1.
func Fit(img image.Image, maxDim int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxDim <= 0 || longest <= maxDim {
		return img, 1
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	return resized, float64(longest) / float64(max(resized.Rect.Dx(), resized.Rect.Dy()))
}

// Equalize spreads the intensity histogram of gray across the full 0-255
// range, improving contrast on dim or washed-out scans.
//
// A constant image is returned as a copy without modification.
func Equalize(gray *image.Gray) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	total := w * h
	if total == 0 {
		return out
	}

	hist := histogram(gray)
	var cdf [256]int
	running := 0
	for i, c := range hist {
		running += c
		cdf[i] = running
	}

	cdfMin := 0
	for _, c := range cdf {
		if c > 0 {
			cdfMin = c
			break
		}
	}

	var lut [256]uint8
	if total == cdfMin {
		for i := range lut {
			lut[i] = uint8(i)
		}
	} else {
		scale := 255.0 / float64(total-cdfMin)
		for i := range lut {
			v := float64(cdf[i]-cdfMin) * scale
			if v < 0 {
				v = 0
			}
			lut[i] = uint8(v + 0.5)
		}
	}

	for y := 0; y < h; y++ {
		srow := gray.Pix[y*gray.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			drow[x] = lut[srow[x]]
		}
	}
	return out
}

// OtsuLevel returns the global threshold that maximizes the between-class
// variance of the intensity histogram (Otsu's method).
//
// The returned level separates ink from paper: pixels strictly below it are
// the dark class. A constant image yields its own intensity plus one.
func OtsuLevel(gray *image.Gray) uint8 {
	hist := histogram(gray)
	total := 0
	sumAll := 0.0
	for i, c := range hist {
		total += c
		sumAll += float64(i * c)
	}
	if total == 0 {
		return 128
	}

	var (
		weightBg  int
		sumBg     float64
		bestVar   = -1.0
		bestLevel int
	)
	for t := 0; t < 256; t++ {
		weightBg += hist[t]
		if weightBg == 0 {
			continue
		}
		weightFg := total - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(t * hist[t])
		meanBg := sumBg / float64(weightBg)
		meanFg := (sumAll - sumBg) / float64(weightFg)
		diff := meanBg - meanFg
		between := float64(weightBg) * float64(weightFg) * diff * diff
		if between > bestVar {
			bestVar = between
			bestLevel = t
		}
	}

	if bestVar < 0 {
		// Single intensity: put the cut just above it.
		for i, c := range hist {
			if c > 0 {
				return uint8(min(i+1, 255))
			}
		}
	}
	// Class boundary t belongs to the dark side; the cut is the next level.
	return uint8(min(bestLevel+1, 255))
}

// histogram counts pixels per intensity.
func histogram(gray *image.Gray) [256]int {
	var hist [256]int
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}
	return hist
}
