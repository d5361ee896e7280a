package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// Binarize marks ink pixels of img as foreground.
//
// A pixel is foreground (255) when its intensity is strictly below level and
// background (0) otherwise. The result always starts at (0,0).
func Binarize(img image.Image, level uint8) *image.Gray {
	gray := ToGray(img)
	// segment.Threshold maps pixels at or above level to white; inverting
	// turns dark ink into foreground.
	return ToGray(effect.Invert(segment.Threshold(gray, level)))
}

// AdaptiveThreshold marks pixels that are darker than their neighbourhood.
//
// The local reference is a Gaussian-weighted mean over a blockSize window
// (blockSize should be odd and at least 3). A pixel is foreground when
//
//	value <= mean - c
//
// which picks up thin dark strokes such as a printed sheet border even under
// uneven lighting. Uniform regions are always background for c > 0.
func AdaptiveThreshold(gray *image.Gray, blockSize int, c float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	blockSize = max(blockSize, 3)
	sigma := 0.3*(float64(blockSize-1)*0.5-1) + 0.8
	mean := imaging.Blur(gray, sigma)

	for y := 0; y < h; y++ {
		srow := gray.Pix[y*gray.Stride:]
		mrow := mean.Pix[y*mean.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			if float64(srow[x]) <= float64(mrow[x*4])-c {
				drow[x] = 255
			}
		}
	}
	return out
}

// Or combines two binary maps of the same size; a pixel is foreground when
// it is foreground in either input.
func Or(a, b *image.Gray) *image.Gray {
	w := min(a.Rect.Dx(), b.Rect.Dx())
	h := min(a.Rect.Dy(), b.Rect.Dy())
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		arow := a.Pix[y*a.Stride:]
		brow := b.Pix[y*b.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			if arow[x] != 0 || brow[x] != 0 {
				drow[x] = 255
			}
		}
	}
	return out
}

// CountForeground returns the number of foreground pixels of a binary map
// inside r. r is clipped to the map bounds.
func CountForeground(bin *image.Gray, r image.Rectangle) int {
	r = r.Intersect(bin.Rect)
	count := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := bin.Pix[(y-bin.Rect.Min.Y)*bin.Stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			if row[x-bin.Rect.Min.X] != 0 {
				count++
			}
		}
	}
	return count
}
