package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Crop extracts r from img, clipped to the image bounds, and optionally
// rescales it. A scale of 0 or 1 keeps the original size.
//
// The result always starts at (0, 0).
func Crop(img image.Image, r image.Rectangle, scale float64) (*image.NRGBA, error) {
	clipped := r.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", r, img.Bounds())
	}
	if scale < 0 {
		return nil, fmt.Errorf("invalid crop scale %g", scale)
	}

	cropped := imaging.Crop(img, clipped)
	if scale != 0 && scale != 1 {
		w := max(int(float64(clipped.Dx())*scale), 1)
		h := max(int(float64(clipped.Dy())*scale), 1)
		cropped = imaging.Resize(cropped, w, h, imaging.Lanczos)
	}
	return cropped, nil
}
