package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createQuadrantImage paints each quadrant of a size x size image a
// different colour.
func createQuadrantImage(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{A: 255}
			switch {
			case x < half && y < half:
				c.R = 255
			case x >= half && y < half:
				c.G = 255
			case x < half:
				c.B = 255
			default:
				c.R, c.G, c.B = 255, 255, 255
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCrop(t *testing.T) {
	img := createQuadrantImage(100)

	cropped, err := Crop(img, image.Rect(50, 0, 100, 50), 1)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if b := cropped.Bounds(); b != image.Rect(0, 0, 50, 50) {
		t.Errorf("bounds: got %v, want (0,0)-(50,50)", b)
	}
	if c := cropped.NRGBAAt(10, 10); c.R != 0 || c.G != 255 || c.B != 0 {
		t.Errorf("expected the green quadrant, got %v", c)
	}
}

func TestCrop_Clipped(t *testing.T) {
	img := createQuadrantImage(100)

	cropped, err := Crop(img, image.Rect(80, 80, 140, 120), 0)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if b := cropped.Bounds(); b.Dx() != 20 || b.Dy() != 20 {
		t.Errorf("clipped size: got %dx%d, want 20x20", b.Dx(), b.Dy())
	}
}

func TestCrop_Scale(t *testing.T) {
	img := createQuadrantImage(100)

	tests := []struct {
		name  string
		scale float64
		want  int
	}{
		{"double", 2, 100},
		{"half", 0.5, 25},
		{"unchanged", 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cropped, err := Crop(img, image.Rect(0, 0, 50, 50), tt.scale)
			if err != nil {
				t.Fatalf("Crop failed: %v", err)
			}
			if b := cropped.Bounds(); b.Dx() != tt.want || b.Dy() != tt.want {
				t.Errorf("size: got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.want, tt.want)
			}
		})
	}
}

func TestCrop_Errors(t *testing.T) {
	img := createQuadrantImage(100)

	if _, err := Crop(img, image.Rect(200, 200, 250, 250), 1); err == nil {
		t.Error("expected error for region outside the image")
	}
	if _, err := Crop(img, image.Rect(10, 10, 10, 40), 1); err == nil {
		t.Error("expected error for empty region")
	}
	if _, err := Crop(img, image.Rect(0, 0, 10, 10), -1); err == nil {
		t.Error("expected error for negative scale")
	}
}
