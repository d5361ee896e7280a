package imaging

import (
	"image"
	"math"
)

// Canny performs Canny edge detection on a grayscale image.
//
// The input is expected to be denoised already (the boundary locator blurs
// before calling Canny), so no smoothing happens here.
//
// Parameters:
//   - gray: Source image with bounds starting at (0,0).
//   - low: Hysteresis low threshold on the raw Sobel gradient magnitude.
//     Pixels below it are never edges.
//   - high: Hysteresis high threshold. Pixels at or above it seed edges.
//
// Returns a binary map the size of gray where 255 marks an edge pixel.
//
// # Algorithm
//
//  1. Gradient computation: Sobel operators for X and Y gradients
//     magnitude = sqrt(Gx² + Gy²)
//     direction = atan2(Gy, Gx)
//
//  2. Non-maximum suppression: thin edges to 1-pixel width by keeping only
//     local maxima in the gradient direction
//
//  3. Hysteresis thresholding:
//     - Pixels at or above high are strong edges (always kept)
//     - Pixels between low and high are weak edges, kept only when they are
//     8-connected to a strong edge through other weak edges
//     - Pixels below low are discarded
//
// # Threshold Selection
//
// Gradients are measured on the 0-255 intensity scale, so an ideal black to
// white step has magnitude 1020. The sheet pipeline uses low=30, high=150.
func Canny(gray *image.Gray, low, high float64) *image.Gray {
	width := gray.Rect.Dx()
	height := gray.Rect.Dy()
	result := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return result
	}

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				py := clamp(y+ky, 0, height-1)
				for kx := -1; kx <= 1; kx++ {
					px := clamp(x+kx, 0, width-1)
					v := float64(gray.Pix[py*gray.Stride+px])
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			i := y*width + x
			magnitude[i] = math.Sqrt(gx*gx + gy*gy)
			direction[i] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			angle := direction[i]
			mag := magnitude[i]
			if mag == 0 {
				continue
			}

			// Determine neighbors to compare based on gradient direction
			var n1, n2 float64
			if (angle >= -math.Pi/8 && angle < math.Pi/8) || (angle >= 7*math.Pi/8 || angle < -7*math.Pi/8) {
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			} else if (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8) {
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			} else if (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8) {
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			} else {
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}

	// Hysteresis: grow strong edges through connected weak ones.
	stack := make([]int, 0, 1024)
	for i, v := range suppressed {
		if v >= high {
			result.Pix[i] = 255
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for ky := -1; ky <= 1; ky++ {
			for kx := -1; kx <= 1; kx++ {
				px, py := x+kx, y+ky
				if px < 0 || py < 0 || px >= width || py >= height {
					continue
				}
				j := py*width + px
				if result.Pix[j] == 0 && suppressed[j] >= low {
					result.Pix[j] = 255
					stack = append(stack, j)
				}
			}
		}
	}

	return result
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
