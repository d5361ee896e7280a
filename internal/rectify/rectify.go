// Package rectify warps a located sheet quadrilateral into an axis-aligned
// canonical image.
package rectify

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
)

// ErrDegenerateQuad is returned when the quadrilateral cannot be rectified.
// It is the same sentinel geometry uses, so errors.Is works with either.
var ErrDegenerateQuad = geometry.ErrDegenerateQuad

// DefaultMinSide is the smallest canonical width or height accepted.
const DefaultMinSide = 2

// Options controls rectification.
type Options struct {
	// MinSide is the smallest acceptable canonical width and height.
	MinSide int
}

// DefaultOptions returns the default rectification options.
func DefaultOptions() Options {
	return Options{MinSide: DefaultMinSide}
}

// Canonical is a rectified sheet image.
type Canonical struct {
	// Image is the warped sheet with bounds (0,0)-(Width,Height).
	Image *image.NRGBA

	// Width and Height of the canonical image in pixels.
	Width  int
	Height int

	// Quad is the source quadrilateral the image was warped from.
	Quad geometry.Quad
}

// Rectifier maps ordered sheet corners to a canonical rectangle.
type Rectifier struct {
	opts Options
}

// NewRectifier creates a Rectifier. A MinSide below 1 is raised to 1.
func NewRectifier(opts Options) *Rectifier {
	opts.MinSide = max(opts.MinSide, 1)
	return &Rectifier{opts: opts}
}

// Size returns the canonical width and height for a quad: the longer of
// each pair of opposing edges, truncated to whole pixels.
func Size(q geometry.Quad) (width, height int) {
	tl, tr, br, bl := q.TopLeft(), q.TopRight(), q.BottomRight(), q.BottomLeft()
	width = max(int(br.Distance(bl)), int(tr.Distance(tl)))
	height = max(int(tr.Distance(br)), int(tl.Distance(bl)))
	return width, height
}

// Rectify warps the region of img enclosed by q into a Width x Height image.
//
// q must be ordered TL, TR, BR, BL. The corners land on (0,0), (W-1,0),
// (W-1,H-1) and (0,H-1). Each canonical pixel is inverse-mapped into img and
// sampled bilinearly; samples falling outside img are black.
//
// Returns ErrDegenerateQuad when either side is shorter than MinSide or the
// projective system is singular.
func (r *Rectifier) Rectify(img image.Image, q geometry.Quad) (*Canonical, error) {
	width, height := Size(q)
	if width < r.opts.MinSide || height < r.opts.MinSide {
		return nil, fmt.Errorf("%w: canonical size %dx%d below %d", ErrDegenerateQuad, width, height, r.opts.MinSide)
	}

	dst := [4]geometry.PointF{
		{X: 0, Y: 0},
		{X: float64(width - 1), Y: 0},
		{X: float64(width - 1), Y: float64(height - 1)},
		{X: 0, Y: float64(height - 1)},
	}
	// Solve canonical -> source so every output pixel is sampled once.
	h, err := geometry.SolveHomography(dst, geometry.QuadF(q))
	if err != nil {
		return nil, fmt.Errorf("failed to solve perspective transform: %w", err)
	}

	src := imaging.Clone(img)
	offset := img.Bounds().Min
	out := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p, ok := h.Apply(geometry.PointF{X: float64(x), Y: float64(y)})
			if !ok {
				continue
			}
			out.SetNRGBA(x, y, bilinear(src, p.X-float64(offset.X), p.Y-float64(offset.Y)))
		}
	}

	return &Canonical{Image: out, Width: width, Height: height, Quad: q}, nil
}

// bilinear samples src at a sub-pixel position. Neighbours outside the image
// contribute opaque black.
func bilinear(src *image.NRGBA, fx, fy float64) color.NRGBA {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	ax := fx - float64(x0)
	ay := fy - float64(y0)

	var acc [4]float64
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	offsets := [4]image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

	for i, o := range offsets {
		w := weights[i]
		if w == 0 {
			continue
		}
		px, py := x0+o.X, y0+o.Y
		if px < 0 || py < 0 || px >= src.Rect.Dx() || py >= src.Rect.Dy() {
			acc[3] += 255 * w
			continue
		}
		s := src.Pix[py*src.Stride+px*4:]
		acc[0] += float64(s[0]) * w
		acc[1] += float64(s[1]) * w
		acc[2] += float64(s[2]) * w
		acc[3] += float64(s[3]) * w
	}

	return color.NRGBA{
		R: clampByte(acc[0]),
		G: clampByte(acc[1]),
		B: clampByte(acc[2]),
		A: clampByte(acc[3]),
	}
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
