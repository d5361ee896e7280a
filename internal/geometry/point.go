package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPointCount is returned when a corner set does not hold exactly four points.
	ErrPointCount = errors.New("quadrilateral needs exactly 4 points")

	// ErrDegenerateQuad is returned when corners cannot be told apart or
	// enclose no usable area.
	ErrDegenerateQuad = errors.New("degenerate quadrilateral")
)

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(other Point) float64 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Float converts the point to floating-point coordinates.
func (p Point) Float() PointF {
	return PointF{X: float64(p.X), Y: float64(p.Y)}
}

// PointF is a sub-pixel coordinate produced by projective mapping.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is an ordered quadrilateral: top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point

// TopLeft returns the first corner.
func (q Quad) TopLeft() Point { return q[0] }

// TopRight returns the second corner.
func (q Quad) TopRight() Point { return q[1] }

// BottomRight returns the third corner.
func (q Quad) BottomRight() Point { return q[2] }

// BottomLeft returns the fourth corner.
func (q Quad) BottomLeft() Point { return q[3] }

// Points returns the corners as a slice in canonical order.
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// Scale multiplies every corner by factor, rounding to the nearest pixel.
func (q Quad) Scale(factor float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point{
			X: int(math.Round(float64(p.X) * factor)),
			Y: int(math.Round(float64(p.Y) * factor)),
		}
	}
	return out
}

// OrderPoints orders four unordered corners as top-left, top-right,
// bottom-right, bottom-left.
//
// Each point is projected on the two image diagonals:
//
//	s = x + y    (top-left has the minimum, bottom-right the maximum)
//	d = y - x    (top-right has the minimum, bottom-left the maximum)
//
// The projections separate the corners of a moderately rotated sheet no
// matter in which order the detector reported them, so any permutation of
// the same four points yields the same Quad.
//
// # Errors
//
//   - ErrPointCount if len(pts) != 4
//   - ErrDegenerateQuad if an extremum is shared by two points, or if the
//     four extrema do not select four distinct points. A 45° rotated square
//     is the classic case: two corners tie on each diagonal.
func OrderPoints(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, fmt.Errorf("%w: got %d", ErrPointCount, len(pts))
	}

	sum := func(p Point) int { return p.X + p.Y }
	diff := func(p Point) int { return p.Y - p.X }

	tl, err := uniqueExtreme(pts, sum, false)
	if err != nil {
		return Quad{}, err
	}
	br, err := uniqueExtreme(pts, sum, true)
	if err != nil {
		return Quad{}, err
	}
	tr, err := uniqueExtreme(pts, diff, false)
	if err != nil {
		return Quad{}, err
	}
	bl, err := uniqueExtreme(pts, diff, true)
	if err != nil {
		return Quad{}, err
	}

	seen := map[int]bool{tl: true, tr: true, br: true, bl: true}
	if len(seen) != 4 {
		return Quad{}, fmt.Errorf("%w: corners collapse onto %d points", ErrDegenerateQuad, len(seen))
	}

	return Quad{pts[tl], pts[tr], pts[br], pts[bl]}, nil
}

// uniqueExtreme returns the index of the point with the minimum (or maximum)
// projection, failing when another point shares that value.
func uniqueExtreme(pts []Point, proj func(Point) int, max bool) (int, error) {
	best := 0
	for i := 1; i < len(pts); i++ {
		v, b := proj(pts[i]), proj(pts[best])
		if (max && v > b) || (!max && v < b) {
			best = i
		}
	}
	for i := range pts {
		if i != best && proj(pts[i]) == proj(pts[best]) {
			return 0, fmt.Errorf("%w: points %v and %v tie on a diagonal", ErrDegenerateQuad, pts[best], pts[i])
		}
	}
	return best, nil
}
