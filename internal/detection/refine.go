package detection

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
)

// line is an infinite line through C along the unit vector D.
type line struct {
	C, D geometry.PointF
}

// intersect returns the crossing point of two lines, or false when they are
// close to parallel.
func (l line) intersect(o line) (geometry.PointF, bool) {
	denom := l.D.X*o.D.Y - l.D.Y*o.D.X
	if math.Abs(denom) < 0.1 {
		return geometry.PointF{}, false
	}
	wx, wy := o.C.X-l.C.X, o.C.Y-l.C.Y
	s := (wx*o.D.Y - wy*o.D.X) / denom
	return geometry.PointF{X: l.C.X + s*l.D.X, Y: l.C.Y + s*l.D.Y}, true
}

// sideTrim is the fraction of each side ignored at both ends, where blurred
// corners bend away from the straight edge.
const sideTrim = 0.15

// RefineCorners moves the corners of q onto the edges of edges.
//
// For each side, edge pixels within band pixels of the segment are fitted
// with a total least squares line; the refined corners are the crossings of
// adjacent lines. A side with too few edge pixels keeps its original line.
// The original quad is returned when the refined one moves a corner by more
// than 2*band or no longer orders cleanly.
func RefineCorners(edges *image.Gray, q geometry.Quad, band int) geometry.Quad {
	if band <= 0 {
		return q
	}

	var sides [4]line
	for i := range q {
		sides[i] = fitSide(edges, q[i], q[(i+1)%4], band)
	}

	pts := make([]geometry.Point, 4)
	for i := range q {
		p, ok := sides[(i+3)%4].intersect(sides[i])
		if !ok {
			return q
		}
		pts[i] = geometry.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
		if pts[i].Distance(q[i]) > float64(2*band) {
			return q
		}
	}

	refined, err := geometry.OrderPoints(pts)
	if err != nil {
		return q
	}
	return refined
}

// fitSide fits a line to the edge pixels along the segment a-b.
func fitSide(edges *image.Gray, a, b geometry.Point, band int) line {
	af, bf := a.Float(), b.Float()
	length := a.Distance(b)
	if length < 1 {
		return line{C: af, D: geometry.PointF{X: 1}}
	}
	fallback := line{
		C: geometry.PointF{X: (af.X + bf.X) / 2, Y: (af.Y + bf.Y) / 2},
		D: geometry.PointF{X: (bf.X - af.X) / length, Y: (bf.Y - af.Y) / length},
	}
	u, n := fallback.D, geometry.PointF{X: -fallback.D.Y, Y: fallback.D.X}

	search := image.Rect(a.X, a.Y, b.X, b.Y).Inset(-band).Intersect(edges.Rect)
	var xs, ys []float64
	for y := search.Min.Y; y < search.Max.Y; y++ {
		for x := search.Min.X; x < search.Max.X; x++ {
			if edges.Pix[(y-edges.Rect.Min.Y)*edges.Stride+(x-edges.Rect.Min.X)] == 0 {
				continue
			}
			dx, dy := float64(x)-af.X, float64(y)-af.Y
			t := dx*u.X + dy*u.Y
			d := dx*n.X + dy*n.Y
			if t < sideTrim*length || t > (1-sideTrim)*length || math.Abs(d) > float64(band) {
				continue
			}
			xs = append(xs, float64(x))
			ys = append(ys, float64(y))
		}
	}

	minPoints := max(8, int(0.25*length))
	if len(xs) < minPoints {
		return fallback
	}

	l := principalLine(xs, ys, fallback.D)
	// Refit without points more than 2 px off the first line.
	var kx, ky []float64
	for i := range xs {
		if math.Abs((xs[i]-l.C.X)*-l.D.Y+(ys[i]-l.C.Y)*l.D.X) <= 2 {
			kx = append(kx, xs[i])
			ky = append(ky, ys[i])
		}
	}
	if len(kx) >= minPoints {
		l = principalLine(kx, ky, fallback.D)
	}
	return l
}

// principalLine returns the line through the centroid along the principal
// axis of the points, oriented like dir.
func principalLine(xs, ys []float64, dir geometry.PointF) line {
	cx, cy := stat.Mean(xs, nil), stat.Mean(ys, nil)
	sxx := stat.Covariance(xs, xs, nil)
	syy := stat.Covariance(ys, ys, nil)
	sxy := stat.Covariance(xs, ys, nil)

	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)
	d := geometry.PointF{X: math.Cos(theta), Y: math.Sin(theta)}
	if d.X*dir.X+d.Y*dir.Y < 0 {
		d.X, d.Y = -d.X, -d.Y
	}
	return line{C: geometry.PointF{X: cx, Y: cy}, D: d}
}
