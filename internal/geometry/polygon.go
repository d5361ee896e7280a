package geometry

import "math"

// Area returns the absolute area enclosed by a closed polygon (shoelace formula).
func Area(polygon []Point) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var twice int
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		twice += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(float64(twice)) / 2
}

// Perimeter returns the length of a closed polygon, including the closing edge.
func Perimeter(polygon []Point) float64 {
	n := len(polygon)
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += polygon[i].Distance(polygon[(i+1)%n])
	}
	return total
}

// BoundingQuad returns the axis-aligned bounding rectangle of the points as an
// ordered Quad.
func BoundingQuad(points []Point) Quad {
	if len(points) == 0 {
		return Quad{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return Quad{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}
}

// ApproxPolygon simplifies a closed contour with the Douglas-Peucker
// algorithm, keeping every vertex that deviates more than epsilon pixels from
// the simplified outline.
//
// # Algorithm
//
// A closed curve has no natural endpoints, so two anchors are chosen first:
// the point farthest from contour[0], then the point farthest from that one.
// Both anchors lie on the contour's diameter and are therefore real corners
// for any convex outline. The two chains between the anchors are simplified
// independently and joined.
//
// The returned polygon is open (the first vertex is not repeated).
func ApproxPolygon(contour []Point, epsilon float64) []Point {
	n := len(contour)
	if n < 3 {
		out := make([]Point, n)
		copy(out, contour)
		return out
	}

	a := farthestFrom(contour, contour[0])
	b := farthestFrom(contour, contour[a])
	if contour[a] == contour[b] {
		return []Point{contour[a]}
	}

	// Rotate so the first anchor sits at index 0.
	ring := make([]Point, 0, n+1)
	ring = append(ring, contour[a:]...)
	ring = append(ring, contour[:a]...)
	split := (b - a + n) % n
	ring = append(ring, ring[0])

	first := douglasPeucker(ring[:split+1], epsilon)
	second := douglasPeucker(ring[split:], epsilon)

	out := make([]Point, 0, len(first)+len(second))
	out = append(out, first[:len(first)-1]...)
	out = append(out, second[:len(second)-1]...)
	return out
}

// farthestFrom returns the index of the contour point farthest from ref.
func farthestFrom(contour []Point, ref Point) int {
	best, bestDist := 0, -1
	for i, p := range contour {
		dx, dy := p.X-ref.X, p.Y-ref.Y
		if d := dx*dx + dy*dy; d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// douglasPeucker simplifies an open chain, always keeping both endpoints.
// Uses an explicit stack so long contours cannot exhaust the goroutine stack.
func douglasPeucker(chain []Point, epsilon float64) []Point {
	n := len(chain)
	if n < 3 {
		out := make([]Point, n)
		copy(out, chain)
		return out
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.hi-s.lo < 2 {
			continue
		}

		idx, dmax := -1, 0.0
		for i := s.lo + 1; i < s.hi; i++ {
			if d := segmentDistance(chain[i], chain[s.lo], chain[s.hi]); d > dmax {
				idx, dmax = i, d
			}
		}
		if idx >= 0 && dmax > epsilon {
			keep[idx] = true
			stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
		}
	}

	out := make([]Point, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, chain[i])
		}
	}
	return out
}

// segmentDistance returns the distance from p to the segment a-b.
func segmentDistance(p, a, b Point) float64 {
	abx, aby := float64(b.X-a.X), float64(b.Y-a.Y)
	apx, apy := float64(p.X-a.X), float64(p.Y-a.Y)
	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return math.Sqrt(apx*apx + apy*apy)
	}
	t := (apx*abx + apy*aby) / lenSq
	t = math.Max(0, math.Min(1, t))
	dx, dy := apx-t*abx, apy-t*aby
	return math.Sqrt(dx*dx + dy*dy)
}
