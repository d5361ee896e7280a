package detection

import (
	"image"
	"sort"

	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
)

// Contour is the closed outer boundary of one connected foreground region,
// listed in tracing order. Collinear runs are compressed to their endpoints.
type Contour []geometry.Point

// Area returns the area enclosed by the contour.
func (c Contour) Area() float64 { return geometry.Area(c) }

// Perimeter returns the closed length of the contour.
func (c Contour) Perimeter() float64 { return geometry.Perimeter(c) }

// mooreDirs lists the 8 neighbours clockwise (in image coordinates, Y down)
// starting from West.
var mooreDirs = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

// FindExternalContours returns the outer contours of a binary map, sorted by
// enclosed area (largest first).
//
// Only outermost boundaries are reported: any region enclosed by foreground
// (holes, and shapes nested inside holes) is treated as part of the region
// around it.
//
// # Algorithm
//
//  1. Flood-fill the background from the image border (4-connected). Every
//     pixel not reached is inside some outer boundary.
//  2. Group the filled pixels into 8-connected components.
//  3. Trace each component from its first pixel in raster order using Moore
//     neighbour tracing.
func FindExternalContours(bin *image.Gray) []Contour {
	width, height := bin.Rect.Dx(), bin.Rect.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	filled := fillHoles(bin, width, height)
	visited := make([]bool, width*height)

	var contours []Contour
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if !filled[idx] || visited[idx] {
				continue
			}
			markComponent(filled, visited, width, height, x, y)
			contours = append(contours, compress(traceBoundary(filled, width, height, image.Pt(x, y))))
		}
	}

	sort.SliceStable(contours, func(i, j int) bool {
		return contours[i].Area() > contours[j].Area()
	})
	return contours
}

// fillHoles returns a mask that is true for every pixel not reachable from
// the border through background pixels.
func fillHoles(bin *image.Gray, width, height int) []bool {
	outside := make([]bool, width*height)
	queue := make([]int, 0, 2*(width+height))

	isBackground := func(x, y int) bool {
		return bin.Pix[y*bin.Stride+x] == 0
	}
	seed := func(x, y int) {
		idx := y*width + x
		if !outside[idx] && isBackground(x, y) {
			outside[idx] = true
			queue = append(queue, idx)
		}
	}

	for x := 0; x < width; x++ {
		seed(x, 0)
		seed(x, height-1)
	}
	for y := 0; y < height; y++ {
		seed(0, y)
		seed(width-1, y)
	}

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := idx%width, idx/width
		if x > 0 {
			seed(x-1, y)
		}
		if x < width-1 {
			seed(x+1, y)
		}
		if y > 0 {
			seed(x, y-1)
		}
		if y < height-1 {
			seed(x, y+1)
		}
	}

	filled := make([]bool, width*height)
	for i, o := range outside {
		filled[i] = !o
	}
	return filled
}

// markComponent flags the 8-connected component containing (startX, startY)
// as visited.
func markComponent(filled, visited []bool, width, height, startX, startY int) {
	stack := []image.Point{{startX, startY}}
	visited[startY*width+startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range mooreDirs {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			idx := ny*width + nx
			if filled[idx] && !visited[idx] {
				visited[idx] = true
				stack = append(stack, image.Pt(nx, ny))
			}
		}
	}
}

// traceBoundary walks the outer boundary of the component containing start,
// which must be the component's first pixel in raster order.
func traceBoundary(filled []bool, width, height int, start image.Point) Contour {
	inside := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < width && p.Y < height && filled[p.Y*width+p.X]
	}

	// next scans clockwise around cur starting just after the backtrack
	// direction and returns the first foreground neighbour together with the
	// backtrack direction to use from there.
	next := func(cur image.Point, back int) (image.Point, int, bool) {
		for k := 1; k <= 8; k++ {
			idx := (back + k) % 8
			q := cur.Add(mooreDirs[idx])
			if inside(q) {
				prev := cur.Add(mooreDirs[(back+k-1)%8])
				return q, dirIndex(prev.Sub(q)), true
			}
		}
		return image.Point{}, 0, false
	}

	contour := Contour{{X: start.X, Y: start.Y}}

	// start is the first raster pixel, so its West neighbour is background.
	nxt, back, ok := next(start, 0)
	if !ok {
		return contour
	}
	second := nxt

	limit := 4*width*height + 8
	for i := 0; i < limit; i++ {
		cur := nxt
		nxt, back, _ = next(cur, back)
		if cur == start && nxt == second {
			break
		}
		contour = append(contour, geometry.Point{X: cur.X, Y: cur.Y})
	}
	return contour
}

// dirIndex returns the index in mooreDirs of a unit offset.
func dirIndex(d image.Point) int {
	for i, m := range mooreDirs {
		if m == d {
			return i
		}
	}
	return 0
}

// compress drops points that lie in the middle of a straight horizontal,
// vertical or diagonal run.
func compress(c Contour) Contour {
	n := len(c)
	if n < 3 {
		return c
	}
	out := make(Contour, 0, n)
	for i := 0; i < n; i++ {
		prev := c[(i-1+n)%n]
		cur := c[i]
		nxt := c[(i+1)%n]
		if cur.X-prev.X == nxt.X-cur.X && cur.Y-prev.Y == nxt.Y-cur.Y {
			continue
		}
		out = append(out, cur)
	}
	if len(out) == 0 {
		return c[:1]
	}
	return out
}
