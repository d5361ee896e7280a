package detection

import (
	"errors"
	"image"

	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
	"github.com/ironsheep/omr-tools-mcp/internal/imaging"
)

// ErrNoBoundary is returned when the combined edge map contains no contour
// at all, so not even the fallback strategy can produce corners.
var ErrNoBoundary = errors.New("no sheet boundary found")

// Tier identifies which strategy produced a boundary.
type Tier int

const (
	// TierPolygon means a contour simplified to exactly four well-ordered
	// vertices.
	TierPolygon Tier = 1

	// TierBoundingBox means the axis-aligned bounding rectangle of the
	// largest contour was used.
	TierBoundingBox Tier = 2
)

// String returns the strategy name for the tier.
func (t Tier) String() string {
	switch t {
	case TierPolygon:
		return "polygon"
	case TierBoundingBox:
		return "bounding-box"
	}
	return "unknown"
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Strategy turns contours, sorted by area descending, into sheet corners.
type Strategy interface {
	// Tier identifies the strategy in results.
	Tier() Tier

	// Find returns the ordered corners, or false when the strategy does not
	// apply to these contours.
	Find(contours []Contour) (geometry.Quad, bool)
}

// PolygonStrategy picks the largest contour whose Douglas-Peucker
// simplification has exactly four vertices with a non-degenerate ordering.
type PolygonStrategy struct {
	// EpsilonFactor is the simplification tolerance as a fraction of the
	// contour perimeter.
	EpsilonFactor float64
}

// Tier implements Strategy.
func (PolygonStrategy) Tier() Tier { return TierPolygon }

// Find implements Strategy.
func (s PolygonStrategy) Find(contours []Contour) (geometry.Quad, bool) {
	for _, c := range contours {
		if len(c) < 4 {
			continue
		}
		approx := geometry.ApproxPolygon(c, s.EpsilonFactor*c.Perimeter())
		if len(approx) != 4 {
			continue
		}
		q, err := geometry.OrderPoints(approx)
		if err != nil {
			continue
		}
		return q, true
	}
	return geometry.Quad{}, false
}

// BoundingBoxStrategy uses the bounding rectangle of the largest contour.
// Its corners are always distinct in both diagonals, so it never fails on a
// non-empty contour list.
type BoundingBoxStrategy struct{}

// Tier implements Strategy.
func (BoundingBoxStrategy) Tier() Tier { return TierBoundingBox }

// Find implements Strategy.
func (BoundingBoxStrategy) Find(contours []Contour) (geometry.Quad, bool) {
	if len(contours) == 0 || len(contours[0]) == 0 {
		return geometry.Quad{}, false
	}
	return geometry.BoundingQuad(contours[0]), true
}

// Options controls boundary detection.
type Options struct {
	// MaxDimension bounds the longest side of the image used for detection.
	// Larger photos are downscaled first. Zero disables downscaling.
	MaxDimension int

	// BlurSigma is the Gaussian sigma applied before edge detection.
	BlurSigma float64

	// CannyLow and CannyHigh are the hysteresis thresholds.
	CannyLow  float64
	CannyHigh float64

	// AdaptiveBlock is the neighbourhood size of the adaptive threshold.
	AdaptiveBlock int

	// AdaptiveC is subtracted from the local mean.
	AdaptiveC float64

	// EpsilonFactor is the polygon simplification tolerance relative to the
	// contour perimeter.
	EpsilonFactor float64

	// RefineBand is how far, in detection pixels, polygon corners may be
	// pulled onto the Canny edges of the sheet sides. Zero disables
	// refinement.
	RefineBand int
}

// DefaultOptions returns the detection parameters tuned for phone photos of
// printed answer sheets.
func DefaultOptions() Options {
	return Options{
		MaxDimension:  1600,
		BlurSigma:     1.1,
		CannyLow:      30,
		CannyHigh:     150,
		AdaptiveBlock: 11,
		AdaptiveC:     2,
		EpsilonFactor: 0.02,
		RefineBand:    8,
	}
}

// Boundary is the located sheet outline in source image coordinates.
type Boundary struct {
	// Quad holds the corners ordered TL, TR, BR, BL.
	Quad geometry.Quad `json:"quad"`

	// Tier reports which strategy produced Quad.
	Tier Tier `json:"tier"`

	// Contours is the number of external contours found.
	Contours int `json:"contours"`

	// Scale is the factor detection coordinates were multiplied by to reach
	// source coordinates.
	Scale float64 `json:"scale"`
}

// BoundaryLocator finds the four corners of an answer sheet in a photo.
//
// Detection runs on a combined binary map: Canny edges OR an inverted
// adaptive threshold of the blurred, equalized grayscale image. External
// contours of that map are handed to each strategy in order; the first one
// that succeeds wins.
type BoundaryLocator struct {
	opts       Options
	strategies []Strategy
}

// NewBoundaryLocator creates a locator with the polygon strategy followed by
// the bounding box fallback.
func NewBoundaryLocator(opts Options) *BoundaryLocator {
	return &BoundaryLocator{
		opts: opts,
		strategies: []Strategy{
			PolygonStrategy{EpsilonFactor: opts.EpsilonFactor},
			BoundingBoxStrategy{},
		},
	}
}

// Locate returns the sheet corners in img.
//
// Returns ErrNoBoundary when the image contains no contours.
func (l *BoundaryLocator) Locate(img image.Image) (*Boundary, error) {
	combined, edges, factor := l.combinedMap(img)
	contours := FindExternalContours(combined)
	if len(contours) == 0 {
		return nil, ErrNoBoundary
	}

	for _, s := range l.strategies {
		q, ok := s.Find(contours)
		if !ok {
			continue
		}
		// The adaptive threshold widens the outline on the dark side of the
		// sheet edge, so polygon vertices sit a few pixels outside it.
		if s.Tier() == TierPolygon {
			q = RefineCorners(edges, q, l.opts.RefineBand)
		}
		return &Boundary{
			Quad:     toSource(q, factor, img.Bounds()),
			Tier:     s.Tier(),
			Contours: len(contours),
			Scale:    factor,
		}, nil
	}
	return nil, ErrNoBoundary
}

// EdgeMap returns the combined binary map Locate works on, at detection
// scale.
func (l *BoundaryLocator) EdgeMap(img image.Image) *image.Gray {
	combined, _, _ := l.combinedMap(img)
	return combined
}

// combinedMap returns the combined map, the Canny edges alone, and the
// detection scale factor.
func (l *BoundaryLocator) combinedMap(img image.Image) (*image.Gray, *image.Gray, float64) {
	small, factor := imaging.Fit(img, l.opts.MaxDimension)

	gray := imaging.Equalize(imaging.ToGray(small))
	blurred := imaging.Blur(gray, l.opts.BlurSigma)

	edges := imaging.Canny(blurred, l.opts.CannyLow, l.opts.CannyHigh)
	adaptive := imaging.AdaptiveThreshold(blurred, l.opts.AdaptiveBlock, l.opts.AdaptiveC)
	return imaging.Or(edges, adaptive), edges, factor
}

// toSource maps detection-scale corners back into the bounds of the source
// image.
func toSource(q geometry.Quad, factor float64, bounds image.Rectangle) geometry.Quad {
	if factor != 1 {
		q = q.Scale(factor)
	}
	for i := range q {
		q[i].X = min(max(q[i].X+bounds.Min.X, bounds.Min.X), bounds.Max.X-1)
		q[i].Y = min(max(q[i].Y+bounds.Min.Y, bounds.Min.Y), bounds.Max.Y-1)
	}
	return q
}
