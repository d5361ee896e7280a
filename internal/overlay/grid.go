package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	sheetimaging "github.com/ironsheep/omr-tools-mcp/internal/imaging"
)

// GridLine is the default grid colour.
var GridLine = mustHex("#ff0000")

// GridOptions controls the coordinate grid used when authoring templates.
type GridOptions struct {
	// Spacing between grid lines in pixels.
	Spacing int

	// Labels writes the coordinate of every line along the top and left edges.
	Labels bool

	// Colour of the lines. The zero value means GridLine.
	Colour colorful.Color

	// Opacity of the lines, from 0 to 1.
	Opacity float64
}

// DefaultGridOptions returns the grid defaults.
func DefaultGridOptions() GridOptions {
	return GridOptions{Spacing: 50, Labels: true, Colour: GridLine, Opacity: 0.6}
}

// ParseColour accepts "#rrggbb" or "rrggbb". An empty string yields GridLine.
func ParseColour(s string) (colorful.Color, error) {
	if s == "" {
		return GridLine, nil
	}
	if s[0] != '#' {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return c, nil
}

// Grid returns a copy of img with lines every Spacing pixels. Coordinates
// read off the grid are the ones a template uses for the same sheet.
func Grid(img image.Image, opts GridOptions) (*image.NRGBA, error) {
	if opts.Spacing <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %d", opts.Spacing)
	}
	if opts.Colour == (colorful.Color{}) {
		opts.Colour = GridLine
	}
	alpha := min(max(opts.Opacity, 0), 1)

	dst := imaging.Clone(img)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()

	for x := 0; x < w; x += opts.Spacing {
		for y := 0; y < h; y++ {
			blend(dst, x, y, opts.Colour, alpha)
		}
	}
	for y := 0; y < h; y += opts.Spacing {
		for x := 0; x < w; x++ {
			blend(dst, x, y, opts.Colour, alpha)
		}
	}

	if opts.Labels {
		r, g, b := opts.Colour.Clamped().RGB255()
		d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.NRGBA{R: r, G: g, B: b, A: 255}), Face: basicfont.Face7x13}
		ascent := basicfont.Face7x13.Ascent
		for x := opts.Spacing; x < w; x += opts.Spacing {
			d.Dot = fixed.P(x+2, ascent+1)
			d.DrawString(strconv.Itoa(x))
		}
		for y := opts.Spacing; y < h; y += opts.Spacing {
			d.Dot = fixed.P(2, y-2)
			d.DrawString(strconv.Itoa(y))
		}
	}
	return dst, nil
}

// RenderGrid draws the grid and encodes it as base64 PNG.
func RenderGrid(img image.Image, opts GridOptions) (*sheetimaging.PNGResult, error) {
	g, err := Grid(img, opts)
	if err != nil {
		return nil, err
	}
	return sheetimaging.EncodePNG(g)
}

func blend(dst *image.NRGBA, x, y int, c colorful.Color, alpha float64) {
	px := dst.NRGBAAt(x, y)
	base, ok := colorful.MakeColor(color.NRGBA{R: px.R, G: px.G, B: px.B, A: 255})
	if !ok {
		return
	}
	r, g, b := base.BlendRgb(c, alpha).Clamped().RGB255()
	dst.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: px.A})
}
