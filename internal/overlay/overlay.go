// Package overlay draws detection results on top of a canonical sheet so a
// reviewer can check every decision at a glance.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
	sheetimaging "github.com/ironsheep/omr-tools-mcp/internal/imaging"
	"github.com/ironsheep/omr-tools-mcp/internal/template"
)

// Palette colours.
var (
	Selected = mustHex("#2ecc71") // the chosen option
	Multiple = mustHex("#f39c12") // options of a multiple-marked question
	Empty    = mustHex("#e74c3c") // everything else
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Options controls the overlay drawing.
type Options struct {
	// Radius of the circle drawn around each bubble centre.
	Radius int

	// Thickness of the circle outline.
	Thickness int

	// Tint is how strongly marked bubbles are filled with their colour,
	// from 0 (outline only) to 1 (solid).
	Tint float64

	// Labels draws each question ID left of its first option.
	Labels bool
}

// DefaultOptions returns the overlay defaults.
func DefaultOptions() Options {
	return Options{Radius: 8, Thickness: 2, Tint: 0.35, Labels: true}
}

// Draw returns a copy of img with every template option circled: green for
// the selected option, amber for the options of a multiple-marked question,
// red otherwise. img is not modified.
func Draw(img image.Image, tmpl *template.Template, result *bubble.DetectionResult, opts Options) *image.NRGBA {
	dst := imaging.Clone(img)

	for _, q := range tmpl.Questions() {
		answer, _ := result.Answer(q.ID)
		marked := make(map[string]bool)
		for _, m := range answer.Marked() {
			marked[m] = true
		}

		var first *image.Point
		for _, opt := range q.Options {
			if !opt.Valid {
				continue
			}
			// Template points are relative to the sheet's top-left corner,
			// which is the clone's origin.
			center := image.Pt(opt.Point.X, opt.Point.Y)

			col := Empty
			switch {
			case marked[opt.Label] && answer.State() == bubble.StateSingle:
				col = Selected
			case marked[opt.Label]:
				col = Multiple
			}

			if marked[opt.Label] && opts.Tint > 0 {
				tintDisk(dst, center, opts.Radius-opts.Thickness/2, col, opts.Tint)
			}
			drawRing(dst, center, opts.Radius, opts.Thickness, col)

			if first == nil {
				c := center
				first = &c
			}
		}

		if opts.Labels && first != nil {
			drawLabel(dst, q.ID, *first, opts.Radius)
		}
	}
	return dst
}

// Render draws the overlay and encodes it as base64 PNG.
func Render(img image.Image, tmpl *template.Template, result *bubble.DetectionResult, opts Options) (*sheetimaging.PNGResult, error) {
	return sheetimaging.EncodePNG(Draw(img, tmpl, result, opts))
}

// drawRing paints pixels whose distance from center lies within thickness/2
// of radius.
func drawRing(dst *image.NRGBA, center image.Point, radius, thickness int, c colorful.Color) {
	half := math.Max(float64(thickness)/2, 0.5)
	inner, outer := float64(radius)-half, float64(radius)+half
	reach := radius + thickness + 1
	r, g, b := c.Clamped().RGB255()
	fill := color.NRGBA{R: r, G: g, B: b, A: 255}

	for y := center.Y - reach; y <= center.Y+reach; y++ {
		for x := center.X - reach; x <= center.X+reach; x++ {
			if !image.Pt(x, y).In(dst.Rect) {
				continue
			}
			d := math.Hypot(float64(x-center.X), float64(y-center.Y))
			if d >= inner && d <= outer {
				dst.SetNRGBA(x, y, fill)
			}
		}
	}
}

// tintDisk blends the inside of a circle toward c in Lab space.
func tintDisk(dst *image.NRGBA, center image.Point, radius int, c colorful.Color, amount float64) {
	amount = math.Min(math.Max(amount, 0), 1)
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			if !image.Pt(x, y).In(dst.Rect) {
				continue
			}
			dx, dy := x-center.X, y-center.Y
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			px := dst.NRGBAAt(x, y)
			base, ok := colorful.MakeColor(color.NRGBA{R: px.R, G: px.G, B: px.B, A: 255})
			if !ok {
				continue
			}
			r, g, b := base.BlendLab(c, amount).Clamped().RGB255()
			dst.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: px.A})
		}
	}
}

// drawLabel writes text left of the first bubble of a question, on a white
// backing box so it stays readable on dark scans.
func drawLabel(dst *image.NRGBA, text string, first image.Point, radius int) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face}

	width := d.MeasureString(text).Ceil()
	x := first.X - radius - 4 - width
	baseline := first.Y + face.Ascent/2

	box := image.Rect(x-1, baseline-face.Ascent, x+width+1, baseline+face.Descent)
	draw.Draw(dst, box.Intersect(dst.Rect), image.NewUniform(color.White), image.Point{}, draw.Src)

	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}
