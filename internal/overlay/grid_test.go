package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_Lines(t *testing.T) {
	img := whiteSheet(120, 120)
	opts := DefaultGridOptions()
	opts.Opacity = 1
	opts.Labels = false

	g, err := Grid(img, opts)
	require.NoError(t, err)

	assert.Equal(t, paletteRGB(GridLine), rgb(g.NRGBAAt(50, 7)), "vertical line")
	assert.Equal(t, paletteRGB(GridLine), rgb(g.NRGBAAt(13, 100)), "horizontal line")
	assert.Equal(t, [3]uint8{255, 255, 255}, rgb(g.NRGBAAt(25, 25)), "between lines")
	assert.Equal(t, [3]uint8{255, 255, 255}, rgb(img.NRGBAAt(50, 7)), "source untouched")
}

func TestGrid_Labels(t *testing.T) {
	img := whiteSheet(200, 200)
	opts := DefaultGridOptions()
	opts.Opacity = 1

	plain := opts
	plain.Labels = false

	labelled, err := Grid(img, opts)
	require.NoError(t, err)
	unlabelled, err := Grid(img, plain)
	require.NoError(t, err)

	assert.NotEqual(t, unlabelled.Pix, labelled.Pix)
}

func TestGrid_InvalidSpacing(t *testing.T) {
	opts := DefaultGridOptions()
	opts.Spacing = 0
	_, err := Grid(whiteSheet(10, 10), opts)
	assert.Error(t, err)
}

func TestParseColour(t *testing.T) {
	c, err := ParseColour("")
	require.NoError(t, err)
	assert.Equal(t, GridLine, c)

	c, err = ParseColour("00ff00")
	require.NoError(t, err)
	r, g, b := c.RGB255()
	assert.Equal(t, [3]uint8{0, 255, 0}, [3]uint8{r, g, b})

	_, err = ParseColour("#zzzzzz")
	assert.Error(t, err)
}

func TestRenderGrid(t *testing.T) {
	res, err := RenderGrid(whiteSheet(60, 40), DefaultGridOptions())
	require.NoError(t, err)
	assert.Equal(t, 60, res.Width)
	assert.Equal(t, 40, res.Height)
	assert.Equal(t, "image/png", res.MimeType)
}
