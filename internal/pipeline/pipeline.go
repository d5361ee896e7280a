// Package pipeline wires boundary detection, rectification and bubble
// classification into a single call per sheet, and runs batches of sheets
// on a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
	"github.com/ironsheep/omr-tools-mcp/internal/config"
	"github.com/ironsheep/omr-tools-mcp/internal/detection"
	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
	"github.com/ironsheep/omr-tools-mcp/internal/rectify"
	"github.com/ironsheep/omr-tools-mcp/internal/template"
)

// Options configures every stage of a Pipeline.
type Options struct {
	Boundary   detection.Options
	Rectify    rectify.Options
	Classifier bubble.Options

	// AlignedInput treats images as already rectified: boundary detection
	// and warping are skipped.
	AlignedInput bool
}

// DefaultOptions returns the defaults of each stage.
func DefaultOptions() Options {
	return Options{
		Boundary:   detection.DefaultOptions(),
		Rectify:    rectify.DefaultOptions(),
		Classifier: bubble.DefaultOptions(),
	}
}

// OptionsFromConfig converts the runtime configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Boundary:     cfg.BoundaryOptions(),
		Rectify:      cfg.RectifyOptions(),
		Classifier:   cfg.ClassifierOptions(),
		AlignedInput: cfg.Rectify.AlignedInput,
	}
}

// Result is the outcome of processing one sheet.
type Result struct {
	// Boundary is nil for aligned input.
	Boundary *detection.Boundary

	Canonical *rectify.Canonical
	Answers   *bubble.DetectionResult

	// Threshold is the binarization level the classifier used.
	Threshold uint8
}

// Pipeline processes single sheets. It holds no per-sheet state and is safe
// for concurrent use.
type Pipeline struct {
	locator    *detection.BoundaryLocator
	rectifier  *rectify.Rectifier
	classifier *bubble.Classifier
	aligned    bool
	logger     *slog.Logger
}

// New creates a Pipeline. A nil logger discards log output.
func New(opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		locator:    detection.NewBoundaryLocator(opts.Boundary),
		rectifier:  rectify.NewRectifier(opts.Rectify),
		classifier: bubble.NewClassifier(opts.Classifier),
		aligned:    opts.AlignedInput,
		logger:     logger,
	}
}

// Locator returns the boundary locator used by the pipeline.
func (p *Pipeline) Locator() *detection.BoundaryLocator { return p.locator }

// Rectifier returns the rectifier used by the pipeline.
func (p *Pipeline) Rectifier() *rectify.Rectifier { return p.rectifier }

// Classifier returns the bubble classifier used by the pipeline.
func (p *Pipeline) Classifier() *bubble.Classifier { return p.classifier }

// Normalize locates and rectifies the sheet in img. For aligned input the
// whole image becomes the canonical sheet and the returned boundary is nil.
func (p *Pipeline) Normalize(ctx context.Context, img image.Image) (*detection.Boundary, *rectify.Canonical, error) {
	if p.aligned {
		return nil, wholeImage(img), nil
	}

	start := time.Now()
	boundary, err := p.locator.Locate(img)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to locate sheet: %w", err)
	}
	p.logger.Debug("sheet located",
		"tier", boundary.Tier.String(),
		"contours", boundary.Contours,
		"elapsed", time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	canonical, err := p.rectifier.Rectify(img, boundary.Quad)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rectify sheet: %w", err)
	}
	return boundary, canonical, nil
}

// Process runs every stage on img. ctx is checked between stages; a stage
// that has started always completes.
func (p *Pipeline) Process(ctx context.Context, img image.Image, tmpl *template.Template) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boundary, canonical, err := p.Normalize(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bin, level := p.classifier.Binarize(canonical.Image)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answers := p.classifier.ClassifyBinary(bin, tmpl)

	counts := answers.Counts()
	p.logger.Debug("sheet classified",
		"width", canonical.Width,
		"height", canonical.Height,
		"threshold", level,
		"single", counts[bubble.StateSingle],
		"multiple", counts[bubble.StateMultipleMarked],
		"unanswered", counts[bubble.StateUnanswered])

	return &Result{
		Boundary:  boundary,
		Canonical: canonical,
		Answers:   answers,
		Threshold: level,
	}, nil
}

// wholeImage wraps an already aligned image as a canonical sheet.
func wholeImage(img image.Image) *rectify.Canonical {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	return &rectify.Canonical{
		Image:  nrgba,
		Width:  w,
		Height: h,
		Quad: geometry.Quad{
			{X: 0, Y: 0},
			{X: w - 1, Y: 0},
			{X: w - 1, Y: h - 1},
			{X: 0, Y: h - 1},
		},
	}
}
