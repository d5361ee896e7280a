package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/omr-tools-mcp/internal/grading"
	"github.com/ironsheep/omr-tools-mcp/internal/imaging"
	"github.com/ironsheep/omr-tools-mcp/internal/template"
)

var (
	// ErrNoImage is reported for a job with neither a path nor an image.
	ErrNoImage = errors.New("job has no image")

	// ErrSheetPanic wraps a panic raised while processing one sheet.
	ErrSheetPanic = errors.New("sheet processing panicked")
)

// DefaultWorkers returns the number of logical CPUs.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// Job is one sheet of a batch. Image takes precedence over Path.
type Job struct {
	ID    string
	Path  string
	Image image.Image
}

// SheetOutcome is the result of one job. Exactly one of Result and Err is
// set.
type SheetOutcome struct {
	Job    Job
	Result *Result

	// Report is set when the batch has an answer key and the sheet
	// succeeded.
	Report *grading.Report

	Err      error
	Duration time.Duration
}

// BatchOptions configures a Batch.
type BatchOptions struct {
	// Workers bounds the number of sheets processed at once. Zero means
	// DefaultWorkers().
	Workers int

	// SheetTimeout bounds each sheet. Zero means no per-sheet limit.
	SheetTimeout time.Duration

	// Key, when set, grades every processed sheet.
	Key *grading.Key
}

// Batch processes many sheets against one template. The template and key
// are shared read-only by all workers.
type Batch struct {
	pipeline *Pipeline
	cache    *imaging.ImageCache
	opts     BatchOptions
	logger   *slog.Logger
}

// NewBatch creates a batch runner. Images loaded by path go through cache
// and are evicted once their sheet is done; a nil cache gets a private one.
func NewBatch(p *Pipeline, cache *imaging.ImageCache, opts BatchOptions, logger *slog.Logger) *Batch {
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	return &Batch{pipeline: p, cache: cache, opts: opts, logger: logger}
}

// Workers returns the effective worker count.
func (b *Batch) Workers() int { return b.opts.Workers }

// Run processes every job and returns one outcome per job, in job order.
//
// A failing sheet records its error in its own outcome and never stops the
// others. Cancelling ctx makes the remaining sheets fail with ctx's error;
// Run then also returns that error.
func (b *Batch) Run(ctx context.Context, tmpl *template.Template, jobs []Job) ([]SheetOutcome, error) {
	outcomes := make([]SheetOutcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(b.opts.Workers)

	started := time.Now()
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = b.runOne(ctx, tmpl, job)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	b.logger.Info("batch finished",
		"sheets", len(jobs),
		"failed", failed,
		"workers", b.opts.Workers,
		"elapsed", time.Since(started))

	return outcomes, ctx.Err()
}

func (b *Batch) runOne(ctx context.Context, tmpl *template.Template, job Job) (out SheetOutcome) {
	start := time.Now()
	out = SheetOutcome{Job: job}

	defer func() {
		if r := recover(); r != nil {
			out = SheetOutcome{
				Job:      job,
				Err:      fmt.Errorf("%w: %v", ErrSheetPanic, r),
				Duration: time.Since(start),
			}
			b.logger.Error("sheet panicked", "id", job.ID, "path", job.Path, "panic", r)
		}
	}()

	if b.opts.SheetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.SheetTimeout)
		defer cancel()
	}

	res, err := b.process(ctx, tmpl, job)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		b.logger.Warn("sheet failed", "id", job.ID, "path", job.Path, "error", err)
		return out
	}

	out.Result = res
	if b.opts.Key != nil {
		out.Report = grading.Evaluate(res.Answers, b.opts.Key)
	}
	b.logger.Debug("sheet done", "id", job.ID, "elapsed", out.Duration)
	return out
}

func (b *Batch) process(ctx context.Context, tmpl *template.Template, job Job) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := job.Image
	if img == nil {
		if job.Path == "" {
			return nil, ErrNoImage
		}
		loaded, err := b.cache.Load(job.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load sheet: %w", err)
		}
		defer b.cache.Evict(job.Path)
		img = loaded
	}

	return b.pipeline.Process(ctx, img, tmpl)
}
