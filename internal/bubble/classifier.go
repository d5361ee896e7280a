package bubble

import (
	"fmt"
	"image"
	"sort"

	"github.com/ironsheep/omr-tools-mcp/internal/imaging"
	"github.com/ironsheep/omr-tools-mcp/internal/template"
)

// Policy selects how a question with several fill candidates is decided.
type Policy int

const (
	// PolicyDominance selects the top candidate only when its count exceeds
	// the runner-up by more than DominanceMargin; otherwise the question is
	// multiple-marked.
	PolicyDominance Policy = iota

	// PolicyMostFilled selects the candidate with the highest count. Only an
	// exact tie for the maximum is multiple-marked.
	PolicyMostFilled
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyDominance:
		return "dominance"
	case PolicyMostFilled:
		return "most-filled"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy converts a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "dominance":
		return PolicyDominance, nil
	case "most-filled":
		return PolicyMostFilled, nil
	}
	return 0, fmt.Errorf("unknown decision policy %q", name)
}

// Options controls bubble classification.
type Options struct {
	// Threshold is the binarization level: pixels darker than it are ink.
	Threshold uint8

	// AutoThreshold replaces Threshold with Otsu's level computed per image.
	AutoThreshold bool

	// HalfSize is half the side of the square region inspected around each
	// bubble centre.
	HalfSize int

	// EvidenceThreshold is the ink pixel count an option must exceed to be a
	// fill candidate.
	EvidenceThreshold int

	// DominanceMargin is how far the top candidate must lead the runner-up
	// under PolicyDominance.
	DominanceMargin int

	// Policy decides questions with more than one candidate.
	Policy Policy
}

// DefaultOptions returns the classification defaults for a 20x20 region.
func DefaultOptions() Options {
	return Options{
		Threshold:         150,
		HalfSize:          10,
		EvidenceThreshold: 100,
		DominanceMargin:   100,
		Policy:            PolicyDominance,
	}
}

// Classifier decides which bubble of each question was marked.
type Classifier struct {
	opts Options
}

// NewClassifier creates a Classifier. Negative sizes are treated as zero.
func NewClassifier(opts Options) *Classifier {
	opts.HalfSize = max(opts.HalfSize, 0)
	opts.EvidenceThreshold = max(opts.EvidenceThreshold, 0)
	opts.DominanceMargin = max(opts.DominanceMargin, 0)
	return &Classifier{opts: opts}
}

// Options returns the effective options.
func (c *Classifier) Options() Options { return c.opts }

// Binarize returns the ink map of img and the level that produced it.
func (c *Classifier) Binarize(img image.Image) (*image.Gray, uint8) {
	gray := imaging.ToGray(img)
	level := c.opts.Threshold
	if c.opts.AutoThreshold {
		level = imaging.OtsuLevel(gray)
	}
	return imaging.Binarize(gray, level), level
}

// Classify produces an answer for every question of tmpl.
//
// img is the canonical sheet; template coordinates are relative to its
// top-left corner. The image is binarized once and every option's region is
// counted on that map. Regions that fall outside the image count as empty.
func (c *Classifier) Classify(img image.Image, tmpl *template.Template) *DetectionResult {
	bin, _ := c.Binarize(img)
	return c.ClassifyBinary(bin, tmpl)
}

// ClassifyBinary classifies an already binarized ink map.
func (c *Classifier) ClassifyBinary(bin *image.Gray, tmpl *template.Template) *DetectionResult {
	questions := tmpl.Questions()
	entries := make([]Entry, 0, len(questions))
	for _, q := range questions {
		ev := c.measure(bin, q)
		entries = append(entries, Entry{QuestionID: q.ID, Answer: c.decide(ev).withEvidence(ev)})
	}
	return NewDetectionResult(entries...)
}

// measure counts ink in the region of every option.
func (c *Classifier) measure(bin *image.Gray, q template.Question) []Evidence {
	ev := make([]Evidence, 0, len(q.Options))
	h := c.opts.HalfSize
	reach := bin.Rect.Inset(-h)
	for _, opt := range q.Options {
		e := Evidence{Label: opt.Label}
		// Points whose region cannot touch the image are skipped before
		// any arithmetic that could overflow.
		if opt.Valid && image.Pt(opt.Point.X, opt.Point.Y).In(reach) {
			roi := image.Rect(opt.Point.X-h, opt.Point.Y-h, opt.Point.X+h, opt.Point.Y+h).Intersect(bin.Rect)
			e.Area = roi.Dx() * roi.Dy()
			e.Count = imaging.CountForeground(bin, roi)
			if e.Area > 0 {
				e.FillRatio = float64(e.Count) / float64(e.Area)
			}
			e.Candidate = e.Count > c.opts.EvidenceThreshold
		}
		ev = append(ev, e)
	}
	return ev
}

// decide applies the configured policy to the candidates.
func (c *Classifier) decide(ev []Evidence) Answer {
	var candidates []Evidence
	for _, e := range ev {
		if e.Candidate {
			candidates = append(candidates, e)
		}
	}

	switch len(candidates) {
	case 0:
		return Unanswered()
	case 1:
		return Single(candidates[0].Label)
	}

	ranked := append([]Evidence(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	top, runnerUp := ranked[0], ranked[1]

	if c.opts.Policy == PolicyMostFilled {
		if top.Count > runnerUp.Count {
			return Single(top.Label)
		}
		var tied []string
		for _, e := range candidates {
			if e.Count == top.Count {
				tied = append(tied, e.Label)
			}
		}
		return MultipleMarked(tied...)
	}

	if top.Count-runnerUp.Count > c.opts.DominanceMargin {
		return Single(top.Label)
	}
	labels := make([]string, len(candidates))
	for i, e := range candidates {
		labels[i] = e.Label
	}
	return MultipleMarked(labels...)
}
