// Package template loads answer-sheet templates: the pixel position of every
// bubble on the canonical (rectified) sheet.
//
// A template file is JSON or YAML. The root is either a mapping of question
// ID to options, or that mapping wrapped in a "questions" key:
//
//	{"questions": {"1": {"A": [120, 340], "B": [160, 340]}, "2": [[120, 380], [160, 380]]}}
//
// Options are given either as a mapping of label to [x, y] or as a list of
// [x, y] points, which are labelled "0", "1", ... in order. Question and
// option order follows the file.
//
// Entries that cannot be interpreted do not fail the whole template. A
// question whose value is neither a mapping nor a list is kept as Malformed
// with no options; an option whose value is not a point is kept with
// Valid=false. Both end up unanswered.
package template

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
)

// ErrInvalidTemplate is returned when a template document has no usable
// question mapping.
var ErrInvalidTemplate = errors.New("invalid template")

// Option is one bubble of a question.
type Option struct {
	// Label is the option name reported in results, e.g. "A".
	Label string `json:"label"`

	// Point is the bubble centre in canonical image coordinates.
	Point geometry.Point `json:"point"`

	// Valid is false when the template entry was not a usable point.
	Valid bool `json:"valid"`
}

// Question is an ordered set of options.
type Question struct {
	ID        string   `json:"id"`
	Options   []Option `json:"options"`
	Malformed bool     `json:"malformed,omitempty"`
}

// Template is an immutable, ordered set of questions. It is safe to share
// between goroutines.
type Template struct {
	questions []Question
	index     map[string]int
}

// New builds a template from questions in the given order. The slices are
// copied. Duplicate IDs yield ErrInvalidTemplate.
func New(questions ...Question) (*Template, error) {
	t := &Template{
		questions: make([]Question, 0, len(questions)),
		index:     make(map[string]int, len(questions)),
	}
	for _, q := range questions {
		if _, dup := t.index[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question %q", ErrInvalidTemplate, q.ID)
		}
		q.Options = append([]Option(nil), q.Options...)
		t.index[q.ID] = len(t.questions)
		t.questions = append(t.questions, q)
	}
	return t, nil
}

// Len returns the number of questions.
func (t *Template) Len() int { return len(t.questions) }

// Questions returns the questions in template order. Callers must not modify
// the returned options.
func (t *Template) Questions() []Question {
	return append([]Question(nil), t.questions...)
}

// Question returns the question with the given ID.
func (t *Template) Question(id string) (Question, bool) {
	i, ok := t.index[id]
	if !ok {
		return Question{}, false
	}
	return t.questions[i], true
}

// IDs returns the question IDs in template order.
func (t *Template) IDs() []string {
	ids := make([]string, len(t.questions))
	for i, q := range t.questions {
		ids[i] = q.ID
	}
	return ids
}

// LoadFile reads and parses a template file.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a JSON or YAML template document.
func Parse(data []byte) (*Template, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidTemplate)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: root must be a mapping", ErrInvalidTemplate)
	}
	if wrapped := mappingValue(root, "questions"); wrapped != nil {
		if wrapped.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: \"questions\" must be a mapping", ErrInvalidTemplate)
		}
		root = wrapped
	}

	questions := make([]Question, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		questions = append(questions, parseQuestion(root.Content[i].Value, root.Content[i+1]))
	}
	return New(questions...)
}

// mappingValue returns the value node stored under key, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func parseQuestion(id string, node *yaml.Node) Question {
	q := Question{ID: id}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			q.Options = append(q.Options, parseOption(node.Content[i].Value, node.Content[i+1]))
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			q.Options = append(q.Options, parseOption(strconv.Itoa(i), item))
		}
	default:
		q.Malformed = true
	}
	return q
}

func parseOption(label string, node *yaml.Node) Option {
	p, ok := parsePoint(node)
	return Option{Label: label, Point: p, Valid: ok}
}

// parsePoint accepts [x, y] or {x: .., y: ..}. Fractional coordinates are
// rounded to the nearest pixel.
func parsePoint(node *yaml.Node) (geometry.Point, bool) {
	var xNode, yNode *yaml.Node
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return geometry.Point{}, false
		}
		xNode, yNode = node.Content[0], node.Content[1]
	case yaml.MappingNode:
		xNode, yNode = mappingValue(node, "x"), mappingValue(node, "y")
		if xNode == nil || yNode == nil {
			return geometry.Point{}, false
		}
	default:
		return geometry.Point{}, false
	}

	x, okX := scalarNumber(xNode)
	y, okY := scalarNumber(yNode)
	if !okX || !okY {
		return geometry.Point{}, false
	}
	return geometry.Point{X: int(math.Round(x)), Y: int(math.Round(y))}, true
}

// MaxCoordinate bounds the absolute value of a template coordinate. Larger
// values are treated as malformed so pixel arithmetic cannot overflow.
const MaxCoordinate = 1 << 30

func scalarNumber(node *yaml.Node) (float64, bool) {
	if node.Kind != yaml.ScalarNode || (node.ShortTag() != "!!int" && node.ShortTag() != "!!float") {
		return 0, false
	}
	var v float64
	if err := node.Decode(&v); err != nil || math.IsNaN(v) || math.Abs(v) > MaxCoordinate {
		return 0, false
	}
	return v, true
}
