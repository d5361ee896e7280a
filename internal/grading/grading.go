// Package grading scores detection results against an answer key.
package grading

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
)

// ErrInvalidKey is returned when an answer key document cannot be used.
var ErrInvalidKey = errors.New("invalid answer key")

// Key maps question IDs to the single correct option label, in file order.
type Key struct {
	ids     []string
	correct map[string]string
}

// NewKey builds a key from ordered question IDs and their correct labels.
// IDs missing from correct are skipped.
func NewKey(ids []string, correct map[string]string) *Key {
	k := &Key{correct: make(map[string]string, len(ids))}
	for _, id := range ids {
		label, ok := correct[id]
		if !ok {
			continue
		}
		if _, dup := k.correct[id]; !dup {
			k.ids = append(k.ids, id)
		}
		k.correct[id] = label
	}
	return k
}

// Len returns the number of questions in the key.
func (k *Key) Len() int { return len(k.ids) }

// Correct returns the correct label for a question.
func (k *Key) Correct(id string) (string, bool) {
	label, ok := k.correct[id]
	return label, ok
}

// ParseKey decodes a JSON or YAML mapping of question ID to label. Numeric
// labels are accepted and kept as written.
func ParseKey(data []byte) (*Key, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: root must be a mapping", ErrInvalidKey)
	}

	root := doc.Content[0]
	ids := make([]string, 0, len(root.Content)/2)
	correct := make(map[string]string, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id, val := root.Content[i].Value, root.Content[i+1]
		if val.Kind != yaml.ScalarNode || val.ShortTag() == "!!null" || val.Value == "" {
			return nil, fmt.Errorf("%w: question %q needs a single option label", ErrInvalidKey, id)
		}
		ids = append(ids, id)
		correct[id] = val.Value
	}
	return NewKey(ids, correct), nil
}

// LoadKey reads and parses an answer key file.
func LoadKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answer key: %w", err)
	}
	k, err := ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse answer key %s: %w", path, err)
	}
	return k, nil
}

// Outcome is the grade of one question.
type Outcome string

const (
	// OutcomeCorrect means the single marked option matches the key.
	OutcomeCorrect Outcome = "correct"

	// OutcomeWrong means a single option was marked and it differs from the key.
	OutcomeWrong Outcome = "wrong"

	// OutcomeMultipleMarked means more than one option was marked; it scores
	// nothing.
	OutcomeMultipleMarked Outcome = "multiple-marked"

	// OutcomeUnattempted means no option was marked, or the question is
	// missing from the detection result.
	OutcomeUnattempted Outcome = "unattempted"
)

// Detail is the grade of one key question.
type Detail struct {
	QuestionID string   `json:"question"`
	Correct    string   `json:"correct"`
	Marked     []string `json:"marked"`
	Result     Outcome  `json:"result"`
}

// Report summarizes a graded sheet.
type Report struct {
	// Score is the number of correct answers.
	Score int `json:"score"`

	// Total is the number of questions in the key.
	Total int `json:"total"`

	// Attempted counts key questions with at least one marked option.
	Attempted int `json:"attempted"`

	// Accuracy is Score / Total as a percentage rounded to two decimals.
	Accuracy float64 `json:"accuracy"`

	Details []Detail `json:"details"`
}

// Evaluate grades result against key.
//
// Every key question is graded in key order:
//   - correct: exactly one option marked and it is the key's label
//   - multiple-marked: several options marked, the key's label among them
//   - wrong: marked, but the key's label is not among the marks
//   - unattempted: nothing marked, or the question is missing from result
//
// Questions present only in result are ignored.
func Evaluate(result *bubble.DetectionResult, key *Key) *Report {
	r := &Report{Total: key.Len(), Details: make([]Detail, 0, key.Len())}

	for _, id := range key.ids {
		correct := key.correct[id]
		var marked []string
		if a, ok := result.Answer(id); ok {
			marked = a.Marked()
		}

		d := Detail{QuestionID: id, Correct: correct, Marked: marked, Result: OutcomeUnattempted}
		if len(marked) > 0 {
			r.Attempted++
		}

		hit := false
		for _, m := range marked {
			if m == correct {
				hit = true
				break
			}
		}

		switch {
		case hit && len(marked) == 1:
			d.Result = OutcomeCorrect
			r.Score++
		case hit:
			d.Result = OutcomeMultipleMarked
		case len(marked) > 0:
			d.Result = OutcomeWrong
		}
		if d.Marked == nil {
			d.Marked = []string{}
		}
		r.Details = append(r.Details, d)
	}

	if r.Total > 0 {
		r.Accuracy = math.Round(float64(r.Score)/float64(r.Total)*100*100) / 100
	}
	return r
}
