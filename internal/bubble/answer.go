package bubble

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is the terminal classification of one question.
type State int

const (
	// StateUnanswered means no option showed enough evidence of a mark.
	StateUnanswered State = iota

	// StateSingle means exactly one option was selected.
	StateSingle

	// StateMultipleMarked means several options were marked and none
	// dominated the others.
	StateMultipleMarked
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateUnanswered:
		return "unanswered"
	case StateSingle:
		return "single"
	case StateMultipleMarked:
		return "multiple-marked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Evidence is the measurement taken for one option.
type Evidence struct {
	Label string `json:"label"`

	// Count is the number of foreground (ink) pixels in the region.
	Count int `json:"count"`

	// Area is the number of pixels in the region after clipping.
	Area int `json:"area"`

	// FillRatio is Count / Area, or 0 for an empty region.
	FillRatio float64 `json:"fill_ratio"`

	// Candidate reports whether Count exceeded the evidence threshold.
	Candidate bool `json:"candidate"`
}

// Answer is the immutable classification of one question.
type Answer struct {
	state    State
	options  []string
	evidence []Evidence
}

// Unanswered returns an answer with no selection.
func Unanswered() Answer { return Answer{state: StateUnanswered} }

// Single returns an answer selecting one option.
func Single(label string) Answer {
	return Answer{state: StateSingle, options: []string{label}}
}

// MultipleMarked returns an answer with several marked options, kept in the
// given order.
func MultipleMarked(labels ...string) Answer {
	return Answer{state: StateMultipleMarked, options: append([]string(nil), labels...)}
}

// withEvidence attaches per-option measurements.
func (a Answer) withEvidence(ev []Evidence) Answer {
	a.evidence = ev
	return a
}

// State returns the classification state.
func (a Answer) State() State { return a.state }

// Selected returns the chosen option of a single answer.
func (a Answer) Selected() (string, bool) {
	if a.state != StateSingle {
		return "", false
	}
	return a.options[0], true
}

// Marked returns every option considered marked: one for a single answer,
// several for a multiple-marked one, none when unanswered.
func (a Answer) Marked() []string {
	return append([]string(nil), a.options...)
}

// Evidence returns the per-option measurements, in template order. It is
// empty for answers that were not produced by a Classifier.
func (a Answer) Evidence() []Evidence {
	return append([]Evidence(nil), a.evidence...)
}

// Equal reports whether two answers have the same state and options.
// Evidence is ignored.
func (a Answer) Equal(b Answer) bool {
	if a.state != b.state || len(a.options) != len(b.options) {
		return false
	}
	for i := range a.options {
		if a.options[i] != b.options[i] {
			return false
		}
	}
	return true
}

// String renders the answer the way it appears in JSON output.
func (a Answer) String() string {
	data, _ := json.Marshal(a)
	return string(data)
}

type multipleJSON struct {
	State   string   `json:"state"`
	Options []string `json:"options"`
}

// MarshalJSON encodes an unanswered question as null, a single answer as its
// label, and a multiple-marked one as
// {"state": "multiple-marked", "options": [...]}.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.state {
	case StateSingle:
		return json.Marshal(a.options[0])
	case StateMultipleMarked:
		return json.Marshal(multipleJSON{State: StateMultipleMarked.String(), Options: a.options})
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes the forms written by MarshalJSON.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = Unanswered()
		return nil
	case len(data) > 0 && data[0] == '"':
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		*a = Single(label)
		return nil
	}

	var m multipleJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode answer: %w", err)
	}
	if m.State != StateMultipleMarked.String() {
		return fmt.Errorf("failed to decode answer: unknown state %q", m.State)
	}
	*a = MultipleMarked(m.Options...)
	return nil
}

// Entry pairs a question ID with its answer.
type Entry struct {
	QuestionID string
	Answer     Answer
}

// DetectionResult maps every template question to its answer, preserving
// template order. It is immutable once built.
type DetectionResult struct {
	entries []Entry
	index   map[string]int
}

// NewDetectionResult builds a result from entries in order. A repeated
// question ID replaces the earlier answer in place.
func NewDetectionResult(entries ...Entry) *DetectionResult {
	r := &DetectionResult{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if i, ok := r.index[e.QuestionID]; ok {
			r.entries[i] = e
			continue
		}
		r.index[e.QuestionID] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r
}

// Len returns the number of questions.
func (r *DetectionResult) Len() int { return len(r.entries) }

// Entries returns all question answers in order.
func (r *DetectionResult) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Answer returns the answer for a question.
func (r *DetectionResult) Answer(questionID string) (Answer, bool) {
	i, ok := r.index[questionID]
	if !ok {
		return Answer{}, false
	}
	return r.entries[i].Answer, true
}

// Counts returns how many questions ended in each state.
func (r *DetectionResult) Counts() map[State]int {
	counts := make(map[State]int, 3)
	for _, e := range r.entries {
		counts[e.Answer.State()]++
	}
	return counts
}

// MarshalJSON encodes the result as an object keyed by question ID, in
// question order.
func (r *DetectionResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.QuestionID)
		if err != nil {
			return nil, err
		}
		val, err := e.Answer.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object written by MarshalJSON, keeping key order.
func (r *DetectionResult) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to decode detection result: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("failed to decode detection result: expected object")
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to decode detection result: %w", err)
		}
		id, _ := tok.(string)

		var a Answer
		if err := dec.Decode(&a); err != nil {
			return fmt.Errorf("failed to decode answer for %q: %w", id, err)
		}
		entries = append(entries, Entry{QuestionID: id, Answer: a})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to decode detection result: %w", err)
	}

	*r = *NewDetectionResult(entries...)
	return nil
}
