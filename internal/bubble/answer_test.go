package bubble

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswer_Accessors(t *testing.T) {
	u := Unanswered()
	assert.Equal(t, StateUnanswered, u.State())
	assert.Empty(t, u.Marked())
	_, ok := u.Selected()
	assert.False(t, ok)

	s := Single("B")
	label, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, "B", label)
	assert.Equal(t, []string{"B"}, s.Marked())

	labels := []string{"A", "C"}
	m := MultipleMarked(labels...)
	labels[0] = "Z"
	assert.Equal(t, []string{"A", "C"}, m.Marked(), "labels are copied")

	marked := m.Marked()
	marked[1] = "Z"
	assert.Equal(t, []string{"A", "C"}, m.Marked(), "accessor returns a copy")

	assert.True(t, m.Equal(MultipleMarked("A", "C")))
	assert.False(t, m.Equal(MultipleMarked("C", "A")))
	assert.False(t, s.Equal(u))
}

func TestDetectionResult_JSONKeepsQuestionOrder(t *testing.T) {
	r := NewDetectionResult(
		Entry{QuestionID: "10", Answer: Single("A")},
		Entry{QuestionID: "2", Answer: Unanswered()},
		Entry{QuestionID: "1", Answer: MultipleMarked("A", "B")},
	)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"10":"A","2":null,"1":{"state":"multiple-marked","options":["A","B"]}}`, string(data))

	var decoded DetectionResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, r.Len(), decoded.Len())
	for i, e := range r.Entries() {
		got := decoded.Entries()[i]
		assert.Equal(t, e.QuestionID, got.QuestionID)
		assert.True(t, e.Answer.Equal(got.Answer), "question %s", e.QuestionID)
	}
}

func TestDetectionResult_DuplicateIDReplaces(t *testing.T) {
	r := NewDetectionResult(
		Entry{QuestionID: "1", Answer: Single("A")},
		Entry{QuestionID: "2", Answer: Single("B")},
		Entry{QuestionID: "1", Answer: Single("C")},
	)
	require.Equal(t, 2, r.Len())
	a, _ := r.Answer("1")
	label, _ := a.Selected()
	assert.Equal(t, "C", label)
	assert.Equal(t, "1", r.Entries()[0].QuestionID)
}

func TestDetectionResult_Counts(t *testing.T) {
	r := NewDetectionResult(
		Entry{QuestionID: "1", Answer: Single("A")},
		Entry{QuestionID: "2", Answer: Single("B")},
		Entry{QuestionID: "3", Answer: Unanswered()},
		Entry{QuestionID: "4", Answer: MultipleMarked("A", "D")},
	)
	assert.Equal(t, map[State]int{StateSingle: 2, StateUnanswered: 1, StateMultipleMarked: 1}, r.Counts())
}

func TestAnswer_UnmarshalErrors(t *testing.T) {
	for _, doc := range []string{`42`, `{"state": "bogus", "options": []}`, `[1]`} {
		var a Answer
		assert.Error(t, json.Unmarshal([]byte(doc), &a), doc)
	}

	var r DetectionResult
	assert.Error(t, json.Unmarshal([]byte(`["A"]`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"1": 5}`), &r))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unanswered", StateUnanswered.String())
	assert.Equal(t, "single", StateSingle.String())
	assert.Equal(t, "multiple-marked", StateMultipleMarked.String())
	assert.Equal(t, `"A"`, Single("A").String())
	assert.Equal(t, "null", Unanswered().String())
}
