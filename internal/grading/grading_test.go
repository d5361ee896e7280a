package grading

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
)

func TestEvaluate(t *testing.T) {
	key, err := ParseKey([]byte(`{"1": "A", "2": "B", "3": "C", "4": "D", "5": "A", "6": "B"}`))
	require.NoError(t, err)

	result := bubble.NewDetectionResult(
		bubble.Entry{QuestionID: "1", Answer: bubble.Single("A")},
		bubble.Entry{QuestionID: "2", Answer: bubble.Single("C")},
		bubble.Entry{QuestionID: "3", Answer: bubble.MultipleMarked("B", "C")},
		bubble.Entry{QuestionID: "4", Answer: bubble.MultipleMarked("A", "B")},
		bubble.Entry{QuestionID: "5", Answer: bubble.Unanswered()},
		bubble.Entry{QuestionID: "99", Answer: bubble.Single("A")},
	)

	report := Evaluate(result, key)

	assert.Equal(t, 1, report.Score)
	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 4, report.Attempted)
	assert.Equal(t, 16.67, report.Accuracy)

	want := []Outcome{OutcomeCorrect, OutcomeWrong, OutcomeMultipleMarked, OutcomeWrong, OutcomeUnattempted, OutcomeUnattempted}
	require.Len(t, report.Details, len(want))
	for i, d := range report.Details {
		assert.Equal(t, want[i], d.Result, "question %s", d.QuestionID)
	}
	assert.Equal(t, []string{"B", "C"}, report.Details[2].Marked)
	assert.Equal(t, []string{}, report.Details[4].Marked)
	assert.Equal(t, "6", report.Details[5].QuestionID)
}

func TestEvaluate_EmptyKey(t *testing.T) {
	report := Evaluate(bubble.NewDetectionResult(), NewKey(nil, nil))
	assert.Zero(t, report.Total)
	assert.Zero(t, report.Accuracy)
	assert.Empty(t, report.Details)
}

func TestEvaluate_PerfectScore(t *testing.T) {
	key := NewKey([]string{"1", "2"}, map[string]string{"1": "A", "2": "B"})
	result := bubble.NewDetectionResult(
		bubble.Entry{QuestionID: "1", Answer: bubble.Single("A")},
		bubble.Entry{QuestionID: "2", Answer: bubble.Single("B")},
	)
	report := Evaluate(result, key)
	assert.Equal(t, 2, report.Score)
	assert.Equal(t, 100.0, report.Accuracy)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey([]byte("Q1: A\nQ2: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, key.Len())

	label, ok := key.Correct("Q2")
	assert.True(t, ok)
	assert.Equal(t, "3", label)

	for _, doc := range []string{``, `[1, 2]`, `{"1": ["A", "B"]}`, `{"1": null}`, `{"1": ""}`} {
		_, err := ParseKey([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidKey, doc)
	}
}

func TestLoadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": "A"}`), 0o644))

	key, err := LoadKey(path)
	require.NoError(t, err)
	assert.Equal(t, 1, key.Len())

	_, err = LoadKey(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestExportedConstantsAreDocumented(t *testing.T) {
	file, err := parser.ParseFile(token.NewFileSet(), "grading.go", nil, parser.ParseComments)
	require.NoError(t, err)

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, s := range gen.Specs {
			vs := s.(*ast.ValueSpec)
			for _, name := range vs.Names {
				if name.IsExported() {
					assert.NotNil(t, vs.Doc, "%s has no doc comment", name.Name)
				}
			}
		}
	}
}
