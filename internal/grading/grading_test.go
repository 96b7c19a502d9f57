package grading

import (
	"testing"

	"github.com/hoosierprep/portal/internal/model"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"trims and lowercases", "  Paris  ", "paris"},
		{"bool", true, "true"},
		{"number", 42, "42"},
		{"float", 3.5, "3.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCorrect(t *testing.T) {
	tests := []struct {
		name      string
		qtype     model.QuestionType
		submitted any
		stored    model.Answer
		want      bool
	}{
		{"mcq exact", model.TypeMCQ, "Paris", model.Answer{Text: "Paris"}, true},
		{"mcq case and space insensitive", model.TypeMCQ, "  PARIS ", model.Answer{Text: "paris"}, true},
		{"mcq wrong", model.TypeMCQ, "London", model.Answer{Text: "Paris"}, false},
		{"short nil response", model.TypeShort, nil, model.Answer{Text: "Paris"}, false},
		{"truefalse bool vs stored bool", model.TypeTrueFalse, true, model.Answer{Bool: true}, true},
		{"truefalse string vs stored bool", model.TypeTrueFalse, " TRUE ", model.Answer{Bool: true}, true},
		{"truefalse wrong", model.TypeTrueFalse, "false", model.Answer{Bool: true}, false},
		{"cloze whole string", model.TypeCloze, "salt|pepper", model.Answer{Text: "Salt|Pepper"}, true},
		{"multi order insensitive", model.TypeMulti, []any{"B", "A"}, model.Answer{List: []string{"a", "b"}}, true},
		{"multi string slice", model.TypeMulti, []string{"2", "3"}, model.Answer{List: []string{"3", "2"}}, true},
		{"multi missing element", model.TypeMulti, []any{"a"}, model.Answer{List: []string{"a", "b"}}, false},
		{"multi extra element", model.TypeMulti, []any{"a", "b", "c"}, model.Answer{List: []string{"a", "b"}}, false},
		{"multi scalar response", model.TypeMulti, "a", model.Answer{List: []string{"a"}}, false},
		{"multi number response", model.TypeMulti, 42, model.Answer{List: []string{"42"}}, false},
		{"unknown type", model.QuestionType("essay"), "anything", model.Answer{Text: "anything"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Correct(tt.qtype, tt.submitted, tt.stored); got != tt.want {
				t.Errorf("Correct(%q, %v) = %v, want %v", tt.qtype, tt.submitted, got, tt.want)
			}
		})
	}
}

func TestGradeExam(t *testing.T) {
	questions := map[int64]model.Question{
		1: {ID: 1, Type: model.TypeMCQ, Answer: model.Answer{Text: "Paris"}},
		2: {ID: 2, Type: model.TypeTrueFalse, Answer: model.Answer{Bool: true}},
		3: {ID: 3, Type: model.TypeMulti, Answer: model.Answer{List: []string{"a", "b"}}},
		4: {ID: 4, Type: model.TypeShort, Answer: model.Answer{Text: "go"}},
	}
	responses := map[int64]any{
		1: "paris",
		2: "true",
		3: []any{"b", "a"},
		4: "python",
	}

	report := GradeExam([]int64{1, 2, 3, 4}, questions, responses)
	if report.ScorePct != 75.0 {
		t.Errorf("ScorePct = %v, want 75.0", report.ScorePct)
	}
	if len(report.PerQuestion) != 4 {
		t.Fatalf("expected 4 items, got %d", len(report.PerQuestion))
	}
	// Report order follows the exam's question order.
	for i, wantID := range []int64{1, 2, 3, 4} {
		if report.PerQuestion[i].QuestionID != wantID {
			t.Errorf("item %d has question %d, want %d", i, report.PerQuestion[i].QuestionID, wantID)
		}
	}
	if report.PerQuestion[3].Correct {
		t.Error("question 4 should be incorrect")
	}
}

func TestGradeExamSkipsMissingQuestions(t *testing.T) {
	questions := map[int64]model.Question{
		1: {ID: 1, Type: model.TypeShort, Answer: model.Answer{Text: "yes"}},
	}
	report := GradeExam([]int64{1, 99}, questions, map[int64]any{1: "yes", 99: "yes"})
	if len(report.PerQuestion) != 1 {
		t.Fatalf("deleted question should be skipped, got %d items", len(report.PerQuestion))
	}
	// The missing question counts toward neither side of the score.
	if report.ScorePct != 100.0 {
		t.Errorf("ScorePct = %v, want 100.0", report.ScorePct)
	}
}

func TestGradeExamEmpty(t *testing.T) {
	report := GradeExam(nil, nil, nil)
	if report.ScorePct != 0.0 {
		t.Errorf("empty exam ScorePct = %v, want 0.0", report.ScorePct)
	}
	if len(report.PerQuestion) != 0 {
		t.Errorf("expected no items, got %d", len(report.PerQuestion))
	}
}

func TestGradeExamMissingResponses(t *testing.T) {
	questions := map[int64]model.Question{
		1: {ID: 1, Type: model.TypeMCQ, Answer: model.Answer{Text: "a"}},
		2: {ID: 2, Type: model.TypeTrueFalse, Answer: model.Answer{Bool: false}},
	}
	report := GradeExam([]int64{1, 2}, questions, nil)
	for _, item := range report.PerQuestion {
		if item.QuestionID == 1 && item.Correct {
			t.Error("unanswered mcq should be incorrect")
		}
	}
	if report.ScorePct != 0.0 {
		t.Errorf("ScorePct = %v, want 0.0", report.ScorePct)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		correct, total int
		want           float64
	}{
		{0, 0, 0.0},
		{0, 4, 0.0},
		{3, 4, 75.0},
		{4, 4, 100.0},
		{1, 3, 33.33},
		{2, 3, 66.67},
	}
	for _, tt := range tests {
		if got := Score(tt.correct, tt.total); got != tt.want {
			t.Errorf("Score(%d, %d) = %v, want %v", tt.correct, tt.total, got, tt.want)
		}
	}
}
