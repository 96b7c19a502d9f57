package llm

import (
	"strings"
	"testing"

	"github.com/hoosierprep/portal/internal/model"
)

func TestBuildGenerationPrompt(t *testing.T) {
	cfg := GenerateConfig{
		QuestionCount: 12,
		Difficulty:    "hard",
		QuestionTypes: []model.QuestionType{model.TypeMCQ, model.TypeCloze},
		FocusConcepts: []string{"entropy", "enthalpy"},
	}
	prompt := buildGenerationPrompt("The second law of thermodynamics...", cfg)

	if !strings.Contains(prompt, "The second law of thermodynamics") {
		t.Error("prompt should contain the study material")
	}
	if !strings.Contains(prompt, "Generate exactly 12 questions") {
		t.Error("prompt should state the question count")
	}
	if !strings.Contains(prompt, "Difficulty level: hard") {
		t.Error("prompt should state the difficulty")
	}
	if !strings.Contains(prompt, "mcq, cloze") {
		t.Error("prompt should list the requested types")
	}
	if !strings.Contains(prompt, "entropy, enthalpy") {
		t.Error("prompt should list the focus concepts")
	}
}

func TestBuildGenerationPromptNoFocus(t *testing.T) {
	prompt := buildGenerationPrompt("material", GenerateConfig{
		QuestionCount: 5,
		Difficulty:    "easy",
		QuestionTypes: []model.QuestionType{model.TypeShort},
	})
	if strings.Contains(prompt, "Focus on these concepts") {
		t.Error("prompt should omit the focus section when no concepts given")
	}
}

func TestBuildGenerationPromptTruncatesContent(t *testing.T) {
	content := strings.Repeat("x", maxContentChars+500)
	prompt := buildGenerationPrompt(content, GenerateConfig{QuestionCount: 1, Difficulty: "easy"})
	if strings.Contains(prompt, strings.Repeat("x", maxContentChars+1)) {
		t.Error("material should be truncated")
	}
}

func TestParseGeneratedExam(t *testing.T) {
	raw := `{
		"metadata": {"topic": "Physics", "themes": ["mechanics"], "difficulty": "medium", "estimated_time_minutes": 20},
		"questions": [
			{"question": "F = ?", "answer": "ma", "type": "short", "options": null, "concepts": ["newton"]},
			{"question": "Pick the vectors", "answer": ["force", "velocity"], "type": "multi", "options": ["force", "velocity", "mass", "time"], "concepts": []},
			{"question": "Mass is conserved", "answer": "True", "type": "truefalse", "options": null, "concepts": []}
		]
	}`
	exam, err := parseGeneratedExam(raw)
	if err != nil {
		t.Fatalf("parseGeneratedExam: %v", err)
	}
	if exam.Metadata.Topic != "Physics" {
		t.Errorf("topic = %q", exam.Metadata.Topic)
	}
	if len(exam.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(exam.Questions))
	}
	if exam.Questions[0].Type != model.TypeShort || exam.Questions[0].Answer.Text != "ma" {
		t.Errorf("unexpected short question: %+v", exam.Questions[0])
	}
	multi := exam.Questions[1]
	if len(multi.Answer.List) != 2 || multi.Answer.List[0] != "force" {
		t.Errorf("multi answer = %v", multi.Answer.List)
	}
	if len(multi.Options) != 4 {
		t.Errorf("multi options = %v", multi.Options)
	}
	if !exam.Questions[2].Answer.Bool {
		t.Error("truefalse answer should be true")
	}
}

func TestParseGeneratedExamCodeFences(t *testing.T) {
	raw := "```json\n{\"metadata\": {}, \"questions\": [{\"question\": \"Q\", \"answer\": \"A\", \"type\": \"short\"}]}\n```"
	exam, err := parseGeneratedExam(raw)
	if err != nil {
		t.Fatalf("parseGeneratedExam: %v", err)
	}
	if len(exam.Questions) != 1 {
		t.Errorf("expected 1 question, got %d", len(exam.Questions))
	}
}

func TestParseGeneratedExamInvalidTypeFallsBack(t *testing.T) {
	raw := `{"metadata": {}, "questions": [{"question": "Q", "answer": "A", "type": "essay", "options": ["a", "b"]}]}`
	exam, err := parseGeneratedExam(raw)
	if err != nil {
		t.Fatalf("parseGeneratedExam: %v", err)
	}
	q := exam.Questions[0]
	if q.Type != model.TypeShort {
		t.Errorf("invalid type should fall back to short, got %q", q.Type)
	}
	if q.Options != nil {
		t.Errorf("options should be dropped for non-choice types, got %v", q.Options)
	}
}

func TestParseGeneratedExamMCQNeedsOptions(t *testing.T) {
	raw := `{"metadata": {}, "questions": [{"question": "Q", "answer": "A", "type": "mcq", "options": ["only one"]}]}`
	if _, err := parseGeneratedExam(raw); err == nil {
		t.Error("mcq with fewer than 2 options should fail")
	}
}

func TestParseGeneratedExamEmpty(t *testing.T) {
	if _, err := parseGeneratedExam(`{"metadata": {}, "questions": []}`); err == nil {
		t.Error("zero questions should fail")
	}
	if _, err := parseGeneratedExam("not json at all"); err == nil {
		t.Error("unparseable response should fail")
	}
}

func TestDraftAnswerCoercion(t *testing.T) {
	t.Run("cloze array joins blanks", func(t *testing.T) {
		a := draftAnswer(model.TypeCloze, []any{"salt", "pepper"})
		if a.Text != "salt|pepper" {
			t.Errorf("text = %q, want salt|pepper", a.Text)
		}
	})
	t.Run("multi scalar becomes single element", func(t *testing.T) {
		a := draftAnswer(model.TypeMulti, "force")
		if len(a.List) != 1 || a.List[0] != "force" {
			t.Errorf("list = %v", a.List)
		}
	})
	t.Run("truefalse bool", func(t *testing.T) {
		if a := draftAnswer(model.TypeTrueFalse, true); !a.Bool {
			t.Error("expected true")
		}
	})
	t.Run("truefalse string false", func(t *testing.T) {
		if a := draftAnswer(model.TypeTrueFalse, "False"); a.Bool {
			t.Error("expected false")
		}
	})
}
