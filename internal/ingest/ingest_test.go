package ingest

import (
	"strings"
	"testing"

	"github.com/hoosierprep/portal/internal/model"
)

func TestParseTableRecoversFromBadQuoting(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantRows int
	}{
		{"clean", "question,answer\nWhat is 2+2?,4\n", 2},
		{"bare quote in field", "question,answer\nWhat is \"x?,unknown\n", 2},
		{"ragged row", "question,answer\nQ1,A1,extra\nQ2,A2\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseTable([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseTable: %v", err)
			}
			if len(rows) != tt.wantRows {
				t.Errorf("expected %d rows, got %d", tt.wantRows, len(rows))
			}
		})
	}
}

func TestNormalizeTypeInference(t *testing.T) {
	rows := [][]string{
		{"question", "answer", "type", "options"},
		{"Capital of France?", "Paris", "", "Paris|London|Berlin"},
		{"Capital of Spain?", "Madrid", "", ""},
	}
	drafts, _, _ := Normalize(rows)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].Type != model.TypeMCQ {
		t.Errorf("row with options should infer mcq, got %q", drafts[0].Type)
	}
	if len(drafts[0].Options) != 3 {
		t.Errorf("expected 3 options, got %v", drafts[0].Options)
	}
	if drafts[1].Type != model.TypeShort {
		t.Errorf("row without options should infer short, got %q", drafts[1].Type)
	}
	if drafts[1].Options != nil {
		t.Errorf("expected nil options, got %v", drafts[1].Options)
	}
}

func TestNormalizeAnswerCoercion(t *testing.T) {
	tests := []struct {
		name  string
		row   []string
		check func(t *testing.T, d model.QuestionDraft)
	}{
		{"multi splits on pipe", []string{"Pick primes", "2|3|5", "multi", "2|3|4|5"},
			func(t *testing.T, d model.QuestionDraft) {
				want := []string{"2", "3", "5"}
				if len(d.Answer.List) != len(want) {
					t.Fatalf("expected %v, got %v", want, d.Answer.List)
				}
				for i := range want {
					if d.Answer.List[i] != want[i] {
						t.Errorf("list[%d] = %q, want %q", i, d.Answer.List[i], want[i])
					}
				}
			}},
		{"truefalse yes", []string{"Go has generics", "Yes", "truefalse", ""},
			func(t *testing.T, d model.QuestionDraft) {
				if !d.Answer.Bool {
					t.Error("expected true for 'Yes'")
				}
			}},
		{"truefalse zero", []string{"Go is interpreted", "0", "truefalse", ""},
			func(t *testing.T, d model.QuestionDraft) {
				if d.Answer.Bool {
					t.Error("expected false for '0'")
				}
			}},
		{"truefalse t", []string{"Go compiles", "t", "truefalse", ""},
			func(t *testing.T, d model.QuestionDraft) {
				if !d.Answer.Bool {
					t.Error("expected true for 't'")
				}
			}},
		{"short keeps commas whole", []string{"Where is the Louvre?", "Paris, France", "short", ""},
			func(t *testing.T, d model.QuestionDraft) {
				if d.Answer.Text != "Paris, France" {
					t.Errorf("short answer should stay whole, got %q", d.Answer.Text)
				}
			}},
		{"cloze keeps pipes whole", []string{"__ and __", "salt|pepper", "cloze", ""},
			func(t *testing.T, d model.QuestionDraft) {
				if d.Answer.Text != "salt|pepper" {
					t.Errorf("cloze answer should stay whole, got %q", d.Answer.Text)
				}
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := [][]string{{"question", "answer", "type", "options"}, tt.row}
			drafts, _, _ := Normalize(rows)
			if len(drafts) != 1 {
				t.Fatalf("expected 1 draft, got %d", len(drafts))
			}
			tt.check(t, drafts[0])
		})
	}
}

func TestNormalizeMetadataRows(t *testing.T) {
	rows := [][]string{
		{"question", "answer"},
		{"#difficulty: hard", ""},
		{"#themes: algebra, geometry", ""},
		{"_metadata,suggested_types,mcq|short", ""},
		{"#recommended_count: 15", ""},
		{"What is 2+2?", "4"},
	}
	drafts, warnings, meta := Normalize(rows)

	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft after metadata removal, got %d", len(drafts))
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if meta.Difficulty != "hard" {
		t.Errorf("difficulty = %q, want hard", meta.Difficulty)
	}
	if len(meta.Themes) != 2 || meta.Themes[0] != "algebra" || meta.Themes[1] != "geometry" {
		t.Errorf("themes = %v", meta.Themes)
	}
	if len(meta.SuggestedTypes) != 2 || meta.SuggestedTypes[0] != "mcq" {
		t.Errorf("suggested_types = %v", meta.SuggestedTypes)
	}
	if meta.RecommendedCount != 15 {
		t.Errorf("recommended_count = %d, want 15", meta.RecommendedCount)
	}
}

func TestNormalizeMetadataSplitCells(t *testing.T) {
	// A _metadata row parsed by the CSV reader arrives as separate cells.
	rows := [][]string{
		{"question", "answer", "type"},
		{"_metadata", "themes", "algebra|geometry"},
		{"Q1", "A1", "short"},
	}
	drafts, _, meta := Normalize(rows)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	if len(meta.Themes) != 2 || meta.Themes[0] != "algebra" || meta.Themes[1] != "geometry" {
		t.Errorf("themes = %v", meta.Themes)
	}
}

func TestNormalizeInvalidRecommendedCount(t *testing.T) {
	rows := [][]string{
		{"question", "answer"},
		{"#recommended_count: lots", ""},
		{"Q1", "A1"},
	}
	_, warnings, meta := Normalize(rows)
	if meta.RecommendedCount != 0 {
		t.Errorf("recommended_count = %d, want 0", meta.RecommendedCount)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "Invalid recommended_count") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected invalid recommended_count warning, got %v", warnings)
	}
}

func TestNormalizeMissingColumns(t *testing.T) {
	t.Run("both missing", func(t *testing.T) {
		rows := [][]string{{"foo", "bar"}, {"a", "b"}}
		_, warnings, _ := Normalize(rows)
		if len(warnings) != 1 || warnings[0] != "Missing columns: answer, question" {
			t.Errorf("warnings = %v", warnings)
		}
	})
	t.Run("only answer missing", func(t *testing.T) {
		rows := [][]string{{"question"}, {"Q1"}}
		_, warnings, _ := Normalize(rows)
		if len(warnings) != 0 {
			t.Errorf("expected no warnings when question column exists, got %v", warnings)
		}
	})
}

func TestNormalizeOptionCommaWarning(t *testing.T) {
	rows := [][]string{
		{"question", "answer", "type", "options"},
		{"#difficulty: easy", "", "", ""},
		{"Q1", "A", "mcq", "A|B|C"},
		{"Q2", "A, partly", "mcq", "A, partly|B|C"},
		{"Q3", "Paris, France", "short", ""},
	}
	_, warnings, _ := Normalize(rows)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly 1 warning, got %v", warnings)
	}
	// Row numbering counts question rows only, metadata rows excluded.
	if !strings.HasPrefix(warnings[0], "Row 2:") {
		t.Errorf("warning should reference row 2, got %q", warnings[0])
	}
	if !strings.Contains(warnings[0], "contains a comma") {
		t.Errorf("unexpected warning text: %q", warnings[0])
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	drafts, warnings, _ := Normalize(nil)
	if drafts != nil {
		t.Errorf("expected nil drafts, got %v", drafts)
	}
	if len(warnings) != 1 {
		t.Errorf("expected missing columns warning, got %v", warnings)
	}
}

func TestNormalizeConcepts(t *testing.T) {
	rows := [][]string{
		{"question", "answer", "concepts"},
		{"Q1", "A1", "gravity, mass , "},
	}
	drafts, _, _ := Normalize(rows)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	want := []string{"gravity", "mass"}
	if len(drafts[0].Concepts) != len(want) {
		t.Fatalf("concepts = %v, want %v", drafts[0].Concepts, want)
	}
	for i := range want {
		if drafts[0].Concepts[i] != want[i] {
			t.Errorf("concepts[%d] = %q, want %q", i, drafts[0].Concepts[i], want[i])
		}
	}
}
