package model

import (
	"fmt"
	"time"
)

// QuestionType drives how a question's answer is stored and graded.
type QuestionType string

const (
	// TypeMCQ is multiple choice with a single correct option.
	TypeMCQ QuestionType = "mcq"
	// TypeMulti is multiple choice where every correct option must be selected.
	TypeMulti QuestionType = "multi"
	// TypeShort is a free-text answer.
	TypeShort QuestionType = "short"
	// TypeTrueFalse is a boolean question.
	TypeTrueFalse QuestionType = "truefalse"
	// TypeCloze is fill-in-the-blank.
	TypeCloze QuestionType = "cloze"
)

// AllQuestionTypes lists every supported question type.
var AllQuestionTypes = []QuestionType{TypeMCQ, TypeMulti, TypeShort, TypeTrueFalse, TypeCloze}

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeMCQ, TypeMulti, TypeShort, TypeTrueFalse, TypeCloze:
		return true
	}
	return false
}

// Answer is the canonical correct-answer value for a question. Exactly one
// field is meaningful, selected by the question's type: Text for mcq, short
// and cloze (cloze answers are compared as a whole string, so a multi-blank
// answer stays one |-joined string), Bool for truefalse, List for multi.
type Answer struct {
	Text string
	Bool bool
	List []string
}

// Value returns the raw JSON-ready value of the answer for the given type.
func (a Answer) Value(t QuestionType) any {
	switch t {
	case TypeMulti:
		return a.List
	case TypeTrueFalse:
		return a.Bool
	default:
		return a.Text
	}
}

// AnswerFromValue rebuilds an Answer from a decoded JSON value, coercing the
// loosely-typed input into the variant the question type expects.
func AnswerFromValue(t QuestionType, v any) Answer {
	switch t {
	case TypeMulti:
		return Answer{List: toStringList(v)}
	case TypeTrueFalse:
		b, _ := v.(bool)
		if s, ok := v.(string); ok {
			b = s == "true"
		}
		return Answer{Bool: b}
	default:
		if v == nil {
			return Answer{}
		}
		if s, ok := v.(string); ok {
			return Answer{Text: s}
		}
		return Answer{Text: fmt.Sprint(v)}
	}
}

func toStringList(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

// Question is one stored exam question, owned by an upload batch.
type Question struct {
	ID         int64
	UploadID   int64
	Stem       string
	Type       QuestionType
	Options    []string // nil for types without options
	Answer     Answer
	ConceptIDs []int64
}

// QuestionDraft is a normalized question before persistence, produced by the
// CSV normalizer or the AI generator. Concepts are still names, not ids.
type QuestionDraft struct {
	Stem     string
	Type     QuestionType
	Options  []string
	Answer   Answer
	Concepts []string
}

// Concept is a topic tag attached to questions, with a relevance weight.
type Concept struct {
	ID       int64   `json:"id"`
	UploadID int64   `json:"-"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Upload is one ingested question bank (CSV file or AI generation run).
type Upload struct {
	ID        int64
	Filename  string
	FileType  string // "csv" or "ai"
	Metadata  UploadMetadata
	CreatedAt time.Time
}

// UploadMetadata holds sidecar information extracted from metadata rows of a
// CSV or returned by the AI generator. All fields are optional.
type UploadMetadata struct {
	Themes           []string `json:"themes,omitempty"`
	SuggestedTypes   []string `json:"suggested_types,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty"`
	RecommendedCount int      `json:"recommended_count,omitempty"`
}

// Exam is an assembled set of questions. QuestionIDs is the permanent
// presentation order, fixed at creation.
type Exam struct {
	ID          int64
	UploadID    int64
	Settings    ExamSettings
	QuestionIDs []int64
	CreatedAt   time.Time
}

// ExamSettings records the configuration an exam was assembled with.
type ExamSettings struct {
	UploadID      int64          `json:"uploadId"`
	UploadIDs     []int64        `json:"uploadIds,omitempty"`
	QuestionTypes []QuestionType `json:"questionTypes,omitempty"`
	Count         int            `json:"count"`
}

// Attempt is one graded run through an exam.
type Attempt struct {
	ID         int64
	ExamID     int64
	StartedAt  time.Time
	FinishedAt *time.Time
	ScorePct   *float64
}

// AttemptAnswer is one graded response within an attempt.
type AttemptAnswer struct {
	ID         int64
	AttemptID  int64
	QuestionID int64
	Response   any // raw submitted value, shape depends on question type
	Correct    bool
}

// QuestionDTO is the client-facing question shape (no correct answer).
type QuestionDTO struct {
	ID       int64        `json:"id"`
	Stem     string       `json:"stem"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Concepts []int64      `json:"concepts"`
}

// DTO converts a stored question to its client-facing shape.
func (q Question) DTO() QuestionDTO {
	concepts := q.ConceptIDs
	if concepts == nil {
		concepts = []int64{}
	}
	return QuestionDTO{
		ID:       q.ID,
		Stem:     q.Stem,
		Type:     q.Type,
		Options:  q.Options,
		Concepts: concepts,
	}
}

// UploadSummary is the dashboard view of one upload.
type UploadSummary struct {
	ID                 int64          `json:"id"`
	Filename           string         `json:"filename"`
	CreatedAt          time.Time      `json:"created_at"`
	QuestionCount      int            `json:"question_count"`
	Themes             []string       `json:"themes"`
	ExamCount          int            `json:"exam_count"`
	FileType           string         `json:"file_type"`
	QuestionTypeCounts map[string]int `json:"question_type_counts,omitempty"`
}

// AttemptSummary is the dashboard view of one finished attempt.
type AttemptSummary struct {
	ID             int64     `json:"id"`
	ExamID         int64     `json:"exam_id"`
	UploadFilename string    `json:"upload_filename"`
	ScorePct       float64   `json:"score_pct"`
	FinishedAt     time.Time `json:"finished_at"`
	QuestionCount  int       `json:"question_count"`
	CorrectCount   int       `json:"correct_count"`
}

// QuestionReview pairs a question with the user's graded response.
type QuestionReview struct {
	Question      QuestionDTO `json:"question"`
	UserAnswer    any         `json:"user_answer"`
	CorrectAnswer any         `json:"correct_answer"`
	IsCorrect     bool        `json:"is_correct"`
}

// AttemptDetail is the full review view of one attempt.
type AttemptDetail struct {
	ID         int64            `json:"id"`
	ExamID     int64            `json:"exam_id"`
	ScorePct   float64          `json:"score_pct"`
	FinishedAt time.Time        `json:"finished_at"`
	Questions  []QuestionReview `json:"questions"`
}
