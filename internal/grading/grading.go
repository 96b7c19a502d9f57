// Package grading compares submitted responses against stored answers and
// aggregates percentage scores. It never returns errors: a malformed
// response grades as incorrect so one bad answer cannot block a report.
package grading

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hoosierprep/portal/internal/model"
)

// Item is the graded outcome for a single question.
type Item struct {
	QuestionID    int64 `json:"questionId"`
	Correct       bool  `json:"correct"`
	CorrectAnswer any   `json:"correctAnswer"`
	UserAnswer    any   `json:"userAnswer"`
}

// Report is the aggregate outcome for one exam submission.
type Report struct {
	ScorePct    float64 `json:"scorePct"`
	PerQuestion []Item  `json:"perQuestion"`
}

// NormalizeText canonicalizes any scalar value for comparison: nil becomes
// the empty string, everything else is stringified, trimmed and lowercased.
func NormalizeText(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Correct reports whether a submitted response matches the stored answer
// under the rules for the given question type.
func Correct(qtype model.QuestionType, submitted any, stored model.Answer) bool {
	switch qtype {
	case model.TypeMCQ, model.TypeTrueFalse, model.TypeShort, model.TypeCloze:
		return NormalizeText(submitted) == NormalizeText(stored.Value(qtype))
	case model.TypeMulti:
		sub, ok := toSet(submitted)
		if !ok {
			// Wrong shape entirely, not just a wrong answer. Both grade
			// false but the distinction matters when debugging clients.
			slog.Debug("multi response not a collection", "value", submitted)
			return false
		}
		want, _ := toSet(stored.List)
		return setsEqual(sub, want)
	}
	return false
}

// toSet coerces a value into a set of normalized strings. nil counts as an
// empty collection; scalars do not count as collections at all.
func toSet(v any) (map[string]struct{}, bool) {
	set := make(map[string]struct{})
	switch vv := v.(type) {
	case nil:
		return set, true
	case []string:
		for _, e := range vv {
			set[NormalizeText(e)] = struct{}{}
		}
		return set, true
	case []any:
		for _, e := range vv {
			set[NormalizeText(e)] = struct{}{}
		}
		return set, true
	}
	return nil, false
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// GradeExam grades responses against the exam's question list. questionIDs
// fixes the report order; ids with no stored question are skipped and count
// toward neither the numerator nor the denominator. A missing response
// grades as incorrect for every type.
func GradeExam(questionIDs []int64, questions map[int64]model.Question, responses map[int64]any) Report {
	var items []Item
	correctCount := 0
	for _, qid := range questionIDs {
		q, ok := questions[qid]
		if !ok {
			continue
		}
		resp := responses[qid]
		isCorrect := Correct(q.Type, resp, q.Answer)
		items = append(items, Item{
			QuestionID:    qid,
			Correct:       isCorrect,
			CorrectAnswer: q.Answer.Value(q.Type),
			UserAnswer:    resp,
		})
		if isCorrect {
			correctCount++
		}
	}
	return Report{
		ScorePct:    Score(correctCount, len(items)),
		PerQuestion: items,
	}
}

// Score computes a percentage rounded to two decimals. The denominator is
// clamped to 1 so an empty exam grades to 0 instead of dividing by zero.
func Score(correct, total int) float64 {
	if total < 1 {
		total = 1
	}
	return Round2(100 * float64(correct) / float64(total))
}

// Round2 rounds to two decimal places for reporting.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
