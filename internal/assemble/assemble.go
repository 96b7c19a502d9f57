// Package assemble selects the fixed, ordered question list for a new exam.
package assemble

import (
	"fmt"
	"slices"

	"github.com/hoosierprep/portal/internal/model"
)

// InsufficientQuestionsError reports a request for more questions than the
// filtered pool can supply. Assembly never silently truncates.
type InsufficientQuestionsError struct {
	Requested int
	Available int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("requested %d questions but only %d are available", e.Requested, e.Available)
}

// FilterByType returns the questions whose type is in types. An empty type
// list means no filtering.
func FilterByType(pool []model.Question, types []model.QuestionType) []model.Question {
	if len(types) == 0 {
		return pool
	}
	var out []model.Question
	for _, q := range pool {
		if slices.Contains(types, q.Type) {
			out = append(out, q)
		}
	}
	return out
}

// Pick selects the first count question ids from the pool, after the
// optional type filter, preserving pool order. The selection order becomes
// the exam's permanent question order.
func Pick(pool []model.Question, types []model.QuestionType, count int) ([]int64, error) {
	filtered := FilterByType(pool, types)
	if count > len(filtered) {
		return nil, &InsufficientQuestionsError{Requested: count, Available: len(filtered)}
	}
	ids := make([]int64, 0, count)
	for _, q := range filtered[:count] {
		ids = append(ids, q.ID)
	}
	return ids, nil
}
