// Package ingest turns raw CSV question banks into normalized question
// drafts plus soft warnings and sidecar metadata.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hoosierprep/portal/internal/model"
)

// ErrMalformedInput marks input that cannot be tokenized into rows at all.
var ErrMalformedInput = errors.New("malformed input")

// ParseTable parses raw CSV bytes into rows. Real-world question banks come
// with inconsistent quoting, so parsing is retried with progressively more
// permissive settings before giving up.
func ParseTable(data []byte) ([][]string, error) {
	strict := csv.NewReader(bytes.NewReader(data))
	strict.TrimLeadingSpace = true
	rows, firstErr := strict.ReadAll()
	if firstErr == nil {
		return rows, nil
	}

	lazy := csv.NewReader(bytes.NewReader(data))
	lazy.TrimLeadingSpace = true
	lazy.LazyQuotes = true
	if rows, err := lazy.ReadAll(); err == nil {
		return rows, nil
	}

	ragged := csv.NewReader(bytes.NewReader(data))
	ragged.TrimLeadingSpace = true
	ragged.LazyQuotes = true
	ragged.FieldsPerRecord = -1
	if rows, err := ragged.ReadAll(); err == nil {
		return rows, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMalformedInput, firstErr)
}

// Normalize converts a parsed table (first row = headers) into question
// drafts, non-fatal warnings, and metadata extracted from sidecar rows.
// Output order matches input row order after metadata rows are removed.
func Normalize(rows [][]string) ([]model.QuestionDraft, []string, model.UploadMetadata) {
	var warnings []string
	var meta model.UploadMetadata

	if len(rows) == 0 {
		warnings = append(warnings, "Missing columns: answer, question")
		return nil, warnings, meta
	}

	cols := columnIndex(rows[0])
	if _, qOK := cols["question"]; !qOK {
		if _, aOK := cols["answer"]; !aOK {
			missing := []string{"answer", "question"}
			sort.Strings(missing)
			warnings = append(warnings, "Missing columns: "+strings.Join(missing, ", "))
		}
	}

	var questionRows [][]string
	for _, row := range rows[1:] {
		if isMetadataRow(row) {
			warnings = extractMetadata(row, &meta, warnings)
			continue
		}
		questionRows = append(questionRows, row)
	}

	var drafts []model.QuestionDraft
	for i, row := range questionRows {
		d := normalizeRow(row, cols)
		warnings = append(warnings, optionWarnings(d, i+1)...)
		drafts = append(drafts, d)
	}
	return drafts, warnings, meta
}

// columnIndex maps lowercased header names to column positions. The first
// occurrence wins on duplicate headers.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[key]; !ok {
			cols[key] = i
		}
	}
	return cols
}

func isMetadataRow(row []string) bool {
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if strings.HasPrefix(v, "#") && strings.Contains(v, ":") {
			return true
		}
		if strings.HasPrefix(v, "_metadata") {
			return true
		}
	}
	return false
}

func extractMetadata(row []string, meta *model.UploadMetadata, warnings []string) []string {
	for i, cell := range row {
		v := strings.TrimSpace(cell)
		switch {
		case strings.HasPrefix(v, "#") && strings.Contains(v, ":"):
			key, value, _ := strings.Cut(v[1:], ":")
			warnings = setMetadataKey(meta, strings.TrimSpace(key), strings.TrimSpace(value), ",", warnings)
		case strings.HasPrefix(v, "_metadata"):
			// The key and value either share the cell or, when the CSV
			// parser split on the commas, follow in the next two cells.
			parts := strings.Split(v, ",")
			if len(parts) < 3 && i+2 < len(row) {
				parts = []string{v, row[i+1], row[i+2]}
			}
			if len(parts) >= 3 {
				warnings = setMetadataKey(meta, strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), "|", warnings)
			}
		}
	}
	return warnings
}

func setMetadataKey(meta *model.UploadMetadata, key, value, listSep string, warnings []string) []string {
	switch key {
	case "themes":
		meta.Themes = splitTrim(value, listSep)
	case "suggested_types":
		meta.SuggestedTypes = splitTrim(value, listSep)
	case "difficulty":
		meta.Difficulty = value
	case "recommended_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return append(warnings, "Invalid recommended_count: "+value)
		}
		meta.RecommendedCount = n
	}
	return warnings
}

func normalizeRow(row []string, cols map[string]int) model.QuestionDraft {
	cell := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	stem := strings.TrimSpace(cell("question"))
	qtype := model.QuestionType(strings.ToLower(strings.TrimSpace(cell("type"))))
	options := splitTrim(cell("options"), "|")
	if len(options) == 0 {
		options = nil
	}

	if qtype == "" {
		if options != nil {
			qtype = model.TypeMCQ
		} else {
			qtype = model.TypeShort
		}
	}

	rawAnswer := cell("answer")
	var answer model.Answer
	switch qtype {
	case model.TypeMulti:
		answer.List = splitTrim(rawAnswer, "|")
	case model.TypeTrueFalse:
		answer.Bool = parseBool(rawAnswer)
	default:
		// mcq, short and cloze keep the whole cell, commas and pipes included.
		answer.Text = strings.TrimSpace(rawAnswer)
	}

	return model.QuestionDraft{
		Stem:     stem,
		Type:     qtype,
		Options:  options,
		Answer:   answer,
		Concepts: splitTrim(cell("concepts"), ","),
	}
}

// optionWarnings flags options containing commas on choice questions, a
// common symptom of broken CSV quoting. row is the 1-based display position.
func optionWarnings(d model.QuestionDraft, row int) []string {
	if d.Type != model.TypeMCQ && d.Type != model.TypeMulti {
		return nil
	}
	var warnings []string
	for _, opt := range d.Options {
		if strings.Contains(opt, ",") {
			warnings = append(warnings, fmt.Sprintf("Row %d: option %q contains a comma; check CSV quoting", row, truncate(opt, 50)))
		}
	}
	return warnings
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "1", "yes":
		return true
	}
	return false
}

func splitTrim(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
