package model

import "time"

// ResultsExport is the top-level JSON structure for the export command.
type ResultsExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Attempts    []AttemptRecord `json:"attempts"`
}

// AttemptRecord holds one attempt's full data for export.
type AttemptRecord struct {
	AttemptID      int64            `json:"attempt_id"`
	ExamID         int64            `json:"exam_id"`
	UploadFilename string           `json:"upload_filename"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	ScorePct       *float64         `json:"score_pct,omitempty"`
	Questions      []QuestionReview `json:"questions"`
}
