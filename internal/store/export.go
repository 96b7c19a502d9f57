package store

import (
	"fmt"

	"github.com/hoosierprep/portal/internal/model"
)

// ExportAllAttempts builds export-ready records for every attempt, with the
// full per-question review for each.
func (s *Store) ExportAllAttempts() ([]model.AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.exam_id, a.started_at, a.finished_at, a.score_pct, u.filename
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 JOIN uploads u ON u.id = e.upload_id
		 ORDER BY a.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []model.AttemptRecord
	for rows.Next() {
		var rec model.AttemptRecord
		if err := rows.Scan(&rec.AttemptID, &rec.ExamID, &rec.StartedAt, &rec.FinishedAt, &rec.ScorePct, &rec.UploadFilename); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		reviews, err := s.attemptReviews(records[i].AttemptID)
		if err != nil {
			return nil, fmt.Errorf("attempt %d reviews: %w", records[i].AttemptID, err)
		}
		records[i].Questions = reviews
	}
	return records, nil
}
