package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hoosierprep/portal/internal/grading"
	"github.com/hoosierprep/portal/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS concepts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 1.0,
		FOREIGN KEY (upload_id) REFERENCES uploads(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id INTEGER NOT NULL,
		stem TEXT NOT NULL,
		qtype TEXT NOT NULL,
		options TEXT,
		answer TEXT,
		concept_ids TEXT,
		FOREIGN KEY (upload_id) REFERENCES uploads(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id INTEGER NOT NULL,
		settings TEXT,
		question_ids TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (upload_id) REFERENCES uploads(id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		score_pct REAL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS attempt_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		response TEXT,
		correct INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateUpload records a new question batch.
func (s *Store) CreateUpload(filename, fileType string, meta model.UploadMetadata) (int64, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO uploads (filename, file_type, metadata, created_at) VALUES (?, ?, ?, ?)`,
		filename, fileType, string(metaJSON), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUpload returns an upload by ID.
func (s *Store) GetUpload(id int64) (model.Upload, error) {
	var u model.Upload
	var metaJSON string
	err := s.db.QueryRow(
		`SELECT id, filename, file_type, metadata, created_at FROM uploads WHERE id = ?`, id,
	).Scan(&u.ID, &u.Filename, &u.FileType, &metaJSON, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &u.Metadata); err != nil {
		return u, fmt.Errorf("decode upload metadata: %w", err)
	}
	return u, nil
}

// ListUploadSummaries returns all uploads newest first, with question and
// exam counts, themes, and per-type question counts for the dashboard.
func (s *Store) ListUploadSummaries() ([]model.UploadSummary, error) {
	rows, err := s.db.Query(`SELECT id, filename, file_type, metadata, created_at FROM uploads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.UploadSummary
	for rows.Next() {
		var sum model.UploadSummary
		var metaJSON string
		if err := rows.Scan(&sum.ID, &sum.Filename, &sum.FileType, &metaJSON, &sum.CreatedAt); err != nil {
			return nil, err
		}
		var meta model.UploadMetadata
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decode upload metadata: %w", err)
		}
		sum.Themes = meta.Themes
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		if summaries[i].Themes == nil {
			// Fall back to concept names when the upload carries no themes.
			names, err := s.conceptNames(summaries[i].ID)
			if err != nil {
				return nil, err
			}
			summaries[i].Themes = names
		}
		counts, total, err := s.questionTypeCounts(summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].QuestionCount = total
		summaries[i].QuestionTypeCounts = counts
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM exams WHERE upload_id = ?`, summaries[i].ID).Scan(&summaries[i].ExamCount); err != nil {
			return nil, err
		}
		if summaries[i].Themes == nil {
			summaries[i].Themes = []string{}
		}
	}
	return summaries, nil
}

func (s *Store) conceptNames(uploadID int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM concepts WHERE upload_id = ? ORDER BY id`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) questionTypeCounts(uploadID int64) (map[string]int, int, error) {
	rows, err := s.db.Query(`SELECT qtype, COUNT(*) FROM questions WHERE upload_id = ? GROUP BY qtype`, uploadID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	total := 0
	for rows.Next() {
		var qtype string
		var n int
		if err := rows.Scan(&qtype, &n); err != nil {
			return nil, 0, err
		}
		counts[qtype] = n
		total += n
	}
	if len(counts) == 0 {
		counts = nil
	}
	return counts, total, rows.Err()
}

// DeleteUpload removes an upload and everything hanging off it: concepts,
// questions, exams, attempts and attempt answers.
func (s *Store) DeleteUpload(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}

	if _, err := tx.Exec(
		`DELETE FROM attempt_answers WHERE attempt_id IN
		 (SELECT id FROM attempts WHERE exam_id IN (SELECT id FROM exams WHERE upload_id = ?))`, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`DELETE FROM attempts WHERE exam_id IN (SELECT id FROM exams WHERE upload_id = ?)`, id,
	); err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM exams WHERE upload_id = ?`,
		`DELETE FROM questions WHERE upload_id = ?`,
		`DELETE FROM concepts WHERE upload_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertConcept returns the id of the concept with the given name for the
// upload, creating it when absent. Identity is case-insensitive; the stored
// name keeps the casing of the first writer.
func (s *Store) UpsertConcept(uploadID int64, name string, score float64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM concepts WHERE upload_id = ? AND LOWER(name) = LOWER(?)`, uploadID, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO concepts (upload_id, name, score) VALUES (?, ?, ?)`, uploadID, name, score,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListConcepts returns all concepts for an upload in insertion order.
func (s *Store) ListConcepts(uploadID int64) ([]model.Concept, error) {
	rows, err := s.db.Query(
		`SELECT id, upload_id, name, score FROM concepts WHERE upload_id = ? ORDER BY id`, uploadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var concepts []model.Concept
	for rows.Next() {
		var c model.Concept
		if err := rows.Scan(&c.ID, &c.UploadID, &c.Name, &c.Score); err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

// InsertQuestion stores a question. Insertion order is the batch's natural
// order and determines exam assembly order.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	options, err := marshalNullable(q.Options, q.Options != nil)
	if err != nil {
		return 0, err
	}
	answer, err := marshalNullable(map[string]any{"value": q.Answer.Value(q.Type)}, true)
	if err != nil {
		return 0, err
	}
	conceptIDs, err := marshalNullable(q.ConceptIDs, len(q.ConceptIDs) > 0)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (upload_id, stem, qtype, options, answer, concept_ids) VALUES (?, ?, ?, ?, ?, ?)`,
		q.UploadID, q.Stem, q.Type, options, answer, conceptIDs,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func marshalNullable(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

const questionColumns = `id, upload_id, stem, qtype, options, answer, concept_ids`

func scanQuestion(scan func(...any) error) (model.Question, error) {
	var q model.Question
	var options, answer, conceptIDs sql.NullString
	if err := scan(&q.ID, &q.UploadID, &q.Stem, &q.Type, &options, &answer, &conceptIDs); err != nil {
		return q, err
	}
	if options.Valid {
		if err := json.Unmarshal([]byte(options.String), &q.Options); err != nil {
			return q, fmt.Errorf("decode options: %w", err)
		}
	}
	if answer.Valid {
		var wrapper struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal([]byte(answer.String), &wrapper); err != nil {
			return q, fmt.Errorf("decode answer: %w", err)
		}
		q.Answer = model.AnswerFromValue(q.Type, wrapper.Value)
	}
	if conceptIDs.Valid {
		if err := json.Unmarshal([]byte(conceptIDs.String), &q.ConceptIDs); err != nil {
			return q, fmt.Errorf("decode concept ids: %w", err)
		}
	}
	return q, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row.Scan)
	if err == sql.ErrNoRows {
		return q, fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	return q, err
}

// GetQuestionsByIDs returns the questions that still exist among the given
// ids, keyed by id. Missing ids are simply absent from the map.
func (s *Store) GetQuestionsByIDs(ids []int64) (map[int64]model.Question, error) {
	questions := make(map[int64]model.Question, len(ids))
	if len(ids) == 0 {
		return questions, nil
	}
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions[q.ID] = q
	}
	return questions, rows.Err()
}

// ListQuestionsForUploads returns the union of questions across the given
// uploads in storage (id) order.
func (s *Store) ListQuestionsForUploads(uploadIDs []int64) ([]model.Question, error) {
	if len(uploadIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + questionColumns + ` FROM questions WHERE upload_id IN (?` +
		strings.Repeat(",?", len(uploadIDs)-1) + `) ORDER BY id`
	args := make([]any, len(uploadIDs))
	for i, id := range uploadIDs {
		args[i] = id
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateExam stores an exam with its fixed question order.
func (s *Store) CreateExam(exam model.Exam) (int64, error) {
	settings, err := json.Marshal(exam.Settings)
	if err != nil {
		return 0, err
	}
	questionIDs, err := json.Marshal(exam.QuestionIDs)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO exams (upload_id, settings, question_ids, created_at) VALUES (?, ?, ?, ?)`,
		exam.UploadID, string(settings), string(questionIDs), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	var settings sql.NullString
	var questionIDs string
	err := s.db.QueryRow(
		`SELECT id, upload_id, settings, question_ids, created_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.UploadID, &settings, &questionIDs, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, fmt.Errorf("exam %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return e, err
	}
	if settings.Valid {
		if err := json.Unmarshal([]byte(settings.String), &e.Settings); err != nil {
			return e, fmt.Errorf("decode exam settings: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(questionIDs), &e.QuestionIDs); err != nil {
		return e, fmt.Errorf("decode question ids: %w", err)
	}
	return e, nil
}

// CreateAttempt records a finished, graded attempt with one answer row per
// graded question.
func (s *Store) CreateAttempt(examID int64, scorePct float64, answers []model.AttemptAnswer) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO attempts (exam_id, started_at, finished_at, score_pct) VALUES (?, ?, ?, ?)`,
		examID, now, now, scorePct,
	)
	if err != nil {
		return 0, err
	}
	attemptID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, a := range answers {
		response, err := json.Marshal(map[string]any{"value": a.Response})
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(
			`INSERT INTO attempt_answers (attempt_id, question_id, response, correct) VALUES (?, ?, ?, ?)`,
			attemptID, a.QuestionID, string(response), a.Correct,
		); err != nil {
			return 0, err
		}
	}
	return attemptID, tx.Commit()
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id int64) (model.Attempt, error) {
	var a model.Attempt
	err := s.db.QueryRow(
		`SELECT id, exam_id, started_at, finished_at, score_pct FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.ExamID, &a.StartedAt, &a.FinishedAt, &a.ScorePct)
	if err == sql.ErrNoRows {
		return a, fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	return a, err
}

// ListAttemptAnswers returns all answer rows of an attempt in insertion
// (exam question) order.
func (s *Store) ListAttemptAnswers(attemptID int64) ([]model.AttemptAnswer, error) {
	rows, err := s.db.Query(
		`SELECT id, attempt_id, question_id, response, correct FROM attempt_answers WHERE attempt_id = ? ORDER BY id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.AttemptAnswer
	for rows.Next() {
		a, err := scanAttemptAnswer(rows.Scan)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func scanAttemptAnswer(scan func(...any) error) (model.AttemptAnswer, error) {
	var a model.AttemptAnswer
	var response sql.NullString
	if err := scan(&a.ID, &a.AttemptID, &a.QuestionID, &response, &a.Correct); err != nil {
		return a, err
	}
	if response.Valid {
		var wrapper struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal([]byte(response.String), &wrapper); err != nil {
			return a, fmt.Errorf("decode response: %w", err)
		}
		a.Response = wrapper.Value
	}
	return a, nil
}

// ToggleAnswerCorrect flips the correctness of one answer within an attempt
// and recomputes the attempt's score from all of its answers. It returns the
// new correctness and the new score.
func (s *Store) ToggleAnswerCorrect(attemptID, questionID int64) (bool, float64, error) {
	if _, err := s.GetAttempt(attemptID); err != nil {
		return false, 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	var answerID int64
	var correct bool
	err = tx.QueryRow(
		`SELECT id, correct FROM attempt_answers WHERE attempt_id = ? AND question_id = ?`,
		attemptID, questionID,
	).Scan(&answerID, &correct)
	if err == sql.ErrNoRows {
		return false, 0, fmt.Errorf("answer for attempt %d question %d: %w", attemptID, questionID, ErrNotFound)
	}
	if err != nil {
		return false, 0, err
	}

	correct = !correct
	if _, err := tx.Exec(`UPDATE attempt_answers SET correct = ? WHERE id = ?`, correct, answerID); err != nil {
		return false, 0, err
	}

	var correctCount, total int
	err = tx.QueryRow(
		`SELECT COUNT(CASE WHEN correct THEN 1 END), COUNT(*) FROM attempt_answers WHERE attempt_id = ?`,
		attemptID,
	).Scan(&correctCount, &total)
	if err != nil {
		return false, 0, err
	}

	newScore := grading.Score(correctCount, total)
	if _, err := tx.Exec(`UPDATE attempts SET score_pct = ? WHERE id = ?`, newScore, attemptID); err != nil {
		return false, 0, err
	}
	return correct, newScore, tx.Commit()
}

// ListRecentAttempts returns finished attempts newest first.
func (s *Store) ListRecentAttempts(limit int) ([]model.AttemptSummary, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.exam_id, u.filename, a.score_pct, a.finished_at, e.question_ids
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 JOIN uploads u ON u.id = e.upload_id
		 WHERE a.finished_at IS NOT NULL
		 ORDER BY a.finished_at DESC, a.id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.AttemptSummary
	for rows.Next() {
		var sum model.AttemptSummary
		var scorePct sql.NullFloat64
		var questionIDs string
		if err := rows.Scan(&sum.ID, &sum.ExamID, &sum.UploadFilename, &scorePct, &sum.FinishedAt, &questionIDs); err != nil {
			return nil, err
		}
		sum.ScorePct = scorePct.Float64
		var ids []int64
		if err := json.Unmarshal([]byte(questionIDs), &ids); err != nil {
			return nil, fmt.Errorf("decode question ids: %w", err)
		}
		sum.QuestionCount = len(ids)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		err := s.db.QueryRow(
			`SELECT COUNT(*) FROM attempt_answers WHERE attempt_id = ? AND correct`, summaries[i].ID,
		).Scan(&summaries[i].CorrectCount)
		if err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// GetAttemptDetail returns an attempt with per-question review data.
func (s *Store) GetAttemptDetail(id int64) (model.AttemptDetail, error) {
	var detail model.AttemptDetail
	attempt, err := s.GetAttempt(id)
	if err != nil {
		return detail, err
	}
	reviews, err := s.attemptReviews(id)
	if err != nil {
		return detail, err
	}

	detail.ID = attempt.ID
	detail.ExamID = attempt.ExamID
	if attempt.ScorePct != nil {
		detail.ScorePct = *attempt.ScorePct
	}
	if attempt.FinishedAt != nil {
		detail.FinishedAt = *attempt.FinishedAt
	} else {
		detail.FinishedAt = attempt.StartedAt
	}
	detail.Questions = reviews
	return detail, nil
}

func (s *Store) attemptReviews(attemptID int64) ([]model.QuestionReview, error) {
	answers, err := s.ListAttemptAnswers(attemptID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	questions, err := s.GetQuestionsByIDs(ids)
	if err != nil {
		return nil, err
	}

	reviews := make([]model.QuestionReview, 0, len(answers))
	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		reviews = append(reviews, model.QuestionReview{
			Question:      q.DTO(),
			UserAnswer:    a.Response,
			CorrectAnswer: q.Answer.Value(q.Type),
			IsCorrect:     a.Correct,
		})
	}
	return reviews, nil
}

// DeleteAttempt removes an attempt and its answers.
func (s *Store) DeleteAttempt(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM attempts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	if _, err := tx.Exec(`DELETE FROM attempt_answers WHERE attempt_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
