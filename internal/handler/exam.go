package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hoosierprep/portal/internal/assemble"
	"github.com/hoosierprep/portal/internal/grading"
	"github.com/hoosierprep/portal/internal/model"
)

type examCreateRequest struct {
	UploadID      int64    `json:"uploadId"`
	UploadIDs     []int64  `json:"uploadIds"`
	QuestionTypes []string `json:"questionTypes"`
	Count         int      `json:"count"`
}

type examResponse struct {
	ExamID    int64               `json:"examId"`
	Questions []model.QuestionDTO `json:"questions"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req examCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Count < 1 {
		http.Error(w, "count must be positive", http.StatusBadRequest)
		return
	}

	types := make([]model.QuestionType, 0, len(req.QuestionTypes))
	for _, t := range req.QuestionTypes {
		qt := model.QuestionType(strings.ToLower(strings.TrimSpace(t)))
		if !qt.Valid() {
			http.Error(w, "unknown question type: "+t, http.StatusBadRequest)
			return
		}
		types = append(types, qt)
	}

	// Multiple source batches pool their questions; a single batch must
	// exist up front.
	sourceIDs := req.UploadIDs
	primaryID := req.UploadID
	if len(sourceIDs) > 0 {
		primaryID = sourceIDs[0]
	}
	if len(sourceIDs) <= 1 {
		sourceIDs = []int64{primaryID}
		if _, err := h.store.GetUpload(primaryID); err != nil {
			writeError(w, err)
			return
		}
	}

	pool, err := h.store.ListQuestionsForUploads(sourceIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	filtered := assemble.FilterByType(pool, types)
	ids, err := assemble.Pick(filtered, nil, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}

	examID, err := h.store.CreateExam(model.Exam{
		UploadID: primaryID,
		Settings: model.ExamSettings{
			UploadID:      req.UploadID,
			UploadIDs:     req.UploadIDs,
			QuestionTypes: types,
			Count:         req.Count,
		},
		QuestionIDs: ids,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]model.QuestionDTO, 0, len(ids))
	for _, q := range filtered[:len(ids)] {
		dtos = append(dtos, q.DTO())
	}
	writeJSON(w, http.StatusOK, examResponse{ExamID: examID, Questions: dtos})
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "examID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	exam, err := h.store.GetExam(id)
	if err != nil {
		writeError(w, err)
		return
	}
	questions, err := h.store.GetQuestionsByIDs(exam.QuestionIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]model.QuestionDTO, 0, len(exam.QuestionIDs))
	for _, qid := range exam.QuestionIDs {
		if q, ok := questions[qid]; ok {
			dtos = append(dtos, q.DTO())
		}
	}
	writeJSON(w, http.StatusOK, examResponse{ExamID: exam.ID, Questions: dtos})
}

func (h *Handler) handleExamPreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "examID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	exam, err := h.store.GetExam(id)
	if err != nil {
		writeError(w, err)
		return
	}
	questions, err := h.store.GetQuestionsByIDs(exam.QuestionIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	answers := make([]map[string]any, 0, len(exam.QuestionIDs))
	for _, qid := range exam.QuestionIDs {
		q, ok := questions[qid]
		if !ok {
			continue
		}
		answers = append(answers, map[string]any{
			"questionId":    qid,
			"correctAnswer": q.Answer.Value(q.Type),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
}

type userAnswer struct {
	QuestionID int64 `json:"questionId"`
	Response   any   `json:"response"`
}

type gradeResponse struct {
	ScorePct    float64        `json:"scorePct"`
	PerQuestion []grading.Item `json:"perQuestion"`
	AttemptID   int64          `json:"attemptId"`
}

func (h *Handler) handleGradeExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "examID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var submitted []userAnswer
	if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	exam, err := h.store.GetExam(id)
	if err != nil {
		writeError(w, err)
		return
	}
	questions, err := h.store.GetQuestionsByIDs(exam.QuestionIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	responses := make(map[int64]any, len(submitted))
	for _, a := range submitted {
		responses[a.QuestionID] = a.Response
	}

	report := grading.GradeExam(exam.QuestionIDs, questions, responses)

	answers := make([]model.AttemptAnswer, 0, len(report.PerQuestion))
	for _, item := range report.PerQuestion {
		answers = append(answers, model.AttemptAnswer{
			QuestionID: item.QuestionID,
			Response:   item.UserAnswer,
			Correct:    item.Correct,
		})
	}
	attemptID, err := h.store.CreateAttempt(exam.ID, report.ScorePct, answers)
	if err != nil {
		writeError(w, err)
		return
	}

	perQuestion := report.PerQuestion
	if perQuestion == nil {
		perQuestion = []grading.Item{}
	}
	writeJSON(w, http.StatusOK, gradeResponse{
		ScorePct:    report.ScorePct,
		PerQuestion: perQuestion,
		AttemptID:   attemptID,
	})
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	questionID, err := pathID(r, "questionID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	correct, newScore, err := h.store.ToggleAnswerCorrect(attemptID, questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"new_status":    correct,
		"new_score_pct": newScore,
	})
}

func (h *Handler) handleRecentAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	summaries, err := h.store.ListRecentAttempts(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.AttemptSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleAttemptDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "attemptID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	detail, err := h.store.GetAttemptDetail(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDeleteAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "attemptID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteAttempt(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
