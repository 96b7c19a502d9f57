package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hoosierprep/portal/internal/assemble"
	"github.com/hoosierprep/portal/internal/ingest"
	"github.com/hoosierprep/portal/internal/llm"
	"github.com/hoosierprep/portal/internal/model"
	"github.com/hoosierprep/portal/internal/store"
)

// csvConceptScore and aiConceptScore are the default relevance weights for
// concepts created during CSV ingestion and AI generation respectively.
const (
	csvConceptScore = 1.0
	aiConceptScore  = 0.5
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
	llm   *llm.Client // nil when generation is not configured
}

// New creates a new Handler.
func New(s *store.Store, l *llm.Client) *Handler {
	return &Handler{store: s, llm: l}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload/csv", h.handleUploadCSV)
	r.Post("/ai/generate-exam", h.handleGenerateExam)
	r.Get("/uploads", h.handleListUploads)
	r.Delete("/uploads/{uploadID}", h.handleDeleteUpload)
	r.Get("/concepts/{uploadID}", h.handleListConcepts)
	r.Post("/exams", h.handleCreateExam)
	r.Get("/exams/{examID}", h.handleGetExam)
	r.Get("/exams/{examID}/preview", h.handleExamPreview)
	r.Post("/exams/{examID}/grade", h.handleGradeExam)
	r.Post("/attempts/{attemptID}/questions/{questionID}/override", h.handleOverride)
	r.Get("/attempts/recent", h.handleRecentAttempts)
	r.Get("/attempts/{attemptID}", h.handleAttemptDetail)
	r.Delete("/attempts/delete/{attemptID}", h.handleDeleteAttempt)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var insufficient *assemble.InsufficientQuestionsError
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ingest.ErrMalformedInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

type uploadStats struct {
	Rows      int            `json:"rows"`
	Questions int            `json:"questions"`
	Warnings  []string       `json:"warnings"`
	Metadata  uploadMetadata `json:"metadata"`
}

type uploadMetadata struct {
	model.UploadMetadata
	QuestionTypeCounts map[string]int `json:"question_type_counts,omitempty"`
}

func (h *Handler) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "please upload a CSV file", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := ingest.ParseTable(data)
	if err != nil {
		writeError(w, err)
		return
	}
	drafts, warnings, meta := ingest.Normalize(rows)

	uploadID, err := h.store.CreateUpload(header.Filename, "csv", meta)
	if err != nil {
		writeError(w, err)
		return
	}
	typeCounts, err := h.persistDrafts(uploadID, drafts, csvConceptScore)
	if err != nil {
		writeError(w, err)
		return
	}

	if warnings == nil {
		warnings = []string{}
	}
	dataRows := len(rows) - 1
	if dataRows < 0 {
		dataRows = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uploadId": uploadID,
		"stats": uploadStats{
			Rows:      dataRows,
			Questions: len(drafts),
			Warnings:  warnings,
			Metadata:  uploadMetadata{UploadMetadata: meta, QuestionTypeCounts: typeCounts},
		},
	})
}

// persistDrafts inserts normalized questions, resolving concept names to ids
// through an upsert memoized for the duration of this one ingestion call.
func (h *Handler) persistDrafts(uploadID int64, drafts []model.QuestionDraft, conceptScore float64) (map[string]int, error) {
	conceptCache := make(map[string]int64)
	typeCounts := make(map[string]int)

	for _, d := range drafts {
		var conceptIDs []int64
		for _, name := range d.Concepts {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				continue
			}
			id, ok := conceptCache[key]
			if !ok {
				var err error
				id, err = h.store.UpsertConcept(uploadID, name, conceptScore)
				if err != nil {
					return nil, fmt.Errorf("upsert concept %q: %w", name, err)
				}
				conceptCache[key] = id
			}
			if id != 0 {
				conceptIDs = append(conceptIDs, id)
			}
		}
		_, err := h.store.InsertQuestion(model.Question{
			UploadID:   uploadID,
			Stem:       d.Stem,
			Type:       d.Type,
			Options:    d.Options,
			Answer:     d.Answer,
			ConceptIDs: conceptIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		typeCounts[string(d.Type)]++
	}
	if len(typeCounts) == 0 {
		typeCounts = nil
	}
	return typeCounts, nil
}

type generateRequest struct {
	Content       string   `json:"content"`
	QuestionCount int      `json:"questionCount"`
	Difficulty    string   `json:"difficulty"`
	QuestionTypes []string `json:"questionTypes"`
	FocusConcepts []string `json:"focusConcepts"`
}

func (h *Handler) handleGenerateExam(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		http.Error(w, "AI generation is not configured", http.StatusServiceUnavailable)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if req.QuestionCount < 1 {
		http.Error(w, "questionCount must be positive", http.StatusBadRequest)
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
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
	if len(types) == 0 {
		types = []model.QuestionType{model.TypeMCQ, model.TypeShort}
	}

	generated, err := h.llm.GenerateExam(r.Context(), req.Content, llm.GenerateConfig{
		QuestionCount: req.QuestionCount,
		Difficulty:    req.Difficulty,
		QuestionTypes: types,
		FocusConcepts: req.FocusConcepts,
	})
	if err != nil {
		slog.Error("exam generation failed", "error", err)
		http.Error(w, "failed to generate exam: "+err.Error(), http.StatusBadGateway)
		return
	}

	suggested := make([]string, 0, len(types))
	for _, t := range types {
		suggested = append(suggested, string(t))
	}
	meta := model.UploadMetadata{
		Themes:           generated.Metadata.Themes,
		SuggestedTypes:   suggested,
		Difficulty:       generated.Metadata.Difficulty,
		RecommendedCount: req.QuestionCount,
	}
	filename := "AI_Generated_" + time.Now().Format("20060102_150405")
	uploadID, err := h.store.CreateUpload(filename, "ai", meta)
	if err != nil {
		writeError(w, err)
		return
	}
	typeCounts, err := h.persistDrafts(uploadID, generated.Questions, aiConceptScore)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uploadId":      uploadID,
		"questionCount": len(generated.Questions),
		"stats": map[string]any{
			"metadata":             generated.Metadata,
			"question_type_counts": typeCounts,
		},
	})
}

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListUploadSummaries()
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.UploadSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "uploadID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteUpload(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "uploadID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetUpload(id); err != nil {
		writeError(w, err)
		return
	}
	concepts, err := h.store.ListConcepts(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if concepts == nil {
		concepts = []model.Concept{}
	}
	writeJSON(w, http.StatusOK, concepts)
}
