package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/middleware"
	"github.com/lecturanotes/kalam/internal/store"
)

type transcriptionView struct {
	ID         string   `json:"id"`
	JobID      string   `json:"jobId"`
	Name       string   `json:"name"`
	AudioURL   *string  `json:"audioUrl,omitempty"`
	Text       *string  `json:"text,omitempty"`
	Status     string   `json:"status"`
	Language   *string  `json:"language,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
}

func toView(rec store.Transcription) transcriptionView {
	return transcriptionView{
		ID:         rec.ID,
		JobID:      rec.JobID,
		Name:       rec.Name,
		AudioURL:   rec.AudioURL,
		Text:       rec.Text,
		Status:     rec.Status,
		Language:   rec.Language,
		Confidence: rec.Confidence,
		Duration:   rec.Duration,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) HandleListTranscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	recs, err := s.records.ListTranscriptions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]transcriptionView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, toView(rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "transcriptions": views})
}

type createTranscriptionRequest struct {
	JobID    string  `json:"jobId"`
	Name     string  `json:"name"`
	AudioURL *string `json:"audioUrl"`
	Language *string `json:"language"`
}

// HandleCreateTranscription registers a record for a job started outside
// this service, so its status reads and history behave like native ones.
func (s *Server) HandleCreateTranscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createTranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("invalid request body", "INVALID_BODY", ""))
		return
	}
	if req.JobID == "" {
		s.writeError(w, r, apperrors.NewValidationError("jobId is required", "MISSING_JOB_ID", ""))
		return
	}
	if req.Name == "" {
		req.Name = "Transcription " + time.Now().Format("2006-01-02 15:04")
	}

	rec, err := s.records.CreateTranscription(r.Context(), store.CreateTranscriptionParams{
		ID:       uuid.NewString(),
		UserID:   userID,
		JobID:    req.JobID,
		Name:     req.Name,
		AudioURL: req.AudioURL,
		Status:   "queued",
		Language: req.Language,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "transcription": toView(rec)})
}

func (s *Server) HandleGetTranscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rec, err := s.records.GetTranscription(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "transcription": toView(rec)})
}

type updateTranscriptionRequest struct {
	Name *string `json:"name"`
	Text *string `json:"text"`
}

func (s *Server) HandleUpdateTranscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateTranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("invalid request body", "INVALID_BODY", ""))
		return
	}
	if req.Name == nil && req.Text == nil {
		s.writeError(w, r, apperrors.NewValidationError("nothing to update", "EMPTY_UPDATE", "Provide a name or text field"))
		return
	}

	rec, err := s.records.UpdateTranscription(r.Context(), chi.URLParam(r, "id"), userID, req.Name, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "transcription": toView(rec)})
}

func (s *Server) HandleDeleteTranscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.records.DeleteTranscription(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type dashboardStats struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Errored    int64 `json:"errored"`
}

func (s *Server) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	counts, err := s.records.CountTranscriptionsByStatus(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "stats": dashboardStats{
		Total:      counts.Queued + counts.Processing + counts.Completed + counts.Errored,
		Queued:     counts.Queued,
		Processing: counts.Processing,
		Completed:  counts.Completed,
		Errored:    counts.Errored,
	}})
}
