package api

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/middleware"
	"github.com/lecturanotes/kalam/internal/transcription"
	"github.com/lecturanotes/kalam/internal/validation"
	"github.com/lecturanotes/kalam/internal/worker"
)

// maxUploadBytes bounds in-memory multipart parsing; larger files spill
// to disk via the standard library.
const maxUploadBytes = 32 << 20

type transcribeResponse struct {
	Success bool    `json:"success"`
	JobID   string  `json:"jobId"`
	Status  string  `json:"status"`
	Text    *string `json:"text,omitempty"`
}

// HandleTranscribe accepts one audio source (multipart file or audioUrl
// field), dispatches it, and returns the job handle to poll.
func (s *Server) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	req := transcription.SubmitRequest{OwnerID: userID}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("invalid multipart form", "INVALID_FORM", ""))
			return
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			req.File = transcription.ReadSource{Reader: file, FileName: header.Filename}
		} else if err != http.ErrMissingFile {
			s.writeError(w, r, apperrors.NewValidationError("unreadable file field", "INVALID_FILE", ""))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("invalid request body", "INVALID_FORM", ""))
			return
		}
	}

	req.AudioURL = r.FormValue("audioUrl")
	req.Language = r.FormValue("language")
	req.Name = r.FormValue("name")
	req.EnhancedAccuracy = r.FormValue("enhancedAccuracy") == "true"

	if req.AudioURL != "" {
		if err := validation.ValidateAudioURL(req.AudioURL); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.File.Reader != nil {
		if err := validation.ValidateAudioFileName(req.File.FileName); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sub, err := s.dispatcher.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Asynchronous jobs get a server-side watcher that files a
	// notification when they finish.
	if sub.Provider == transcription.ProviderAssemblyAI && s.tasks != nil {
		task, err := worker.NewTranscriptionWatchTask(worker.TranscriptionWatchPayload{
			JobID:  sub.JobID,
			UserID: userID,
		})
		if err == nil {
			interval := time.Duration(s.cfg.Transcription.PollIntervalSeconds) * time.Second
			_, err = s.tasks.Enqueue(task, asynq.ProcessIn(interval), asynq.MaxRetry(worker.WatchMaxRetry))
		}
		if err != nil {
			s.logger.Error("failed to enqueue watch task", "job_id", sub.JobID, "error", err)
		}
	}

	status := http.StatusAccepted
	if sub.Status.Terminal() {
		status = http.StatusOK
	}
	respondJSON(w, status, transcribeResponse{
		Success: true,
		JobID:   sub.JobID,
		Status:  string(sub.Status),
		Text:    sub.Text,
	})
}

type statusResponse struct {
	Success    bool     `json:"success"`
	Status     string   `json:"status"`
	Text       *string  `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Language   *string  `json:"language,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// HandleTranscribeStatus resolves a job by id. The route sits outside the
// auth group so pollers without a session still work; when a valid token
// is present the read is scoped to its owner.
func (s *Server) HandleTranscribeStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		s.writeError(w, r, apperrors.NewValidationError("job id is required", "MISSING_JOB_ID", ""))
		return
	}
	ownerID, _ := middleware.GetUserID(r.Context())

	res, err := s.resolver.Resolve(r.Context(), jobID, ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, statusResponse{
		Success:    true,
		Status:     res.Record.Status,
		Text:       res.Record.Text,
		Confidence: res.Record.Confidence,
		Language:   res.Record.Language,
		Error:      res.ErrorDetail,
	})
}

type detectResponse struct {
	Success  bool   `json:"success"`
	Language string `json:"language"`
}

// HandleDetectLanguage runs a short detection job and returns "ar" or
// "en" so the client can pick the right submission language.
func (s *Server) HandleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r.Context()); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var src transcription.ReadSource
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("invalid multipart form", "INVALID_FORM", ""))
			return
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			src = transcription.ReadSource{Reader: file, FileName: header.Filename}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("invalid request body", "INVALID_FORM", ""))
			return
		}
	}

	audioURL := strings.TrimSpace(r.FormValue("audioUrl"))
	if audioURL != "" {
		if err := validation.ValidateAudioURL(audioURL); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if audioURL != "" && s.detectCache != nil {
		if lang := s.detectCache.Get(r.Context(), audioURL); lang != "" {
			respondJSON(w, http.StatusOK, detectResponse{Success: true, Language: lang})
			return
		}
	}

	language, err := s.detector.Detect(r.Context(), src, audioURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if audioURL != "" && s.detectCache != nil {
		s.detectCache.Set(r.Context(), audioURL, language)
	}

	respondJSON(w, http.StatusOK, detectResponse{Success: true, Language: language})
}

// HandleHealth answers load balancer probes.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
