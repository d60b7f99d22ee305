package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/lecturanotes/kalam/internal/config"
	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/store"
	"github.com/lecturanotes/kalam/internal/transcription"
)

// Dispatcher submits audio to the routed provider.
type Dispatcher interface {
	Submit(ctx context.Context, req transcription.SubmitRequest) (transcription.Submission, error)
}

// Resolver answers status reads.
type Resolver interface {
	Resolve(ctx context.Context, jobID, ownerID string) (transcription.Resolution, error)
}

// Detector runs a short server-side language detection.
type Detector interface {
	Detect(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error)
}

// RecordStore is the slice of the store the CRUD handlers use.
type RecordStore interface {
	CreateTranscription(ctx context.Context, arg store.CreateTranscriptionParams) (store.Transcription, error)
	GetTranscription(ctx context.Context, id, userID string) (store.Transcription, error)
	ListTranscriptions(ctx context.Context, userID string) ([]store.Transcription, error)
	UpdateTranscription(ctx context.Context, id, userID string, name, text *string) (store.Transcription, error)
	DeleteTranscription(ctx context.Context, id, userID string) error
	CountTranscriptionsByStatus(ctx context.Context, userID string) (store.StatusCounts, error)

	ListNotifications(ctx context.Context, userID string) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, id, userID string) error
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DetectionCache remembers detected languages per audio URL. Nil
// disables caching.
type DetectionCache interface {
	Get(ctx context.Context, audioURL string) string
	Set(ctx context.Context, audioURL, language string)
}

type Server struct {
	cfg         *config.Config
	dispatcher  Dispatcher
	resolver    Resolver
	detector    Detector
	records     RecordStore
	tasks       TaskEnqueuer
	detectCache DetectionCache
	logger      *slog.Logger
}

func NewServer(cfg *config.Config, dispatcher Dispatcher, resolver Resolver, detector Detector, records RecordStore, tasks TaskEnqueuer, detectCache DetectionCache, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		dispatcher:  dispatcher,
		resolver:    resolver,
		detector:    detector,
		records:     records,
		tasks:       tasks,
		detectCache: detectCache,
		logger:      logger,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses and the
// {success:false, error} envelope all endpoints share.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr == nil {
		s.logger.Error("unclassified handler error", "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if !appErr.IsOperational || appErr.StatusCode >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "code", appErr.Code(), "error", appErr)
	}
	respondJSON(w, appErr.StatusCode, errorResponse{Error: appErr.Message, Code: appErr.Code()})
}
