package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/store"
	"github.com/lecturanotes/kalam/internal/transcription"
)

// ErrStillRunning makes asynq re-deliver the watch task later; it is the
// retry signal, not a failure.
var ErrStillRunning = errors.New("transcription still running")

// Resolver answers one status read for the watched job.
type Resolver interface {
	Resolve(ctx context.Context, jobID, ownerID string) (transcription.Resolution, error)
}

// NotificationStore persists the terminal-status notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, arg store.CreateNotificationParams) (store.Notification, error)
}

// Watcher re-resolves dispatched jobs until they finish and files a
// notification for the owner.
type Watcher struct {
	resolver Resolver
	records  NotificationStore
	metrics  *WorkerMetrics
	logger   *slog.Logger
}

func NewWatcher(resolver Resolver, records NotificationStore, metrics *WorkerMetrics, logger *slog.Logger) *Watcher {
	return &Watcher{
		resolver: resolver,
		records:  records,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleTranscriptionWatch processes one watch tick. Non-terminal jobs
// return ErrStillRunning so asynq schedules the next tick; terminal jobs
// produce a notification and finish the task.
func (p *Watcher) HandleTranscriptionWatch(ctx context.Context, t *asynq.Task) error {
	var payload TranscriptionWatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid watch payload: %v: %w", err, asynq.SkipRetry)
	}

	res, err := p.resolver.Resolve(ctx, payload.JobID, "")
	if err != nil {
		if apperrors.IsNotFound(err) {
			// The job vanished at the provider; retrying cannot help.
			p.metrics.recordCheck(ctx, "not_found")
			p.logger.Warn("watched job no longer exists", "job_id", payload.JobID)
			return fmt.Errorf("job %s not found: %w", payload.JobID, asynq.SkipRetry)
		}
		p.metrics.recordCheck(ctx, "error")
		return err
	}

	status := transcription.JobStatus(res.Record.Status)
	if !status.Terminal() {
		p.metrics.recordCheck(ctx, "running")
		return fmt.Errorf("job %s: %w", payload.JobID, ErrStillRunning)
	}

	p.metrics.recordCheck(ctx, "terminal")
	p.metrics.recordTerminal(ctx, string(status))

	if payload.UserID == "" {
		return nil
	}

	title := "Transcription completed"
	body := "Your transcription is ready."
	if status == transcription.StatusError {
		title = "Transcription failed"
		body = "Your transcription could not be processed."
		if res.ErrorDetail != "" {
			body = res.ErrorDetail
		}
	}

	notifType := "transcription"
	if _, err := p.records.CreateNotification(ctx, store.CreateNotificationParams{
		ID:         uuid.NewString(),
		UserID:     payload.UserID,
		Title:      title,
		Body:       &body,
		Type:       &notifType,
		ResourceID: &payload.JobID,
	}); err != nil {
		// The status itself is already durable; a lost notification is
		// retried with the task.
		return err
	}
	p.metrics.recordNotification(ctx)

	p.logger.Info("watched job finished", "job_id", payload.JobID, "status", status)
	return nil
}
