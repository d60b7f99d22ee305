package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypeTranscriptionWatch = "transcription:watch"
)

// WatchMaxRetry bounds how many times a watch task is retried while the
// job is still running. With asynq's default backoff this covers jobs
// that take well over an hour.
const WatchMaxRetry = 25

// TranscriptionWatchPayload identifies the job to watch and who to
// notify when it finishes.
type TranscriptionWatchPayload struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

// NewTranscriptionWatchTask creates a watch task for a dispatched job.
func NewTranscriptionWatchTask(payload TranscriptionWatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTranscriptionWatch, data), nil
}
