package transcription

import (
	"context"

	"github.com/lecturanotes/kalam/internal/store"
)

type ProviderType string

const (
	ProviderAssemblyAI ProviderType = "assemblyai"
	ProviderElevenLabs ProviderType = "elevenlabs"
)

// SyncJobPrefix marks job ids synthesized for synchronous submissions.
// These ids never exist at the asynchronous provider, so status reads
// for them must be answered from the store alone.
const SyncJobPrefix = "el-"

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// JobUpdate is one provider read of an asynchronous job.
type JobUpdate struct {
	JobID       string
	Status      JobStatus
	Text        *string
	Confidence  *float64
	Language    *string
	Duration    *float64
	ErrorDetail string
}

// JobOptions controls how an asynchronous job is created.
type JobOptions struct {
	// LanguageCode is the explicit language hint; empty means let the
	// provider detect it.
	LanguageCode      string
	Punctuate         bool
	FormatText        bool
	SpeakerLabels     bool
	AutoHighlights    bool
	SentimentAnalysis bool
	LanguageDetection bool
}

// Result is the outcome of a synchronous transcription call.
type Result struct {
	Text       string
	Language   string
	Confidence *float64
}

// StatusClient reads the current state of an asynchronous job.
type StatusClient interface {
	GetJobStatus(ctx context.Context, jobID string) (JobUpdate, error)
}

// JobStore is the slice of the record store the dispatcher and resolver
// depend on.
type JobStore interface {
	CreateTranscription(ctx context.Context, arg store.CreateTranscriptionParams) (store.Transcription, error)
	GetTranscriptionByJobID(ctx context.Context, jobID string) (store.Transcription, error)
	UpdateJobStatus(ctx context.Context, arg store.UpdateJobStatusParams) error
}
