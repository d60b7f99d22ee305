package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/metrics"
	"github.com/lecturanotes/kalam/internal/store"
)

// SubmitRequest carries one piece of audio into the pipeline. Exactly one
// of File and AudioURL must be set.
type SubmitRequest struct {
	File     ReadSource
	AudioURL string

	// Language is the caller's selector: "auto" (or empty), "en", "ar",
	// or any provider-supported code. It fixes the owning provider for
	// the lifetime of the job.
	Language         string
	EnhancedAccuracy bool
	OwnerID          string
	Name             string
}

// ReadSource pairs an audio stream with its client-side file name.
type ReadSource struct {
	Reader   io.Reader
	FileName string
}

// Submission is what a caller needs to track a dispatched job.
type Submission struct {
	RecordID string
	JobID    string
	Status   JobStatus
	Provider ProviderType

	// Text is populated only on the synchronous path, where the result
	// exists before Submit returns.
	Text *string
}

// Dispatcher routes submissions to the provider the language calls for
// and writes the job record that later status reads resolve against.
type Dispatcher struct {
	assembly      *AssemblyAIClient
	eleven        *ElevenLabsClient
	store         JobStore
	logger        *slog.Logger
	submitTimeout time.Duration
}

func NewDispatcher(assembly *AssemblyAIClient, eleven *ElevenLabsClient, jobs JobStore, logger *slog.Logger, submitTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		assembly:      assembly,
		eleven:        eleven,
		store:         jobs,
		logger:        logger,
		submitTimeout: submitTimeout,
	}
}

// Submit validates the request, routes it, and persists the resulting job
// record. A provider failure leaves no record behind.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	start := time.Now()

	hasFile := req.File.Reader != nil
	hasURL := req.AudioURL != ""
	if hasFile == hasURL {
		return Submission{}, apperrors.NewValidationError("exactly one of file and audioUrl must be provided", "INVALID_AUDIO_SOURCE", "Send either an uploaded file or an audio URL, not both")
	}

	language := req.Language
	if language == "" {
		language = LanguageAuto
	}

	provider := ProviderAssemblyAI
	if usesSyncProvider(language) {
		provider = ProviderElevenLabs
	}

	ctx, cancel := context.WithTimeout(ctx, d.submitTimeout)
	defer cancel()

	var (
		sub Submission
		err error
	)
	if provider == ProviderElevenLabs {
		sub, err = d.submitSync(ctx, req, language)
	} else {
		sub, err = d.submitAsync(ctx, req, language)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.NewTimeoutError("transcription submission timed out", "SUBMIT_TIMEOUT", err)
		}
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", string(provider)),
		attribute.String("outcome", outcome),
	}
	metrics.TranscriptionSubmissionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.TranscriptionSubmitDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (d *Dispatcher) submitAsync(ctx context.Context, req SubmitRequest, language string) (Submission, error) {
	if !d.assembly.Configured() {
		return Submission{}, apperrors.NewConfigurationError("transcription provider is not configured", "ASSEMBLYAI_KEY_MISSING")
	}

	audioURL := req.AudioURL
	if req.File.Reader != nil {
		uploaded, err := d.assembly.Upload(ctx, req.File.Reader)
		if err != nil {
			return Submission{}, err
		}
		audioURL = uploaded
	}

	opts := JobOptions{
		Punctuate:  true,
		FormatText: true,
	}
	if language != LanguageAuto {
		opts.LanguageCode = language
	}
	// Enhanced-accuracy features are only honored for English and
	// auto-detected audio; for other languages they are dropped rather
	// than rejected.
	if req.EnhancedAccuracy && enhancedSupported(language) {
		opts.SpeakerLabels = true
		opts.AutoHighlights = true
		opts.SentimentAnalysis = true
	}

	jobID, status, err := d.assembly.CreateJob(ctx, audioURL, opts)
	if err != nil {
		return Submission{}, err
	}

	rec, err := d.store.CreateTranscription(ctx, store.CreateTranscriptionParams{
		ID:       uuid.NewString(),
		UserID:   req.OwnerID,
		JobID:    jobID,
		Name:     d.recordName(req),
		AudioURL: &audioURL,
		Status:   string(status),
		Language: &language,
	})
	if err != nil {
		// The provider already accepted the job, so the id is still
		// usable for polling. Losing the record is reported, not fatal.
		d.logger.Error("failed to persist transcription record after dispatch",
			"job_id", jobID, "provider", ProviderAssemblyAI, "error", err)
		return Submission{JobID: jobID, Status: status, Provider: ProviderAssemblyAI}, nil
	}

	return Submission{RecordID: rec.ID, JobID: jobID, Status: status, Provider: ProviderAssemblyAI}, nil
}

func (d *Dispatcher) submitSync(ctx context.Context, req SubmitRequest, language string) (Submission, error) {
	if !d.eleven.Configured() {
		return Submission{}, apperrors.NewConfigurationError("speech-to-text provider is not configured", "ELEVENLABS_KEY_MISSING")
	}

	var (
		result Result
		err    error
	)
	if req.File.Reader != nil {
		result, err = d.eleven.Transcribe(ctx, req.File.Reader, req.File.FileName, language)
	} else {
		result, err = d.eleven.TranscribeURL(ctx, req.AudioURL, language)
	}
	if err != nil {
		return Submission{}, err
	}

	// The job never existed at the asynchronous provider, so the id is
	// synthesized locally. The prefix tells the resolver to answer reads
	// from the store alone.
	jobID := SyncJobPrefix + uuid.NewString()
	text := result.Text

	params := store.CreateTranscriptionParams{
		ID:         uuid.NewString(),
		UserID:     req.OwnerID,
		JobID:      jobID,
		Name:       d.recordName(req),
		Text:       &text,
		Status:     string(StatusCompleted),
		Language:   &language,
		Confidence: result.Confidence,
	}
	if req.AudioURL != "" {
		params.AudioURL = &req.AudioURL
	}

	rec, err := d.store.CreateTranscription(ctx, params)
	if err != nil {
		// Unlike the asynchronous path the store is the only home this
		// result has; without the record the job id resolves to nothing.
		return Submission{}, err
	}

	return Submission{
		RecordID: rec.ID,
		JobID:    jobID,
		Status:   StatusCompleted,
		Provider: ProviderElevenLabs,
		Text:     &text,
	}, nil
}

func (d *Dispatcher) recordName(req SubmitRequest) string {
	if req.Name != "" {
		return req.Name
	}
	if req.File.FileName != "" {
		return req.File.FileName
	}
	return fmt.Sprintf("Transcription %s", time.Now().Format("2006-01-02 15:04"))
}
