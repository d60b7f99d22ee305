package transcription

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/metrics"
	"github.com/lecturanotes/kalam/internal/utils"
)

// errDetectionPending marks a detection job that has not finished yet.
// The retry loop matches on "pending" to keep polling.
var errDetectionPending = errors.New("language detection pending")

// Detector runs a lightweight detection job against the asynchronous
// provider and polls it briefly server-side, so callers get an answer in
// one request instead of running the polling loop themselves.
type Detector struct {
	assembly    *AssemblyAIClient
	maxAttempts int
	delay       time.Duration
}

func NewDetector(assembly *AssemblyAIClient, maxAttempts int, delay time.Duration) *Detector {
	return &Detector{assembly: assembly, maxAttempts: maxAttempts, delay: delay}
}

// Detect uploads the audio if needed, creates a detection-only job
// (no punctuation or formatting work), and polls until the provider
// reports a language. The answer is normalized onto the routing codes.
func (d *Detector) Detect(ctx context.Context, src ReadSource, audioURL string) (string, error) {
	if !d.assembly.Configured() {
		return "", apperrors.NewConfigurationError("transcription provider is not configured", "ASSEMBLYAI_KEY_MISSING")
	}

	hasFile := src.Reader != nil
	if hasFile == (audioURL != "") {
		return "", apperrors.NewValidationError("exactly one of file and audioUrl must be provided", "INVALID_AUDIO_SOURCE", "Send either an uploaded file or an audio URL, not both")
	}

	if hasFile {
		uploaded, err := d.assembly.Upload(ctx, src.Reader)
		if err != nil {
			d.recordDetection(ctx, "error")
			return "", err
		}
		audioURL = uploaded
	}

	jobID, _, err := d.assembly.CreateJob(ctx, audioURL, JobOptions{LanguageDetection: true})
	if err != nil {
		d.recordDetection(ctx, "error")
		return "", err
	}

	language, err := utils.WithRetry(ctx, func(ctx context.Context) (string, error) {
		upd, err := d.assembly.GetJobStatus(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch upd.Status {
		case StatusCompleted:
			if upd.Language == nil || *upd.Language == "" {
				return "", apperrors.NewProviderError("detection job finished without a language", "DETECTION_NO_LANGUAGE", nil)
			}
			return *upd.Language, nil
		case StatusError:
			return "", apperrors.NewProviderError("language detection failed: "+upd.ErrorDetail, "DETECTION_FAILED", nil)
		default:
			return "", errDetectionPending
		}
	}, utils.FixedPollConfig(d.maxAttempts, d.delay))
	if err != nil {
		d.recordDetection(ctx, "error")
		if errors.Is(err, errDetectionPending) {
			return "", apperrors.NewTimeoutError("language detection did not finish in time", "DETECTION_TIMEOUT", err)
		}
		return "", err
	}

	normalized := NormalizeLanguage(language)
	d.recordDetection(ctx, normalized)
	return normalized, nil
}

func (d *Detector) recordDetection(ctx context.Context, outcome string) {
	metrics.LanguageDetectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
