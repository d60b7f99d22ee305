package transcription

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/metrics"
	"github.com/lecturanotes/kalam/internal/store"
)

// Resolution is the answer to one status read.
type Resolution struct {
	Record store.Transcription

	// ErrorDetail carries the provider-reported failure reason for jobs
	// that ended in error. It is only available on provider-tier reads.
	ErrorDetail string
}

// Resolver answers status reads store-first, falling back to the
// asynchronous provider only for jobs that can still change.
type Resolver struct {
	store    JobStore
	assembly StatusClient
	logger   *slog.Logger
}

func NewResolver(jobs JobStore, assembly StatusClient, logger *slog.Logger) *Resolver {
	return &Resolver{store: jobs, assembly: assembly, logger: logger}
}

// Resolve returns the current state of a job. ownerID is enforced when
// non-empty; anonymous reads resolve by job id alone.
//
// The stored record is authoritative whenever it cannot change anymore:
// synchronous jobs (the prefix or a stored Arabic language marks them)
// and terminal records are returned without touching the provider. Only
// live asynchronous jobs trigger a provider read, whose result is merged
// back best-effort.
func (r *Resolver) Resolve(ctx context.Context, jobID, ownerID string) (Resolution, error) {
	rec, storeErr := r.store.GetTranscriptionByJobID(ctx, jobID)
	haveRecord := storeErr == nil

	if haveRecord {
		if ownerID != "" && rec.UserID != "" && rec.UserID != ownerID {
			return Resolution{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
		}
		if r.answeredByStore(jobID, rec) {
			r.recordResolution(ctx, "store")
			return Resolution{Record: rec}, nil
		}
	} else {
		if !apperrors.IsNotFound(storeErr) {
			// A store outage must not make live jobs unreadable; the
			// provider still has the answer.
			r.logger.Error("store lookup failed during status resolution", "job_id", jobID, "error", storeErr)
		}
		// Synchronous ids exist nowhere but the store.
		if strings.HasPrefix(jobID, SyncJobPrefix) {
			return Resolution{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
		}
	}

	upd, err := r.assembly.GetJobStatus(ctx, jobID)
	if err != nil {
		// Typed pass-through; a transient provider error never mutates
		// the store.
		return Resolution{}, err
	}
	r.recordResolution(ctx, "provider")

	if err := r.store.UpdateJobStatus(ctx, store.UpdateJobStatusParams{
		JobID:      jobID,
		Status:     string(upd.Status),
		Text:       upd.Text,
		Confidence: upd.Confidence,
		Language:   upd.Language,
	}); err != nil && !(apperrors.IsNotFound(err) && !haveRecord) {
		// Best-effort write; the caller still gets the fresh read and
		// the next resolution repairs the record.
		r.logger.Error("failed to persist resolved job status", "job_id", jobID, "error", err)
	}

	merged := rec
	merged.JobID = jobID
	merged.Status = string(upd.Status)
	if upd.Text != nil {
		merged.Text = upd.Text
	}
	if upd.Confidence != nil {
		merged.Confidence = upd.Confidence
	}
	if upd.Language != nil {
		merged.Language = upd.Language
	}
	if upd.Duration != nil {
		merged.Duration = upd.Duration
	}

	return Resolution{Record: merged, ErrorDetail: upd.ErrorDetail}, nil
}

// answeredByStore reports whether a stored record is already the final
// answer for its job id.
func (r *Resolver) answeredByStore(jobID string, rec store.Transcription) bool {
	if strings.HasPrefix(jobID, SyncJobPrefix) {
		return true
	}
	if rec.Language != nil && *rec.Language == LanguageArabic {
		return true
	}
	switch JobStatus(rec.Status) {
	case StatusError:
		return true
	case StatusCompleted:
		return rec.Text != nil && *rec.Text != ""
	}
	return false
}

func (r *Resolver) recordResolution(ctx context.Context, tier string) {
	metrics.StatusResolutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
	))
}
