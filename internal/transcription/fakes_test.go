package transcription

import (
	"context"
	"time"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/store"
)

// fakeJobStore is an in-memory JobStore keyed by job id.
type fakeJobStore struct {
	records   map[string]store.Transcription
	created   []store.CreateTranscriptionParams
	updates   []store.UpdateJobStatusParams
	createErr error
	getErr    error
	updateErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{records: make(map[string]store.Transcription)}
}

func (f *fakeJobStore) CreateTranscription(ctx context.Context, arg store.CreateTranscriptionParams) (store.Transcription, error) {
	if f.createErr != nil {
		return store.Transcription{}, f.createErr
	}
	f.created = append(f.created, arg)
	now := time.Now()
	rec := store.Transcription{
		ID:         arg.ID,
		UserID:     arg.UserID,
		JobID:      arg.JobID,
		Name:       arg.Name,
		AudioURL:   arg.AudioURL,
		Text:       arg.Text,
		Status:     arg.Status,
		Language:   arg.Language,
		Confidence: arg.Confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.records[arg.JobID] = rec
	return rec, nil
}

func (f *fakeJobStore) GetTranscriptionByJobID(ctx context.Context, jobID string) (store.Transcription, error) {
	if f.getErr != nil {
		return store.Transcription{}, f.getErr
	}
	rec, ok := f.records[jobID]
	if !ok {
		return store.Transcription{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
	}
	return rec, nil
}

func (f *fakeJobStore) UpdateJobStatus(ctx context.Context, arg store.UpdateJobStatusParams) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, arg)
	rec, ok := f.records[arg.JobID]
	if !ok {
		return apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
	}
	rec.Status = arg.Status
	if arg.Text != nil {
		rec.Text = arg.Text
	}
	if arg.Confidence != nil {
		rec.Confidence = arg.Confidence
	}
	if arg.Language != nil {
		rec.Language = arg.Language
	}
	f.records[arg.JobID] = rec
	return nil
}

// fakeStatusClient returns scripted updates and counts its calls.
type fakeStatusClient struct {
	update JobUpdate
	err    error
	calls  int
}

func (f *fakeStatusClient) GetJobStatus(ctx context.Context, jobID string) (JobUpdate, error) {
	f.calls++
	if f.err != nil {
		return JobUpdate{}, f.err
	}
	upd := f.update
	upd.JobID = jobID
	return upd, nil
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
