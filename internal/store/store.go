package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
)

// Transcription is one job record: the durable source of truth for a
// dispatched transcription from submission to terminal status.
type Transcription struct {
	ID         string
	UserID     string
	JobID      string
	Name       string
	AudioURL   *string
	Text       *string
	Status     string
	Language   *string
	Confidence *float64
	Duration   *float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateTranscriptionParams carries the fields set at dispatch time.
type CreateTranscriptionParams struct {
	ID         string
	UserID     string
	JobID      string
	Name       string
	AudioURL   *string
	Text       *string
	Status     string
	Language   *string
	Confidence *float64
}

// UpdateJobStatusParams merges a fresh provider read into a stored record.
// Nil fields are left untouched.
type UpdateJobStatusParams struct {
	JobID      string
	Status     string
	Text       *string
	Confidence *float64
	Language   *string
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const transcriptionColumns = `id, user_id, job_id, name, audio_url, text, status, language, confidence, duration, created_at, updated_at`

func scanTranscription(row pgx.Row) (Transcription, error) {
	var tr Transcription
	err := row.Scan(
		&tr.ID, &tr.UserID, &tr.JobID, &tr.Name, &tr.AudioURL, &tr.Text,
		&tr.Status, &tr.Language, &tr.Confidence, &tr.Duration,
		&tr.CreatedAt, &tr.UpdatedAt,
	)
	return tr, err
}

// CreateTranscription inserts a new job record.
func (s *Store) CreateTranscription(ctx context.Context, arg CreateTranscriptionParams) (Transcription, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transcriptions (id, user_id, job_id, name, audio_url, text, status, language, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+transcriptionColumns,
		arg.ID, arg.UserID, arg.JobID, arg.Name, arg.AudioURL, arg.Text, arg.Status, arg.Language, arg.Confidence,
	)
	tr, err := scanTranscription(row)
	if err != nil {
		return Transcription{}, apperrors.NewPersistenceError("failed to create transcription record", "CREATE_TRANSCRIPTION_FAILED", err)
	}
	return tr, nil
}

// GetTranscriptionByJobID looks a record up by its provider-facing job id.
func (s *Store) GetTranscriptionByJobID(ctx context.Context, jobID string) (Transcription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+transcriptionColumns+` FROM transcriptions WHERE job_id = $1`, jobID)
	tr, err := scanTranscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transcription{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
		}
		return Transcription{}, apperrors.NewPersistenceError("failed to read transcription record", "GET_TRANSCRIPTION_FAILED", err)
	}
	return tr, nil
}

// GetTranscription looks a record up by its internal id, scoped to an owner.
func (s *Store) GetTranscription(ctx context.Context, id, userID string) (Transcription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+transcriptionColumns+` FROM transcriptions WHERE id = $1 AND user_id = $2`, id, userID)
	tr, err := scanTranscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transcription{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
		}
		return Transcription{}, apperrors.NewPersistenceError("failed to read transcription record", "GET_TRANSCRIPTION_FAILED", err)
	}
	return tr, nil
}

// ListTranscriptions returns a user's records, newest first.
func (s *Store) ListTranscriptions(ctx context.Context, userID string) ([]Transcription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transcriptionColumns+` FROM transcriptions
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("failed to list transcription records", "LIST_TRANSCRIPTIONS_FAILED", err)
	}
	defer rows.Close()

	var out []Transcription
	for rows.Next() {
		tr, err := scanTranscription(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("failed to scan transcription record", "LIST_TRANSCRIPTIONS_FAILED", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("failed to list transcription records", "LIST_TRANSCRIPTIONS_FAILED", err)
	}
	return out, nil
}

// UpdateJobStatus merges a provider read into the stored record. Terminal
// statuses are idempotent to re-apply; text and confidence are only ever
// written, never cleared.
func (s *Store) UpdateJobStatus(ctx context.Context, arg UpdateJobStatusParams) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transcriptions SET
			status = $2,
			text = COALESCE($3, text),
			confidence = COALESCE($4, confidence),
			language = COALESCE($5, language),
			updated_at = now()
		WHERE job_id = $1`,
		arg.JobID, arg.Status, arg.Text, arg.Confidence, arg.Language,
	)
	if err != nil {
		return apperrors.NewPersistenceError("failed to update transcription status", "UPDATE_STATUS_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
	}
	return nil
}

// UpdateTranscription applies user-facing edits (rename, correct text).
// Nil fields are left untouched.
func (s *Store) UpdateTranscription(ctx context.Context, id, userID string, name, text *string) (Transcription, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE transcriptions SET
			name = COALESCE($3, name),
			text = COALESCE($4, text),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+transcriptionColumns,
		id, userID, name, text,
	)
	tr, err := scanTranscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transcription{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
		}
		return Transcription{}, apperrors.NewPersistenceError("failed to update transcription record", "UPDATE_TRANSCRIPTION_FAILED", err)
	}
	return tr, nil
}

// DeleteTranscription removes a record. Deletion is a history-management
// concern; the core flow never deletes.
func (s *Store) DeleteTranscription(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM transcriptions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperrors.NewPersistenceError("failed to delete transcription record", "DELETE_TRANSCRIPTION_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
	}
	return nil
}

// StatusCounts groups a user's records by status for the dashboard.
type StatusCounts struct {
	Queued     int64
	Processing int64
	Completed  int64
	Errored    int64
}

func (s *Store) CountTranscriptionsByStatus(ctx context.Context, userID string) (StatusCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*) FROM transcriptions
		WHERE user_id = $1 GROUP BY status`, userID)
	if err != nil {
		return StatusCounts{}, apperrors.NewPersistenceError("failed to count transcription records", "COUNT_TRANSCRIPTIONS_FAILED", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, apperrors.NewPersistenceError("failed to scan status count", "COUNT_TRANSCRIPTIONS_FAILED", err)
		}
		switch status {
		case "queued":
			counts.Queued = n
		case "processing":
			counts.Processing = n
		case "completed":
			counts.Completed = n
		case "error":
			counts.Errored = n
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, apperrors.NewPersistenceError("failed to count transcription records", "COUNT_TRANSCRIPTIONS_FAILED", err)
	}
	return counts, nil
}
