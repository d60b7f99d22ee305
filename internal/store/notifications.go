package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
)

// Notification is a per-user event row, written by the worker when a watched
// transcription reaches a terminal state.
type Notification struct {
	ID         string
	UserID     string
	Title      string
	Body       *string
	Type       *string
	ResourceID *string
	Read       bool
	CreatedAt  time.Time
}

type CreateNotificationParams struct {
	ID         string
	UserID     string
	Title      string
	Body       *string
	Type       *string
	ResourceID *string
}

const notificationColumns = `id, user_id, title, body, type, resource_id, read, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Type, &n.ResourceID, &n.Read, &n.CreatedAt)
	return n, err
}

func (s *Store) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, title, body, type, resource_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		arg.ID, arg.UserID, arg.Title, arg.Body, arg.Type, arg.ResourceID,
	)
	n, err := scanNotification(row)
	if err != nil {
		return Notification{}, apperrors.NewPersistenceError("failed to create notification", "CREATE_NOTIFICATION_FAILED", err)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("failed to list notifications", "LIST_NOTIFICATIONS_FAILED", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("failed to scan notification", "LIST_NOTIFICATIONS_FAILED", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("failed to list notifications", "LIST_NOTIFICATIONS_FAILED", err)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperrors.NewPersistenceError("failed to mark notification read", "MARK_NOTIFICATION_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("notification not found", "NOTIFICATION_NOT_FOUND", "")
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return apperrors.NewPersistenceError("failed to mark notifications read", "MARK_ALL_NOTIFICATIONS_FAILED", err)
	}
	return nil
}

func (s *Store) DeleteNotification(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperrors.NewPersistenceError("failed to delete notification", "DELETE_NOTIFICATION_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("notification not found", "NOTIFICATION_NOT_FOUND", "")
	}
	return nil
}
