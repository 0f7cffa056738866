package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
)

const notificationColumns = `
	id, recipient_id, template_id, channel, status,
	subject, body, action_url, icon_url, metadata,
	created_at, sent_at, read_at, dismissed_at,
	failure_reason, send_attempts, version
`

// NotificationRepository persists notification aggregates in postgres with
// optimistic concurrency: every UPDATE is guarded by the version the
// aggregate was loaded with.
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepository creates a postgres-backed notification repository.
func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

var _ notification.Repository = (*NotificationRepository)(nil)

// GetByID loads one notification by primary key.
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	row, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return notification.FromSnapshot(row.snapshot())
}

// AddNew inserts a freshly created aggregate. The row is stored at the
// aggregate's current version so an immediate Update on the same in-memory
// aggregate passes the version guard.
func (r *NotificationRepository) AddNew(ctx context.Context, n *notification.Notification) error {
	s := n.Snapshot()

	query := `
		INSERT INTO notifications (
			id, recipient_id, template_id, channel, status,
			subject, body, action_url, icon_url, metadata,
			created_at, failure_reason, send_attempts, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		s.ID, s.RecipientID, s.TemplateID, string(s.Channel), string(s.Status),
		s.Subject, s.Body, s.ActionURL, s.IconURL, s.Metadata,
		s.CreatedAt, s.FailureReason, s.SendAttempts, s.Version,
	)
	if err != nil {
		r.logger.Error("failed to insert notification",
			zap.Error(err),
			zap.String("notification_id", s.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info("notification created",
		zap.String("notification_id", s.ID.String()),
		zap.String("recipient_id", s.RecipientID),
		zap.String("channel", string(s.Channel)),
	)

	return nil
}

// Update writes the aggregate's current state, guarded by the version it was
// loaded with. A stale aggregate gets ErrVersionConflict; callers should
// reload before retrying further updates.
func (r *NotificationRepository) Update(ctx context.Context, n *notification.Notification) error {
	s := n.Snapshot()

	query := `
		UPDATE notifications SET
			status = $1, subject = $2, body = $3, action_url = $4, icon_url = $5,
			metadata = $6, sent_at = $7, read_at = $8, dismissed_at = $9,
			failure_reason = $10, send_attempts = $11, version = version + 1
		WHERE id = $12 AND version = $13
	`

	result, err := r.db.Pool().Exec(ctx, query,
		string(s.Status), s.Subject, s.Body, s.ActionURL, s.IconURL,
		s.Metadata, s.SentAt, s.ReadAt, s.DismissedAt,
		s.FailureReason, s.SendAttempts,
		s.ID, s.Version,
	)
	if err != nil {
		r.logger.Error("failed to update notification",
			zap.Error(err),
			zap.String("notification_id", s.ID.String()),
		)
		return fmt.Errorf("update notification: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the row is gone or someone else updated it first.
		var exists bool
		checkErr := r.db.Pool().QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, s.ID,
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("check notification existence: %w", checkErr)
		}
		if !exists {
			return notification.ErrNotFound
		}
		return notification.ErrVersionConflict
	}

	return nil
}

// ListByRecipient returns one page of a recipient's notifications, newest
// first. Pages are 1-based; out-of-range paging parameters are clamped.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, page, pageSize int) ([]*notification.Notification, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, recipientID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		row, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n, err := notification.FromSnapshot(row.snapshot())
		if err != nil {
			return nil, fmt.Errorf("rehydrate notification %s: %w", row.ID, err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// CountUnread counts a recipient's notifications that have not been read or
// dismissed and have not terminally failed.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND status IN ('pending', 'sent')
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	return count, nil
}

// MarkAllRead marks every readable notification of the recipient as read in
// one statement. Failed and dismissed rows are left alone, matching the
// per-aggregate transition rules.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	query := `
		UPDATE notifications
		SET status = 'read', read_at = NOW(), version = version + 1
		WHERE recipient_id = $1 AND status IN ('pending', 'sent')
	`

	result, err := r.db.Pool().Exec(ctx, query, recipientID)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}

	r.logger.Info("marked all notifications read",
		zap.String("recipient_id", recipientID),
		zap.Int64("updated", result.RowsAffected()),
	)

	return nil
}

func scanNotification(row pgx.Row) (*notificationRow, error) {
	var n notificationRow
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.TemplateID, &n.Channel, &n.Status,
		&n.Subject, &n.Body, &n.ActionURL, &n.IconURL, &n.Metadata,
		&n.CreatedAt, &n.SentAt, &n.ReadAt, &n.DismissedAt,
		&n.FailureReason, &n.SendAttempts, &n.Version,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
