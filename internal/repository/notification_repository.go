package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/database"
)

// NotificationRepository stores user-visible inbox notifications. Rows are
// append-mostly: only the read flag ever changes, and only by the recipient.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert appends one notification.
func (r *NotificationRepository) Insert(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications
		    (recipient_id, type, title, message, related_link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.RelatedLink,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to insert notification")
	}
	return nil
}

// ListForRecipient returns a user's notifications, newest first.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]*Notification, error) {
	query := `
		SELECT id, recipient_id, type, title, message, related_link, read, created_at
		FROM notifications
		WHERE recipient_id = $1
	`
	if unreadOnly {
		query += " AND read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, recipientID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list notifications")
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.RelatedLink,
			&n.Read,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan notification")
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// MarkRead flips the read flag, scoped to the recipient so users cannot
// acknowledge each other's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	query := `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1
		  AND recipient_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, recipientID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("notification", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to mark notification read")
	}
	return nil
}
