package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/campushub/notify/internal/notification"
)

// notificationRow mirrors the notifications table. Nullable timestamp and
// template columns map to pointers; url and reason columns default to the
// empty string.
type notificationRow struct {
	ID            uuid.UUID
	RecipientID   string
	TemplateID    *string
	Channel       string
	Status        string
	Subject       string
	Body          string
	ActionURL     string
	IconURL       string
	Metadata      map[string]string
	CreatedAt     time.Time
	SentAt        *time.Time
	ReadAt        *time.Time
	DismissedAt   *time.Time
	FailureReason string
	SendAttempts  int
	Version       int
}

func (r *notificationRow) snapshot() notification.Snapshot {
	return notification.Snapshot{
		ID:            r.ID,
		RecipientID:   r.RecipientID,
		TemplateID:    r.TemplateID,
		Channel:       notification.Channel(r.Channel),
		Status:        notification.Status(r.Status),
		Subject:       r.Subject,
		Body:          r.Body,
		ActionURL:     r.ActionURL,
		IconURL:       r.IconURL,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt,
		SentAt:        r.SentAt,
		ReadAt:        r.ReadAt,
		DismissedAt:   r.DismissedAt,
		FailureReason: r.FailureReason,
		SendAttempts:  r.SendAttempts,
		Version:       r.Version,
	}
}

// templateRow mirrors the templates table. Each channel variant is a set of
// nullable columns; a NULL body means the variant is absent.
type templateRow struct {
	ID             string
	EmailSubject   *string
	EmailBody      *string
	PushTitle      *string
	PushBody       *string
	PushIconURL    *string
	InAppTitle     *string
	InAppBody      *string
	InAppActionURL *string
	InAppIconURL   *string
}

// recipientRow mirrors the recipients table: the contact points the channel
// senders resolve at delivery time.
type recipientRow struct {
	ID           string
	Email        *string
	PushEndpoint *string
	PushP256dh   *string
	PushAuth     *string
}
