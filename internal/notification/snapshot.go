package notification

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the flat, persistence-facing view of a Notification. The
// repository maps it to and from the durable row; the aggregate's invariants
// are re-checked on rehydration.
type Snapshot struct {
	ID            uuid.UUID
	RecipientID   string
	TemplateID    *string
	Channel       Channel
	Status        Status
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

// Snapshot exports the aggregate's durable state.
func (n *Notification) Snapshot() Snapshot {
	return Snapshot{
		ID:            n.id,
		RecipientID:   n.recipientID,
		TemplateID:    n.templateID,
		Channel:       n.channel,
		Status:        n.status,
		Subject:       n.content.subject,
		Body:          n.content.body,
		ActionURL:     n.content.actionURL,
		IconURL:       n.content.iconURL,
		Metadata:      n.metadata.Values(),
		CreatedAt:     n.createdAt,
		SentAt:        n.sentAt,
		ReadAt:        n.readAt,
		DismissedAt:   n.dismissedAt,
		FailureReason: n.failureReason,
		SendAttempts:  n.sendAttempts,
		Version:       n.version,
	}
}

// FromSnapshot rehydrates an aggregate from its durable state. Content and
// metadata bounds are re-validated; rows written by this engine always pass.
func FromSnapshot(s Snapshot) (*Notification, error) {
	var opts []ContentOption
	if s.ActionURL != "" {
		opts = append(opts, WithActionURL(s.ActionURL))
	}
	if s.IconURL != "" {
		opts = append(opts, WithIconURL(s.IconURL))
	}

	content, err := NewContent(s.Subject, s.Body, opts...)
	if err != nil {
		return nil, err
	}

	metadata, err := NewMetadata(s.Metadata)
	if err != nil {
		return nil, err
	}

	if _, err := ParseChannel(string(s.Channel)); err != nil {
		return nil, err
	}

	return &Notification{
		id:            s.ID,
		recipientID:   s.RecipientID,
		templateID:    s.TemplateID,
		channel:       s.Channel,
		status:        s.Status,
		content:       content,
		metadata:      metadata,
		createdAt:     s.CreatedAt,
		sentAt:        s.SentAt,
		readAt:        s.ReadAt,
		dismissedAt:   s.DismissedAt,
		failureReason: s.FailureReason,
		sendAttempts:  s.SendAttempts,
		version:       s.Version,
	}, nil
}
