// Package notification holds the notification aggregate and its value
// objects. A Notification is created in StatusPending and moves through its
// lifecycle exclusively via the behavior methods below; each method validates
// the current status and returns an error for invalid transitions instead of
// panicking. A single Notification is not safe for concurrent mutation.
package notification

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery mechanism for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// ParseChannel validates a wire-level channel string.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return Channel(s), nil
	}
	return "", ErrInvalidChannel
}

// Status is the lifecycle state of a notification.
//
// Transitions:
//
//	pending -> sent -> read | dismissed
//	pending -> failed -> pending (explicit reset only)
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusRead      Status = "read"
	StatusDismissed Status = "dismissed"
)

// MaxFailureReasonLen bounds the operator-visible failure reason.
const MaxFailureReasonLen = 500

// Notification is the aggregate for a single outbound notification.
type Notification struct {
	id          uuid.UUID
	recipientID string
	templateID  *string
	channel     Channel
	status      Status

	content  Content
	metadata Metadata

	createdAt   time.Time
	sentAt      *time.Time
	readAt      *time.Time
	dismissedAt *time.Time

	failureReason string
	sendAttempts  int

	version int
	events  []Event
}

// New creates a pending notification with directly supplied content.
func New(recipientID string, channel Channel, content Content, metadata Metadata) (*Notification, error) {
	return newNotification(recipientID, channel, content, metadata, nil)
}

// NewFromTemplate creates a pending notification whose content was produced
// by the template engine; templateID records the template used.
func NewFromTemplate(recipientID string, channel Channel, templateID string, content Content, metadata Metadata) (*Notification, error) {
	return newNotification(recipientID, channel, content, metadata, &templateID)
}

func newNotification(recipientID string, channel Channel, content Content, metadata Metadata, templateID *string) (*Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, ErrRecipientRequired
	}
	if _, err := ParseChannel(string(channel)); err != nil {
		return nil, err
	}
	if content.IsZero() {
		return nil, ErrSubjectRequired
	}

	return &Notification{
		id:          uuid.New(),
		recipientID: recipientID,
		templateID:  templateID,
		channel:     channel,
		status:      StatusPending,
		content:     content,
		metadata:    metadata,
		createdAt:   time.Now().UTC(),
	}, nil
}

func (n *Notification) ID() uuid.UUID           { return n.id }
func (n *Notification) RecipientID() string     { return n.recipientID }
func (n *Notification) Channel() Channel        { return n.channel }
func (n *Notification) Status() Status          { return n.status }
func (n *Notification) Content() Content        { return n.content }
func (n *Notification) Metadata() Metadata      { return n.metadata }
func (n *Notification) CreatedAt() time.Time    { return n.createdAt }
func (n *Notification) SentAt() *time.Time      { return n.sentAt }
func (n *Notification) ReadAt() *time.Time      { return n.readAt }
func (n *Notification) DismissedAt() *time.Time { return n.dismissedAt }
func (n *Notification) FailureReason() string   { return n.failureReason }
func (n *Notification) SendAttempts() int       { return n.sendAttempts }
func (n *Notification) Version() int            { return n.version }

// TemplateID returns the template used to produce the content, or nil when
// the content was supplied directly.
func (n *Notification) TemplateID() *string { return n.templateID }

// MarkSent records a successful delivery. Valid only from pending. The
// attempt counter tracks logical dispatch calls, not the retry controller's
// inner retries.
func (n *Notification) MarkSent() error {
	switch n.status {
	case StatusSent:
		return ErrAlreadySent
	case StatusPending:
	default:
		return ErrNotPending
	}

	now := time.Now().UTC()
	n.status = StatusSent
	n.sentAt = &now
	n.sendAttempts++
	n.record(EventSent, "")
	return nil
}

// MarkFailed records a delivery failure with an operator-visible reason.
// Valid from any non-terminal status (pending or sent).
func (n *Notification) MarkFailed(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrFailureReasonRequired
	}
	if len([]rune(reason)) > MaxFailureReasonLen {
		return ErrFailureReasonTooLong
	}

	switch n.status {
	case StatusPending, StatusSent:
	default:
		return ErrTerminalStatus
	}

	n.status = StatusFailed
	n.failureReason = reason
	n.sendAttempts++
	n.record(EventFailed, reason)
	return nil
}

// MarkRead records that the recipient has seen the notification. Calling it
// twice is an error; failed notifications were never delivered and cannot be
// read.
func (n *Notification) MarkRead() error {
	switch n.status {
	case StatusFailed:
		return ErrCannotReadFailed
	case StatusRead:
		return ErrAlreadyRead
	case StatusDismissed:
		return ErrAlreadyDismissed
	}

	now := time.Now().UTC()
	n.status = StatusRead
	n.readAt = &now
	n.record(EventRead, "")
	return nil
}

// Dismiss hides the notification from the recipient. A failed notification
// cannot be dismissed; it must be retried or discarded by an administrator.
func (n *Notification) Dismiss() error {
	switch n.status {
	case StatusDismissed:
		return ErrAlreadyDismissed
	case StatusFailed:
		return ErrCannotDismissFailed
	}

	now := time.Now().UTC()
	n.status = StatusDismissed
	n.dismissedAt = &now
	n.record(EventDismissed, "")
	return nil
}

// ResetForRetry returns a failed notification to pending so an external
// scheduler can re-attempt delivery under the same identity. This is the only
// backward transition; sendAttempts is preserved.
func (n *Notification) ResetForRetry() error {
	if n.status != StatusFailed {
		return ErrNotFailed
	}

	n.status = StatusPending
	n.failureReason = ""
	return nil
}
