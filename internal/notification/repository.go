package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no notification matches.
var ErrNotFound = errors.New("notification not found")

// ErrVersionConflict is returned by Update when the stored row changed since
// the aggregate was loaded. Callers should reload and retry or give up.
var ErrVersionConflict = errors.New("notification was modified concurrently")

// Repository is the persistence boundary for notifications. Implementations
// must provide optimistic concurrency on Update so two workers cannot
// dispatch the same stored notification simultaneously.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	AddNew(ctx context.Context, n *Notification) error
	Update(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID string, page, pageSize int) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkAllRead(ctx context.Context, recipientID string) error
}
